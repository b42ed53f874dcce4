package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Janekook7/AudioVideoServer/domain"
	ws "github.com/Janekook7/AudioVideoServer/websocket"
)

const multipartMemory = 1 << 20

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, msg)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

func (s *Server) getLatestFrame(w http.ResponseWriter, r *http.Request) {
	requester := r.URL.Query().Get("device_id")
	if requester == "" {
		requester = s.opts.Devices[0]
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(s.frames.GetLatestFor(requester))
}

func (s *Server) uploadFrame(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusBadRequest, "Frame too large")
			return
		}
		slog.Error("upload error", "error", err)
		writeText(w, http.StatusInternalServerError, "ERROR")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	deviceID := r.PostFormValue("device_id")
	frame, present, err := readFrame(r)
	if err != nil {
		slog.Error("upload error", "device", deviceID, "error", err)
		writeText(w, http.StatusInternalServerError, "ERROR")
		return
	}
	if deviceID == "" || !present {
		writeText(w, http.StatusBadRequest, "Missing device_id or frame")
		return
	}
	if len(frame) == 0 {
		writeText(w, http.StatusBadRequest, "Empty frame")
		return
	}

	if err := s.frames.Put(deviceID, frame); err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownDevice):
			writeText(w, http.StatusBadRequest, "Unknown device")
		case errors.Is(err, domain.ErrInvalidInput):
			writeText(w, http.StatusBadRequest, "Invalid frame")
		default:
			slog.Error("upload error", "device", deviceID, "error", err)
			writeText(w, http.StatusInternalServerError, "ERROR")
		}
		return
	}

	slog.Debug("frame stored", "device", deviceID, "bytes", len(frame))
	writeText(w, http.StatusOK, "OK")
}

// readFrame takes the frame from the file part, or from a plain form field
// for clients that send it as a value.
func readFrame(r *http.Request) ([]byte, bool, error) {
	file, _, err := r.FormFile("frame")
	switch {
	case err == nil:
		defer file.Close()
		data, err := io.ReadAll(file)
		return data, true, err
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		return nil, false, err
	}

	values, ok := r.PostForm["frame"]
	if !ok || len(values) == 0 {
		return nil, false, nil
	}
	return []byte(values[0]), true, nil
}

func (s *Server) clearFrames(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device_id"]
	if deviceID == "" {
		writeText(w, http.StatusBadRequest, "Missing device_id")
		return
	}

	if err := s.frames.Clear(deviceID); err != nil {
		if errors.Is(err, domain.ErrUnknownDevice) || errors.Is(err, domain.ErrInvalidInput) {
			writeText(w, http.StatusBadRequest, "Unknown device")
			return
		}
		slog.Error("clear error", "device", deviceID, "error", err)
		writeText(w, http.StatusInternalServerError, "ERROR")
		return
	}
	writeText(w, http.StatusOK, "Cleared "+deviceID)
}

type deviceDebug struct {
	HasFrame       bool     `json:"has_frame"`
	AgeSeconds     *float64 `json:"age_seconds"`
	Bytes          int      `json:"bytes"`
	AudioConnected bool     `json:"audio_connected"`
}

func (s *Server) debug(w http.ResponseWriter, r *http.Request) {
	relayStats := s.relay.Stats()

	devices := make(map[string]deviceDebug)
	for _, st := range s.frames.Status() {
		d := deviceDebug{
			HasFrame:       st.HasFrame,
			Bytes:          st.Size,
			AudioConnected: relayStats.Occupants[st.DeviceID],
		}
		if st.HasFrame {
			age := st.Age.Seconds()
			d.AgeSeconds = &age
		}
		devices[st.DeviceID] = d
	}

	writeJSON(w, map[string]any{
		"devices": devices,
		"relay":   relayStats,
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	now := s.opts.Now()
	writeJSON(w, map[string]any{
		"status":    "ok",
		"timestamp": float64(now.UnixNano()) / 1e9,
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.relay.Stats())
}

func (s *Server) audioSocket(device string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("upgrade error", "device", device, "error", err)
			return
		}

		wsConn := ws.NewConn(uuid.New().String(), device, conn, s.relay, s.handler, s.opts.WebSocket)
		wsConn.Serve()
	}
}
