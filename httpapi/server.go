// Package httpapi exposes the frame store and the audio relay over HTTP
// and WebSocket.
package httpapi

import (
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Janekook7/AudioVideoServer/domain"
	"github.com/Janekook7/AudioVideoServer/framestore"
	ws "github.com/Janekook7/AudioVideoServer/websocket"
)

type FrameStore interface {
	Put(deviceID string, payload []byte) error
	GetLatestFor(requester string) []byte
	Clear(deviceID string) error
	Status() []framestore.DeviceStatus
}

type Options struct {
	Devices        []string
	MaxUploadBytes int64
	WebSocket      ws.Options
	Now            func() time.Time
}

type Server struct {
	frames   FrameStore
	relay    domain.Relay
	handler  domain.MessageHandler
	opts     Options
	upgrader websocket.Upgrader
	pages    *template.Template
}

func New(frames FrameStore, r domain.Relay, h domain.MessageHandler, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		frames:  frames,
		relay:   r,
		handler: h,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pages: template.Must(template.ParseFS(pageFS, "pages/*.html")),
	}
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.stats).Methods(http.MethodGet)
	r.HandleFunc("/debug", s.debug).Methods(http.MethodGet)

	r.HandleFunc("/get_latest_frame", s.getLatestFrame).Methods(http.MethodGet)
	r.HandleFunc("/upload_frame", s.uploadFrame).Methods(http.MethodPost)
	r.HandleFunc("/clear_frames/{device_id}", s.clearFrames).Methods(http.MethodGet)
	r.HandleFunc("/clear_frames", s.clearFrames).Methods(http.MethodGet)
	r.HandleFunc("/clear_frames/", s.clearFrames).Methods(http.MethodGet)

	for _, device := range s.opts.Devices {
		r.HandleFunc("/"+device+"ws", s.audioSocket(device))
		r.HandleFunc("/"+device, s.devicePage(device)).Methods(http.MethodGet)
	}
	r.HandleFunc("/", s.index).Methods(http.MethodGet)

	return r
}
