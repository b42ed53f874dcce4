package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Janekook7/AudioVideoServer/framestore"
	"github.com/Janekook7/AudioVideoServer/peers"
	"github.com/Janekook7/AudioVideoServer/protocol"
	"github.com/Janekook7/AudioVideoServer/relay"
	ws "github.com/Janekook7/AudioVideoServer/websocket"
)

var placeholder = []byte{0xff, 0xd8, 'b', 'l', 'a', 'c', 'k', 0xff, 0xd9}

type fixture struct {
	server  *httptest.Server
	handler http.Handler
	frames  *framestore.Store
	relay   *relay.Relay
}

func newFixture(t *testing.T, devices ...string) *fixture {
	t.Helper()
	if len(devices) == 0 {
		devices = []string{"device1", "device2"}
	}
	frames := framestore.New(devices, peers.FirstRemaining, placeholder)
	r := relay.New(devices, peers.AllOthers)
	s := New(frames, r, protocol.NewHandler(r), Options{
		Devices:        devices,
		MaxUploadBytes: 1 << 20,
		WebSocket:      ws.DefaultOptions(),
		Now:            func() time.Time { return time.Unix(1700000000, 0) },
	})

	handler := s.Router()
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		r.Close()
		srv.Close()
	})
	return &fixture{server: srv, handler: handler, frames: frames, relay: r}
}

func multipartUpload(t *testing.T, deviceID string, frame []byte, withFrame bool) (io.Reader, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if deviceID != "" {
		require.NoError(t, mw.WriteField("device_id", deviceID))
	}
	if withFrame {
		part, err := mw.CreateFormFile("frame", "frame.jpg")
		require.NoError(t, err)
		_, err = part.Write(frame)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func (f *fixture) upload(t *testing.T, deviceID string, frame []byte, withFrame bool) (int, string) {
	t.Helper()
	body, contentType := multipartUpload(t, deviceID, frame, withFrame)
	resp, err := http.Post(f.server.URL+"/upload_frame", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestUploadThenPoll(t *testing.T) {
	f := newFixture(t)
	frame1 := []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3, 4, 0xff, 0xd9}

	status, body := f.upload(t, "device1", frame1, true)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)

	resp, data := f.get(t, "/get_latest_frame?device_id=device2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, frame1, data)

	status, _ = f.upload(t, "device1", nil, true)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		deviceID  string
		frame     []byte
		withFrame bool
		wantBody  string
	}{
		{name: "missing device", frame: []byte("jpg"), withFrame: true, wantBody: "Missing device_id or frame"},
		{name: "missing frame", deviceID: "device1", wantBody: "Missing device_id or frame"},
		{name: "empty frame", deviceID: "device1", withFrame: true, wantBody: "Empty frame"},
		{name: "unknown device", deviceID: "device7", frame: []byte("jpg"), withFrame: true, wantBody: "Unknown device"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			status, body := f.upload(t, tt.deviceID, tt.frame, tt.withFrame)

			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestUpload_FormValueFrame(t *testing.T) {
	f := newFixture(t)
	form := url.Values{"device_id": {"device2"}, "frame": {"raw-bytes"}}

	resp, err := http.PostForm(f.server.URL+"/upload_frame", form)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, data := f.get(t, "/get_latest_frame?device_id=device1")
	assert.Equal(t, []byte("raw-bytes"), data)
}

func TestUpload_TooLarge(t *testing.T) {
	f := newFixture(t)
	body, contentType := multipartUpload(t, "device1", bytes.Repeat([]byte{1}, 2<<20), true)
	req := httptest.NewRequest(http.MethodPost, "/upload_frame", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Frame too large", rec.Body.String())
	assert.Equal(t, placeholder, f.frames.GetLatestFor("device2"))
}

func TestGetLatestFrame_Fallback(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/get_latest_frame?device_id=device1", "/get_latest_frame?device_id=device2", "/get_latest_frame"} {
		resp, data := f.get(t, path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"), path)
		assert.Equal(t, placeholder, data, path)
	}
}

func TestGetLatestFrame_DefaultRequester(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.frames.Put("device2", []byte("second")))

	_, data := f.get(t, "/get_latest_frame")

	assert.Equal(t, []byte("second"), data)
}

func TestClearFrames(t *testing.T) {
	f := newFixture(t)
	status, _ := f.upload(t, "device1", []byte("frame"), true)
	require.Equal(t, http.StatusOK, status)

	resp, body := f.get(t, "/clear_frames/device1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Cleared device1", string(body))

	_, data := f.get(t, "/get_latest_frame?device_id=device2")
	assert.Equal(t, placeholder, data)

	resp, _ = f.get(t, "/clear_frames/")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = f.get(t, "/clear_frames/nobody")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type debugResponse struct {
	Devices map[string]deviceDebug `json:"devices"`
}

func TestDebug(t *testing.T) {
	f := newFixture(t, "pc1", "pc2", "phone")

	resp, data := f.get(t, "/debug")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var before debugResponse
	require.NoError(t, json.Unmarshal(data, &before))
	require.Len(t, before.Devices, 3)
	for id, d := range before.Devices {
		assert.False(t, d.HasFrame, id)
		assert.Nil(t, d.AgeSeconds, id)
		assert.False(t, d.AudioConnected, id)
	}

	require.NoError(t, f.frames.Put("phone", []byte("abc")))
	_, data = f.get(t, "/debug")
	var after debugResponse
	require.NoError(t, json.Unmarshal(data, &after))
	assert.True(t, after.Devices["phone"].HasFrame)
	assert.Equal(t, 3, after.Devices["phone"].Bytes)
	require.NotNil(t, after.Devices["phone"].AgeSeconds)
	assert.GreaterOrEqual(t, *after.Devices["phone"].AgeSeconds, 0.0)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp, data := f.get(t, "/health")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok","timestamp":1700000000}`, string(data))
}

func TestPages(t *testing.T) {
	f := newFixture(t)

	resp, data := f.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `href="/device2"`)

	resp, data = f.get(t, "/device1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "device1ws")

	resp, _ = f.get(t, "/device3")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func (f *fixture) dial(t *testing.T, device string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/" + device + "ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		_, ok := f.relay.Occupant(device)
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readBinary(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, mt)
	return data
}

func TestAudioRelay_NoBacklogAndRepair(t *testing.T) {
	f := newFixture(t)
	a := f.dial(t, "device1")

	require.NoError(t, a.WriteMessage(websocket.BinaryMessage, []byte("nobody hears this")))
	require.Eventually(t, func() bool { return f.relay.Stats().Dropped == 1 }, 2*time.Second, 5*time.Millisecond)

	b := f.dial(t, "device2")
	require.NoError(t, a.WriteMessage(websocket.BinaryMessage, []byte("pcm-1")))
	assert.Equal(t, []byte("pcm-1"), readBinary(t, b))

	require.NoError(t, a.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool {
		_, ok := f.relay.Occupant("device1")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	a2 := f.dial(t, "device1")
	require.NoError(t, b.WriteMessage(websocket.BinaryMessage, []byte("pcm-2")))
	assert.Equal(t, []byte("pcm-2"), readBinary(t, a2))
	require.NoError(t, a2.WriteMessage(websocket.BinaryMessage, []byte("pcm-3")))
	assert.Equal(t, []byte("pcm-3"), readBinary(t, b))
}

func TestAudioRelay_ThreeDeviceFanout(t *testing.T) {
	f := newFixture(t, "pc1", "pc2", "phone")
	pc1 := f.dial(t, "pc1")
	pc2 := f.dial(t, "pc2")
	phone := f.dial(t, "phone")

	require.NoError(t, phone.WriteMessage(websocket.BinaryMessage, []byte("from phone")))

	assert.Equal(t, []byte("from phone"), readBinary(t, pc1))
	assert.Equal(t, []byte("from phone"), readBinary(t, pc2))
}
