package httpapi

import (
	"embed"
	"log/slog"
	"net/http"
)

//go:embed pages/*.html
var pageFS embed.FS

type pageData struct {
	DeviceID   string
	WSEndpoint string
	Devices    []string
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.render(w, "index.html", pageData{Devices: s.opts.Devices})
}

func (s *Server) devicePage(device string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, "device.html", pageData{
			DeviceID:   device,
			WSEndpoint: "/" + device + "ws",
			Devices:    s.opts.Devices,
		})
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("render error", "page", name, "error", err)
	}
}
