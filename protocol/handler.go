package protocol

import (
	"encoding/json"
	"log/slog"

	"github.com/Janekook7/AudioVideoServer/domain"
)

type Handler struct {
	relay domain.Relay
}

func NewHandler(r domain.Relay) *Handler {
	return &Handler{relay: r}
}

// Handle forwards binary audio verbatim. Text frames carry only the JSON
// keepalive exchange and never reach a peer.
func (h *Handler) Handle(conn domain.Connection, kind domain.MessageKind, data []byte) {
	if kind == domain.BinaryMessage {
		h.relay.Forward(conn, data)
		return
	}

	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("invalid message", "device", conn.Device(), "clientId", conn.ID(), "error", err)
		return
	}

	if msg.Type != "ping" {
		slog.Warn("unsupported message", "device", conn.Device(), "clientId", conn.ID(), "type", msg.Type)
		return
	}

	pong := domain.Message{Type: "pong", Timestamp: msg.Timestamp, ClientID: conn.ID()}
	resp, err := json.Marshal(pong)
	if err != nil {
		slog.Warn("marshal error", "clientId", conn.ID(), "error", err)
		return
	}
	if err := conn.SendText(resp); err != nil {
		slog.Debug("pong failed", "clientId", conn.ID(), "error", err)
	}
}
