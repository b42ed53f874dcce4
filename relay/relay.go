package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Janekook7/AudioVideoServer/domain"
	"github.com/Janekook7/AudioVideoServer/peers"
)

// Relay holds at most one live connection per device slot and forwards
// every binary message from a slot to the connections in its peer slots.
type Relay struct {
	devices []string
	peers   peers.SetResolver
	slots   map[string]domain.Connection
	mu      sync.RWMutex

	forwarded atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

func New(devices []string, policy peers.SetResolver) *Relay {
	slots := make(map[string]domain.Connection, len(devices))
	for _, id := range devices {
		slots[id] = nil
	}
	return &Relay{
		devices: append([]string(nil), devices...),
		peers:   policy,
		slots:   slots,
	}
}

func (r *Relay) Register(conn domain.Connection) {
	r.mu.Lock()
	prev, known := r.slots[conn.Device()]
	if known {
		r.slots[conn.Device()] = conn
	}
	r.mu.Unlock()

	if !known {
		slog.Warn("connection for unknown device ignored", "device", conn.Device(), "clientId", conn.ID())
		return
	}
	if prev != nil && prev.ID() != conn.ID() {
		slog.Info("slot taken over", "device", conn.Device(), "clientId", conn.ID(), "previous", prev.ID())
		return
	}
	slog.Info("client connected", "device", conn.Device(), "clientId", conn.ID())
}

// Unregister empties the slot only while conn is still its occupant, so a
// replaced connection that closes late cannot evict its successor.
func (r *Relay) Unregister(conn domain.Connection) bool {
	r.mu.Lock()
	cur := r.slots[conn.Device()]
	owned := cur != nil && cur.ID() == conn.ID()
	if owned {
		r.slots[conn.Device()] = nil
	}
	r.mu.Unlock()

	if !owned {
		slog.Debug("stale unregister skipped", "device", conn.Device(), "clientId", conn.ID())
		return false
	}
	slog.Info("client disconnected", "device", conn.Device(), "clientId", conn.ID())
	return true
}

// Forward hands data to every registered peer of the sender's slot and
// returns how many accepted it. Nothing is queued for absent peers.
func (r *Relay) Forward(sender domain.Connection, data []byte) int {
	targets := r.peerConns(sender)
	if len(targets) == 0 {
		r.dropped.Add(1)
		return 0
	}

	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(data); err != nil {
			r.failed.Add(1)
			slog.Debug("forward failed", "from", sender.Device(), "device", conn.Device(), "clientId", conn.ID(), "error", err)
			continue
		}
		delivered++
	}
	r.forwarded.Add(uint64(delivered))
	return delivered
}

func (r *Relay) peerConns(sender domain.Connection) []domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Connection
	for _, id := range r.peers(sender.Device(), r.devices) {
		if conn := r.slots[id]; conn != nil {
			out = append(out, conn)
		}
	}
	return out
}

func (r *Relay) Occupant(device string) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn := r.slots[device]
	return conn, conn != nil
}

func (r *Relay) Stats() domain.RelayStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := domain.RelayStats{
		Slots:     len(r.slots),
		Forwarded: r.forwarded.Load(),
		Dropped:   r.dropped.Load(),
		Failed:    r.failed.Load(),
		Occupants: make(map[string]bool, len(r.slots)),
	}
	for id, conn := range r.slots {
		st.Occupants[id] = conn != nil
		if conn != nil {
			st.Connected++
		}
	}
	return st
}

// Close closes every live connection. Their receive loops then exit and
// unregister themselves.
func (r *Relay) Close() {
	r.mu.RLock()
	conns := make([]domain.Connection, 0, len(r.slots))
	for _, conn := range r.slots {
		if conn != nil {
			conns = append(conns, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			slog.Debug("close error", "device", conn.Device(), "clientId", conn.ID(), "error", err)
		}
	}
}
