// Package framestore keeps the most recent video frame uploaded by each
// device and hands it to whichever device polls for it.
package framestore

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Janekook7/AudioVideoServer/domain"
	"github.com/Janekook7/AudioVideoServer/peers"
)

// Frame is the latest image from one device. Payload is nil until the
// first upload and after a Clear.
type Frame struct {
	DeviceID   string
	Payload    []byte
	ReceivedAt time.Time
}

type DeviceStatus struct {
	DeviceID string
	HasFrame bool
	Age      time.Duration
	Size     int
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	devices  []string
	resolve  peers.Resolver
	fallback []byte
	now      func() time.Time

	frames map[string]Frame
	mu     sync.RWMutex
}

// New returns a store with an empty entry for every device. Payload slices
// handed out by the store are shared and must not be modified.
func New(devices []string, resolve peers.Resolver, fallback []byte, opts ...Option) *Store {
	s := &Store{
		devices:  append([]string(nil), devices...),
		resolve:  resolve,
		fallback: fallback,
		now:      time.Now,
		frames:   make(map[string]Frame, len(devices)),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, id := range s.devices {
		s.frames[id] = Frame{DeviceID: id}
	}
	return s
}

func (s *Store) Put(deviceID string, payload []byte) error {
	if deviceID == "" {
		return fmt.Errorf("put frame: empty device id: %w", domain.ErrInvalidInput)
	}
	if len(payload) == 0 {
		return fmt.Errorf("put frame for %s: empty payload: %w", deviceID, domain.ErrInvalidInput)
	}

	// copied outside the lock; the stored slice is never written again
	frame := Frame{
		DeviceID:   deviceID,
		Payload:    append([]byte(nil), payload...),
		ReceivedAt: s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.frames[deviceID]; !ok {
		return fmt.Errorf("put frame for %s: %w", deviceID, domain.ErrUnknownDevice)
	}
	s.frames[deviceID] = frame
	return nil
}

// GetLatestFor returns the frame of the requester's peer, or the fallback
// image when the peer has nothing stored.
func (s *Store) GetLatestFor(requester string) []byte {
	peer, ok := s.resolve(requester, s.devices)
	if !ok {
		return s.fallback
	}

	s.mu.RLock()
	frame := s.frames[peer]
	s.mu.RUnlock()

	if len(frame.Payload) == 0 {
		return s.fallback
	}
	return frame.Payload
}

func (s *Store) Clear(deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("clear frame: empty device id: %w", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	_, ok := s.frames[deviceID]
	if ok {
		s.frames[deviceID] = Frame{DeviceID: deviceID}
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("clear frame for %s: %w", deviceID, domain.ErrUnknownDevice)
	}
	slog.Debug("frame cleared", "device", deviceID)
	return nil
}

// Status reports every configured device in configuration order.
func (s *Store) Status() []DeviceStatus {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]DeviceStatus, 0, len(s.devices))
	for _, id := range s.devices {
		frame := s.frames[id]
		st := DeviceStatus{DeviceID: id, HasFrame: frame.Payload != nil, Size: len(frame.Payload)}
		if st.HasFrame {
			st.Age = now.Sub(frame.ReceivedAt)
		}
		out = append(out, st)
	}
	return out
}
