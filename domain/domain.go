package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnknownDevice = errors.New("unknown device")
)

type Message struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	ClientID  string `json:"clientId,omitempty"`
}

type Connection interface {
	ID() string
	Device() string
	Send(data []byte) error
	SendText(data []byte) error
	Close() error
}

type RelayStats struct {
	Slots     int             `json:"slots"`
	Connected int             `json:"connected"`
	Forwarded uint64          `json:"forwarded"`
	Dropped   uint64          `json:"dropped"`
	Failed    uint64          `json:"failed"`
	Occupants map[string]bool `json:"occupants"`
}

type Relay interface {
	Register(conn Connection)
	Unregister(conn Connection) bool
	Forward(sender Connection, data []byte) int
	Stats() RelayStats
}

type MessageKind int

const (
	TextMessage MessageKind = iota
	BinaryMessage
)

type MessageHandler interface {
	Handle(conn Connection, kind MessageKind, data []byte)
}

type OutcomeKind int

const (
	ClosedNormally OutcomeKind = iota
	ClosedWithError
)

func (k OutcomeKind) String() string {
	if k == ClosedNormally {
		return "closed"
	}
	return "closed_with_error"
}

// Outcome is what a connection's receive loop reports when it ends.
type Outcome struct {
	Kind  OutcomeKind
	Cause string
	Err   error
}

func (o Outcome) String() string {
	if o.Kind == ClosedNormally {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s(%s): %v", o.Kind, o.Cause, o.Err)
}
