package models

import "time"

// ConnectionState is the realtime sync state machine position.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	// StateDegraded means push sync gave up after repeated failures and the
	// manager fell back to interval polling. Not terminal: reconnects keep
	// being attempted from here.
	StateDegraded ConnectionState = "degraded"
)

// ConnectionStatus is a snapshot of the sync manager for status endpoints and
// notifications. ReconnectAttempts resets to zero only on reaching connected.
type ConnectionStatus struct {
	State             ConnectionState `json:"state"`
	ReconnectAttempts int             `json:"reconnect_attempts"`
	LastConnected     time.Time       `json:"last_connected,omitempty"`
	LastError         string          `json:"last_error,omitempty"`
	Polling           bool            `json:"polling"`
	EventsApplied     int64           `json:"events_applied"`
}

// EventType discriminates change events on the upstream predictions table.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// RecordEvent is one change pushed by the upstream feed. New is set for
// INSERT/UPDATE, Old for UPDATE/DELETE. Events are applied last-writer-wins
// in delivery order; there is no ordering guarantee beyond the transport's.
type RecordEvent struct {
	Type EventType         `json:"event_type"`
	New  *PredictionRecord `json:"new,omitempty"`
	Old  *PredictionRecord `json:"old,omitempty"`
}
