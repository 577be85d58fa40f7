package types

import "github.com/DoyleJ11/kostky-backend/internal/engine"

// Client -> Server
// Join:          name: string (seats the connection's player in the lobby)
// Leave:         {}
// StartGame:     {}
// Roll:          {}
// TakeDie:       index: number (position in lastDice)
// Bank:          {}
// ResolveMirror: {}
// Chat:          text: string
// ResetLobby:    {}
type ClientMessage struct {
	Type  string `json:"type"`
	Index int    `json:"index,omitempty"`
	Text  string `json:"text,omitempty"`
	Name  string `json:"name,omitempty"`
}

const (
	MsgStateSnapshot = "StateSnapshot"
	MsgError         = "Error"
)

// Server -> Client
// StateSnapshot: version, room, events (what caused this version, may be empty)
// Error:         version, error (only the sender of a rejected action sees it)
type ServerMessage struct {
	Type    string         `json:"type"`
	Version int            `json:"version"`
	Room    *engine.Room   `json:"room,omitempty"`
	Events  []engine.Event `json:"events,omitempty"`
	Error   string         `json:"error,omitempty"`
}
