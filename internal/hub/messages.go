package hub

import (
	"encoding/json"

	"busjp/internal/domain"
	"busjp/internal/shell"
)

// Server to client message types
const (
	TypeState  = "state"
	TypeStops  = "stops"
	TypeRoutes = "routes"
	TypeView   = "view"
	TypeLocate = "locate"
	TypePong   = "pong"
	TypeError  = "error"
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type StopsPayload struct {
	Stops []domain.Stop `json:"stops"`
	Count int           `json:"count"`
}

type RoutesPayload struct {
	Routes []domain.Route `json:"routes"`
	Count  int            `json:"count"`
}

type LocatePayload struct {
	RequestID string `json:"requestId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode marshals a single message
func Encode(msgType string, payload any) ([]byte, error) {
	return json.Marshal(Message{Type: msgType, Payload: payload})
}

// EncodeUpdate turns a session update into frames. State goes first so the
// browser switches tiles or places the marker before redrawing layers.
func EncodeUpdate(u shell.Update) ([][]byte, error) {
	var frames [][]byte

	add := func(msgType string, payload any) error {
		data, err := Encode(msgType, payload)
		if err != nil {
			return err
		}
		frames = append(frames, data)
		return nil
	}

	if u.State != nil {
		if err := add(TypeState, u.State); err != nil {
			return nil, err
		}
	}
	if u.View != nil {
		if err := add(TypeView, u.View); err != nil {
			return nil, err
		}
	}
	if u.Stops != nil {
		if err := add(TypeStops, StopsPayload{Stops: u.Stops, Count: len(u.Stops)}); err != nil {
			return nil, err
		}
	}
	if u.Routes != nil {
		if err := add(TypeRoutes, RoutesPayload{Routes: u.Routes, Count: len(u.Routes)}); err != nil {
			return nil, err
		}
	}
	return frames, nil
}
