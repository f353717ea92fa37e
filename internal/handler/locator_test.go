package handler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"busjp/internal/domain"
	"busjp/internal/hub"
	"busjp/internal/shell"
	"busjp/internal/store"
)

func newLocatorClient() *hub.Client {
	session := shell.NewSession(store.NewGTFSStore(), testTiles, discardLogger())
	return hub.NewClient("c", session, 4)
}

// requestID waits for the locate frame and returns its id
func requestID(t *testing.T, c *hub.Client) string {
	t.Helper()
	select {
	case frame := <-c.Send:
		var msg struct {
			Type    string            `json:"type"`
			Payload hub.LocatePayload `json:"payload"`
		}
		if err := json.Unmarshal(frame, &msg); err != nil || msg.Type != hub.TypeLocate {
			t.Fatalf("unexpected frame %s", frame)
		}
		return msg.Payload.RequestID
	case <-time.After(time.Second):
		t.Fatal("no locate frame")
	}
	return ""
}

func TestWSLocator(t *testing.T) {
	tests := []struct {
		name    string
		answer  func(l *wsLocator, id string) bool
		want    domain.LatLng
		wantErr bool
	}{
		{
			name:   "position",
			answer: func(l *wsLocator, id string) bool { return l.succeed(id, domain.LatLng{Lat: 1, Lon: 2}) },
			want:   domain.LatLng{Lat: 1, Lon: 2},
		},
		{
			name:    "denied",
			answer:  func(l *wsLocator, id string) bool { return l.fail(id, "denied") },
			wantErr: true,
		},
		{
			name:    "out of range",
			answer:  func(l *wsLocator, id string) bool { return l.succeed(id, domain.LatLng{Lat: 91, Lon: 0}) },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newLocatorClient()
			l := newWSLocator(c)

			type result struct {
				pos domain.LatLng
				err error
			}
			done := make(chan result, 1)
			go func() {
				pos, err := l.Locate(context.Background())
				done <- result{pos, err}
			}()

			id := requestID(t, c)
			if !tt.answer(l, id) {
				t.Fatal("answer not matched to a pending request")
			}

			res := <-done
			if tt.wantErr {
				if !errors.Is(res.err, shell.ErrLocationUnavailable) {
					t.Errorf("err = %v, want ErrLocationUnavailable", res.err)
				}
				return
			}
			if res.err != nil || res.pos != tt.want {
				t.Errorf("Locate = %+v, %v", res.pos, res.err)
			}
			if l.pendingCount() != 0 {
				t.Error("request still pending")
			}
		})
	}
}

func TestWSLocator_UnknownAndCancelled(t *testing.T) {
	c := newLocatorClient()
	l := newWSLocator(c)

	if l.succeed("nope", domain.LatLng{}) {
		t.Error("unknown id matched")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := l.Locate(ctx)
		done <- err
	}()

	id := requestID(t, c)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if l.fail(id, "late") {
		t.Error("answer after cancel matched")
	}
}
