package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"busjp/internal/domain"
	"busjp/internal/shell"
	"busjp/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func readType(t *testing.T, frame []byte) string {
	t.Helper()
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("invalid frame %s: %v", frame, err)
	}
	return msg.Type
}

func TestHub_RegisterUnregister(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(discardLogger())
	go h.Run(ctx)

	c := NewClient("c1", shell.NewSession(store.NewGTFSStore(), shell.TileLayers{}, discardLogger()), 4)
	h.Register(c)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	h.Unregister(c)
	waitFor(t, func() bool { return h.ClientCount() == 0 })

	if _, ok := <-c.Send; ok {
		t.Error("send channel still open after unregister")
	}
	if dropped := c.Deliver([][]byte{[]byte("x")}); dropped != 1 {
		t.Errorf("Deliver after close dropped %d, want 1", dropped)
	}
}

func TestHub_BroadcastStopsLoaded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewGTFSStore()
	h := NewHub(discardLogger())
	go h.Run(ctx)

	withViewport := shell.NewSession(st, shell.TileLayers{}, discardLogger())
	withViewport.SetViewport(domain.Viewport{
		Bounds: domain.BoundingBox{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1},
		Zoom:   18,
	})
	idle := shell.NewSession(st, shell.TileLayers{}, discardLogger())

	a := NewClient("a", withViewport, 4)
	b := NewClient("b", idle, 4)
	h.Register(a)
	h.Register(b)
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	st.SetStops([]domain.Stop{{ID: "S1", Lat: 0.5, Lon: 0.5}})
	h.Broadcast(EventStopsLoaded)

	select {
	case frame := <-a.Send:
		if got := readType(t, frame); got != TypeStops {
			t.Errorf("frame type = %q, want %q", got, TypeStops)
		}
	case <-time.After(time.Second):
		t.Fatal("client with viewport got no stops")
	}

	// b has no viewport so the event produces nothing for it
	select {
	case frame := <-b.Send:
		t.Errorf("idle client received %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastRoutesLoaded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewGTFSStore()
	h := NewHub(discardLogger())
	go h.Run(ctx)

	sess := shell.NewSession(st, shell.TileLayers{}, discardLogger())
	sess.SetQuery("loop")
	c := NewClient("c", sess, 4)
	h.Register(c)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	st.SetRoutes([]domain.Route{{ID: "21", ShortName: "21", LongName: "Airport Loop"}})
	h.Broadcast(EventRoutesLoaded)

	select {
	case frame := <-c.Send:
		var msg struct {
			Type    string        `json:"type"`
			Payload RoutesPayload `json:"payload"`
		}
		if err := json.Unmarshal(frame, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != TypeRoutes || msg.Payload.Count != 1 || msg.Payload.Routes[0].ID != "21" {
			t.Errorf("unexpected frame %s", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("no routes frame")
	}
}

func TestHub_RunClosesClientsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	h := NewHub(discardLogger())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c := NewClient("c", shell.NewSession(store.NewGTFSStore(), shell.TileLayers{}, discardLogger()), 1)
	h.Register(c)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	<-done

	if _, ok := <-c.Send; ok {
		t.Error("send channel open after hub stopped")
	}
}

func TestEncodeUpdate_Order(t *testing.T) {
	state := shell.State{DarkMode: true}
	u := shell.Update{
		Stops:  []domain.Stop{},
		Routes: []domain.Route{},
		View:   &shell.View{Center: domain.LatLng{Lat: 1, Lon: 2}, Zoom: 18},
		State:  &state,
	}

	frames, err := EncodeUpdate(u)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{TypeState, TypeView, TypeStops, TypeRoutes}
	if len(frames) != len(want) {
		t.Fatalf("got %d frames, want %d", len(frames), len(want))
	}
	for i, w := range want {
		if got := readType(t, frames[i]); got != w {
			t.Errorf("frame %d = %q, want %q", i, got, w)
		}
	}

	if frames, _ := EncodeUpdate(shell.Update{}); len(frames) != 0 {
		t.Errorf("empty update produced %d frames", len(frames))
	}
}

func TestHub_RegisterIsVisibleToNextBroadcast(t *testing.T) {
	st := store.NewGTFSStore()
	h := NewHub(discardLogger())

	sess := shell.NewSession(st, shell.TileLayers{}, discardLogger())
	c := NewClient("c", sess, 4)
	h.Register(c)

	sess.SetViewport(domain.Viewport{
		Bounds: domain.BoundingBox{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1},
		Zoom:   18,
	})
	st.SetStops([]domain.Stop{{ID: "S1", Lat: 0.5, Lon: 0.5}})
	h.Broadcast(EventStopsLoaded)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	select {
	case frame := <-c.Send:
		var msg struct {
			Type    string       `json:"type"`
			Payload StopsPayload `json:"payload"`
		}
		if err := json.Unmarshal(frame, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != TypeStops || msg.Payload.Count != 1 || msg.Payload.Stops[0].ID != "S1" {
			t.Errorf("unexpected frame %s", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("registered session missed the first stop pass")
	}
}

func TestHub_UnregisterBeforeRun(t *testing.T) {
	h := NewHub(discardLogger())

	clients := make([]*Client, 20)
	for i := range clients {
		clients[i] = NewClient(fmt.Sprintf("c%d", i), shell.NewSession(store.NewGTFSStore(), shell.TileLayers{}, discardLogger()), 1)
		h.Register(clients[i])
		h.Unregister(clients[i])
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	if n := h.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d, want 0", n)
	}
	for _, c := range clients {
		if _, ok := <-c.Send; ok {
			t.Errorf("client %s send channel still open", c.ID)
		}
	}
}

func TestHub_AfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(discardLogger())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	open := make([]*Client, 20)
	for i := range open {
		open[i] = NewClient(fmt.Sprintf("c%d", i), shell.NewSession(store.NewGTFSStore(), shell.TileLayers{}, discardLogger()), 1)
		h.Register(open[i])
	}
	cancel()
	<-done

	finished := make(chan struct{})
	go func() {
		for _, c := range open {
			h.Unregister(c)
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Unregister blocked after the hub stopped")
	}

	late := NewClient("late", shell.NewSession(store.NewGTFSStore(), shell.TileLayers{}, discardLogger()), 1)
	h.Register(late)
	if _, ok := <-late.Send; ok {
		t.Error("client registered after stop was left open")
	}
	if n := h.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d after stop, want 0", n)
	}
}
