package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (f *fakeConn) UserID() string { return f.id }

func (f *fakeConn) Send(ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("closed")
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type flagStore struct {
	mu     sync.Mutex
	online map[string]bool
}

func (s *flagStore) SetOnline(_ context.Context, id string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.online == nil {
		s.online = map[string]bool{}
	}
	s.online[id] = online
	return nil
}

func (s *flagStore) get(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[id]
}

func TestRegistryLastWriterWins(t *testing.T) {
	ctx := context.Background()
	flags := &flagStore{}
	reg := NewRegistry(flags, zerolog.Nop())

	first := &fakeConn{id: "u1"}
	second := &fakeConn{id: "u1"}
	reg.Register(ctx, "u1", first)
	reg.Register(ctx, "u1", second)

	got, ok := reg.Lookup("u1")
	if !ok || got != second {
		t.Fatalf("expected second connection to win")
	}
	if !flags.get("u1") {
		t.Fatal("expected online flag set")
	}

	if reg.Release(ctx, "u1", first) {
		t.Fatal("stale connection must not evict the live one")
	}
	if _, ok := reg.Lookup("u1"); !ok {
		t.Fatal("live connection was evicted")
	}
	if !reg.Release(ctx, "u1", second) {
		t.Fatal("expected release of the live connection")
	}
	if _, ok := reg.Lookup("u1"); ok {
		t.Fatal("expected identity absent after release")
	}
	if flags.get("u1") {
		t.Fatal("expected online flag cleared")
	}
}

func TestRegistryUnregisterAbsentIsNoop(t *testing.T) {
	flags := &flagStore{}
	reg := NewRegistry(flags, zerolog.Nop())
	reg.Unregister(context.Background(), "ghost")
	if _, ok := flags.online["ghost"]; ok {
		t.Fatal("absent identity should not touch the online flag")
	}
}

func TestRegistryUnregisterPresent(t *testing.T) {
	ctx := context.Background()
	flags := &flagStore{}
	reg := NewRegistry(flags, zerolog.Nop())
	reg.Register(ctx, "u1", &fakeConn{id: "u1"})
	if !flags.get("u1") {
		t.Fatal("expected online flag set")
	}

	reg.Unregister(ctx, "u1")
	if _, ok := reg.Lookup("u1"); ok {
		t.Fatal("expected identity absent after unregister")
	}
	if flags.get("u1") {
		t.Fatal("expected online flag cleared")
	}
	if reg.Online() != 0 {
		t.Fatalf("expected no connections, got %d", reg.Online())
	}
}

// gatedStore blocks offline writes until gate is closed.
type gatedStore struct {
	flagStore
	entered chan struct{}
	gate    chan struct{}
}

func (s *gatedStore) SetOnline(ctx context.Context, id string, online bool) error {
	if !online {
		s.entered <- struct{}{}
		<-s.gate
	}
	return s.flagStore.SetOnline(ctx, id, online)
}

func TestRegistryReconnectDuringReleaseStaysOnline(t *testing.T) {
	ctx := context.Background()
	flags := &gatedStore{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	reg := NewRegistry(flags, zerolog.Nop())

	old := &fakeConn{id: "u1"}
	fresh := &fakeConn{id: "u1"}
	reg.Register(ctx, "u1", old)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		reg.Release(ctx, "u1", old)
	}()
	<-flags.entered

	go func() {
		defer wg.Done()
		reg.Register(ctx, "u1", fresh)
	}()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if c, ok := reg.Lookup("u1"); ok && c == fresh {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("reconnect never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(flags.gate)
	wg.Wait()

	if c, ok := reg.Lookup("u1"); !ok || c != fresh {
		t.Fatal("expected the fresh connection to stay registered")
	}
	if !flags.get("u1") {
		t.Fatal("expected durable online flag after reconnect")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(&flagStore{}, zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", i%10)
			c := &fakeConn{id: id}
			reg.Register(ctx, id, c)
			reg.Lookup(id)
			reg.Release(ctx, id, c)
		}(i)
	}
	wg.Wait()
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("u%d", i)
		if c, ok := reg.Lookup(id); ok && c.UserID() != id {
			t.Fatalf("registry holds %s under %s", c.UserID(), id)
		}
	}
}

func TestPushReportsPresence(t *testing.T) {
	reg := NewRegistry(nil, zerolog.Nop())
	present, err := reg.Push("nobody", Event{Type: "x"})
	if present || err != nil {
		t.Fatalf("expected absent without error, got %v %v", present, err)
	}
	c := &fakeConn{id: "u1", fail: true}
	reg.Register(context.Background(), "u1", c)
	present, err = reg.Push("u1", Event{Type: "x"})
	if !present || err == nil {
		t.Fatalf("expected present with send error, got %v %v", present, err)
	}
}

func TestRoomsBroadcast(t *testing.T) {
	rooms := NewRooms(zerolog.Nop())
	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}
	broken := &fakeConn{id: "c", fail: true}
	room := BookingRoom("b1")

	rooms.Join(room, a)
	rooms.Join(room, b)
	rooms.Join(room, broken)
	rooms.Join(RequestRoom("r1"), a)

	if n := rooms.Broadcast(room, Event{Type: "new-message"}); n != 2 {
		t.Fatalf("expected 2 successful sends, got %d", n)
	}
	if n := rooms.BroadcastOthers(room, "a", Event{Type: "typing"}); n != 1 {
		t.Fatalf("expected 1 send excluding sender, got %d", n)
	}
	if a.count() != 1 || b.count() != 2 {
		t.Fatalf("unexpected deliveries a=%d b=%d", a.count(), b.count())
	}
	if !rooms.HasMember(room, "b") {
		t.Fatal("b should be a member")
	}

	rooms.LeaveAll(a)
	if rooms.HasMember(room, "a") || rooms.HasMember(RequestRoom("r1"), "a") {
		t.Fatal("LeaveAll should drop every subscription")
	}
	rooms.Leave(room, b)
	if rooms.HasMember(room, "b") {
		t.Fatal("b should have left")
	}
}
