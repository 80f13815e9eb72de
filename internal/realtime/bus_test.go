package realtime

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestMemoryBusDeliversToEveryListener(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := bus.Listen(ctx)
	b, _ := bus.Listen(ctx)

	if err := bus.Publish(ctx, Change{Collections: []string{"orders"}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	for i, ch := range []<-chan Change{a, b} {
		select {
		case c := <-ch:
			if !c.Touches("orders") {
				t.Fatalf("listener %d: unexpected change %+v", i, c)
			}
		case <-time.After(time.Second):
			t.Fatalf("listener %d: no change delivered", i)
		}
	}
}

func TestMemoryBusKeepsNewestWhenListenerIsSlow(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := bus.Listen(ctx)
	_ = bus.Publish(ctx, Change{Collections: []string{"a"}})
	_ = bus.Publish(ctx, Change{Collections: []string{"b"}})

	c := <-ch
	if !c.Touches("b") {
		t.Fatalf("want newest change, got %+v", c)
	}
}

func TestMemoryBusClosesListenerOnCancel(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := bus.Listen(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("listener not closed after cancel")
	}
}

func TestRedisBusRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	bus, err := NewRedisBus(addr, "procurement-test", nil)
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := bus.Listen(ctx)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := bus.Publish(ctx, Change{Collections: []string{"orders"}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case c := <-ch:
		if !c.Touches("orders") {
			t.Fatalf("unexpected change %+v", c)
		}
	case <-ctx.Done():
		t.Fatalf("no change received")
	}
}
