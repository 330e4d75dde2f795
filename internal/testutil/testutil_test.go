package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HerbHall/omicsview/internal/event"
	"github.com/HerbHall/omicsview/internal/query"
	"github.com/HerbHall/omicsview/pkg/models"
)

func TestLogger_NotNil(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestClock_Advance(t *testing.T) {
	c := NewClock()
	start := c.Now()
	c.Advance(5 * time.Minute)
	if got := c.Now().Sub(start); got != 5*time.Minute {
		t.Errorf("Advance: elapsed = %v, want 5m", got)
	}
}

func TestClock_Set(t *testing.T) {
	c := NewClock()
	target := time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC)
	c.Set(target)
	if !c.Now().Equal(target) {
		t.Errorf("Set: got %v, want %v", c.Now(), target)
	}
}

func TestClock_AfterFuncFiresInOrder(t *testing.T) {
	c := NewClock()
	var order []int
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(5*time.Second, func() { order = append(order, 5) })

	c.Advance(3 * time.Second)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("fired = %v, want [1 2]", order)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", c.Pending())
	}
}

func TestClock_StopPreventsFire(t *testing.T) {
	c := NewClock()
	fired := false
	stop := c.AfterFunc(time.Second, func() { fired = true })

	if !stop() {
		t.Error("first stop should report true")
	}
	if stop() {
		t.Error("second stop should report false")
	}
	c.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestClock_TimerScheduledByCallback(t *testing.T) {
	c := NewClock()
	count := 0
	c.AfterFunc(time.Second, func() {
		count++
		c.AfterFunc(time.Second, func() { count++ })
	})
	c.Advance(2 * time.Second)
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestNewMolecule_Defaults(t *testing.T) {
	m := NewMolecule()
	if m.Identifier != "BRCA1" {
		t.Errorf("Identifier = %q, want BRCA1", m.Identifier)
	}
	if m.Type != models.MoleculeMRNA {
		t.Errorf("Type = %q, want MRNA", m.Type)
	}
}

func TestNewMolecule_WithOptions(t *testing.T) {
	m := NewMolecule(WithIdentifier("hsa-miR-21"), WithMoleculeType(models.MoleculeMIRNA))
	if m.Identifier != "hsa-miR-21" || m.Type != models.MoleculeMIRNA {
		t.Errorf("got %+v", m)
	}
}

func TestSource_ResolveAndCancel(t *testing.T) {
	src := NewSource[int]()
	d, _ := query.New(1, 10)

	errCh := make(chan error, 1)
	go func() {
		p, err := src.Fetch(context.Background(), d)
		if err == nil && len(p.Items) != 1 {
			err = errors.New("unexpected items")
		}
		errCh <- err
	}()
	src.Next(t).Resolve(query.Page[int]{Items: []int{7}, TotalCount: 1})
	if err := <-errCh; err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_, err := src.Fetch(ctx, d)
		errCh <- err
	}()
	call := src.Next(t)
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch after cancel = %v, want context.Canceled", err)
	}
	if !call.Cancelled() {
		t.Error("call should report cancelled")
	}
	call.Resolve(query.Page[int]{}) // must not block
	if got := len(src.Calls()); got != 2 {
		t.Errorf("Calls = %d, want 2", got)
	}
}

func TestMockBus_RecordsEvents(t *testing.T) {
	bus := NewMockBus()
	ctx := context.Background()

	_ = bus.Publish(ctx, event.Event{Topic: "update_biomarkers", Source: "test"})
	bus.PublishAsync(ctx, event.Event{Topic: "update_trained_models", Source: "test"})

	events := bus.Events()
	if len(events) != 2 {
		t.Fatalf("Events() len = %d, want 2", len(events))
	}
	if events[0].Source != "test" {
		t.Errorf("events[0].Source = %q, want test", events[0].Source)
	}
	if got := bus.Topics(); got[0] != "update_biomarkers" || got[1] != "update_trained_models" {
		t.Errorf("Topics() = %v", got)
	}
	bus.Subscribe("update_biomarkers", func(context.Context, event.Event) {})()
}

func TestMockBus_Reset(t *testing.T) {
	bus := NewMockBus()
	_ = bus.Publish(context.Background(), event.Event{Topic: "update_biomarkers"})
	bus.Reset()
	if len(bus.Events()) != 0 {
		t.Error("expected no events after Reset")
	}
}
