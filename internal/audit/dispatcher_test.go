package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestDispatcherDeliversAndDrains(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	d.Emit(context.Background(), Event{EventType: "login", UserID: "u-1", Success: true})
	d.Emit(context.Background(), Event{EventType: "logout", UserID: "u-1", Success: true})
	d.Close()

	got := 0
	for {
		select {
		case <-sink.Events():
			got++
			if got == 2 {
				return
			}
		case <-time.After(time.Second):
			t.Fatalf("delivered %d of 2 events", got)
		}
	}
}

type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSink) Emit(context.Context, Event) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	// The sink blocks the worker, so the buffer (1) fills after the first
	// event is taken and every emit past the second must drop.
	sink := &blockingSink{entered: make(chan struct{}, 1), release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	d.Emit(context.Background(), Event{EventType: "login"})
	<-sink.entered
	for i := 0; i < 64; i++ {
		d.Emit(context.Background(), Event{EventType: "login"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops under backpressure")
	}

	close(sink.release)
	d.Close()
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}
	// Nil receiver is safe.
	d.Emit(context.Background(), Event{EventType: "login"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher dropped count")
	}
}

func TestJSONWriterSinkOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "login", UserID: "u-1", Success: true})

	var decoded Event
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.EventType != "login" || decoded.UserID != "u-1" || !decoded.Success {
		t.Fatalf("unexpected event: %+v", decoded)
	}
}
