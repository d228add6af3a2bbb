package events

import (
	"testing"
	"time"
)

func statusEvent(msg string) *StatusEvent {
	return &StatusEvent{
		BaseEvent: BaseEvent{EventType: EventStatusMessage, Time: time.Now()},
		Message:   msg,
	}
}

func TestSubscribeAndPublish(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventStatusMessage)
	bus.Publish(statusEvent("hello"))

	select {
	case ev := <-ch:
		se, ok := ev.(*StatusEvent)
		if !ok {
			t.Fatalf("Expected *StatusEvent, got %T", ev)
		}
		if se.Message != "hello" {
			t.Errorf("Expected message 'hello', got %q", se.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestSubscribeIgnoresOtherTypes(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventBatchCompleted)
	bus.Publish(statusEvent("not for you"))

	select {
	case ev := <-ch:
		t.Errorf("Should not receive event of other type, got %v", ev.Type())
	case <-time.After(50 * time.Millisecond):
		// Good - nothing delivered
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.SubscribeAll()
	bus.Publish(statusEvent("one"))
	bus.Publish(&BatchEvent{
		BaseEvent: BaseEvent{EventType: EventBatchStarted, Time: time.Now()},
		BatchID:   1,
	})

	types := make([]EventType, 0, 2)
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			types = append(types, ev.Type())
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for events")
		}
	}
	if types[0] != EventStatusMessage || types[1] != EventBatchStarted {
		t.Errorf("Expected [status_message batch_started], got %v", types)
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	bus.Subscribe(EventStatusMessage) // never drained
	bus.Publish(statusEvent("first"))
	bus.Publish(statusEvent("second")) // buffer full, dropped

	if got := bus.DroppedEventCount(); got != 1 {
		t.Errorf("Expected 1 dropped event, got %d", got)
	}
}

func TestCloseClosesChannels(t *testing.T) {
	bus := NewEventBus(10)
	ch := bus.Subscribe(EventStatusMessage)
	all := bus.SubscribeAll()

	bus.Close()

	if _, open := <-ch; open {
		t.Error("Typed channel should be closed after Close()")
	}
	if _, open := <-all; open {
		t.Error("All-events channel should be closed after Close()")
	}

	// Publishing after close must not panic
	bus.Publish(statusEvent("late"))
}

func TestSubscribeAfterClose(t *testing.T) {
	bus := NewEventBus(10)
	bus.Close()

	ch := bus.Subscribe(EventStatusMessage)
	if _, open := <-ch; open {
		t.Error("Subscription after Close() should return a closed channel")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventStatusMessage)
	bus.Unsubscribe(EventStatusMessage, ch)
	bus.Publish(statusEvent("gone"))

	select {
	case <-ch:
		t.Error("Should not receive events after Unsubscribe")
	case <-time.After(50 * time.Millisecond):
		// Good
	}
}

func TestUnsubscribeAll(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	typed := bus.Subscribe(EventStatusMessage)
	all := bus.SubscribeAll()
	bus.UnsubscribeAll(typed)
	bus.UnsubscribeAll(all)

	bus.Publish(statusEvent("gone"))

	select {
	case <-typed:
		t.Error("Typed channel should not receive after UnsubscribeAll")
	case <-all:
		t.Error("All channel should not receive after UnsubscribeAll")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishStatus(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventStatusMessage)
	bus.PublishStatus("queued behind active batch")

	select {
	case ev := <-ch:
		se := ev.(*StatusEvent)
		if se.Message != "queued behind active batch" {
			t.Errorf("Unexpected message %q", se.Message)
		}
		if se.Timestamp().IsZero() {
			t.Error("Timestamp should be set")
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for status event")
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{LogLevel(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}
