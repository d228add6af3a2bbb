// Package events provides the typed event bus that connects the transfer
// queue engine to its observers (CLI progress rendering, logging, tests).
// Publishing is non-blocking; slow subscribers drop events rather than
// stalling the engine loop.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/svetzal/r64u-sub000/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	// Queue-level events
	EventQueueChanged  EventType = "queue_changed"  // Item list or item state changed
	EventAllCompleted  EventType = "all_completed"  // Every queued operation reached a terminal state
	EventCancelled     EventType = "cancelled"      // User cancelled pending/in-flight work
	EventStatusMessage EventType = "status_message" // Informational message for the user

	// Batch events
	EventBatchStarted   EventType = "batch_started"   // Batch became the active batch
	EventBatchProgress  EventType = "batch_progress"  // Counters of the batch changed
	EventBatchCompleted EventType = "batch_completed" // Every item of the batch is terminal

	// Per-item operation events
	EventOperationStarted   EventType = "operation_started"   // Item handed to the transport
	EventOperationProgress  EventType = "operation_progress"  // Bytes moved for the current item
	EventOperationCompleted EventType = "operation_completed" // Item finished successfully
	EventOperationFailed    EventType = "operation_failed"    // Item failed (error, timeout, cancel)

	// Recursive expansion events
	EventScanningStarted   EventType = "scanning_started"   // Remote tree walk began
	EventScanningProgress  EventType = "scanning_progress"  // Another directory listed
	EventDirectoryCreation EventType = "directory_creation" // Remote mkdir progress during folder upload
	EventDeleteProgress    EventType = "delete_progress"    // Another entry removed during recursive delete

	// Confirmation requests
	EventOverwriteConfirmation    EventType = "overwrite_confirmation"     // Remote/local file collision
	EventFolderExistsConfirmation EventType = "folder_exists_confirmation" // Remote folder collision

	// Logging
	EventLog EventType = "log"
)

// LogLevel defines log severity levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// QueueEvent signals that the visible item list changed in some way.
type QueueEvent struct {
	BaseEvent
	Pending    int
	InProgress int
	Completed  int
	Failed     int
}

// BatchEvent carries the aggregate counters of one batch.
type BatchEvent struct {
	BaseEvent
	BatchID     int
	Kind        string // "upload", "download" or "delete"
	Description string
	Completed   int
	Failed      int
	Total       int
}

// OperationEvent describes one file-level operation.
type OperationEvent struct {
	BaseEvent
	ItemID     string
	BatchID    int
	Kind       string // "upload", "download" or "delete"
	LocalPath  string
	RemotePath string
	Bytes      int64
	Total      int64
	Message    string // failure reason or completion note ("Skipped", "Cancelled", ...)
}

// ScanEvent reports progress of a recursive remote tree walk.
type ScanEvent struct {
	BaseEvent
	Path        string // directory just listed (or walk root for scanning_started)
	DirsScanned int
	FilesFound  int
	DirsPending int
}

// DirectoryCreationEvent reports remote mkdir progress during a folder upload.
type DirectoryCreationEvent struct {
	BaseEvent
	Path    string
	Created int
	Total   int
}

// DeleteProgressEvent reports progress of a recursive delete.
type DeleteProgressEvent struct {
	BaseEvent
	Path    string
	Removed int
	Total   int
}

// ConfirmationEvent asks the caller for a decision. Exactly one of these is
// outstanding at a time; the engine stays suspended until the matching
// RespondTo* call arrives.
type ConfirmationEvent struct {
	BaseEvent
	Operation string   // "upload", "download" or "delete"
	Name      string   // colliding file name (overwrite confirmation)
	Names     []string // colliding folder names (folder-exists confirmation)
}

// StatusEvent is a user-facing informational message (duplicate request
// suppressed, batch queued behind another, etc.).
type StatusEvent struct {
	BaseEvent
	Message string
}

// LogEvent represents log messages routed through the bus.
type LogEvent struct {
	BaseEvent
	Level   LogLevel
	Message string
	Err     error
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers. Non-blocking: if a subscriber's
// buffer is full the event is dropped and counted, never waited for. The
// engine loop must not stall on a slow display.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishStatus is a convenience method for publishing status messages.
func (eb *EventBus) PublishStatus(message string) {
	eb.Publish(&StatusEvent{
		BaseEvent: BaseEvent{EventType: EventStatusMessage, Time: time.Now()},
		Message:   message,
	})
}

// PublishLog is a convenience method for publishing log events.
func (eb *EventBus) PublishLog(level LogLevel, message string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: BaseEvent{EventType: EventLog, Time: time.Now()},
		Level:     level,
		Message:   message,
		Err:       err,
	})
}

// Unsubscribe removes a subscription channel from a specific event type.
// This prevents memory leaks from abandoned subscriptions.
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel from all event types and
// from the all-events list.
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
}

// DroppedEventCount returns the total number of events dropped due to full
// buffers. Useful for detecting whether buffer sizes need adjustment.
func (eb *EventBus) DroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
