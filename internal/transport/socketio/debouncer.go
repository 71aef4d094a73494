package socketio

import (
	"sync"
	"time"
)

// Broadcast topics for the debouncer.
const (
	TopicState   = "state"
	TopicQueue   = "queue"
	TopicLibrary = "library"
)

// BroadcastDebouncer collapses rapid change notifications into batched
// broadcasts. A scan pass adding hundreds of songs triggers the library
// topic per reconcile, but clients see a single pushLibrary once the window
// elapses without further changes.
type BroadcastDebouncer struct {
	window          time.Duration
	stateCallback   func()
	queueCallback   func()
	libraryCallback func()

	mu             sync.Mutex
	pendingState   bool
	pendingQueue   bool
	pendingLibrary bool
	timer          *time.Timer
	stopped        bool
}

// NewBroadcastDebouncer creates a debouncer with the given window duration
// and one callback per topic.
func NewBroadcastDebouncer(window time.Duration, stateCallback, queueCallback, libraryCallback func()) *BroadcastDebouncer {
	return &BroadcastDebouncer{
		window:          window,
		stateCallback:   stateCallback,
		queueCallback:   queueCallback,
		libraryCallback: libraryCallback,
	}
}

// Trigger records that a topic changed. The broadcast callbacks are deferred
// until the debounce window elapses without further triggers.
func (d *BroadcastDebouncer) Trigger(topic string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	switch topic {
	case TopicState:
		d.pendingState = true
	case TopicQueue:
		// Queue edits move the playback position too.
		d.pendingState = true
		d.pendingQueue = true
	case TopicLibrary:
		d.pendingLibrary = true
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush fires callbacks for any pending topics and resets them.
func (d *BroadcastDebouncer) flush() {
	d.mu.Lock()
	doState := d.pendingState
	doQueue := d.pendingQueue
	doLibrary := d.pendingLibrary
	d.pendingState = false
	d.pendingQueue = false
	d.pendingLibrary = false
	d.mu.Unlock()

	if doState && d.stateCallback != nil {
		d.stateCallback()
	}
	if doQueue && d.queueCallback != nil {
		d.queueCallback()
	}
	if doLibrary && d.libraryCallback != nil {
		d.libraryCallback()
	}
}

// Stop prevents any further callbacks from firing.
func (d *BroadcastDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pendingState = false
	d.pendingQueue = false
	d.pendingLibrary = false
}
