package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// A watched resource file was created, written, renamed or removed.
	/* Context usage:
	 * ev := context.Data.(*ResourceChangedEvent)
	 */
	EVENT_CODE_RESOURCE_CHANGED SystemEventCode = 0x02

	// A preload group finished loading.
	/* Context usage:
	 * ev := context.Data.(*GroupLoadedEvent)
	 */
	EVENT_CODE_GROUP_LOADED SystemEventCode = 0x03

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// Queued events beyond this are dropped.
const EVENT_QUEUE_SIZE = 256

type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

type ResourceChangedEvent struct {
	Path string
	// Stale is the number of cache entries flagged by the change.
	Stale int
}

type GroupLoadedEvent struct {
	Name      string
	Resources int
	Err       error
}

type FnOnEvent func(context EventContext)

type eventSystemState struct {
	registered map[SystemEventCode][]FnOnEvent
	queue      chan EventContext
	done       chan struct{}
}

var (
	eventMu    sync.RWMutex
	eventState *eventSystemState
)

// EventSystemInitialize returns false if the event system is already running.
func EventSystemInitialize() bool {
	eventMu.Lock()
	defer eventMu.Unlock()
	if eventState != nil {
		return false
	}
	eventState = &eventSystemState{
		registered: make(map[SystemEventCode][]FnOnEvent),
		queue:      make(chan EventContext, EVENT_QUEUE_SIZE),
		done:       make(chan struct{}),
	}
	return true
}

// EventSystemShutdown stops ProcessEvents and drops every listener and
// queued event.
func EventSystemShutdown() error {
	eventMu.Lock()
	defer eventMu.Unlock()
	if eventState == nil {
		return nil
	}
	close(eventState.done)
	eventState = nil
	return nil
}

/**
 * Register to listen for when events are sent with the provided code.
 * @returns false if the event system is not running or the code is out of range.
 */
func EventRegister(code SystemEventCode, onEvent FnOnEvent) bool {
	if code <= 0 || onEvent == nil {
		return false
	}
	eventMu.Lock()
	defer eventMu.Unlock()
	if eventState == nil {
		return false
	}
	eventState.registered[code] = append(eventState.registered[code], onEvent)
	return true
}

/**
 * Queues an event for ProcessEvents. It never blocks: when the queue is full
 * the event is dropped.
 * @returns true if the event was queued.
 */
func EventFire(context EventContext) bool {
	eventMu.RLock()
	defer eventMu.RUnlock()
	if eventState == nil {
		return false
	}
	select {
	case eventState.queue <- context:
		return true
	default:
		LogWarn("Event queue full, dropping event %d", context.Type)
		return false
	}
}

// ProcessEvents dispatches queued events to their listeners until the event
// system shuts down. Listeners run on the calling goroutine.
func ProcessEvents() {
	eventMu.RLock()
	state := eventState
	eventMu.RUnlock()
	if state == nil {
		return
	}
	for {
		select {
		case context := <-state.queue:
			eventMu.RLock()
			listeners := append([]FnOnEvent(nil), state.registered[context.Type]...)
			eventMu.RUnlock()
			for _, l := range listeners {
				l(context)
			}
		case <-state.done:
			return
		}
	}
}
