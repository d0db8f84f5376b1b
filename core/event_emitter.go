package livemusic

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	events "github.com/koscakluka/ema-livemusic/core/events"
)

type subscriber struct {
	id      uint64
	handler func(events.Event)
}

// eventEmitter delivers events in emission order from a single dispatcher
// goroutine, so emitting never blocks and handlers may call back into the
// helper.
type eventEmitter struct {
	mu sync.Mutex

	queue       []events.Event
	subscribers []subscriber
	nextID      uint64
	closed      bool

	updateSignal chan struct{}
	done         chan struct{}
}

func newEventEmitter() *eventEmitter {
	e := &eventEmitter{
		updateSignal: make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	go e.dispatch()
	return e
}

func (e *eventEmitter) emit(event events.Event) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, event)
	e.mu.Unlock()
	e.signalUpdate()
}

func (e *eventEmitter) subscribe(handler func(events.Event)) (unsubscribe func()) {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subscribers = append(e.subscribers, subscriber{id: id, handler: handler})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		e.subscribers = slices.DeleteFunc(e.subscribers, func(s subscriber) bool { return s.id == id })
		e.mu.Unlock()
	}
}

func (e *eventEmitter) dispatch() {
	defer close(e.done)

	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.mu.Unlock()
			<-e.updateSignal
			e.mu.Lock()
		}
		if len(e.queue) == 0 && e.closed {
			e.mu.Unlock()
			return
		}
		batch := e.queue
		e.queue = nil
		e.mu.Unlock()

		for _, event := range batch {
			e.mu.Lock()
			subscribers := slices.Clone(e.subscribers)
			e.mu.Unlock()
			for _, s := range subscribers {
				deliver(s.handler, event)
			}
		}
	}
}

func deliver(handler func(events.Event), event events.Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("event handler panicked",
				slog.String("kind", event.Kind().String()),
				slog.String("error", fmt.Sprint(recovered)))
		}
	}()
	handler(event)
}

// close delivers what is already queued and stops the dispatcher.
func (e *eventEmitter) close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.signalUpdate()
	<-e.done
}

func (e *eventEmitter) signalUpdate() {
	select {
	case e.updateSignal <- struct{}{}:
	default:
	}
}

// channelSubscription adapts a handler subscription to a channel. Level
// snapshots are dropped when the reader falls behind; every other event waits
// for the reader.
type channelSubscription struct {
	mu     sync.Mutex
	ch     chan events.Event
	stop   chan struct{}
	closed bool
}

func (s *channelSubscription) handle(event events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if event.Kind() == events.KindAudioLevelChanged {
		select {
		case s.ch <- event:
		default:
		}
		return
	}

	select {
	case s.ch <- event:
	case <-s.stop:
	}
}

func (s *channelSubscription) close(unsubscribe func()) {
	unsubscribe()
	close(s.stop)
	s.mu.Lock()
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
}
