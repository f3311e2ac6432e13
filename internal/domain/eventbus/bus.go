// Package eventbus wraps the process wide pub/sub bus with a bounded
// worker pool so publishers never block on slow subscribers.
package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"github.com/sstepanchuk/leptos-image/internal/platform/logging"
)

const defaultWorkers = 4

type event struct {
	topic string
	args  []interface{}
}

// Bus fans published events out to subscribers on a fixed worker pool.
// Subscriber panics are recovered and logged, so one bad handler cannot
// take a worker down.
type Bus struct {
	bus      evbus.Bus
	workChan chan event
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *logging.Logger
}

// New creates a bus and starts its workers.
func New(workerNum int, logger *logging.Logger) *Bus {
	if workerNum <= 0 {
		workerNum = defaultWorkers
	}

	b := &Bus{
		bus:      evbus.New(),
		workChan: make(chan event, 1024),
		stopChan: make(chan struct{}),
		logger:   logger,
	}
	for i := 0; i < workerNum; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func (b *Bus) worker() {
	defer b.wg.Done()

	for {
		select {
		case <-b.stopChan:
			return
		case evt := <-b.workChan:
			func() {
				defer func() {
					if r := recover(); r != nil {
						b.logger.ErrorTag("EVENT", "subscriber panic on %s: %v", evt.topic, r)
					}
				}()
				b.bus.Publish(evt.topic, evt.args...)
			}()
		}
	}
}

// Publish queues the event for asynchronous delivery. When the queue is
// full the event is dropped with a warning rather than blocking the
// caller.
func (b *Bus) Publish(topic string, args ...interface{}) {
	select {
	case b.workChan <- event{topic: topic, args: args}:
	default:
		b.logger.WarnTag("EVENT", "queue full, dropping event on %s", topic)
	}
}

// PublishSync delivers the event on the calling goroutine.
func (b *Bus) PublishSync(topic string, args ...interface{}) {
	b.bus.Publish(topic, args...)
}

// Subscribe registers a handler for a topic. The handler signature must
// match the published arguments.
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.Subscribe(topic, fn)
}

// Unsubscribe removes a previously registered handler.
func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.bus.Unsubscribe(topic, fn)
}

// HasCallback reports whether any handler is registered for the topic.
func (b *Bus) HasCallback(topic string) bool {
	return b.bus.HasCallback(topic)
}

// Close stops the workers. Events still queued at shutdown are dropped.
func (b *Bus) Close() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
		b.wg.Wait()
	})
}
