package optimize

import (
	"context"
	"os"
	"time"

	"github.com/sstepanchuk/leptos-image/internal/platform/logging"
)

// TopicImageCreated is published once per derivative actually generated.
// Cache hits and collapsed duplicate requests do not publish.
const TopicImageCreated = "optimize.image.created"

// CreatedEvent is the payload for TopicImageCreated.
type CreatedEvent struct {
	Descriptor Descriptor
	Path       string
	Elapsed    time.Duration
}

// EventPublisher is the slice of the event bus the optimizer needs.
type EventPublisher interface {
	Publish(topic string, args ...interface{})
}

// NewCreatedListener returns a TopicImageCreated handler that loads freshly
// rendered blur placeholders into the sink. Resize derivatives are served
// from disk and are ignored here. Failures only log: the file on disk
// remains the source of truth and the next prelist pass picks it up.
func NewCreatedListener(sink PlaceholderSink, logger *logging.Logger) func(evt CreatedEvent) {
	return func(evt CreatedEvent) {
		if _, ok := evt.Descriptor.Option.(Blur); !ok {
			return
		}
		raw, err := os.ReadFile(evt.Path)
		if err != nil {
			logger.WarnTag("CACHE", "read created placeholder %s: %v", evt.Path, err)
			return
		}
		if err := sink.Put(context.Background(), NewPlaceholder(evt.Descriptor, string(raw))); err != nil {
			logger.WarnTag("CACHE", "store created placeholder %s: %v", evt.Descriptor.Src, err)
			return
		}
		logger.DebugTag("CACHE", "stored placeholder for %s", evt.Descriptor.Src)
	}
}
