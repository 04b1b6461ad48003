package driven

import "github.com/ericfisherdev/giteemirror/internal/domain/model"

// EventPublisher fans job transitions out to interested listeners.
// Publish must not block the caller.
type EventPublisher interface {
	Publish(event model.JobEvent)
}
