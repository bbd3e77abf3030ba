package notify

import (
	"context"
	"log/slog"
)

// Immediate runs each job inline on Enqueue with the same timeout, retry
// and error isolation as the Outbox. The CLI uses it so a review made from a
// terminal still notifies the subject before the process exits.
type Immediate struct {
	dispatcher Dispatcher
	policy     Policy
	logger     *slog.Logger
}

var _ Runner = (*Immediate)(nil)

func NewImmediate(d Dispatcher, p Policy, logger *slog.Logger) *Immediate {
	return &Immediate{dispatcher: d, policy: p.withDefaults(), logger: logger}
}

// Enqueue runs job and reports whether it succeeded.
func (i *Immediate) Enqueue(job Job) bool {
	return deliver(context.Background(), i.dispatcher, i.policy, i.logger, job)
}
