package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Bridge republishes everything a Subscriber delivers into a Publisher,
// normally a broker subscription into the local Hub.
type Bridge struct {
	sub Subscriber
	pub Publisher
	log zerolog.Logger
}

// NewBridge connects sub to pub.
func NewBridge(sub Subscriber, pub Publisher, log zerolog.Logger) *Bridge {
	return &Bridge{sub: sub, pub: pub, log: log.With().Str("component", "bridge").Logger()}
}

// Run blocks until ctx is done or the subscription fails.
func (b *Bridge) Run(ctx context.Context) error {
	b.log.Info().Msg("notification bridge started")
	defer b.log.Info().Msg("notification bridge stopped")
	return b.sub.Subscribe(ctx, func(e Event) {
		if err := b.pub.Publish(ctx, e); err != nil {
			b.log.Error().Err(err).Str("kind", string(e.Kind)).Msg("republish failed")
		}
	})
}

// Notify publishes e with a bounded wait and only logs failures, so a slow
// broker never fails the job that produced the event. It still publishes
// after ctx is cancelled.
func Notify(ctx context.Context, pub Publisher, e Event, log zerolog.Logger) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := pub.Publish(ctx, e); err != nil {
		log.Error().Err(err).Str("kind", string(e.Kind)).Str("jobId", e.JobID).Msg("publish job outcome failed")
	}
}
