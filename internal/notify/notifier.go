// Package notify defines the outbound domain-event contract. Delivery is
// fire-and-forget: the lifecycle core never blocks on a notifier and never
// rolls back on delivery failure.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

const (
	EventContractCreated = "contract.created"
	EventStageChanged    = "contract.stage_changed"
	EventBidSubmitted    = "bid.submitted"
	EventBidEvaluated    = "bid.evaluated"
	EventBidWithdrawn    = "bid.withdrawn"
)

type Notifier interface {
	Notify(ctx context.Context, eventType string, payload map[string]interface{}) error
}

// LogNotifier writes events to the structured log. It stands in for the
// real broadcast transport, which lives outside this service.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, eventType string, payload map[string]interface{}) error {
	n.log.Info().Str("event", eventType).Fields(payload).Msg("domain event")
	return nil
}
