package pipeline

import (
	"context"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
)

// EventSink receives outcome events once a batch has finished.
type EventSink interface {
	Publish(ctx context.Context, events []domain.OutcomeEvent) error
}
