package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event kinds published to the outcome topic.
const (
	EventKindDownload   = "download"
	EventKindEnrichment = "enrichment"
)

// OutcomeEvent is the wire form of a finished unit of work.
type OutcomeEvent struct {
	BatchID     string            `json:"batch_id"`
	Kind        string            `json:"kind"`
	Download    *DownloadOutcome  `json:"download,omitempty"`
	Enrichment  *EnrichmentResult `json:"enrichment,omitempty"`
	ProcessedAt time.Time         `json:"processed_at"`
}

// Key returns the message key: the tile code and displacement for downloads,
// the input path for enrichments.
func (e OutcomeEvent) Key() string {
	switch {
	case e.Download != nil:
		return e.Download.TileCode + "_" + string(e.Download.Displacement)
	case e.Enrichment != nil:
		return e.Enrichment.InputPath
	default:
		return e.BatchID
	}
}

// NewDownloadEvents wraps a batch of download outcomes as events stamped with the package clock.
func NewDownloadEvents(batchID string, outcomes []DownloadOutcome) []OutcomeEvent {
	now := clock.Now().UTC()
	events := make([]OutcomeEvent, len(outcomes))
	for i := range outcomes {
		o := outcomes[i]
		events[i] = OutcomeEvent{BatchID: batchID, Kind: EventKindDownload, Download: &o, ProcessedAt: now}
	}
	return events
}

// NewEnrichmentEvent wraps an enrichment result as an event stamped with the package clock.
func NewEnrichmentEvent(batchID string, result EnrichmentResult) OutcomeEvent {
	return OutcomeEvent{
		BatchID:     batchID,
		Kind:        EventKindEnrichment,
		Enrichment:  &result,
		ProcessedAt: clock.Now().UTC(),
	}
}

// Serialize marshals the event to JSON.
func (e OutcomeEvent) Serialize() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("serialize outcome event: %w", err)
	}
	return data, nil
}
