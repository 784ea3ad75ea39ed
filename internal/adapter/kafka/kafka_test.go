package kafka

import (
	"testing"
	"time"

	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeToMessage_Download(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	event := domain.OutcomeEvent{
		BatchID: "batch-1",
		Kind:    domain.EventKindDownload,
		Download: &domain.DownloadOutcome{
			TileCode:     "E32N31",
			Displacement: domain.DisplacementVertical,
			Status:       domain.StatusHTTPFailure,
			HTTPStatus:   404,
			Attempts:     1,
		},
		ProcessedAt: now,
	}

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("E32N31_U"), msg.Key)
	assert.Contains(t, string(msg.Value), `"status":"http_failure"`)
	assert.Contains(t, string(msg.Value), `"http_status":404`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("download"), msg.Headers[0].Value)
	assert.Equal(t, "batch_id", msg.Headers[1].Key)
	assert.Equal(t, []byte("batch-1"), msg.Headers[1].Value)
	assert.Equal(t, "processed_at", msg.Headers[2].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[2].Value)
}

func TestSerializeToMessage_Enrichment(t *testing.T) {
	event := domain.OutcomeEvent{
		BatchID:     "batch-2",
		Kind:        domain.EventKindEnrichment,
		Enrichment:  &domain.EnrichmentResult{InputPath: "Point_downloads/a.csv", Rows: 3, Resolved: 2, Unknown: 1},
		ProcessedAt: time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC),
	}

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("Point_downloads/a.csv"), msg.Key)
	assert.JSONEq(t, `{
		"batch_id": "batch-2",
		"kind": "enrichment",
		"enrichment": {"input_path": "Point_downloads/a.csv", "output_path": "", "rows": 3, "resolved": 2, "unknown": 1, "geocode_errors": 0},
		"processed_at": "2024-04-26T15:10:00Z"
	}`, string(msg.Value))
}
