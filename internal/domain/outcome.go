package domain

import (
	"fmt"
	"net/http"
)

// DownloadStatus classifies the result of one download task.
type DownloadStatus string

const (
	StatusSuccess        DownloadStatus = "success"
	StatusHTTPFailure    DownloadStatus = "http_failure"
	StatusNoMatchingFile DownloadStatus = "no_matching_file"
	StatusNetworkError   DownloadStatus = "network_error"
	// StatusExtractFailure covers unreadable archives and local write errors.
	StatusExtractFailure DownloadStatus = "extract_failure"
)

// DownloadOutcome is the result of one DownloadTask.
type DownloadOutcome struct {
	TileCode      string           `json:"tile_code"`
	Displacement  DisplacementType `json:"displacement"`
	Status        DownloadStatus   `json:"status"`
	ExtractedPath string           `json:"extracted_path,omitempty"`
	EntryName     string           `json:"entry_name,omitempty"`
	HTTPStatus    int              `json:"http_status,omitempty"`
	Bytes         int64            `json:"bytes,omitempty"`
	Attempts      int              `json:"attempts"`
	Error         string           `json:"error,omitempty"`
}

// NewOutcome starts an outcome for the given task.
func NewOutcome(task DownloadTask, status DownloadStatus) DownloadOutcome {
	return DownloadOutcome{
		TileCode:     task.Tile.Code(),
		Displacement: task.Displacement,
		Status:       status,
	}
}

// OK reports whether the archive entry was extracted.
func (o DownloadOutcome) OK() bool {
	return o.Status == StatusSuccess
}

// Transient reports whether a retry could plausibly succeed: network errors,
// throttling and gateway/server-side failures.
func (o DownloadOutcome) Transient() bool {
	switch o.Status {
	case StatusNetworkError:
		return true
	case StatusHTTPFailure:
		return IsTransientStatus(o.HTTPStatus)
	default:
		return false
	}
}

// Message returns the plain-language status line for the outcome.
func (o DownloadOutcome) Message() string {
	label := o.TileCode + " " + string(o.Displacement)
	switch o.Status {
	case StatusSuccess:
		return "Extracted " + o.EntryName
	case StatusHTTPFailure:
		return fmt.Sprintf("Failed to download %s (HTTP %d)", label, o.HTTPStatus)
	case StatusNoMatchingFile:
		return "No matching CSV found in the downloaded zip for " + label
	case StatusNetworkError:
		return fmt.Sprintf("Error downloading %s: %s", label, o.Error)
	case StatusExtractFailure:
		return fmt.Sprintf("Error extracting %s: %s", label, o.Error)
	default:
		return label + ": " + string(o.Status)
	}
}

// IsTransientStatus reports whether an HTTP status code signals a temporary condition.
func IsTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// DownloadSummary aggregates a batch of outcomes.
type DownloadSummary struct {
	Total     int                    `json:"total"`
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	ByStatus  map[DownloadStatus]int `json:"by_status"`
}

// Summarize counts outcomes by status.
func Summarize(outcomes []DownloadOutcome) DownloadSummary {
	s := DownloadSummary{Total: len(outcomes), ByStatus: make(map[DownloadStatus]int)}
	for _, o := range outcomes {
		s.ByStatus[o.Status]++
		if o.OK() {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}
