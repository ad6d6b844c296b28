package impact

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrEmptyCatalog is returned when the report catalog has no accessible
// entries. Fatal for the run, not for the process.
var ErrEmptyCatalog = eris.New("impact: no accessible reports in catalog")

// ErrFutureDateRange is returned when an export is requested with an end
// date beyond now. The upstream silently returns empty results for such
// ranges instead of erroring, so the boundary rejects them defensively.
var ErrFutureDateRange = eris.New("impact: export end date is in the future")

// APIError is a non-2xx response from the upstream API. 408/429/5xx
// variants are wrapped as transient before being surfaced; other statuses
// are terminal.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("impact: api error: status %d: %s", e.StatusCode, truncate(e.Body, 200))
}

// MalformedResponseError indicates the upstream broke its response contract
// (e.g. a queued-resource locator that carries no job id). Terminal per-item.
type MalformedResponseError struct {
	Detail string
}

func (e *MalformedResponseError) Error() string {
	return "impact: malformed response: " + e.Detail
}

// DownloadError is a failed result download. Wrapped transient for
// retryable statuses by the transport layer.
type DownloadError struct {
	StatusCode int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("impact: download failed: status %d", e.StatusCode)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
