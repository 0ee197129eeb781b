package syncer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shrimpsizemoose/lussekatt/internal/canvas"
)

// ErrSyncInFlight means a sync for the same course is already running.
var ErrSyncInFlight = errors.New("sync already in progress for this course")

// friendlyMessage turns a pipeline error into something a dashboard can show
// verbatim. The raw error still lands in the progress record's error field.
func friendlyMessage(err error) string {
	var apiErr *canvas.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized:
			return "Canvas authentication failed, check the API token"
		case apiErr.StatusCode == http.StatusNotFound:
			return "Course not found on Canvas"
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return "Canvas rate limit reached, try again later"
		case apiErr.StatusCode >= 500:
			return "Canvas is unavailable right now"
		default:
			return fmt.Sprintf("Canvas returned unexpected status %d", apiErr.StatusCode)
		}
	}

	var transportErr *canvas.TransportError
	if errors.As(err, &transportErr) {
		return "Could not reach Canvas"
	}

	return "Sync failed"
}
