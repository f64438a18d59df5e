package llm

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/alihussainiF1/talk2folder/internal/core"
)

// classify maps a raw provider error onto the transient/permanent taxonomy.
// Rate limits, timeouts and server-side failures are retryable; everything
// else (bad request, unsupported content) is not.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.Transientf(op, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return core.Transientf(op, err)
		}
		return core.Permanentf(op, err)
	}
	// Unclassified network-level failures are worth one more try.
	return core.Transientf(op, err)
}
