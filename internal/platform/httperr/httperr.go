// Package httperr maps HTTP transport failures onto the collaborator error
// taxonomy shared by the platform clients.
package httperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// Classify wraps a transport-level error from an HTTP round trip.
func Classify(collaborator string, err error) error {
	kind := domain.FailureNetwork

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = domain.FailureTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = domain.FailureTimeout
	}

	return domain.NewCollaboratorError(collaborator, kind, err)
}

// CheckStatus converts a non-2xx HTTP response into a collaborator error.
func CheckStatus(collaborator string, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	err := fmt.Errorf("HTTP %d: %s", statusCode, string(body))
	switch {
	case statusCode == http.StatusNotFound:
		return domain.NewCollaboratorError(collaborator, domain.FailureNotFound, err)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return domain.NewCollaboratorError(collaborator, domain.FailureTimeout, err)
	case statusCode >= 400 && statusCode < 500:
		return domain.NewCollaboratorError(collaborator, domain.FailureRejected, err)
	default:
		return domain.NewCollaboratorError(collaborator, domain.FailureNetwork, err)
	}
}
