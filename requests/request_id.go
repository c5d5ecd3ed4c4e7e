// Package requests provides per-HTTP-request correlation IDs for the intake
// API, independent of the job IDs the broker assigns.
package requests

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// GetRequestID returns the caller-supplied request ID header, or mints one
// and stamps it back onto the request so downstream handlers see the same
// value.
func GetRequestID(req *http.Request) string {
	requestID := req.Header.Get(requestIDHeader)
	if requestID != "" {
		return requestID
	}
	requestID = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	req.Header.Set(requestIDHeader, requestID)
	return requestID
}
