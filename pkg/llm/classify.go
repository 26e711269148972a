package llm

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// IsQuotaExceeded reports whether an upstream failure is a rate-limit or
// resource-exhaustion condition. This is the single classification point
// that drives backend-tier fallback; every other failure is "other" and
// must not advance the ladder.
//
// The substring checks mirror the markers Gemini has been observed to emit
// ("429", "quota", "ResourceExhausted") in addition to the structured
// googleapi status code.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return true
	}

	msg := err.Error()
	if strings.Contains(msg, "429") {
		return true
	}
	if strings.Contains(strings.ToLower(msg), "quota") {
		return true
	}
	if strings.Contains(msg, "ResourceExhausted") {
		return true
	}

	return false
}
