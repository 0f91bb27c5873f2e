package immich

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"reclaim/internal/services"
)

// ErrDuplicate is returned when the server reports the upload as a duplicate
// of an existing asset.
var ErrDuplicate = errors.New("immich: upload is a duplicate of an existing asset")

// StatusError is an unexpected HTTP status from the server.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "immich %s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	switch e.StatusCode {
	case http.StatusUnauthorized:
		b.WriteString(" - authentication failed, check IMMICH_API_KEY")
	case http.StatusForbidden:
		b.WriteString(" - API key lacks required permissions")
	}
	if e.Message != "" {
		fmt.Fprintf(&b, " - %s", e.Message)
	}
	return b.String()
}

// Unwrap maps the status onto the shared error markers.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return services.ErrAuth
	case e.StatusCode == http.StatusNotFound:
		return services.ErrNotFound
	case retryableStatus(e.StatusCode):
		return services.ErrTransient
	default:
		return nil
	}
}

// IsAuth reports whether err is a 401/403 from the server.
func IsAuth(err error) bool {
	return errors.Is(err, services.ErrAuth)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// errorMessage pulls "message" out of an Immich JSON error body, falling back
// to the raw text.
func errorMessage(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}
	var payload struct {
		Message any `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != nil {
		switch msg := payload.Message.(type) {
		case string:
			return msg
		case []any:
			parts := make([]string, 0, len(msg))
			for _, m := range msg {
				parts = append(parts, fmt.Sprint(m))
			}
			return strings.Join(parts, "; ")
		}
	}
	if len(text) > 300 {
		text = text[:300] + "..."
	}
	return text
}
