package mavenagi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is matched by errors.Is for a definitive 404 from the backend.
var ErrNotFound = errors.New("mavenagi: not found")

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("mavenagi: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Is lets callers test a 404 with errors.Is(err, ErrNotFound) while still
// reaching the status through errors.As.
func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}
