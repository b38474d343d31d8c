package hfapi

import "fmt"

// AuthError indicates the endpoint rejected the bearer token (HTTP 401).
// It is never retried.
type AuthError struct {
	Body string
}

func (e *AuthError) Error() string {
	return "authentication failed: verify the API token"
}

// RetriesExhaustedError indicates the request loop gave up after its
// configured number of attempts. It carries the last observed status and
// body, or the last network error when no HTTP response was received.
type RetriesExhaustedError struct {
	Attempts   int
	LastStatus int
	LastBody   string
	Err        error
}

func (e *RetriesExhaustedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("request failed after %d attempts: last status %d: %s", e.Attempts, e.LastStatus, e.LastBody)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RetriesExhaustedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
