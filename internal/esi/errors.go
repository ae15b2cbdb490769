package esi

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure classes for upstream responses. StatusError unwraps to one of
// these so callers can branch with errors.Is instead of comparing codes.
var (
	ErrRateLimited    = errors.New("rate limited by upstream")
	ErrUpstreamServer = errors.New("upstream server error")
	ErrUpstreamClient = errors.New("upstream rejected request")
)

// StatusError is a request that ended on a non-success status after all
// applicable retries.
type StatusError struct {
	StatusCode  int
	Method      string
	URL         string
	GroupKey    string
	CharacterID int64
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	if e.CharacterID > 0 {
		msg = fmt.Sprintf("%s (character %d)", msg, e.CharacterID)
	}
	return msg
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode >= 500:
		return ErrUpstreamServer
	case e.StatusCode >= 400:
		return ErrUpstreamClient
	}
	return nil
}
