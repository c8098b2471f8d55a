// Package apierror renders errors as the gateway's {"error": {...}} body.
package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vango-go/vai-places/pkg/core"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

var statusByType = map[core.ErrorType]int{
	core.ErrInvalidArgument:    http.StatusBadRequest,
	core.ErrMalformedArguments: http.StatusBadRequest,
	core.ErrAuthentication:     http.StatusUnauthorized,
	core.ErrUnknownTool:        http.StatusNotFound,
	core.ErrNotFound:           http.StatusNotFound,
	core.ErrRateLimit:          http.StatusTooManyRequests,
	core.ErrCredential:         http.StatusBadGateway,
	core.ErrTransport:          http.StatusBadGateway,
	core.ErrConfiguration:      http.StatusInternalServerError,
	core.ErrUpstream:           http.StatusInternalServerError,
}

func StatusFromType(t core.ErrorType) int {
	if status, ok := statusByType[t]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FromError maps err onto the canonical error body and its HTTP status.
// Errors outside the taxonomy are reported without their details.
func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	// A taxonomy error keeps its status even when it wraps a context error.
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		out.RequestID = requestID
		return &out, StatusFromType(out.Type)
	}

	out, status := &core.Error{Type: core.ErrAPI, Message: "internal error"}, http.StatusInternalServerError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out = &core.Error{Type: core.ErrUpstream, Message: "upstream request timed out", Code: "timeout"}
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		out = &core.Error{Type: core.ErrAPI, Message: "request cancelled", Code: "cancelled"}
		status = http.StatusRequestTimeout
	}
	out.RequestID = requestID
	return out, status
}

// Write sends e with status, adding Retry-After when e carries one.
func Write(w http.ResponseWriter, status int, e *core.Error) {
	if e != nil && e.RetryAfter != nil && *e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(*e.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Error: e})
}

// WriteError maps err with FromError and writes the result.
func WriteError(w http.ResponseWriter, requestID string, err error) {
	e, status := FromError(err, requestID)
	Write(w, status, e)
}
