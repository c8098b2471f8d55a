package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/gateway/apierror"
)

func writeCoreErrorJSON(w http.ResponseWriter, reqID string, coreErr *core.Error, status int) {
	if coreErr != nil && coreErr.RequestID == "" {
		coreErr.RequestID = reqID
	}
	apierror.Write(w, status, coreErr)
}

// writeErr maps any error onto the canonical envelope.
func writeErr(w http.ResponseWriter, reqID string, err error) {
	apierror.WriteError(w, reqID, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func methodNotAllowed(w http.ResponseWriter, reqID string) {
	writeCoreErrorJSON(w, reqID, &core.Error{
		Type:    core.ErrInvalidArgument,
		Message: "method not allowed",
		Code:    "method_not_allowed",
	}, http.StatusMethodNotAllowed)
}
