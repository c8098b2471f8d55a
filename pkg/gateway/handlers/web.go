package handlers

import (
	"io"
	"net/http"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/core/tools"
	"github.com/vango-go/vai-places/pkg/gateway/config"
	"github.com/vango-go/vai-places/pkg/gateway/mw"
)

// WebHandler serves /api/web/*. Bodies use the tool argument shapes.
type WebHandler struct {
	Config   config.Config
	Provider tools.Provider
}

func (h WebHandler) Search(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	args, ok := decodeBody[tools.WebSearchArgs](w, r, h.Config.MaxBodyBytes, reqID)
	if !ok {
		return
	}
	res, err := h.Provider.WebSearch(r.Context(), args)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h WebHandler) Extract(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	args, ok := decodeBody[tools.ExtractArgs](w, r, h.Config.MaxBodyBytes, reqID)
	if !ok {
		return
	}
	res, err := h.Provider.ExtractWebContent(r.Context(), args)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeBody[T any](w http.ResponseWriter, r *http.Request, limit int64, reqID string) (T, bool) {
	var zero T
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidArgument("body", "failed to read request body"), http.StatusBadRequest)
		return zero, false
	}
	args, err := tools.Decode[T](body)
	if err != nil {
		writeErr(w, reqID, err)
		return zero, false
	}
	return args, true
}
