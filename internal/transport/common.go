package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	api "github.com/hubexhq/hubex/internal/api/v1"
)

// SetResponse encodes whatever the service layer returned. The body is
// buffered first so an encoding failure never corrupts a half-written
// response.
func SetResponse(w http.ResponseWriter, body any, status int) {
	if body == nil || status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// decodeBody decodes a JSON request body. A false return means the error
// response has already been written.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		SetResponse(w, api.NewError("INVALID_BODY", "request body must be valid JSON"), http.StatusBadRequest)
		return false
	}
	return true
}

// pathID parses a numeric chi path parameter. A false return means the error
// response has already been written.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		SetResponse(w, api.NewError("INVALID_ID", "path id must be an integer"), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// queryBool and queryString take alias names so both snake_case and
// camelCase parameter spellings are accepted.
func queryBool(r *http.Request, names ...string) bool {
	for _, name := range names {
		switch r.URL.Query().Get(name) {
		case "1", "true", "yes":
			return true
		}
	}
	return false
}

func queryString(r *http.Request, names ...string) *string {
	for _, name := range names {
		if raw := r.URL.Query().Get(name); raw != "" {
			return &raw
		}
	}
	return nil
}
