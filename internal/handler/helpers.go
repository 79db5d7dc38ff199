package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/foliodesk/folio/internal/model"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// writeFieldError writes a 400 naming the offending field.
func writeFieldError(w http.ResponseWriter, field, message string) {
	writeError(w, http.StatusBadRequest, message, map[string]interface{}{"field": field})
}

// errBodyTooLarge is reported when a request body exceeds its limit.
var errBodyTooLarge = errors.New("request body too large")

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errBodyTooLarge
		}
		return err
	}
	return nil
}

// queryBool extracts a boolean query parameter. Returns false if the parameter
// is missing or not "true"/"1".
func queryBool(r *http.Request, key string) bool {
	val := r.URL.Query().Get(key)
	return val == "true" || val == "1"
}

// listResponse wraps items in the list envelope with a count.
func listResponse(items interface{}, count int) model.ListResponse {
	return model.ListResponse{
		Resource: items,
		Meta:     &model.ResponseMeta{Count: count},
	}
}
