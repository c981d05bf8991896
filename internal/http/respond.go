package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/antonykevinfernando/doorstep-sub001/internal/deposits"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(kind deposits.Kind) int {
	switch kind {
	case deposits.KindValidation, deposits.KindState:
		return http.StatusBadRequest
	case deposits.KindNotFound:
		return http.StatusNotFound
	case deposits.KindConflict, deposits.KindBusy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides unclassified failures from callers. Gateway messages
// are the processor's own text and are passed through.
func publicMessage(err error) string {
	var de *deposits.Error
	if errors.As(err, &de) && de.Kind != deposits.KindInternal {
		return de.Error()
	}
	return "internal error"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := deposits.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"route", routeTemplate(r), "kind", kind.String(), "request_id", requestIDFromContext(r.Context()), "error", err)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: kind.String(), Message: publicMessage(err)}})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: deposits.KindValidation.String(), Message: msg}})
}

// decodeJSON reads a single JSON object. Fractional amounts fail here since
// amount fields are integers.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
