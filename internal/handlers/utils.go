package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/elibrary/apiserver/internal/apperr"
)

type contextKey string

const contextSubjectKey contextKey = "sub"

func userIDFromContext(ctx context.Context) (int, error) {
	value := ctx.Value(contextSubjectKey)
	switch subject := value.(type) {
	case int:
		if subject < 1 {
			return 0, errors.New("invalid subject")
		}
		return subject, nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(subject))
		if err != nil || parsed < 1 {
			return 0, errors.New("invalid subject")
		}
		return parsed, nil
	default:
		return 0, errors.New("missing subject")
	}
}

// ErrorResponse is the single error payload shape of the API. Detail
// carries the underlying error chain and is only populated outside
// production.
type ErrorResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Message: message})
}

// writeAppError funnels every service error through one formatter: the
// apperr kind picks the status code, the apperr message is the body.
func writeAppError(w http.ResponseWriter, err error, dev bool) {
	kind := apperr.KindOf(err)
	resp := ErrorResponse{Message: apperr.MessageOf(err)}
	if dev && err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, kind.HTTPStatus(), resp)
}
