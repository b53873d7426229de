package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/systemshift/graphrest/internal/server/access"
	"github.com/systemshift/graphrest/internal/server/graph"
	"github.com/systemshift/graphrest/internal/server/mutation"
	"github.com/systemshift/graphrest/internal/server/resource"
	"github.com/systemshift/graphrest/internal/server/search"
)

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// writeError maps err onto a status. Anything unclassified is a 500 whose
// detail is only logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{Message: err.Error()}

	var (
		pathErr   *resource.PathError
		methodErr *resource.MethodError
		fieldErr  *search.IllegalSearchFieldError
		propErr   *mutation.PropertyError
	)
	switch {
	case errors.As(err, &pathErr):
		resp.Code = pathErr.Status
		resp.Message = pathErr.Error()
	case errors.As(err, &methodErr):
		resp.Code = http.StatusMethodNotAllowed
		resp.Message = methodErr.Error()
		w.Header().Set("Allow", strings.Join(methodErr.Allow, ", "))
	case errors.As(err, &fieldErr):
		resp.Code = http.StatusUnprocessableEntity
		resp.Message = "illegal search fields on " + fieldErr.Type
		resp.Errors = fieldErr.Fields
	case errors.As(err, &propErr):
		resp.Code = http.StatusUnprocessableEntity
		resp.Message = propErr.Error()
		resp.Errors = []string{propErr.Key}
	case errors.Is(err, access.ErrForbidden):
		resp.Code = http.StatusForbidden
		resp.Message = "forbidden"
	case errors.Is(err, search.ErrInvalidDistance), errors.Is(err, graph.ErrGeocode),
		errors.Is(err, resource.ErrBadRequest):
		resp.Code = http.StatusBadRequest
	case errors.Is(err, resource.ErrNotFound), errors.Is(err, graph.ErrNotFound):
		resp.Code = http.StatusNotFound
		resp.Message = "not found"
	default:
		resp.Code = http.StatusInternalServerError
		resp.Message = http.StatusText(http.StatusInternalServerError)
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	if resp.Code < http.StatusInternalServerError {
		s.logger.Debug("request rejected", zap.Int("status", resp.Code), zap.Error(err))
	}
	writeJSON(w, resp.Code, resp)
}

func (s *Server) writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Code: status, Message: message})
}
