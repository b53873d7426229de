package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/systemshift/graphrest/internal/server/graph"
	"github.com/systemshift/graphrest/internal/server/resource"
	"github.com/systemshift/graphrest/internal/server/search"
	"github.com/systemshift/graphrest/internal/server/subscriptions"
)

// ListResponse is the body of a list result.
type ListResponse struct {
	Result   []*graph.PropertySet `json:"result"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page,omitempty"`
	PageSize int                  `json:"pageSize,omitempty"`
}

// ServeResource handles every resource path and verb.
func (s *Server) ServeResource(w http.ResponseWriter, r *http.Request) {
	params, err := search.ParseParams(r.URL.RawQuery)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", resource.ErrBadRequest, err))
		return
	}

	var body *graph.PropertySet
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		body, err = decodeBody(r.Body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	res, err := s.service.Handle(r.Context(), resource.Request{
		Method:   r.Method,
		Segments: resource.SplitPath(r.URL.Path),
		Params:   params,
		Body:     body,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if len(res.Allow) > 0 {
		w.Header().Set("Allow", strings.Join(res.Allow, ", "))
	}
	if res.Location != "" {
		w.Header().Set("Location", res.Location)
	}
	if res.NoBody {
		w.WriteHeader(res.Status)
		return
	}

	var payload any
	switch {
	case r.Method == http.MethodDelete:
		payload = map[string]int{"deleted": res.Total}
	case res.Single && len(res.Objects) == 1:
		payload = s.render(res.Objects[0], res.View)
	default:
		list := ListResponse{Result: make([]*graph.PropertySet, 0, len(res.Objects)), Total: res.Total, Page: res.Page, PageSize: res.PageSize}
		for _, obj := range res.Objects {
			list.Result = append(list.Result, s.render(obj, res.View))
		}
		payload = list
	}
	writeJSON(w, res.Status, payload)
}

// decodeBody reads a JSON object. An empty body is a nil set.
func decodeBody(r io.Reader) (*graph.PropertySet, error) {
	if r == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", resource.ErrBadRequest, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	props := graph.NewPropertySet()
	if err := json.Unmarshal(data, props); err != nil {
		return nil, fmt.Errorf("%w: body must be a JSON object: %v", resource.ErrBadRequest, err)
	}
	return props, nil
}

// HealthCheck handles GET /health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ============== Subscription Handlers ==============

// CreateSubscriptionRequest is the body of POST /_subscriptions. Enabled
// defaults to true.
type CreateSubscriptionRequest struct {
	Name    string                `json:"name"`
	Pattern subscriptions.Pattern `json:"pattern"`
	Webhook string                `json:"webhook"`
	Enabled *bool                 `json:"enabled,omitempty"`
}

// CreateSubscription handles POST /_subscriptions
func (s *Server) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	if s.subMgr == nil {
		s.writeStatus(w, http.StatusServiceUnavailable, "subscription manager not initialized")
		return
	}

	var req CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeStatus(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := s.subMgr.Register(subscriptions.Subscription{
		Name:    req.Name,
		Pattern: req.Pattern,
		Webhook: req.Webhook,
		Enabled: req.Enabled == nil || *req.Enabled,
	})
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// ListSubscriptions handles GET /_subscriptions
func (s *Server) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	if s.subMgr == nil {
		s.writeStatus(w, http.StatusServiceUnavailable, "subscription manager not initialized")
		return
	}

	subs := s.subMgr.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": subs,
		"count":         len(subs),
	})
}

// GetSubscription handles GET /_subscriptions/{id}
func (s *Server) GetSubscription(w http.ResponseWriter, r *http.Request) {
	if s.subMgr == nil {
		s.writeStatus(w, http.StatusServiceUnavailable, "subscription manager not initialized")
		return
	}

	sub, err := s.subMgr.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeStatus(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// DeleteSubscription handles DELETE /_subscriptions/{id}
func (s *Server) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if s.subMgr == nil {
		s.writeStatus(w, http.StatusServiceUnavailable, "subscription manager not initialized")
		return
	}

	if err := s.subMgr.Unregister(chi.URLParam(r, "id")); err != nil {
		s.writeStatus(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
