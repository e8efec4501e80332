// Package v1 provides the REST handlers for the coordination engine.
package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/researchportal/datashare-coordinator/internal/coordination"
	"github.com/researchportal/datashare-coordinator/internal/httpclient"
	"github.com/researchportal/datashare-coordinator/internal/logger"
)

// CreateCoordinationRequest is the payload of POST /coordinations
type CreateCoordinationRequest struct {
	ProposalID           string   `json:"proposalId"`
	ProjectName          string   `json:"projectName"`
	DataManagementSite   string   `json:"dataManagementSite"`
	DataIntegrationSites []string `json:"dataIntegrationSites"`
	Researchers          []string `json:"researchers"`
	DeliveryDate         string   `json:"deliveryDate"`
}

// ExtensionRequest is the payload of POST /coordinations/{key}/extension
type ExtensionRequest struct {
	DeliveryDate string `json:"deliveryDate"`
}

// ResultURLResponse is the body of GET /tasks/{id}/result-url
type ResultURLResponse struct {
	URL string `json:"url"`
}

// ErrorResponse is the standardized error body
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes holds the handlers with their injected service
type Routes struct {
	service coordination.Service
}

// Router creates the v1 router for the coordination engine
func Router(svc coordination.Service) http.Handler {
	routes := &Routes{service: svc}

	r := chi.NewRouter()
	r.Post("/coordinations", routes.createCoordination)
	r.Get("/coordinations/{businessKey}/data-sets", routes.listReceivedDataSets)
	r.Post("/coordinations/{businessKey}/extension", routes.extendDeliveryWindow)
	r.Post("/coordinations/{businessKey}/release", routes.releaseConsolidation)
	r.Get("/tasks/{taskID}/result-url", routes.fetchResultURL)

	return r
}

// createCoordination handles POST /api/v1/coordinations
func (routes *Routes) createCoordination(w http.ResponseWriter, r *http.Request) {
	var req CreateCoordinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.ProposalID) == "" {
		WriteErrorResponse(w, "proposalId is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.DataManagementSite) == "" {
		WriteErrorResponse(w, "dataManagementSite is required", http.StatusBadRequest)
		return
	}

	deliveryDate, err := time.Parse(time.RFC3339, req.DeliveryDate)
	if err != nil {
		WriteErrorResponse(w, "deliveryDate must be an RFC 3339 timestamp", http.StatusBadRequest)
		return
	}

	handle, err := routes.service.CreateCoordinationTask(r.Context(), coordination.CreateParams{
		ProposalID:           req.ProposalID,
		ProjectName:          req.ProjectName,
		DataManagementSite:   req.DataManagementSite,
		DataIntegrationSites: req.DataIntegrationSites,
		Researchers:          req.Researchers,
		DeliveryDate:         deliveryDate,
	})
	if err != nil {
		routes.writeServiceError(w, err, "Failed to start coordination")
		return
	}

	WriteJSONResponse(w, handle, http.StatusCreated)
}

// listReceivedDataSets handles GET /api/v1/coordinations/{businessKey}/data-sets
func (routes *Routes) listReceivedDataSets(w http.ResponseWriter, r *http.Request) {
	businessKey := chi.URLParam(r, "businessKey")

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteErrorResponse(w, "since must be an RFC 3339 timestamp", http.StatusBadRequest)
			return
		}
		since = &parsed
	}

	dataSets, err := routes.service.PollReceivedDataSets(r.Context(), businessKey, since)
	if err != nil {
		routes.writeServiceError(w, err, "Failed to poll received data sets")
		return
	}
	if dataSets == nil {
		dataSets = []coordination.ReceivedDataSet{}
	}

	WriteJSONResponse(w, dataSets, http.StatusOK)
}

// extendDeliveryWindow handles POST /api/v1/coordinations/{businessKey}/extension
func (routes *Routes) extendDeliveryWindow(w http.ResponseWriter, r *http.Request) {
	businessKey := chi.URLParam(r, "businessKey")

	var req ExtensionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	deliveryDate, err := time.Parse(time.RFC3339, req.DeliveryDate)
	if err != nil {
		WriteErrorResponse(w, "deliveryDate must be an RFC 3339 timestamp", http.StatusBadRequest)
		return
	}

	if err := routes.service.ExtendDeliveryWindow(r.Context(), businessKey, deliveryDate); err != nil {
		routes.writeServiceError(w, err, "Failed to extend delivery window")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// releaseConsolidation handles POST /api/v1/coordinations/{businessKey}/release
func (routes *Routes) releaseConsolidation(w http.ResponseWriter, r *http.Request) {
	businessKey := chi.URLParam(r, "businessKey")

	if err := routes.service.ReleaseConsolidation(r.Context(), businessKey); err != nil {
		routes.writeServiceError(w, err, "Failed to release consolidation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// fetchResultURL handles GET /api/v1/tasks/{taskID}/result-url
func (routes *Routes) fetchResultURL(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	resultURL, err := routes.service.FetchResultURL(r.Context(), taskID)
	if err != nil {
		routes.writeServiceError(w, err, "Failed to fetch result URL")
		return
	}
	if resultURL == "" {
		// The process has not produced a result yet.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	WriteJSONResponse(w, ResultURLResponse{URL: resultURL}, http.StatusOK)
}

// writeServiceError maps engine errors onto HTTP statuses: validation-style
// failures become 4xx, transport failures toward the external engine become
// 502, everything else 500.
func (routes *Routes) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, coordination.ErrMissingBusinessKey):
		WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, coordination.ErrResponseNotFound):
		WriteErrorResponse(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		var startErr *coordination.StartError
		if errors.As(err, &startErr) {
			WriteErrorResponse(w, startErr.Error(), http.StatusBadGateway)
			return
		}
		if _, ok := httpclient.AsHTTPError(err); ok {
			logger.Errorf("Upstream coordination endpoint failed: %v", err)
			WriteErrorResponse(w, "Coordination endpoint unavailable", http.StatusBadGateway)
			return
		}
		logger.Errorf("%s: %v", fallback, err)
		WriteErrorResponse(w, fallback, http.StatusInternalServerError)
	}
}

// WriteJSONResponse writes a JSON response with the given data
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// WriteErrorResponse writes a standardized error response
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	WriteJSONResponse(w, ErrorResponse{Error: message}, statusCode)
}
