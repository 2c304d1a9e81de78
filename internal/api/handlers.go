/**
 * @description
 * This file contains the HTTP handlers for the ido-service campaign endpoints.
 * Handlers parse the request, resolve the authenticated caller, call the
 * application service and translate domain errors into HTTP status codes.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameters.
 * - internal/domain: Request, view and error types.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/transfa/ido-service/internal/domain"
	"github.com/transfa/ido-service/internal/store"
)

// CampaignService is the set of application operations exposed over HTTP.
type CampaignService interface {
	CreateCampaign(ctx context.Context, caller string, req domain.CreateCampaignRequest) (*domain.CampaignView, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*domain.CampaignView, error)
	GetParticipation(ctx context.Context, id uuid.UUID, participant string) (*domain.ParticipationView, error)
	ListSettlements(ctx context.Context, id uuid.UUID) ([]domain.SettlementRecord, error)
	DepositTokens(ctx context.Context, id uuid.UUID, caller string) (*domain.OperationResult, error)
	Join(ctx context.Context, id uuid.UUID, participant string, units uint64) (*domain.OperationResult, error)
	Claim(ctx context.Context, id uuid.UUID, participant string) (*domain.OperationResult, error)
	Cancel(ctx context.Context, id uuid.UUID, caller string) (*domain.OperationResult, error)
	CloseIfSoftCapNotReached(ctx context.Context, id uuid.UUID, caller string) (*domain.OperationResult, error)
	Withdraw(ctx context.Context, id uuid.UUID, caller string) (*domain.OperationResult, error)
	RecoverTokens(ctx context.Context, id uuid.UUID, caller string) (*domain.OperationResult, error)
	Refund(ctx context.Context, id uuid.UUID, participant string) (*domain.OperationResult, error)
}

// CampaignHandlers holds the application service that handlers will use.
type CampaignHandlers struct {
	service CampaignService
}

// NewCampaignHandlers creates a new CampaignHandlers.
func NewCampaignHandlers(service CampaignService) *CampaignHandlers {
	return &CampaignHandlers{service: service}
}

func mapCampaignError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrCampaignNotFound):
		return http.StatusNotFound, "Campaign not found."
	case errors.Is(err, domain.ErrParticipationNotFound):
		return http.StatusNotFound, "Participation not found."
	case errors.Is(err, store.ErrCampaignExists):
		return http.StatusConflict, "Campaign already exists."
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrInvalidSchedule), errors.Is(err, domain.ErrInvalidEconomicParameter):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusPaymentRequired, err.Error()
	case errors.Is(err, domain.ErrPreconditionNotMet), errors.Is(err, domain.ErrNothingToDo):
		return http.StatusConflict, err.Error()
	}
	return http.StatusInternalServerError, "Could not process campaign request."
}

// CreateCampaignHandler handles POST /campaigns.
func (h *CampaignHandlers) CreateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerID(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "Could not identify user from token")
		return
	}

	var req domain.CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := h.service.CreateCampaign(r.Context(), caller, req)
	if err != nil {
		h.respondWithError(w, "create_campaign", err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// GetCampaignHandler handles GET /campaigns/{id}.
func (h *CampaignHandlers) GetCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDParam(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetCampaign(r.Context(), id)
	if err != nil {
		h.respondWithError(w, "get_campaign", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetParticipationHandler handles GET /campaigns/{id}/participation for the caller.
func (h *CampaignHandlers) GetParticipationHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerID(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "Could not identify user from token")
		return
	}
	id, ok := campaignIDParam(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetParticipation(r.Context(), id, caller)
	if err != nil {
		h.respondWithError(w, "get_participation", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListSettlementsHandler handles GET /campaigns/{id}/settlements.
func (h *CampaignHandlers) ListSettlementsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDParam(w, r)
	if !ok {
		return
	}
	records, err := h.service.ListSettlements(r.Context(), id)
	if err != nil {
		h.respondWithError(w, "list_settlements", err)
		return
	}
	if records == nil {
		records = []domain.SettlementRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// JoinHandler handles POST /campaigns/{id}/join.
func (h *CampaignHandlers) JoinHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerID(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "Could not identify user from token")
		return
	}
	id, ok := campaignIDParam(w, r)
	if !ok {
		return
	}

	var req domain.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Join(r.Context(), id, caller, req.Units)
	if err != nil {
		h.respondWithError(w, "join", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type campaignAction func(ctx context.Context, id uuid.UUID, caller string) (*domain.OperationResult, error)

// actionHandler builds a handler for the body-less campaign operations.
func (h *CampaignHandlers) actionHandler(name string, action campaignAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := GetCallerID(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "Could not identify user from token")
			return
		}
		id, ok := campaignIDParam(w, r)
		if !ok {
			return
		}
		result, err := action(r.Context(), id, caller)
		if err != nil {
			h.respondWithError(w, name, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *CampaignHandlers) DepositHandler() http.HandlerFunc {
	return h.actionHandler("deposit_tokens", h.service.DepositTokens)
}

func (h *CampaignHandlers) ClaimHandler() http.HandlerFunc {
	return h.actionHandler("claim", h.service.Claim)
}

func (h *CampaignHandlers) CancelHandler() http.HandlerFunc {
	return h.actionHandler("cancel", h.service.Cancel)
}

func (h *CampaignHandlers) CloseSoftCapHandler() http.HandlerFunc {
	return h.actionHandler("close_soft_cap", h.service.CloseIfSoftCapNotReached)
}

func (h *CampaignHandlers) WithdrawHandler() http.HandlerFunc {
	return h.actionHandler("withdraw", h.service.Withdraw)
}

func (h *CampaignHandlers) RecoverTokensHandler() http.HandlerFunc {
	return h.actionHandler("recover_tokens", h.service.RecoverTokens)
}

func (h *CampaignHandlers) RefundHandler() http.HandlerFunc {
	return h.actionHandler("refund", h.service.Refund)
}

func (h *CampaignHandlers) respondWithError(w http.ResponseWriter, operation string, err error) {
	status, message := mapCampaignError(err)
	if status == http.StatusInternalServerError {
		log.Printf("level=error component=api operation=%s msg=\"campaign request failed\" err=%v", operation, err)
	}
	writeJSONError(w, status, message)
}

func campaignIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid campaign ID")
		return uuid.Nil, false
	}
	return id, true
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeJSONError is a helper for writing JSON error responses.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
