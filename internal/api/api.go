// ABOUTME: HTTP handlers exposing the routing operations as a JSON API
// ABOUTME: Thin layer: authentication, decoding, engine call, error mapping

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OSama2626/chequegate/internal/auth"
	"github.com/OSama2626/chequegate/internal/registry"
	"github.com/OSama2626/chequegate/internal/routing"
	"github.com/OSama2626/chequegate/internal/store"
)

// Handler bundles the dependencies of the HTTP surface.
type Handler struct {
	engine   *routing.Engine
	registry *registry.Registry
	store    store.Store
	logger   *slog.Logger
}

// NewHandler creates the API handler. Pass nil logger for default.
func NewHandler(engine *routing.Engine, reg *registry.Registry, st store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:   engine,
		registry: reg,
		store:    st,
		logger:   logger.With("component", "api"),
	}
}

// NewRouter creates and configures the HTTP router.
func NewRouter(h *Handler, verifier auth.TokenVerifier, metricsEnabled bool, metricsPath string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if metricsEnabled {
		r.Handle(metricsPath, promhttp.Handler())
	}

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier))

		r.Get("/api/banks", h.ListBanks)

		// Beneficiary operations
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(store.RoleBeneficiary))
			r.Post("/api/cheques", h.Deposit)
			r.Get("/api/cheques/mine", h.ListMine)
			r.Get("/api/cheques/stats", h.Stats)
		})

		// Agent operations
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(store.RoleAgent))
			r.Get("/api/cheques/held", h.ListHeld)
			r.Post("/api/cheques/{chequeID}/transfer", h.Transfer)
			r.Post("/api/cheques/{chequeID}/resolve", h.Resolve)
			r.Get("/ws", h.ServeWS)
		})

		// Analyzer callback (admin-scoped service identity)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(store.RoleAdmin))
			r.Post("/api/cheques/{chequeID}/analysis", h.RecordAnalysis)
		})
	})

	return r
}

// DepositRequest is the JSON request body for POST /api/cheques.
type DepositRequest struct {
	TargetBankID string `json:"target_bank_id"`
	ImageRef     string `json:"image_ref"`
}

// ChequeResponse is the JSON shape of a cheque in API responses.
type ChequeResponse struct {
	ID            string   `json:"id"`
	ImageRef      string   `json:"image_ref"`
	DepositedAt   string   `json:"deposited_at"`
	DepositorID   string   `json:"depositor_id"`
	TargetBankID  string   `json:"target_bank_id"`
	Status        string   `json:"status"`
	HolderAgentID *string  `json:"holder_agent_id,omitempty"`
	ChequeNumber  *string  `json:"cheque_number,omitempty"`
	Amount        *float64 `json:"amount,omitempty"`
}

func toChequeResponse(c *store.Cheque) ChequeResponse {
	return ChequeResponse{
		ID:            c.ID,
		ImageRef:      c.ImageRef,
		DepositedAt:   c.DepositedAt.UTC().Format(time.RFC3339),
		DepositorID:   c.DepositorID,
		TargetBankID:  c.TargetBankID,
		Status:        string(c.Status),
		HolderAgentID: c.HolderAgentID,
		ChequeNumber:  c.ChequeNumber,
		Amount:        c.Amount,
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"agents_online": h.registry.AgentsOnline(),
	})
}

// Deposit handles POST /api/cheques.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.TargetBankID == "" || req.ImageRef == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "target_bank_id and image_ref are required")
		return
	}

	cheque, err := h.engine.Deposit(r.Context(), identity.UserID, req.TargetBankID, req.ImageRef)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toChequeResponse(cheque))
}

// Transfer handles POST /api/cheques/{chequeID}/transfer.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	chequeID := chi.URLParam(r, "chequeID")

	cheque, err := h.engine.Transfer(r.Context(), chequeID, identity.UserID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toChequeResponse(cheque))
}

// ResolveRequest is the JSON request body for POST /api/cheques/{chequeID}/resolve.
type ResolveRequest struct {
	Outcome string `json:"outcome"`
}

// Resolve handles POST /api/cheques/{chequeID}/resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	chequeID := chi.URLParam(r, "chequeID")

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	cheque, err := h.engine.Resolve(r.Context(), chequeID, identity.UserID, store.ChequeStatus(req.Outcome))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toChequeResponse(cheque))
}

// AnalysisRequest is the JSON request body for POST /api/cheques/{chequeID}/analysis.
type AnalysisRequest struct {
	ChequeNumber string  `json:"cheque_number"`
	Amount       float64 `json:"amount"`
}

// RecordAnalysis handles POST /api/cheques/{chequeID}/analysis.
func (h *Handler) RecordAnalysis(w http.ResponseWriter, r *http.Request) {
	chequeID := chi.URLParam(r, "chequeID")

	var req AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.ChequeNumber == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "cheque_number is required")
		return
	}

	cheque, err := h.engine.RecordAnalysis(r.Context(), chequeID, req.ChequeNumber, req.Amount)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toChequeResponse(cheque))
}

// ListHeld handles GET /api/cheques/held?status=...
func (h *Handler) ListHeld(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	status := store.ChequeStatus(r.URL.Query().Get("status"))

	cheques, err := h.engine.ListHeld(r.Context(), identity.UserID, status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	writeChequeList(w, cheques)
}

// ListMine handles GET /api/cheques/mine.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())

	cheques, err := h.store.ListByDepositor(r.Context(), identity.UserID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeChequeList(w, cheques)
}

// Stats handles GET /api/cheques/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())

	counts, err := h.engine.Stats(r.Context(), identity.UserID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"pending":     counts[store.StatusPending] + counts[store.StatusUploaded],
		"transmitted": counts[store.StatusTransmitted],
		"approved":    counts[store.StatusApproved],
		"rejected":    counts[store.StatusRejected],
		"validated":   counts[store.StatusValidated],
	})
}

// ListBanks handles GET /api/banks.
func (h *Handler) ListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.store.ListBanks(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	type bankResponse struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	resp := make([]bankResponse, 0, len(banks))
	for _, b := range banks {
		resp = append(resp, bankResponse{ID: b.ID, Name: b.Name})
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeChequeList(w http.ResponseWriter, cheques []*store.Cheque) {
	resp := make([]ChequeResponse, 0, len(cheques))
	for _, c := range cheques {
		resp = append(resp, toChequeResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeEngineError maps routing/store failures to distinguishable HTTP
// responses: the client must be able to tell "already closed" from "you
// don't own this" from "try again".
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "cheque or account not found")
	case errors.Is(err, routing.ErrNotOwner):
		// Deliberately silent about who does hold the cheque
		writeError(w, http.StatusForbidden, "not_owner", "you are not the current holder of this cheque")
	case errors.Is(err, routing.ErrSameBankTransfer):
		writeError(w, http.StatusUnprocessableEntity, "same_bank_transfer", "cheque targets your own bank; process it locally")
	case errors.Is(err, routing.ErrNoAgentAvailable):
		writeError(w, http.StatusServiceUnavailable, "no_agent_available", "no active agent available in the destination bank")
	case errors.Is(err, routing.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, "already_terminal", "cheque is already closed")
	case errors.Is(err, store.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "conflict", "cheque was modified concurrently; re-fetch and retry")
	case errors.Is(err, routing.ErrInvalidOutcome):
		writeError(w, http.StatusBadRequest, "bad_request", "outcome must be approved, rejected, or validated")
	default:
		h.logger.Error("internal error", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// errorResponse is the JSON error body.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
