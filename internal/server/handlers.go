package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vkarkhanis/splitex/internal/auth"
	"github.com/vkarkhanis/splitex/internal/entitlement"
	"github.com/vkarkhanis/splitex/internal/gateway"
	"github.com/vkarkhanis/splitex/internal/lifecycle"
	"github.com/vkarkhanis/splitex/internal/middleware"
	"github.com/vkarkhanis/splitex/internal/models"
	"github.com/vkarkhanis/splitex/internal/service"
	"github.com/vkarkhanis/splitex/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

type errorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode,omitempty"`
	Feature   string `json:"feature,omitempty"`
}

// writeError maps engine errors onto HTTP statuses. Entitlement failures
// carry their machine-readable code and feature name through to the body.
func writeError(w http.ResponseWriter, err error) {
	var entErr *entitlement.Error
	if errors.As(err, &entErr) {
		writeJSON(w, entErr.StatusCode, errorBody{
			Error:     entErr.Error(),
			ErrorCode: entErr.ErrorCode,
			Feature:   entErr.Feature,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrFxRateMissing),
		errors.Is(err, auth.ErrWeakPassword):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrEmailExists):
		status = http.StatusConflict
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrApprovalPending),
		errors.Is(err, models.ErrPlanConflict):
		status = http.StatusConflict
	case errors.Is(err, lifecycle.ErrGateway):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		writeJSON(w, status, errorBody{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := s.authn.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := s.jwt.Generate(user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: toUserResponse(user)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := s.authn.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := s.jwt.Generate(user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: toUserResponse(user)})
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if !decode(w, r, &req) {
		return
	}
	event, err := s.events.CreateEvent(r.Context(), middleware.GetUserID(r.Context()), service.CreateEventInput{
		Name:               req.Name,
		Currency:           req.Currency,
		SettlementCurrency: req.SettlementCurrency,
		FxRateMode:         models.FxRateMode(req.FxRateMode),
		PredefinedFxRates:  req.PredefinedFxRates,
		RequireApproval:    req.RequireApproval,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(event))
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.events.GetEvent(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(event))
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req updateEventRequest
	if !decode(w, r, &req) {
		return
	}
	event, err := s.events.UpdateEvent(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "eventID"), service.UpdateEventInput{
		Name:              req.Name,
		RequireApproval:   req.RequireApproval,
		PredefinedFxRates: req.PredefinedFxRates,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(event))
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.events.DeleteEvent(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "eventID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCloseEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.events.CloseEvent(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(event))
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	var req addParticipantRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.events.AddParticipant(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "eventID"), req.UserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if !decode(w, r, &req) {
		return
	}
	group, err := s.events.CreateGroup(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "eventID"), service.CreateGroupInput{
		Name:        req.Name,
		Members:     req.Members,
		PayerUserID: req.PayerUserID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupResponse(group))
}

func expenseInputFromRequest(req expenseRequest) service.ExpenseInput {
	in := service.ExpenseInput{
		Title:     req.Title,
		Amount:    req.Amount,
		PaidBy:    req.PaidBy,
		IsPrivate: req.IsPrivate,
		SplitType: models.SplitType(req.SplitType),
	}
	for _, sp := range req.Splits {
		in.Splits = append(in.Splits, service.SplitInput{
			Entity: sp.Entity.toModel(),
			Amount: sp.Amount,
			Ratio:  sp.Ratio,
		})
	}
	for _, e := range req.PaidOnBehalfOf {
		in.PaidOnBehalfOf = append(in.PaidOnBehalfOf, e.toModel())
	}
	return in
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !decode(w, r, &req) {
		return
	}
	expense, err := s.expenses.AddExpense(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "eventID"), expenseInputFromRequest(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseResponse(expense))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !decode(w, r, &req) {
		return
	}
	expense, err := s.expenses.UpdateExpense(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "expenseID"), expenseInputFromRequest(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseResponse(expense))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.expenses.DeleteExpense(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "expenseID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.expenses.ListExpenses(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]expenseResponse, 0, len(expenses))
	for i := range expenses {
		out = append(out, toExpenseResponse(&expenses[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.settlements.Balances(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceResponse{Entity: toEntityDTO(b.Entity), Amount: b.Amount})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.settlements.GeneratePlan(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementResponses(plan))
}

func (s *Server) handleListSettlements(w http.ResponseWriter, r *http.Request) {
	plan, err := s.settlements.ListSettlements(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementResponses(plan))
}

func (s *Server) handleApprovePlan(w http.ResponseWriter, r *http.Request) {
	event, err := s.settlements.ApprovePlan(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(event))
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if !decode(w, r, &req) {
		return
	}
	provider := gateway.Provider(req.Provider)
	settlement, err := s.settlements.Pay(r.Context(), chi.URLParam(r, "settlementID"), middleware.GetUserID(r.Context()), provider, req.UseRealGateway)
	if err != nil && settlement == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		// The settlement is parked in failed state; return it alongside
		// the gateway status so the payer sees the failure reason.
		writeJSON(w, http.StatusBadGateway, toSettlementResponse(settlement))
		return
	}
	writeJSON(w, http.StatusOK, toSettlementResponse(settlement))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if !decode(w, r, &req) {
		return
	}
	provider := gateway.Provider(req.Provider)
	settlement, err := s.settlements.Retry(r.Context(), chi.URLParam(r, "settlementID"), middleware.GetUserID(r.Context()), provider, req.UseRealGateway)
	if err != nil && settlement == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadGateway, toSettlementResponse(settlement))
		return
	}
	writeJSON(w, http.StatusOK, toSettlementResponse(settlement))
}

func (s *Server) handleApproveSettlement(w http.ResponseWriter, r *http.Request) {
	settlement, err := s.settlements.Approve(r.Context(), chi.URLParam(r, "settlementID"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementResponse(settlement))
}

// handleGatewayCallback receives asynchronous payment webhooks. Duplicate
// deliveries are acknowledged without reprocessing.
func (s *Server) handleGatewayCallback(w http.ResponseWriter, r *http.Request) {
	var req gatewayCallbackRequest
	if !decode(w, r, &req) {
		return
	}
	if req.CallbackID == "" || req.SettlementID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "callback_id and settlement_id are required"})
		return
	}
	err := s.settlements.HandleGatewayCallback(r.Context(), lifecycle.Callback{
		CallbackID:    req.CallbackID,
		SettlementID:  req.SettlementID,
		PaymentID:     req.PaymentID,
		Status:        req.Status,
		FailureReason: req.FailureReason,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func settlementResponses(plan []*models.Settlement) []settlementResponse {
	out := make([]settlementResponse, 0, len(plan))
	for _, st := range plan {
		out = append(out, toSettlementResponse(st))
	}
	return out
}
