package server

import (
	"github.com/shopspring/decimal"

	"github.com/vkarkhanis/splitex/internal/models"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Plan  string `json:"plan"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, Plan: string(u.Plan)}
}

type createEventRequest struct {
	Name               string                     `json:"name"`
	Currency           string                     `json:"currency"`
	SettlementCurrency string                     `json:"settlement_currency,omitempty"`
	FxRateMode         string                     `json:"fx_rate_mode,omitempty"`
	PredefinedFxRates  map[string]decimal.Decimal `json:"predefined_fx_rates,omitempty"`
	RequireApproval    bool                       `json:"require_approval,omitempty"`
}

type updateEventRequest struct {
	Name              *string                    `json:"name,omitempty"`
	RequireApproval   *bool                      `json:"require_approval,omitempty"`
	PredefinedFxRates map[string]decimal.Decimal `json:"predefined_fx_rates,omitempty"`
}

type addParticipantRequest struct {
	UserID string `json:"user_id"`
}

type createGroupRequest struct {
	Name        string   `json:"name"`
	Members     []string `json:"members"`
	PayerUserID string   `json:"payer_user_id"`
}

type entityDTO struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (e entityDTO) toModel() models.Entity {
	return models.Entity{Type: models.EntityType(e.Type), ID: e.ID}
}

func toEntityDTO(e models.Entity) entityDTO {
	return entityDTO{Type: string(e.Type), ID: e.ID}
}

type splitDTO struct {
	Entity entityDTO       `json:"entity"`
	Amount decimal.Decimal `json:"amount,omitempty"`
	Ratio  decimal.Decimal `json:"ratio,omitempty"`
}

type expenseRequest struct {
	Title          string          `json:"title"`
	Amount         decimal.Decimal `json:"amount"`
	PaidBy         string          `json:"paid_by"`
	IsPrivate      bool            `json:"is_private,omitempty"`
	SplitType      string          `json:"split_type"`
	Splits         []splitDTO      `json:"splits"`
	PaidOnBehalfOf []entityDTO     `json:"paid_on_behalf_of,omitempty"`
}

type eventResponse struct {
	ID                  string                     `json:"id"`
	Name                string                     `json:"name"`
	Currency            string                     `json:"currency"`
	SettlementCurrency  string                     `json:"settlement_currency,omitempty"`
	FxRateMode          string                     `json:"fx_rate_mode,omitempty"`
	PredefinedFxRates   map[string]decimal.Decimal `json:"predefined_fx_rates,omitempty"`
	Status              string                     `json:"status"`
	RequireApproval     bool                       `json:"require_approval"`
	SettlementApprovals map[string]bool            `json:"settlement_approvals,omitempty"`
	SettlementStale     bool                       `json:"settlement_stale"`
	PlanVersion         int64                      `json:"plan_version"`
	CreatedBy           string                     `json:"created_by"`
	CreatedAt           int64                      `json:"created_at"`
}

func toEventResponse(e *models.Event) eventResponse {
	return eventResponse{
		ID:                  e.ID,
		Name:                e.Name,
		Currency:            e.Currency,
		SettlementCurrency:  e.SettlementCurrency,
		FxRateMode:          string(e.FxRateMode),
		PredefinedFxRates:   e.PredefinedFxRates,
		Status:              string(e.Status),
		RequireApproval:     e.RequireApproval,
		SettlementApprovals: e.SettlementApprovals,
		SettlementStale:     e.SettlementStale,
		PlanVersion:         e.PlanVersion,
		CreatedBy:           e.CreatedBy,
		CreatedAt:           e.CreatedAt,
	}
}

type groupResponse struct {
	ID          string   `json:"id"`
	EventID     string   `json:"event_id"`
	Name        string   `json:"name"`
	Members     []string `json:"members"`
	PayerUserID string   `json:"payer_user_id"`
	CreatedAt   int64    `json:"created_at"`
}

func toGroupResponse(g *models.Group) groupResponse {
	return groupResponse{
		ID:          g.ID,
		EventID:     g.EventID,
		Name:        g.Name,
		Members:     g.Members,
		PayerUserID: g.PayerUserID,
		CreatedAt:   g.CreatedAt,
	}
}

type expenseResponse struct {
	ID             string          `json:"id"`
	EventID        string          `json:"event_id"`
	Title          string          `json:"title"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	PaidBy         string          `json:"paid_by"`
	IsPrivate      bool            `json:"is_private"`
	SplitType      string          `json:"split_type"`
	Splits         []splitDTO      `json:"splits"`
	PaidOnBehalfOf []entityDTO     `json:"paid_on_behalf_of,omitempty"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      int64           `json:"created_at"`
}

func toExpenseResponse(e *models.Expense) expenseResponse {
	splits := make([]splitDTO, 0, len(e.Splits))
	for _, sp := range e.Splits {
		splits = append(splits, splitDTO{Entity: toEntityDTO(sp.Entity), Amount: sp.Amount, Ratio: sp.Ratio})
	}
	var behalf []entityDTO
	for _, b := range e.PaidOnBehalfOf {
		behalf = append(behalf, toEntityDTO(b))
	}
	return expenseResponse{
		ID:             e.ID,
		EventID:        e.EventID,
		Title:          e.Title,
		Amount:         e.Amount,
		Currency:       e.Currency,
		PaidBy:         e.PaidBy,
		IsPrivate:      e.IsPrivate,
		SplitType:      string(e.SplitType),
		Splits:         splits,
		PaidOnBehalfOf: behalf,
		CreatedBy:      e.CreatedBy,
		CreatedAt:      e.CreatedAt,
	}
}

type balanceResponse struct {
	Entity entityDTO       `json:"entity"`
	Amount decimal.Decimal `json:"amount"`
}

type payRequest struct {
	Provider       string `json:"provider,omitempty"`
	UseRealGateway bool   `json:"use_real_gateway,omitempty"`
}

type gatewayCallbackRequest struct {
	CallbackID    string `json:"callback_id"`
	SettlementID  string `json:"settlement_id"`
	PaymentID     string `json:"payment_id,omitempty"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type settlementResponse struct {
	ID                 string           `json:"id"`
	EventID            string           `json:"event_id"`
	From               entityDTO        `json:"from"`
	To                 entityDTO        `json:"to"`
	FromUserID         string           `json:"from_user_id"`
	ToUserID           string           `json:"to_user_id"`
	Amount             decimal.Decimal  `json:"amount"`
	Currency           string           `json:"currency"`
	SettlementAmount   *decimal.Decimal `json:"settlement_amount,omitempty"`
	SettlementCurrency string           `json:"settlement_currency,omitempty"`
	FxRate             *decimal.Decimal `json:"fx_rate,omitempty"`
	Status             string           `json:"status"`
	PaymentMethod      string           `json:"payment_method,omitempty"`
	PaymentID          string           `json:"payment_id,omitempty"`
	CheckoutURL        string           `json:"checkout_url,omitempty"`
	FailureReason      string           `json:"failure_reason,omitempty"`
	RetryCount         int              `json:"retry_count"`
	CreatedAt          int64            `json:"created_at"`
	InitiatedAt        *int64           `json:"initiated_at,omitempty"`
	FailedAt           *int64           `json:"failed_at,omitempty"`
	CompletedAt        *int64           `json:"completed_at,omitempty"`
}

func toSettlementResponse(s *models.Settlement) settlementResponse {
	return settlementResponse{
		ID:                 s.ID,
		EventID:            s.EventID,
		From:               toEntityDTO(s.From),
		To:                 toEntityDTO(s.To),
		FromUserID:         s.FromUserID,
		ToUserID:           s.ToUserID,
		Amount:             s.Amount,
		Currency:           s.Currency,
		SettlementAmount:   s.SettlementAmount,
		SettlementCurrency: s.SettlementCurrency,
		FxRate:             s.FxRate,
		Status:             string(s.Status),
		PaymentMethod:      s.PaymentMethod,
		PaymentID:          s.PaymentID,
		CheckoutURL:        s.CheckoutURL,
		FailureReason:      s.FailureReason,
		RetryCount:         s.RetryCount,
		CreatedAt:          s.CreatedAt,
		InitiatedAt:        s.InitiatedAt,
		FailedAt:           s.FailedAt,
		CompletedAt:        s.CompletedAt,
	}
}
