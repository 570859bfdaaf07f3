package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/serenovaspa/serenova/internal/outbox"
	"github.com/serenovaspa/serenova/internal/payments"
	"github.com/serenovaspa/serenova/internal/storage"
)

// PaymentsStore is the slice of the payments repository the handler needs.
type PaymentsStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateOrder(ctx context.Context, o storage.PaymentOrder) error
	GetOrder(ctx context.Context, txnID string) (storage.PaymentOrder, error)
	SettleOrder(ctx context.Context, tx pgx.Tx, txnID, status string) error
	InsertProviderEvent(ctx context.Context, tx pgx.Tx, provider, providerEventID, eventType string, payload []byte) error
}

type PaymentsHandler struct {
	gateway                *payments.Gateway
	stripeCheckout         *payments.StripeCheckout
	repo                   PaymentsStore
	outboxRepo             *outbox.Repository
	logger                 *slog.Logger
	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
	successRedirect        string
	failureRedirect        string
}

type PaymentsConfig struct {
	StripeWebhookSecret           string
	StripeWebhookToleranceSeconds int
	SuccessRedirect               string
	FailureRedirect               string
}

func NewPaymentsHandler(gateway *payments.Gateway, stripeCheckout *payments.StripeCheckout, repo PaymentsStore, outboxRepo *outbox.Repository, logger *slog.Logger, cfg PaymentsConfig) *PaymentsHandler {
	tolSeconds := cfg.StripeWebhookToleranceSeconds
	if tolSeconds <= 0 {
		tolSeconds = 300
	}
	return &PaymentsHandler{
		gateway:                gateway,
		stripeCheckout:         stripeCheckout,
		repo:                   repo,
		outboxRepo:             outboxRepo,
		logger:                 logger,
		stripeWebhookSecret:    cfg.StripeWebhookSecret,
		stripeWebhookTolerance: time.Duration(tolSeconds) * time.Second,
		successRedirect:        cfg.SuccessRedirect,
		failureRedirect:        cfg.FailureRedirect,
	}
}

type createOrderRequest struct {
	GuestID     string `json:"guest_id"`
	TxnID       string `json:"txn_id"`
	Amount      string `json:"amount"`
	ProductInfo string `json:"product_info"`
	FirstName   string `json:"first_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

var amountPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

// CreateOrder handles POST /api/v1/payments/order. It records the order and
// returns the fields the browser form posts to the hosted payment page.
func (h *PaymentsHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.gateway == nil {
		writeError(w, http.StatusServiceUnavailable, "payment gateway not configured")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.GuestID = strings.TrimSpace(req.GuestID)
	req.TxnID = strings.TrimSpace(req.TxnID)
	req.Amount = strings.TrimSpace(req.Amount)
	req.ProductInfo = strings.TrimSpace(req.ProductInfo)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.Email = strings.TrimSpace(req.Email)
	if req.GuestID == "" || req.TxnID == "" || req.ProductInfo == "" || req.FirstName == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	if !amountPattern.MatchString(req.Amount) {
		writeError(w, http.StatusBadRequest, "amount must be a decimal string")
		return
	}

	if err := h.repo.CreateOrder(r.Context(), storage.PaymentOrder{
		TxnID:       req.TxnID,
		GuestID:     req.GuestID,
		Amount:      req.Amount,
		ProductInfo: req.ProductInfo,
	}); err != nil {
		h.logger.Error("payment order create failed", "err", err, "txn_id", req.TxnID)
		writeError(w, http.StatusInternalServerError, "failed to create payment order")
		return
	}

	form := h.gateway.RedirectForm(payments.Order{
		TxnID:       req.TxnID,
		Amount:      req.Amount,
		ProductInfo: req.ProductInfo,
		FirstName:   req.FirstName,
		Email:       req.Email,
		Phone:       strings.TrimSpace(req.Phone),
	})
	writeJSON(w, http.StatusCreated, map[string]any{"form": form})
}

// Return handles POST /api/v1/payments/return. The gateway posts the guest's
// browser back here on both success and failure. The response hash is the
// authentication; a mismatch is rejected outright. The hash only proves the
// callback came from the gateway, not that the guest paid the amount we
// quoted, so the posted amount is also checked against the stored order.
func (h *PaymentsHandler) Return(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.gateway == nil {
		writeError(w, http.StatusServiceUnavailable, "payment gateway not configured")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	params := payments.CallbackParams{
		Status:      r.PostFormValue("status"),
		TxnID:       r.PostFormValue("txnid"),
		Amount:      r.PostFormValue("amount"),
		ProductInfo: r.PostFormValue("productinfo"),
		FirstName:   r.PostFormValue("firstname"),
		Email:       r.PostFormValue("email"),
		Hash:        r.PostFormValue("hash"),
	}
	if err := h.gateway.VerifyCallback(params); err != nil {
		h.logger.Warn("payment callback rejected", "err", err, "txn_id", params.TxnID)
		writeError(w, http.StatusBadRequest, "invalid payment callback")
		return
	}

	ctx := r.Context()
	order, err := h.repo.GetOrder(ctx, params.TxnID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "unknown payment order")
			return
		}
		h.logger.Error("payment order lookup failed", "err", err, "txn_id", params.TxnID)
		writeError(w, http.StatusInternalServerError, "failed to load payment order")
		return
	}
	if !amountsMatch(order.Amount, params.Amount) {
		h.logger.Warn("payment callback amount mismatch",
			"txn_id", params.TxnID, "order_amount", order.Amount, "callback_amount", params.Amount)
		writeError(w, http.StatusBadRequest, "payment amount mismatch")
		return
	}

	captured := strings.EqualFold(params.Status, "success")
	orderStatus := "failed"
	eventType := outbox.EventOrderFailed
	redirect := h.failureRedirect
	if captured {
		orderStatus = "captured"
		eventType = outbox.EventOrderCaptured
		redirect = h.successRedirect
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.repo.SettleOrder(ctx, tx, params.TxnID, orderStatus); err != nil {
		if storage.IsNotFound(err) {
			// Already settled; replaying the redirect is harmless.
			http.Redirect(w, r, redirect, http.StatusSeeOther)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to settle payment order")
		return
	}

	payload, err := json.Marshal(map[string]any{
		"txn_id": params.TxnID,
		"amount": params.Amount,
		"status": orderStatus,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build event payload")
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "payment_order",
		AggregateID:   params.TxnID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to write outbox event")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to commit")
		return
	}

	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// amountsMatch compares two decimal amount strings numerically, so the "5"
// the gateway echoes back matches the "5.00" the order was stored with.
func amountsMatch(a, b string) bool {
	x, okA := amountCents(a)
	y, okB := amountCents(b)
	return okA && okB && x == y
}

func amountCents(s string) (int64, bool) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(s), ".")
	for len(frac) < 2 {
		frac += "0"
	}
	if len(frac) > 2 {
		return 0, false
	}
	n, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

type checkoutRequest struct {
	GuestID string `json:"guest_id"`
	Tier    string `json:"tier"`
}

// Checkout handles POST /api/v1/payments/checkout: membership subscriptions
// via Stripe Checkout.
func (h *PaymentsHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.GuestID = strings.TrimSpace(req.GuestID)
	if req.GuestID == "" {
		writeError(w, http.StatusBadRequest, "guest_id required")
		return
	}

	url, err := h.stripeCheckout.CreateSession(r.Context(), req.GuestID, req.Tier)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrStripeNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "stripe not configured")
		case errors.Is(err, payments.ErrUnknownTier):
			writeError(w, http.StatusBadRequest, "unknown membership tier")
		default:
			h.logger.Error("stripe checkout failed", "err", err)
			writeError(w, http.StatusBadGateway, "failed to create checkout session")
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"checkout_url": url})
}

// StripeWebhook handles POST /api/v1/payments/stripe/webhook (no other auth;
// signature verification is the auth).
func (h *PaymentsHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.stripeWebhookSecret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("stripe event received", "provider_event_id", evt.ID, "event_type", evtType)

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Idempotency: ignore replayed Stripe events.
	if err := h.repo.InsertProviderEvent(ctx, tx, "stripe", evt.ID, evtType, body); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			_ = tx.Commit(ctx)
			return
		}
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	switch evtType {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			h.logger.Error("stripe: invalid checkout session payload", "err", err)
			break
		}
		guestID := strings.TrimSpace(session.Metadata["guest_id"])
		tier := strings.TrimSpace(session.Metadata["tier"])
		if guestID == "" || tier == "" {
			h.logger.Warn("stripe: missing metadata on checkout session (guest_id/tier)")
			break
		}
		payload, err := json.Marshal(map[string]any{
			"guest_id":   guestID,
			"tier":       tier,
			"session_id": session.ID,
		})
		if err != nil {
			http.Error(w, "failed to build event payload", http.StatusInternalServerError)
			return
		}
		if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
			AggregateType: "membership",
			AggregateID:   guestID,
			EventType:     fmt.Sprintf("membership.%s.activated.v1", tier),
			Payload:       payload,
		}); err != nil {
			http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
