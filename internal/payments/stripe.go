package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
)

// StripeCheckout creates Checkout sessions for membership subscriptions.
type StripeCheckout struct {
	secretKey  string
	prices     map[string]string // tier -> price id
	successURL string
	cancelURL  string
}

type StripeConfig struct {
	SecretKey      string
	PriceEssential string
	PricePremier   string
	SuccessURL     string
	CancelURL      string
}

func NewStripeCheckout(cfg StripeConfig) *StripeCheckout {
	return &StripeCheckout{
		secretKey: strings.TrimSpace(cfg.SecretKey),
		prices: map[string]string{
			"essential": strings.TrimSpace(cfg.PriceEssential),
			"premier":   strings.TrimSpace(cfg.PricePremier),
		},
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}
}

var (
	ErrStripeNotConfigured = errors.New("stripe is not configured")
	ErrUnknownTier         = errors.New("unknown membership tier")
)

// CreateSession returns the hosted Checkout URL for a membership tier. The
// guest id rides on session metadata so the webhook can attribute the
// activation.
func (s *StripeCheckout) CreateSession(_ context.Context, guestID, tier string) (string, error) {
	if s.secretKey == "" {
		return "", ErrStripeNotConfigured
	}
	priceID := s.prices[strings.ToLower(strings.TrimSpace(tier))]
	if priceID == "" {
		return "", ErrUnknownTier
	}

	stripe.Key = s.secretKey
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(s.successURL),
		CancelURL:  stripe.String(s.cancelURL),
		Params: stripe.Params{
			Metadata: map[string]string{
				"guest_id": guestID,
				"tier":     strings.ToLower(strings.TrimSpace(tier)),
			},
		},
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}
