// Package payments drives the two payment integrations: the hash-redirect
// gateway used for one-off treatment payments and Stripe Checkout for
// memberships. Neither is a system of record here; orders are tracked only
// far enough to reconcile callbacks.
package payments

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// Gateway builds redirect-form payloads for the hosted payment page and
// verifies the hashes on its return callbacks. The hash scheme is the
// gateway's: SHA-512 over pipe-joined fields with the merchant salt, field
// order reversed on the response side.
type Gateway struct {
	key        string
	salt       string
	endpoint   string
	successURL string
	failureURL string
}

type GatewayConfig struct {
	Key        string
	Salt       string
	Endpoint   string
	SuccessURL string
	FailureURL string
}

func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Key == "" || cfg.Salt == "" {
		return nil, errors.New("gateway key and salt are required")
	}
	return &Gateway{
		key:        cfg.Key,
		salt:       cfg.Salt,
		endpoint:   cfg.Endpoint,
		successURL: cfg.SuccessURL,
		failureURL: cfg.FailureURL,
	}, nil
}

type Order struct {
	TxnID       string
	Amount      string // decimal string, e.g. "2499.00"
	ProductInfo string
	FirstName   string
	Email       string
	Phone       string
}

// RedirectForm returns the fields the browser posts to the hosted payment
// page, request hash included.
func (g *Gateway) RedirectForm(o Order) map[string]string {
	return map[string]string{
		"key":         g.key,
		"txnid":       o.TxnID,
		"amount":      o.Amount,
		"productinfo": o.ProductInfo,
		"firstname":   o.FirstName,
		"email":       o.Email,
		"phone":       o.Phone,
		"surl":        g.successURL,
		"furl":        g.failureURL,
		"action":      g.endpoint,
		"hash":        g.requestHash(o),
	}
}

// requestHash: sha512(key|txnid|amount|productinfo|firstname|email|udf1..udf5|salt)
// with the five udf fields empty.
func (g *Gateway) requestHash(o Order) string {
	fields := []string{
		g.key, o.TxnID, o.Amount, o.ProductInfo, o.FirstName, o.Email,
		"", "", "", "", "", // udf1..udf5
		g.salt,
	}
	return sha512Hex(strings.Join(fields, "|"))
}

var ErrHashMismatch = errors.New("payment callback hash mismatch")

// CallbackParams are the fields posted back by the gateway on both the
// success and failure return URLs.
type CallbackParams struct {
	Status      string
	TxnID       string
	Amount      string
	ProductInfo string
	FirstName   string
	Email       string
	Hash        string
}

// VerifyCallback checks the response hash. The gateway computes it over the
// request fields in reverse order with the salt first:
// sha512(salt|status|udf5..udf1|email|firstname|productinfo|amount|txnid|key).
func (g *Gateway) VerifyCallback(p CallbackParams) error {
	expected := g.responseHash(p)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(p.Hash))) != 1 {
		return ErrHashMismatch
	}
	return nil
}

func (g *Gateway) responseHash(p CallbackParams) string {
	fields := []string{
		g.salt, p.Status,
		"", "", "", "", "", // udf5..udf1
		p.Email, p.FirstName, p.ProductInfo, p.Amount, p.TxnID, g.key,
	}
	return sha512Hex(strings.Join(fields, "|"))
}

func sha512Hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}
