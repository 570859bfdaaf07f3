package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/serenovaspa/serenova/libs/db"
)

// PaymentsRepository tracks payment orders through the gateway redirect flow
// and deduplicates provider webhook events.
type PaymentsRepository struct {
	pool *db.Pool
}

func NewPaymentsRepository(pool *db.Pool) *PaymentsRepository {
	return &PaymentsRepository{pool: pool}
}

var ErrDuplicateProviderEvent = errors.New("provider event already recorded")

type PaymentOrder struct {
	TxnID       string
	GuestID     string
	Amount      string
	ProductInfo string
	Status      string // created | captured | failed
	CreatedAt   time.Time
	SettledAt   *time.Time
}

func (r *PaymentsRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *PaymentsRepository) CreateOrder(ctx context.Context, o PaymentOrder) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payment_orders (txn_id, guest_id, amount, product_info, status)
		VALUES ($1, $2, $3, $4, 'created')
	`, o.TxnID, o.GuestID, o.Amount, o.ProductInfo)
	return err
}

func (r *PaymentsRepository) GetOrder(ctx context.Context, txnID string) (PaymentOrder, error) {
	var o PaymentOrder
	var settledAt *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT txn_id, guest_id, amount::text, product_info, status, created_at, settled_at
		FROM payment_orders
		WHERE txn_id = $1
	`, txnID).Scan(&o.TxnID, &o.GuestID, &o.Amount, &o.ProductInfo, &o.Status, &o.CreatedAt, &settledAt)
	if err != nil {
		return PaymentOrder{}, err
	}
	o.SettledAt = settledAt
	return o, nil
}

// SettleOrder moves an order out of the created state exactly once.
func (r *PaymentsRepository) SettleOrder(ctx context.Context, tx pgx.Tx, txnID, status string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE payment_orders
		SET status = $2, settled_at = now()
		WHERE txn_id = $1 AND status = 'created'
	`, txnID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// InsertProviderEvent records a webhook event id; a replay hits the unique
// constraint and returns ErrDuplicateProviderEvent.
func (r *PaymentsRepository) InsertProviderEvent(ctx context.Context, tx pgx.Tx, provider, providerEventID, eventType string, payload []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payment_provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`, provider, providerEventID, eventType, payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateProviderEvent
		}
		return err
	}
	return nil
}
