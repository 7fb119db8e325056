package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"rental-payments/internal/domain"
	"rental-payments/internal/domain/model"
	"rental-payments/internal/domain/ports/repository"
)

var _ repository.PendingPaymentRepository = (*pendingPaymentRepo)(nil)

type pendingPaymentRepo struct{ pool *pgxpool.Pool }

func NewPendingPaymentRepo(pool *pgxpool.Pool) *pendingPaymentRepo {
	return &pendingPaymentRepo{pool: pool}
}

const paymentColumns = `order_id, order_tracking_id, metadata, signature, status, fulfillment_status, pesapal_status, fulfillment_receipt, created_at, updated_at, completed_at, fulfilled_at`

func (r *pendingPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.PendingPayment) error {
	if err := p.Validate(); err != nil {
		return err
	}
	md, err := json.Marshal(p.Metadata)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	snap, err := marshalNullable(p.GatewayStatus)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	receipt, err := marshalNullable(p.Receipt)
	if err != nil {
		return domain.ErrInvalidArgument
	}

	const q = `
INSERT INTO pending_payments (
  order_id, order_tracking_id, metadata, signature, status, fulfillment_status, pesapal_status, fulfillment_receipt, created_at, updated_at, completed_at, fulfilled_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
) ON CONFLICT (order_id) DO UPDATE SET
  order_tracking_id=$2, metadata=$3, signature=$4, status=$5, fulfillment_status=$6, pesapal_status=$7, fulfillment_receipt=$8, updated_at=$10, completed_at=$11, fulfilled_at=$12;`

	_, err = execSQL(ctx, r.pool, tx, q, p.OrderID, p.OrderTrackingID, md, p.Signature, p.Status, p.FulfillmentStatus, snap, receipt, p.CreatedAt, p.UpdatedAt, p.CompletedAt, p.FulfilledAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *pendingPaymentRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.PendingPayment, error) {
	q := `SELECT ` + paymentColumns + ` FROM pending_payments WHERE order_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *pendingPaymentRepo) FindByTrackingID(ctx context.Context, tx repository.Tx, trackingID string) (*model.PendingPayment, error) {
	q := `SELECT ` + paymentColumns + ` FROM pending_payments WHERE order_tracking_id=$1 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, trackingID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *pendingPaymentRepo) AttachTrackingID(ctx context.Context, tx repository.Tx, orderID, trackingID string) error {
	const q = `UPDATE pending_payments SET order_tracking_id=$2, updated_at=NOW() WHERE order_id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, orderID, trackingID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// MarkCompleted atomically transitions pending -> completed. A repeat call
// matches zero rows and reports false without erroring.
func (r *pendingPaymentRepo) MarkCompleted(ctx context.Context, tx repository.Tx, orderID string, snap *model.GatewayStatusSnapshot, trackingID string) (bool, error) {
	b, err := marshalNullable(snap)
	if err != nil {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE pending_payments
   SET status = 'completed',
       pesapal_status = $2,
       order_tracking_id = COALESCE(order_tracking_id, $3),
       completed_at = NOW(),
       updated_at = NOW()
 WHERE order_id = $1
   AND status = 'pending';`

	cmd, err := execSQL(ctx, r.pool, tx, q, orderID, b, nullIfEmpty(trackingID))
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

// MarkFulfilled is the exactly-once guard: the update only matches while
// fulfillment_status is still 'unfulfilled' at write time. Under concurrent
// transactions the loser blocks on the row lock, re-checks the predicate, and
// reports false.
func (r *pendingPaymentRepo) MarkFulfilled(ctx context.Context, tx repository.Tx, orderID string, receipt *model.FulfillmentReceipt) (bool, error) {
	b, err := marshalNullable(receipt)
	if err != nil {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE pending_payments
   SET fulfillment_status = 'fulfilled',
       fulfillment_receipt = $2,
       fulfilled_at = NOW(),
       updated_at = NOW()
 WHERE order_id = $1
   AND status = 'completed'
   AND fulfillment_status <> 'fulfilled';`

	cmd, err := execSQL(ctx, r.pool, tx, q, orderID, b)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *pendingPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PendingPayment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM pending_payments WHERE status='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.PendingPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func scanPayment(row pgx.Row) (*model.PendingPayment, error) {
	p := &model.PendingPayment{}
	var md, snap, receipt []byte
	err := row.Scan(&p.OrderID, &p.OrderTrackingID, &md, &p.Signature, &p.Status, &p.FulfillmentStatus, &snap, &receipt, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt, &p.FulfilledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if err := json.Unmarshal(md, &p.Metadata); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if len(snap) > 0 {
		p.GatewayStatus = &model.GatewayStatusSnapshot{}
		if err := json.Unmarshal(snap, p.GatewayStatus); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if len(receipt) > 0 {
		p.Receipt = &model.FulfillmentReceipt{}
		if err := json.Unmarshal(receipt, p.Receipt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return p, nil
}

func marshalNullable(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case *model.GatewayStatusSnapshot:
		if t == nil {
			return nil, nil
		}
	case *model.FulfillmentReceipt:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
