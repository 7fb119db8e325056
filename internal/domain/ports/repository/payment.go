package repository

import (
	"context"
	"time"

	"rental-payments/internal/domain/model"
)

// PendingPaymentRepository is the durable store of checkout attempts.
//
// Both state transitions are single conditional updates at the storage layer:
// that, not an application lock, is what makes concurrent verification calls
// safe across process instances.
type PendingPaymentRepository interface {
	// Save inserts or replaces a payment row. Used by the checkout
	// collaborator and by seeding/tests; the verification core itself never
	// originates a row.
	Save(ctx context.Context, tx Tx, p *model.PendingPayment) error

	FindByOrderID(ctx context.Context, tx Tx, orderID string) (*model.PendingPayment, error)
	FindByTrackingID(ctx context.Context, tx Tx, trackingID string) (*model.PendingPayment, error)

	// AttachTrackingID records the gateway-issued tracking id once the
	// gateway assigns it.
	AttachTrackingID(ctx context.Context, tx Tx, orderID, trackingID string) error

	// MarkCompleted transitions pending -> completed, storing the gateway
	// snapshot and tracking id. Returns false when the row was already
	// completed; calling again is a no-op, never an error.
	MarkCompleted(ctx context.Context, tx Tx, orderID string, snap *model.GatewayStatusSnapshot, trackingID string) (bool, error)

	// MarkFulfilled transitions unfulfilled -> fulfilled with the receipt.
	// The update is guarded by fulfillment_status at write time; losing the
	// race yields false with no rows touched, and the caller must roll back
	// any grant performed in the same transaction.
	MarkFulfilled(ctx context.Context, tx Tx, orderID string, receipt *model.FulfillmentReceipt) (bool, error)

	// ListPendingOlderThan feeds the reconciler with stale pending attempts.
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PendingPayment, error)
}
