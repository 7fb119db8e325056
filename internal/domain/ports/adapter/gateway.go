package adapter

import (
	"context"
	"time"

	"rental-payments/internal/domain/model"
)

// GatewayToken is the short-lived bearer token issued by the payment gateway.
type GatewayToken struct {
	Value     string
	ExpiresAt time.Time
}

// GatewayTokenCache stores the current gateway token. Implementations may be
// process-local; races are benign (two callers refetching is merely
// wasteful). Injectable so tests can supply a fake clock and token.
type GatewayTokenCache interface {
	Get(ctx context.Context) (GatewayToken, bool)
	Put(ctx context.Context, tok GatewayToken)
}

// PaymentGateway is the hex port for the external payment provider.
type PaymentGateway interface {
	Name() string

	// TransactionStatus returns the authoritative status of a tracking id.
	// It does not retry; transient failures surface as ErrGatewayUnavailable
	// for the orchestrator to report as still-pending, never as failed.
	TransactionStatus(ctx context.Context, trackingID string) (*model.GatewayStatusSnapshot, error)
}
