// File: internal/infra/adapters/payment/pesapal_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"rental-payments/internal/domain"
	"rental-payments/internal/domain/model"
	"rental-payments/internal/domain/ports/adapter"
	"rental-payments/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*PesapalGateway)(nil)

// Refresh the token while less than this much validity remains.
const tokenExpiryMargin = 60 * time.Second

// PesapalGateway implements adapter.PaymentGateway against the Pesapal v3
// REST API. Authentication tokens are short-lived (about five minutes) and
// cached via the injected token cache.
type PesapalGateway struct {
	consumerKey    string
	consumerSecret string
	baseURL        string
	client         *http.Client
	tokens         adapter.GatewayTokenCache
	log            *zerolog.Logger
	now            func() time.Time
}

func NewPesapalGateway(consumerKey, consumerSecret, baseURL string, sandbox bool, tokens adapter.GatewayTokenCache, logger *zerolog.Logger) (*PesapalGateway, error) {
	if consumerKey == "" || consumerSecret == "" {
		return nil, errors.New("pesapal consumer credentials empty")
	}
	if baseURL == "" {
		baseURL = "https://pay.pesapal.com/v3"
		if sandbox {
			baseURL = "https://cybqa.pesapal.com/pesapalv3"
		}
	}
	if tokens == nil {
		tokens = NewMemoryTokenCache()
	}
	return &PesapalGateway{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		baseURL:        baseURL,
		client:         &http.Client{Timeout: 15 * time.Second},
		tokens:         tokens,
		log:            logger,
		now:            time.Now,
	}, nil
}

func (g *PesapalGateway) Name() string { return "pesapal" }

// authToken returns a valid bearer token, reusing the cached one while more
// than the expiry margin remains. No retries; callers decide retry policy.
func (g *PesapalGateway) authToken(ctx context.Context) (string, error) {
	if tok, ok := g.tokens.Get(ctx); ok && g.now().Before(tok.ExpiresAt.Add(-tokenExpiryMargin)) {
		return tok.Value, nil
	}

	payload, _ := json.Marshal(map[string]string{
		"consumer_key":    g.consumerKey,
		"consumer_secret": g.consumerSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/Auth/RequestToken", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build auth request: %w", domain.ErrGatewayAuth)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		metrics.IncGatewayCall("auth", "unavailable")
		return "", fmt.Errorf("auth request: %v: %w", err, domain.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	var out struct {
		Token      string `json:"token"`
		ExpiryDate string `json:"expiryDate"`
		Status     string `json:"status"`
		Error      *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.IncGatewayCall("auth", "auth_error")
		return "", fmt.Errorf("decode auth response: %v: %w", err, domain.ErrGatewayAuth)
	}
	if resp.StatusCode != http.StatusOK || out.Token == "" {
		if out.Error != nil {
			g.log.Warn().Str("code", out.Error.Code).Str("message", out.Error.Message).Msg("pesapal auth rejected")
		}
		metrics.IncGatewayCall("auth", "auth_error")
		return "", fmt.Errorf("auth http %d: %w", resp.StatusCode, domain.ErrGatewayAuth)
	}
	metrics.IncGatewayCall("auth", "ok")

	expiry, err := time.Parse(time.RFC3339, out.ExpiryDate)
	if err != nil {
		// Token valid but expiry unparseable; assume the documented 5 minutes.
		expiry = g.now().Add(5 * time.Minute)
	}
	g.tokens.Put(ctx, adapter.GatewayToken{Value: out.Token, ExpiresAt: expiry})
	return out.Token, nil
}

// TransactionStatus queries GetTransactionStatus for a tracking id. No
// internal retries: transient failures surface as ErrGatewayUnavailable.
func (g *PesapalGateway) TransactionStatus(ctx context.Context, trackingID string) (*model.GatewayStatusSnapshot, error) {
	token, err := g.authToken(ctx)
	if err != nil {
		return nil, err
	}

	u := g.baseURL + "/api/Transactions/GetTransactionStatus?orderTrackingId=" + url.QueryEscape(trackingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", domain.ErrGatewayUnavailable)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		metrics.IncGatewayCall("status", "unavailable")
		return nil, fmt.Errorf("status request: %v: %w", err, domain.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Token no longer accepted; drop it so the next call re-authenticates.
		g.tokens.Put(ctx, adapter.GatewayToken{})
		metrics.IncGatewayCall("status", "auth_error")
		return nil, fmt.Errorf("status http %d: %w", resp.StatusCode, domain.ErrGatewayAuth)
	case resp.StatusCode != http.StatusOK:
		metrics.IncGatewayCall("status", "unavailable")
		return nil, fmt.Errorf("status http %d: %w", resp.StatusCode, domain.ErrGatewayUnavailable)
	}

	var out struct {
		PaymentMethod            string  `json:"payment_method"`
		Amount                   float64 `json:"amount"`
		CreatedDate              string  `json:"created_date"`
		ConfirmationCode         string  `json:"confirmation_code"`
		PaymentStatusDescription string  `json:"payment_status_description"`
		StatusCode               int     `json:"status_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.IncGatewayCall("status", "unavailable")
		return nil, fmt.Errorf("decode status response: %v: %w", err, domain.ErrGatewayUnavailable)
	}
	metrics.IncGatewayCall("status", "ok")

	return &model.GatewayStatusSnapshot{
		StatusCode:       out.StatusCode,
		Description:      out.PaymentStatusDescription,
		Amount:           out.Amount,
		PaymentMethod:    out.PaymentMethod,
		ConfirmationCode: out.ConfirmationCode,
		CreatedDate:      out.CreatedDate,
	}, nil
}
