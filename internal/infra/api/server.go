// File: internal/infra/api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"rental-payments/internal/domain"
	"rental-payments/internal/domain/model"
	"rental-payments/internal/infra/logging"
	"rental-payments/internal/infra/metrics"
	"rental-payments/internal/usecase"
)

// RateLimiter gates the client-initiated verify endpoint per subject.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

type Server struct {
	verifier  usecase.VerificationUseCase
	auth      *AuthManager
	limiter   RateLimiter
	rateCfg   RateLimitConfig
	verifyKey func(subjectID string) string
	log       *zerolog.Logger
}

func NewServer(
	verifier usecase.VerificationUseCase,
	auth *AuthManager,
	limiter RateLimiter,
	rateCfg RateLimitConfig,
	verifyKey func(string) string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		verifier:  verifier,
		auth:      auth,
		limiter:   limiter,
		rateCfg:   rateCfg,
		verifyKey: verifyKey,
		log:       logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(20 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/payments", func(r chi.Router) {
		// Pesapal calls the IPN with GET or POST depending on the
		// registration; accept both.
		r.Get("/ipn", s.handleIPN)
		r.Post("/ipn", s.handleIPN)

		r.With(s.requireSubject).Get("/verify", s.handleVerify)
	})

	return r
}

// ipnAck is the acknowledgement shape Pesapal expects back from an IPN
// endpoint. A non-200 Status makes the gateway redeliver later.
type ipnAck struct {
	OrderNotificationType string `json:"orderNotificationType"`
	OrderTrackingID       string `json:"orderTrackingId"`
	OrderMerchantRef      string `json:"orderMerchantReference"`
	Status                int    `json:"status"`
}

func (s *Server) handleIPN(w http.ResponseWriter, r *http.Request) {
	trackingID := r.URL.Query().Get("OrderTrackingId")
	orderRef := r.URL.Query().Get("OrderMerchantReference")
	if trackingID == "" && orderRef == "" && r.Method == http.MethodPost {
		// Some IPN registrations deliver a JSON body instead of query params.
		var body struct {
			OrderTrackingID  string `json:"OrderTrackingId"`
			OrderMerchantRef string `json:"OrderMerchantReference"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			trackingID = body.OrderTrackingID
			orderRef = body.OrderMerchantRef
		}
	}

	ack := ipnAck{
		OrderNotificationType: "IPNCHANGE",
		OrderTrackingID:       trackingID,
		OrderMerchantRef:      orderRef,
		Status:                http.StatusOK,
	}

	ctx := logging.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
	if orderRef != "" {
		ctx = logging.WithOrderID(ctx, orderRef)
	}
	log := logging.With(ctx, s.log)

	start := time.Now()
	res, err := s.verifier.VerifyAndFulfill(ctx, trackingID, orderRef)
	s.observe(start, res, err)
	if err != nil {
		// Terminal rejections are not the gateway's problem; ack those so it
		// stops redelivering. Transient failures get a 500 so it retries.
		if retryableVerifyError(err) {
			log.Warn().Err(err).Str("tracking_id", trackingID).Msg("ipn verify failed; asking gateway to redeliver")
			ack.Status = http.StatusInternalServerError
		} else {
			log.Warn().Err(err).Str("tracking_id", trackingID).Msg("ipn rejected")
		}
	}
	writeJSON(w, http.StatusOK, ack)
}

// retryableVerifyError reports whether a redelivery could succeed.
func retryableVerifyError(err error) bool {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrSignatureInvalid),
		errors.Is(err, domain.ErrAmountMismatch),
		errors.Is(err, domain.ErrInvalidArgument):
		return false
	}
	return true
}

type receiptResponse struct {
	ID               string     `json:"id"`
	OrderID          string     `json:"order_id"`
	Type             string     `json:"type"`
	PlanType         string     `json:"plan_type,omitempty"`
	Credits          int64      `json:"credits,omitempty"`
	SubscriptionID   string     `json:"subscription_id,omitempty"`
	PeriodStart      *time.Time `json:"period_start,omitempty"`
	PeriodEnd        *time.Time `json:"period_end,omitempty"`
	ConfirmationCode string     `json:"confirmation_code,omitempty"`
	GrantedAt        time.Time  `json:"granted_at"`
}

type verifyResponse struct {
	OK               bool             `json:"ok"`
	Verified         bool             `json:"verified"`
	AlreadyProcessed bool             `json:"already_processed,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	Detail           string           `json:"detail,omitempty"`
	Receipt          *receiptResponse `json:"receipt,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx := logging.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
	ctx = logging.WithSubjectID(ctx, claims.Subject)

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, s.verifyKey(claims.Subject), s.rateCfg.Limit, s.rateCfg.Window)
		if err != nil {
			// Rate limiting is best effort; a broken limiter must not take
			// the verify path down.
			logging.With(ctx, s.log).Warn().Err(err).Msg("rate limiter unavailable; allowing request")
		} else if !allowed {
			status, reason := mapVerifyError(domain.ErrRateLimited)
			metrics.IncVerify("fail", reason)
			writeJSON(w, status, verifyResponse{
				OK: false, Reason: reason, Detail: "too many verification attempts; try again later",
			})
			return
		}
	}

	trackingID := r.URL.Query().Get("order_tracking_id")
	orderRef := r.URL.Query().Get("order_id")
	if trackingID == "" && orderRef == "" {
		metrics.IncVerify("fail", "bad_request")
		writeJSON(w, http.StatusBadRequest, verifyResponse{
			OK: false, Reason: "bad_request", Detail: "order_tracking_id or order_id is required",
		})
		return
	}
	if orderRef != "" {
		ctx = logging.WithOrderID(ctx, orderRef)
	}

	start := time.Now()
	res, err := s.verifier.VerifyAndFulfill(ctx, trackingID, orderRef)
	s.observe(start, res, err)
	if err != nil {
		status, reason := mapVerifyError(err)
		logging.With(ctx, s.log).Warn().Err(err).Str("reason", reason).Msg("verification rejected")
		writeJSON(w, status, verifyResponse{OK: false, Reason: reason, Detail: "verification failed"})
		return
	}

	resp := verifyResponse{}
	switch res.Outcome {
	case usecase.OutcomeFulfilled:
		resp.OK = true
		resp.Verified = true
		resp.Receipt = toReceiptResponse(res.Receipt)
	case usecase.OutcomeAlreadyProcessed:
		resp.OK = true
		resp.Verified = true
		resp.AlreadyProcessed = true
		resp.Receipt = toReceiptResponse(res.Receipt)
	case usecase.OutcomeAwaitingConfirmation:
		resp.Reason = "pending"
		resp.Detail = "payment not confirmed by the gateway yet"
	case usecase.OutcomeCompletedUnfulfilled:
		resp.Verified = true
		resp.Reason = "fulfillment_error"
		resp.Detail = "payment confirmed; fulfillment will be retried"
	}
	writeJSON(w, http.StatusOK, resp)
}

// mapVerifyError keeps the response body uniform for terminal rejections so a
// caller cannot distinguish a forged signature from a tampered amount.
func mapVerifyError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrSignatureInvalid):
		return http.StatusForbidden, "rejected"
	case errors.Is(err, domain.ErrAmountMismatch):
		return http.StatusForbidden, "amount_mismatch"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, domain.ErrGatewayAuth), errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, "gateway_error"
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) observe(start time.Time, res *usecase.VerifyResult, err error) {
	elapsed := time.Since(start).Seconds()
	if err != nil {
		_, reason := mapVerifyError(err)
		metrics.IncVerify("fail", reason)
		metrics.ObserveVerifyDuration("fail", elapsed)
		return
	}
	metrics.IncVerify("ok", string(res.Outcome))
	metrics.ObserveVerifyDuration("ok", elapsed)
	if res.Outcome == usecase.OutcomeFulfilled && res.Receipt != nil {
		metrics.IncFulfillment(string(res.Receipt.Type), "granted")
	}
}

func toReceiptResponse(r *model.FulfillmentReceipt) *receiptResponse {
	if r == nil {
		return nil
	}
	return &receiptResponse{
		ID:               r.ID,
		OrderID:          r.OrderID,
		Type:             string(r.Type),
		PlanType:         string(r.PlanType),
		Credits:          r.Credits,
		SubscriptionID:   r.SubscriptionID,
		PeriodStart:      r.PeriodStart,
		PeriodEnd:        r.PeriodEnd,
		ConfirmationCode: r.ConfirmationCode,
		GrantedAt:        r.GrantedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
