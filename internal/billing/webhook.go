// Package billing applies queued billing-provider webhooks.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/apperror"
	"github.com/abdul-hamid-achik/vodcoach/internal/db"
	"github.com/abdul-hamid-achik/vodcoach/internal/logger"
	"github.com/abdul-hamid-achik/vodcoach/internal/metrics"
	"github.com/abdul-hamid-achik/vodcoach/internal/queue"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
)

const SignatureHeader = "Stripe-Signature"

// Envelope is the queued form of an HTTP webhook delivery.
type Envelope struct {
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

func (e Envelope) Header(name string) string {
	for k, v := range e.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

type Store interface {
	UpdateCoachPayouts(ctx context.Context, arg db.UpdateCoachPayoutsParams) (int64, error)
}

type Config struct {
	Secret     string
	Tolerance  time.Duration
	Production bool
}

type WebhookHandler struct {
	store Store
	cfg   Config
}

var _ queue.Handler = (*WebhookHandler)(nil)

func NewWebhookHandler(store Store, cfg Config) *WebhookHandler {
	return &WebhookHandler{store: store, cfg: cfg}
}

func (h *WebhookHandler) Name() string {
	return "billing"
}

// Target is always "": billing events are not tied to an instance.
func (h *WebhookHandler) Target(ctx context.Context, body []byte) (string, error) {
	return "", nil
}

func (h *WebhookHandler) Handle(ctx context.Context, m queue.Message) error {
	log := logger.FromContext(ctx)

	var env Envelope
	if err := json.Unmarshal(m.Body, &env); err != nil {
		return apperror.Wrap(fmt.Errorf("decode envelope: %w", err), apperror.ErrMalformedBody)
	}

	header := env.Header(SignatureHeader)
	if header == "" {
		metrics.RecordBillingEvent("unknown", "bad_signature")
		return apperror.Wrap(webhook.ErrNotSigned, apperror.ErrBadSignature)
	}

	event, err := webhook.ConstructEventWithOptions([]byte(env.Body), header, h.cfg.Secret, h.verifyOptions())
	if err != nil {
		if isSignatureError(err) {
			metrics.RecordBillingEvent("unknown", "bad_signature")
			return apperror.Wrap(err, apperror.ErrBadSignature)
		}
		return apperror.Wrap(fmt.Errorf("decode event: %w", err), apperror.ErrMalformedBody)
	}

	log = log.With("event_id", event.ID, "event_type", event.Type)

	if h.cfg.Production && !event.Livemode {
		metrics.RecordBillingEvent(string(event.Type), "test_mode")
		return apperror.Wrap(fmt.Errorf("event %s is test-mode", event.ID), apperror.ErrTestModeData)
	}

	switch event.Type {
	case "account.updated":
		return h.handleAccountUpdated(logger.WithLogger(ctx, log), event)
	default:
		log.Debug("unhandled event type")
		metrics.RecordBillingEvent(string(event.Type), "ignored")
		return nil
	}
}

// verifyOptions accepts deliveries of any age unless a tolerance is set, since
// a queued event may wait in the queue long after it was signed. Events are
// decoded field by field, so API version drift is tolerated.
func (h *WebhookHandler) verifyOptions() webhook.ConstructEventOptions {
	return webhook.ConstructEventOptions{
		Tolerance:                h.cfg.Tolerance,
		IgnoreTolerance:          h.cfg.Tolerance <= 0,
		IgnoreAPIVersionMismatch: true,
	}
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func (h *WebhookHandler) handleAccountUpdated(ctx context.Context, event stripe.Event) error {
	log := logger.FromContext(ctx)

	if event.Data == nil {
		return apperror.Wrap(fmt.Errorf("event %s has no data", event.ID), apperror.ErrMalformedBody)
	}
	var account stripe.Account
	if err := json.Unmarshal(event.Data.Raw, &account); err != nil {
		return apperror.Wrap(fmt.Errorf("decode account: %w", err), apperror.ErrMalformedBody)
	}
	if account.ID == "" {
		return apperror.Wrap(fmt.Errorf("event %s account has no id", event.ID), apperror.ErrMalformedBody)
	}

	rows, err := h.store.UpdateCoachPayouts(ctx, db.UpdateCoachPayoutsParams{
		StripeAccountID:  account.ID,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
	})
	if err != nil {
		return apperror.Transport(fmt.Errorf("update coach payouts for %s: %w", account.ID, err))
	}
	if rows == 0 {
		metrics.RecordBillingEvent(string(event.Type), "no_coach")
		return apperror.Wrap(fmt.Errorf("no coach with stripe account %s", account.ID), apperror.ErrRowNotFound)
	}

	log.Info("coach payouts updated",
		"account_id", account.ID,
		"payouts_enabled", account.PayoutsEnabled,
		"details_submitted", account.DetailsSubmitted,
	)
	metrics.RecordBillingEvent(string(event.Type), "applied")
	return nil
}
