package gatewaywebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	"github.com/angelmondragon/pickup-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickup-orders/pkg/errors"
	"github.com/angelmondragon/pickup-orders/pkg/logger"
	"github.com/angelmondragon/pickup-orders/pkg/metrics"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"

	// DefaultAmountEpsilon is the tolerated difference between paid and owed, in minor units.
	DefaultAmountEpsilon int64 = 1
)

// Outcome labels what a delivery resulted in.
type Outcome string

const (
	OutcomeApplied     Outcome = "applied"
	OutcomeNoop        Outcome = "noop"
	OutcomeLateCapture Outcome = "late_capture"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeIgnored     Outcome = "ignored"
	OutcomeRejected    Outcome = "rejected"
)

type orderPayments interface {
	FindByIntentID(ctx context.Context, intentID string) (*models.Order, error)
	ConfirmPayment(ctx context.Context, order *models.Order, gatewayPaymentID string) (bool, error)
	RecordLateCapture(ctx context.Context, order *models.Order, gatewayPaymentID string) (bool, error)
	MarkPaymentFailed(ctx context.Context, order *models.Order) (bool, error)
}

type replayGuard interface {
	CheckAndMark(ctx context.Context, event, reference string) (bool, error)
	Forget(ctx context.Context, event, reference string) error
}

type ServiceParams struct {
	Orders        orderPayments
	Guard         replayGuard
	SigningSecret string
	AmountEpsilon int64
	Metrics       *metrics.OrderMetrics
	Logger        *logger.Logger
}

// Service reconciles signed gateway notifications with stored orders.
type Service struct {
	orders  orderPayments
	guard   replayGuard
	secret  string
	epsilon int64
	metrics *metrics.OrderMetrics
	logg    *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order payments service required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "replay guard required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	epsilon := params.AmountEpsilon
	if epsilon <= 0 {
		epsilon = DefaultAmountEpsilon
	}
	return &Service{
		orders:  params.Orders,
		guard:   params.Guard,
		secret:  strings.TrimSpace(params.SigningSecret),
		epsilon: epsilon,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// Event is the normalized content of a verified delivery.
type Event struct {
	Type        string
	IntentID    string
	PaymentID   string
	AmountMinor *int64
	Status      string
}

func (e Event) reference() string {
	if e.PaymentID != "" {
		return e.PaymentID
	}
	return e.IntentID
}

type paymentEntity struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Amount  *int64 `json:"amount"`
	Status  string `json:"status"`
}

type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		IntentID    string `json:"intentId"`
		PaymentID   string `json:"paymentId"`
		AmountMinor *int64 `json:"amountMinorUnits"`
		Status      string `json:"status"`
		Payment     *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ParseEvent decodes the flat payload shape, falling back to the gateway's
// nested payment.entity form.
func ParseEvent(body []byte) (Event, error) {
	var raw webhookBody
	if err := json.Unmarshal(body, &raw); err != nil {
		return Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook body")
	}
	event := Event{
		Type:        strings.TrimSpace(raw.Event),
		IntentID:    raw.Payload.IntentID,
		PaymentID:   raw.Payload.PaymentID,
		AmountMinor: raw.Payload.AmountMinor,
		Status:      raw.Payload.Status,
	}
	if entity := raw.Payload.Payment; entity != nil {
		if event.IntentID == "" {
			event.IntentID = entity.Entity.OrderID
		}
		if event.PaymentID == "" {
			event.PaymentID = entity.Entity.ID
		}
		if event.AmountMinor == nil {
			event.AmountMinor = entity.Entity.Amount
		}
		if event.Status == "" {
			event.Status = entity.Entity.Status
		}
	}
	if event.Type == "" {
		return Event{}, pkgerrors.New(pkgerrors.CodeValidation, "webhook event type missing")
	}
	return event, nil
}

// HandleWebhook verifies, deduplicates and applies one delivery.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (Outcome, error) {
	if s.secret == "" {
		return OutcomeRejected, pkgerrors.New(pkgerrors.CodeGatewayConfig, "webhook signing secret not configured")
	}
	if !VerifySignature(s.secret, body, signature) {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"security_event":   "webhook_signature_mismatch",
			"signature_header": signature != "",
			"body_bytes":       len(body),
		})
		s.logg.Warn(logCtx, "rejected gateway webhook with invalid signature")
		s.metrics.IncWebhook("unknown", string(OutcomeRejected))
		return OutcomeRejected, pkgerrors.New(pkgerrors.CodeInvalidSignature, "invalid webhook signature")
	}

	event, err := ParseEvent(body)
	if err != nil {
		s.metrics.IncWebhook("unknown", string(OutcomeRejected))
		return OutcomeRejected, err
	}
	logCtx := s.logg.WithPayment(s.logg.WithField(ctx, "webhook_event", event.Type), event.IntentID, event.PaymentID)

	if event.Type != EventPaymentCaptured && event.Type != EventPaymentFailed {
		s.logg.Info(logCtx, "gateway webhook acknowledged without action")
		s.metrics.IncWebhook(event.Type, string(OutcomeIgnored))
		return OutcomeIgnored, nil
	}
	if event.IntentID == "" {
		s.metrics.IncWebhook(event.Type, string(OutcomeRejected))
		return OutcomeRejected, pkgerrors.New(pkgerrors.CodeValidation, "webhook intent id missing")
	}

	seen, err := s.guard.CheckAndMark(ctx, event.Type, event.reference())
	if err != nil {
		return OutcomeRejected, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook replay")
	}
	if seen {
		s.logg.Info(logCtx, "duplicate gateway webhook skipped")
		s.metrics.IncWebhook(event.Type, string(OutcomeDuplicate))
		return OutcomeDuplicate, nil
	}

	outcome, err := s.apply(logCtx, event)
	if err != nil {
		if forgetErr := s.guard.Forget(ctx, event.Type, event.reference()); forgetErr != nil {
			s.logg.Error(logCtx, "failed to clear webhook replay mark", forgetErr)
		}
		s.metrics.IncWebhook(event.Type, string(OutcomeRejected))
		return OutcomeRejected, err
	}
	s.metrics.IncWebhook(event.Type, string(outcome))
	return outcome, nil
}

func (s *Service) apply(ctx context.Context, event Event) (Outcome, error) {
	order, err := s.orders.FindByIntentID(ctx, event.IntentID)
	if err != nil {
		// a failure for an intent we never persisted has nothing to reconcile
		if event.Type == EventPaymentFailed && pkgerrors.HasCode(err, pkgerrors.CodeOrderNotFound) {
			s.logg.Warn(ctx, "payment failure for unknown intent acknowledged")
			return OutcomeIgnored, nil
		}
		return OutcomeRejected, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	switch event.Type {
	case EventPaymentCaptured:
		return s.applyCaptured(ctx, order, event)
	case EventPaymentFailed:
		applied, err := s.orders.MarkPaymentFailed(ctx, order)
		if err != nil {
			return OutcomeRejected, err
		}
		if !applied {
			s.logg.Info(ctx, "payment failure ignored for completed payment")
			return OutcomeNoop, nil
		}
		s.logg.Info(ctx, "payment failure recorded")
		return OutcomeApplied, nil
	}
	return OutcomeIgnored, nil
}

func (s *Service) applyCaptured(ctx context.Context, order *models.Order, event Event) (Outcome, error) {
	if event.AmountMinor == nil {
		return OutcomeRejected, pkgerrors.New(pkgerrors.CodeValidation, "captured amount missing")
	}
	paid := *event.AmountMinor
	diff := paid - order.TotalMinor
	if diff < 0 {
		diff = -diff
	}
	if diff > s.epsilon {
		logCtx := s.logg.WithFields(ctx, map[string]any{"expected_minor": order.TotalMinor, "paid_minor": paid})
		s.logg.Warn(logCtx, "captured amount does not match order total")
		return OutcomeRejected, pkgerrors.New(pkgerrors.CodeAmountMismatch, "payment amount does not match order total").
			WithDetails(map[string]any{"expected": order.TotalMinor, "paid": paid})
	}

	applied, err := s.orders.ConfirmPayment(ctx, order, event.PaymentID)
	if err != nil {
		return OutcomeRejected, err
	}
	if applied {
		return OutcomeApplied, nil
	}

	current, err := s.orders.FindByIntentID(ctx, event.IntentID)
	if err != nil {
		return OutcomeRejected, err
	}
	switch current.Status {
	case enums.OrderStatusPlaced, enums.OrderStatusPreparing, enums.OrderStatusReady, enums.OrderStatusCompleted:
		s.logg.Info(ctx, "capture already applied")
		return OutcomeNoop, nil
	case enums.OrderStatusCancelled:
		if _, err := s.orders.RecordLateCapture(ctx, current, event.PaymentID); err != nil {
			return OutcomeRejected, err
		}
		s.logg.Warn(ctx, "payment captured for cancelled order; refund required")
		return OutcomeLateCapture, nil
	}
	return OutcomeRejected, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order in unexpected status %s", current.Status))
}
