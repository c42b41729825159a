package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/pickup-orders/api/responses"
	gatewaywebhook "github.com/angelmondragon/pickup-orders/internal/webhooks/gateway"
	pkgerrors "github.com/angelmondragon/pickup-orders/pkg/errors"
	"github.com/angelmondragon/pickup-orders/pkg/logger"
)

// maxWebhookBody bounds how much of a delivery is read before verification.
const maxWebhookBody = 1 << 20

var signatureHeaders = []string{"X-Razorpay-Signature", "X-Signature"}

type gatewayWebhookService interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (gatewaywebhook.Outcome, error)
}

// GatewayWebhook verifies and applies payment gateway events. Duplicates and
// no-op deliveries are acknowledged with 200 so the gateway stops retrying.
func GatewayWebhook(svc gatewayWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		outcome, err := svc.HandleWebhook(ctx, payload, signature(r))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
	}
}

func signature(r *http.Request) string {
	for _, header := range signatureHeaders {
		if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
			return value
		}
	}
	return ""
}
