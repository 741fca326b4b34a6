package paymentbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/vibestream/fanventures/internal/app/domain/payment"
	"github.com/vibestream/fanventures/internal/app/faults"
	"github.com/vibestream/fanventures/pkg/logger"
)

// HTTPGateway submits payment requests to a remote payment subsystem over
// JSON/HTTP.
type HTTPGateway struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	maxRetries int
	log        *logger.Logger
}

// NewHTTPGateway builds a gateway client for the given endpoint.
func NewHTTPGateway(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*HTTPGateway, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("payment gateway endpoint is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("payment-gateway")
	}
	return &HTTPGateway{client: client, endpoint: endpoint, apiKey: apiKey, maxRetries: 2, log: log}, nil
}

// RequestPayment POSTs the request and extracts the payment reference from
// the response. Transport failures and 5xx responses are retried a bounded
// number of times and surfaced as transient errors.
func (g *HTTPGateway) RequestPayment(ctx context.Context, req payment.Request) (payment.Reference, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode payment request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
			}
		}

		ref, retryable, err := g.post(ctx, body, req.IdempotencyKey)
		if err == nil {
			return ref, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
		g.log.WithError(err).
			WithField("idempotency_key", req.IdempotencyKey).
			Warnf("payment request attempt %d failed", attempt+1)
	}
	return "", faults.Transient("payment gateway", lastErr)
}

func (g *HTTPGateway) post(ctx context.Context, body []byte, idempotencyKey string) (payment.Reference, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, err
	}

	if resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("payment gateway returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", false, fmt.Errorf("payment gateway rejected request: %d %s", resp.StatusCode, string(payloadBytes))
	}

	ref := gjson.GetBytes(payloadBytes, "payment_reference").String()
	if ref == "" {
		ref = gjson.GetBytes(payloadBytes, "reference").String()
	}
	if ref == "" {
		return "", false, fmt.Errorf("payment gateway response missing payment_reference")
	}
	return payment.Reference(ref), false, nil
}
