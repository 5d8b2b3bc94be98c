package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"isp-contracts/internal/platform/httpclient"
	"isp-contracts/internal/ports/billing"
)

var (
	ErrBillingNotConfigured = errors.New("billing client not configured")
	ErrBillingUnauthorized  = errors.New("billing unauthorized")
	ErrBillingUpstream      = errors.New("billing upstream error")
)

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client notifica activaciones al servicio de facturación por HTTP.
type Client struct {
	http *httpclient.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrBillingNotConfigured
	}
	hc, err := httpclient.NewWithBaseURL(strings.TrimSpace(cfg.BaseURL), cfg.Timeout)
	if err != nil {
		return nil, err
	}
	if tok := strings.TrimSpace(cfg.Token); tok != "" {
		hc.Headers = map[string]string{"Authorization": "Bearer " + tok}
	}
	return &Client{http: hc}, nil
}

type activationRequest struct {
	ContractID     string `json:"contract_id"`
	ContractNumber string `json:"contract_number"`
	ClientID       string `json:"client_id"`
	PlanID         string `json:"plan_id"`
	MonthlyPrice   string `json:"monthly_price"`
	Currency       string `json:"currency"`
	SignedAt       string `json:"signed_at"`
}

// ContractActivated es idempotente del lado de facturación: la clave es el id del contrato.
func (c *Client) ContractActivated(ctx context.Context, ev billing.ContractActivated) error {
	if c == nil || c.http == nil {
		return ErrBillingNotConfigured
	}

	err := c.http.DoJSON(ctx, http.MethodPost, "/v1/contract-activations",
		map[string]string{"Idempotency-Key": "contract-activated:" + ev.ContractID},
		activationRequest{
			ContractID:     ev.ContractID,
			ContractNumber: ev.ContractNumber,
			ClientID:       ev.ClientID,
			PlanID:         ev.PlanID,
			MonthlyPrice:   ev.MonthlyPrice,
			Currency:       ev.Currency,
			SignedAt:       ev.SignedAt.UTC().Format(time.RFC3339),
		}, nil)
	if err == nil {
		return nil
	}

	var he *httpclient.HTTPError
	if errors.As(err, &he) {
		switch he.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrBillingUnauthorized
		case http.StatusConflict:
			// ya registrado
			return nil
		}
		return fmt.Errorf("%w: status=%d", ErrBillingUpstream, he.StatusCode)
	}
	return fmt.Errorf("%w: %v", ErrBillingUpstream, err)
}
