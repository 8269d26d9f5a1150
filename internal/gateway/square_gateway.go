package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

// Square API base URLs
const (
	SquareProductionURL = "https://connect.squareup.com"
	SquareSandboxURL    = "https://connect.squareupsandbox.com"
)

// SquareGateway implements PaymentGateway over the Square payments REST API
type SquareGateway struct {
	config *SquareGatewayConfig
	client *http.Client
}

// SquareGatewayConfig holds configuration for Square gateway
type SquareGatewayConfig struct {
	AccessToken string
	Environment string // "sandbox" or "production"
	APIVersion  string
	// BaseURL overrides the environment URL
	BaseURL string
	Timeout time.Duration
}

// NewSquareGateway creates a new Square gateway
func NewSquareGateway(config *SquareGatewayConfig) (*SquareGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("square config is required")
	}
	if config.AccessToken == "" {
		return nil, fmt.Errorf("square access token is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = SquareProductionURL
		if config.Environment == "sandbox" {
			config.BaseURL = SquareSandboxURL
		}
	}
	if config.APIVersion == "" {
		config.APIVersion = "2024-10-17"
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}

	return &SquareGateway{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squarePayment struct {
	ID                string      `json:"id"`
	Status            string      `json:"status"`
	AmountMoney       squareMoney `json:"amount_money"`
	BuyerEmailAddress string      `json:"buyer_email_address"`
	CreatedAt         time.Time   `json:"created_at"`
	ReferenceID       string      `json:"reference_id"`
	Note              string      `json:"note"`
	OrderID           string      `json:"order_id"`
	CustomerID        string      `json:"customer_id"`
}

type squareError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

type squareGetPaymentResponse struct {
	Payment *squarePayment `json:"payment"`
	Errors  []squareError  `json:"errors"`
}

// GetPayment retrieves a payment by id
func (g *SquareGateway) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("payment ID is required")
	}

	endpoint := fmt.Sprintf("%s/v2/payments/%s", strings.TrimRight(g.config.BaseURL, "/"), url.PathEscape(paymentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build square request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.config.AccessToken)
	req.Header.Set("Square-Version", g.config.APIVersion)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, g.apiError(paymentID, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, g.apiError(paymentID, resp.StatusCode, err)
	}

	var out squareGetPaymentResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, g.apiError(paymentID, resp.StatusCode, fmt.Errorf("invalid response: %w", err))
		}
	}

	if resp.StatusCode == http.StatusNotFound || hasSquareCode(out.Errors, "NOT_FOUND") {
		return nil, fmt.Errorf("square payment %s: %w", paymentID, domain.ErrPaymentNotFound)
	}
	if resp.StatusCode >= 300 {
		detail := http.StatusText(resp.StatusCode)
		if len(out.Errors) > 0 {
			detail = out.Errors[0].Code + ": " + out.Errors[0].Detail
		}
		return nil, g.apiError(paymentID, resp.StatusCode, fmt.Errorf("%s", detail))
	}
	if out.Payment == nil {
		return nil, g.apiError(paymentID, resp.StatusCode, fmt.Errorf("response has no payment"))
	}

	sp := out.Payment
	return &domain.Payment{
		ID:               sp.ID,
		Provider:         domain.ProviderSquare,
		Status:           strings.ToLower(sp.Status),
		AmountMinorUnits: sp.AmountMoney.Amount,
		Currency:         strings.ToUpper(sp.AmountMoney.Currency),
		BuyerEmail:       strings.ToLower(sp.BuyerEmailAddress),
		CreatedAt:        sp.CreatedAt,
		ReferenceID:      sp.ReferenceID,
		Note:             sp.Note,
		Metadata: map[string]string{
			"orderId":    sp.OrderID,
			"customerId": sp.CustomerID,
		},
	}, nil
}

// Name returns the gateway name
func (g *SquareGateway) Name() string {
	return string(domain.ProviderSquare)
}

func (g *SquareGateway) apiError(paymentID string, status int, err error) error {
	return &domain.ExternalAPIError{
		Provider:   string(domain.ProviderSquare),
		PaymentID:  paymentID,
		StatusCode: status,
		Err:        err,
	}
}

func hasSquareCode(errs []squareError, code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}
