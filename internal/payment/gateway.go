package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jayjaytrn/freshflow/models"
	"go.uber.org/zap"
)

const (
	DefaultTimeout    = 15 * time.Second
	DefaultExpiration = 30 * time.Minute

	OpCreateCharge = "create_charge"
	OpPollStatus   = "poll_status"

	maxResponseBody = 1 << 20
	maxDetail       = 512
)

// Gateway is the remote payment provider.
type Gateway interface {
	CreateCharge(ctx context.Context, order models.Order) (models.Charge, error)
	PollStatus(ctx context.Context, transactionID string) (models.StatusResult, error)
}

// Client talks to the Pagar.me v1 transactions API.
type Client struct {
	BaseURL    string
	APIKey     string
	Expiration time.Duration
	HTTP       *http.Client
	Logger     *zap.SugaredLogger
	// Observe, when set, is called after every gateway call.
	Observe func(op string, elapsed time.Duration, err error)

	now func() time.Time
}

func NewClient(baseURL, apiKey string, timeout, expiration time.Duration, logger *zap.SugaredLogger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		Expiration: expiration,
		HTTP:       &http.Client{Timeout: timeout},
		Logger:     logger,
		now:        time.Now,
	}
}

// ChargeAmount is the order total in minor units. Every line is rounded to
// cents on its own before summing.
func ChargeAmount(order models.Order) (int64, error) {
	var total int64
	for _, l := range order.Lines {
		total += l.MinorUnits()
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: got %d", models.ErrInvalidAmount, total)
	}
	return total, nil
}

// BuildChargeRequest renders the creation body for order.
func BuildChargeRequest(order models.Order, amount int64, apiKey string, expiresAt time.Time) models.ChargeRequest {
	items := make([]models.ChargeItem, len(order.Lines))
	for i, l := range order.Lines {
		items[i] = models.ChargeItem{
			ID:        strconv.Itoa(i + 1),
			Title:     l.Name,
			UnitPrice: l.UnitMinorUnits(),
			Quantity:  l.Quantity,
			Tangible:  false,
		}
	}
	return models.ChargeRequest{
		APIKey:        apiKey,
		Amount:        amount,
		PaymentMethod: models.PaymentMethodPix,
		Expiration:    expiresAt.Unix(),
		Metadata:      models.ChargeMetadata{OrderID: order.ID},
		Items:         items,
	}
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type transactionResponse struct {
	ID           flexString `json:"id"`
	Status       string     `json:"status"`
	PixQRCode    string     `json:"pix_qr_code"`
	QRCode       string     `json:"qr_code"`
	QRCodeText   string     `json:"qr_code_text"`
	PixQRCodeURL string     `json:"pix_qr_code_url"`
	QRCodeURL    string     `json:"qr_code_url"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func (c *Client) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

func (c *Client) observe(op string, start time.Time, err error) {
	if c.Observe != nil {
		c.Observe(op, time.Since(start), err)
	}
}

// CreateCharge asks the gateway for a Pix charge. The order is never touched here.
func (c *Client) CreateCharge(ctx context.Context, order models.Order) (charge models.Charge, err error) {
	amount, err := ChargeAmount(order)
	if err != nil {
		return models.Charge{}, err
	}
	if c.APIKey == "" {
		return models.Charge{}, &models.GatewayError{Op: OpCreateCharge, Detail: "api key is not configured"}
	}

	start := time.Now()
	defer func() { c.observe(OpCreateCharge, start, err) }()

	expiration := c.Expiration
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	expiresAt := c.clock().Add(expiration)

	body, err := json.Marshal(BuildChargeRequest(order, amount, c.APIKey, expiresAt))
	if err != nil {
		return models.Charge{}, fmt.Errorf("failed to encode charge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/1/transactions", bytes.NewReader(body))
	if err != nil {
		return models.Charge{}, &models.GatewayError{Op: OpCreateCharge, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	var tr transactionResponse
	if _, err = c.do(req, OpCreateCharge, &tr); err != nil {
		return models.Charge{}, err
	}
	if tr.ID == "" {
		return models.Charge{}, &models.GatewayError{Op: OpCreateCharge, Detail: "response has no transaction id"}
	}

	charge = models.Charge{
		OrderID:          order.ID,
		TransactionID:    string(tr.ID),
		QRPayload:        firstNonEmpty(tr.PixQRCode, tr.QRCode, tr.QRCodeText),
		QRImageURL:       firstNonEmpty(tr.PixQRCodeURL, tr.QRCodeURL),
		ProviderStatus:   firstNonEmpty(tr.Status, models.ProviderPending),
		AmountMinorUnits: amount,
		ExpiresAt:        expiresAt.UTC(),
	}
	if c.Logger != nil {
		c.Logger.Infow("charge created",
			"order_id", order.ID, "transaction_id", charge.TransactionID,
			"status", charge.ProviderStatus, "amount", amount)
	}
	return charge, nil
}

// PollStatus reads the current charge status. It is a pure read.
func (c *Client) PollStatus(ctx context.Context, transactionID string) (result models.StatusResult, err error) {
	if strings.TrimSpace(transactionID) == "" {
		return models.StatusResult{}, models.Validationf("transaction id is required")
	}

	start := time.Now()
	defer func() { c.observe(OpPollStatus, start, err) }()

	q := url.Values{}
	q.Set("api_key", c.APIKey)
	endpoint := fmt.Sprintf("%s/1/transactions/%s?%s", c.BaseURL, url.PathEscape(transactionID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.StatusResult{}, &models.GatewayError{Op: OpPollStatus, Err: err}
	}

	var tr transactionResponse
	raw, err := c.do(req, OpPollStatus, &tr)
	if err != nil {
		return models.StatusResult{}, err
	}

	return models.StatusResult{
		Status: firstNonEmpty(tr.Status, models.ProviderUnknown),
		Raw:    json.RawMessage(raw),
	}, nil
}

// do sends req and decodes a 2xx body into out. Every failure is a GatewayError.
func (c *Client) do(req *http.Request, op string, out any) ([]byte, error) {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &models.GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &models.GatewayError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if c.Logger != nil {
			c.Logger.Warnw("gateway rejected request", "op", op, "status_code", resp.StatusCode)
		}
		return nil, &models.GatewayError{Op: op, StatusCode: resp.StatusCode, Detail: detail(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return nil, &models.GatewayError{Op: op, Detail: "malformed response", Err: err}
	}
	return body, nil
}

func detail(body []byte) string {
	d := strings.TrimSpace(string(body))
	if len(d) > maxDetail {
		d = d[:maxDetail]
	}
	if d == "" {
		d = "empty response"
	}
	return d
}

// ExistingCharge rebuilds the client view of a charge from a status read.
// When the raw body cannot be decoded the charge comes back without QR data
// along with the decode error.
func ExistingCharge(order models.Order, result models.StatusResult) (models.Charge, error) {
	charge := models.Charge{
		OrderID:        order.ID,
		TransactionID:  order.ProviderTransactionID,
		ProviderStatus: result.Status,
		Existing:       true,
	}
	if amount, err := ChargeAmount(order); err == nil {
		charge.AmountMinorUnits = amount
	}

	var tr transactionResponse
	if err := json.Unmarshal(result.Raw, &tr); err != nil {
		return charge, fmt.Errorf("failed to decode transaction %s: %w", order.ProviderTransactionID, err)
	}
	charge.QRPayload = firstNonEmpty(tr.PixQRCode, tr.QRCode, tr.QRCodeText)
	charge.QRImageURL = firstNonEmpty(tr.PixQRCodeURL, tr.QRCodeURL)
	return charge, nil
}
