package payfast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNoSession = errors.New("processor returned no payment identifier")

// Merchant holds the static part of every payment request.
type Merchant struct {
	ID         string
	Key        string
	Passphrase string
	ReturnURL  string
	CancelURL  string
	NotifyURL  string
}

type Buyer struct {
	FirstName string
	LastName  string
	Email     string
}

// PaymentFields builds the unsigned request fields in the order the processor
// expects them.
func (m Merchant) PaymentFields(buyer Buyer, paymentRef string, amount decimal.Decimal, itemName string) Fields {
	return Fields{}.
		Add("merchant_id", m.ID).
		Add("merchant_key", m.Key).
		Add("return_url", m.ReturnURL).
		Add("cancel_url", m.CancelURL).
		Add("notify_url", m.NotifyURL).
		Add("name_first", buyer.FirstName).
		Add("name_last", buyer.LastName).
		Add("email_address", buyer.Email).
		Add("m_payment_id", paymentRef).
		Add("amount", amount.StringFixed(2)).
		Add("item_name", itemName)
}

// Popup is what the browser hands to the onsite payment script.
type Popup struct {
	UUID      string `json:"uuid"`
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type Client struct {
	processURL string
	httpClient *http.Client
}

func NewClient(processURL string) *Client {
	return &Client{
		processURL: processURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type sessionResponse struct {
	UUID string `json:"uuid"`
}

// CreateSession posts the signed fields and returns the one-time payment uuid.
func (c *Client) CreateSession(ctx context.Context, signed Fields) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.processURL, strings.NewReader(ParamString(signed)))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("processor responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.UUID == "" {
		return "", ErrNoSession
	}
	return out.UUID, nil
}
