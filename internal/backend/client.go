// Package backend talks to the remote storefront REST API that owns products
// and orders.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/storefront/internal/basket"
)

var (
	ErrNotFound = errors.New("not found")
	ErrRejected = errors.New("rejected by backend")
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
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

type Drug struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	QuantityAvailable int             `json:"quantity_available"`
	ImageURLs         []string        `json:"image_urls"`
	Description       string          `json:"description"`
	CategoryName      string          `json:"category_name"`
}

func (d Drug) Product() basket.Product {
	return basket.Product{
		ID:                d.ID,
		Name:              d.Name,
		Price:             d.Price,
		QuantityAvailable: d.QuantityAvailable,
	}
}

// Amount is a money value that encodes as a bare JSON number.
type Amount decimal.Decimal

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(a).String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*a = Amount(d)
	return nil
}

type OrderItem struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
}

// OrderRequest is the body of POST /order/checkout/. The same body is posted
// for the pending submission and for the final status update.
type OrderRequest struct {
	Token         *string     `json:"token"`
	UserID        string      `json:"user_id"`
	Name          string      `json:"name"`
	Email         string      `json:"email"`
	TotalPrice    Amount      `json:"total_price"`
	Address       string      `json:"address"`
	City          string      `json:"city"`
	PostalCode    string      `json:"postal_code"`
	Country       string      `json:"country"`
	PaymentMethod string      `json:"payment_method"`
	PaymentRef    string      `json:"m_payment_id"`
	Status        string      `json:"status"`
	Items         []OrderItem `json:"items"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (c *Client) GetProduct(ctx context.Context, token string, id int64) (*Drug, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/pharmacy/drugs/%d/", id), token, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("drug %d: %w", id, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var d Drug
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &d, nil
}

func (c *Client) SubmitOrder(ctx context.Context, token string, order OrderRequest) error {
	body, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/order/checkout/", token, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	return req, nil
}

// decodeError surfaces the backend's "detail" message when it sent one.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Detail != "" {
		return fmt.Errorf("%w: %s", ErrRejected, eb.Detail)
	}
	return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
}
