package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultInventoryTimeout = 3 * time.Second

var (
	ErrStockNotFound        = errors.New("stock not found")
	ErrInventoryBadResponse = errors.New("inventory bad response")
	ErrInventoryUnavailable = errors.New("inventory unavailable")
)

// InventoryClient talks to the inventory HTTP API:
//
//	GET {BaseURL}/products/{id}
//	GET {BaseURL}/stock/{id}
type InventoryClient struct {
	BaseURL string
	Client  *http.Client
}

func NewInventoryClient(baseURL string, timeout time.Duration) *InventoryClient {
	if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" && u.Host != "" {
		baseURL = strings.TrimRight(baseURL, "/")
	}
	if timeout <= 0 {
		timeout = defaultInventoryTimeout
	}
	return &InventoryClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (c *InventoryClient) GetProduct(ctx context.Context, id int) (Product, error) {
	var p Product
	if err := c.getJSON(ctx, fmt.Sprintf("%s/products/%d", c.BaseURL, id), &p, ErrProductNotFound); err != nil {
		return Product{}, err
	}
	// A null or empty body is no product at all.
	if p.ID == 0 {
		return Product{}, ErrProductNotFound
	}
	p.Amount = 0
	return p, nil
}

func (c *InventoryClient) GetStock(ctx context.Context, id int) (Stock, error) {
	var s Stock
	if err := c.getJSON(ctx, fmt.Sprintf("%s/stock/%d", c.BaseURL, id), &s, ErrStockNotFound); err != nil {
		return Stock{}, err
	}
	if s.ID == 0 {
		return Stock{}, ErrStockNotFound
	}
	return s, nil
}

func (c *InventoryClient) getJSON(ctx context.Context, u string, out any, notFound error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInventoryUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return notFound
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status=%d", ErrInventoryBadResponse, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrInventoryBadResponse, err)
	}
	return nil
}
