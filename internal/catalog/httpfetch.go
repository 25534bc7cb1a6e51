package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPFetcherConfig configures the HTTP catalog client.
type HTTPFetcherConfig struct {
	// BaseURL is the catalog service root, e.g. "http://localhost:8090".
	BaseURL string

	// Timeout bounds a single fetch. Defaults to 30s.
	Timeout time.Duration

	// PoolSize bounds idle connections. Defaults to 4.
	PoolSize int
}

// HTTPFetcher implements Fetcher against the catalog service's JSON API.
type HTTPFetcher struct {
	client  *http.Client
	baseURL string
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates an HTTP-backed catalog fetcher.
func NewHTTPFetcher(cfg HTTPFetcherConfig) (*HTTPFetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("catalog base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid catalog base URL %q: %w", cfg.BaseURL, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}

	// Short idle timeout: index builds are one-shot, keep teardown quick.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		IdleConnTimeout:     10 * time.Second,
	}

	return &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
	}, nil
}

// productRecord is the wire form of a product.
type productRecord struct {
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory"`
	ProductType string    `json:"product_type"`
	Price       float64   `json:"price"`
	PromoPrice  *float64  `json:"promo_price,omitempty"`
	SoldByUnit  bool      `json:"sold_by_unit"`
	ImageRef    string    `json:"image_ref,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Hash        string    `json:"hash"`
}

type productsResponse struct {
	Products []productRecord `json:"products"`
	Total    int             `json:"total"`
}

// FetchByCategory implements Fetcher.
func (f *HTTPFetcher) FetchByCategory(ctx context.Context, category string, limit int) ([]*Product, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("limit", fmt.Sprint(limit))

	var resp productsResponse
	if err := f.get(ctx, "/products", q, &resp); err != nil {
		return nil, fmt.Errorf("fetch category %q: %w", category, err)
	}
	return decodeProducts(resp.Products)
}

// FetchByType implements Fetcher.
func (f *HTTPFetcher) FetchByType(ctx context.Context, category, subcategory, productType string, limit int) (TypedResult, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("subcategory", subcategory)
	q.Set("product_type", productType)
	q.Set("limit", fmt.Sprint(limit))

	var resp productsResponse
	if err := f.get(ctx, "/products/by-type", q, &resp); err != nil {
		return TypedResult{}, fmt.Errorf("fetch type %q: %w", productType, err)
	}

	products, err := decodeProducts(resp.Products)
	if err != nil {
		return TypedResult{}, err
	}

	total := resp.Total
	if total < len(products) {
		total = len(products)
	}
	return TypedResult{Products: products, Total: total}, nil
}

// FetchAdditional implements Fetcher.
func (f *HTTPFetcher) FetchAdditional(ctx context.Context, category, subcategory, excludeType string, limit int) ([]*Product, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("subcategory", subcategory)
	q.Set("exclude_type", excludeType)
	q.Set("limit", fmt.Sprint(limit))

	var resp productsResponse
	if err := f.get(ctx, "/products/additional", q, &resp); err != nil {
		return nil, fmt.Errorf("fetch additional for %q: %w", excludeType, err)
	}
	return decodeProducts(resp.Products)
}

// Close releases pooled connections.
func (f *HTTPFetcher) Close() {
	if t, ok := f.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

func (f *HTTPFetcher) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog service returned %s", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeProducts(records []productRecord) ([]*Product, error) {
	products := make([]*Product, 0, len(records))
	for _, rec := range records {
		hash, err := ParseCompositeHash(rec.Hash)
		if err != nil {
			return nil, err
		}
		p := &Product{
			Name:        rec.Name,
			Category:    rec.Category,
			Subcategory: rec.Subcategory,
			ProductType: rec.ProductType,
			Price:       rec.Price,
			PromoPrice:  rec.PromoPrice,
			SoldByUnit:  rec.SoldByUnit,
			ImageRef:    rec.ImageRef,
			Embedding:   rec.Embedding,
			Hash:        hash,
		}
		p.Normalize()
		products = append(products, p)
	}
	return products, nil
}
