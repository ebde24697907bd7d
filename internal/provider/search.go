package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/veluna/stylebot/internal/domain"
)

// HTTPProductSearch calls a shopping search API over HTTP.
type HTTPProductSearch struct {
	baseURL string
	apiKey  string
	topN    int
	client  *http.Client
}

// NewHTTPProductSearch creates a product search client. Results are capped
// at topN.
func NewHTTPProductSearch(baseURL, apiKey string, topN int, timeout time.Duration) *HTTPProductSearch {
	if topN <= 0 {
		topN = 5
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPProductSearch{
		baseURL: baseURL,
		apiKey:  apiKey,
		topN:    topN,
		client:  &http.Client{Timeout: timeout},
	}
}

type searchResponse struct {
	Results []struct {
		Title string `json:"title"`
		Price string `json:"price"`
		Brand string `json:"brand"`
		Link  string `json:"link"`
	} `json:"results"`
	Error string `json:"error,omitempty"`
}

// Search queries the shopping API for products in the budget range.
func (p *HTTPProductSearch) Search(ctx context.Context, query string, budget domain.BudgetRange) ([]domain.Product, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("min_price", strconv.Itoa(budget.Min))
	if budget.Max > 0 {
		params.Set("max_price", strconv.Itoa(budget.Max))
	}
	params.Set("limit", strconv.Itoa(p.topN))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/shopping?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrSearch, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned status %d", ErrSearch, resp.StatusCode)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrSearch, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrSearch, out.Error)
	}

	products := make([]domain.Product, 0, len(out.Results))
	for _, r := range out.Results {
		products = append(products, domain.Product{
			Title: r.Title,
			Price: r.Price,
			Brand: r.Brand,
			Link:  r.Link,
		})
		if len(products) >= p.topN {
			break
		}
	}
	return products, nil
}
