package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/veluna/stylebot/internal/domain"
)

// HTTPVisionAnalyzer calls a vision analysis API over HTTP.
type HTTPVisionAnalyzer struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPVisionAnalyzer creates a vision analyzer client.
func NewHTTPVisionAnalyzer(baseURL, apiKey string, timeout time.Duration) *HTTPVisionAnalyzer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPVisionAnalyzer{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	ImageRef string `json:"image_ref"`
}

type analyzeResponse struct {
	Tone              string   `json:"tone"`
	Undertone         string   `json:"undertone"`
	RecommendedColors []string `json:"recommended_colors"`
	ColorsToAvoid     []string `json:"colors_to_avoid"`
	Error             string   `json:"error,omitempty"`
}

// Analyze classifies the skin tone in the referenced image.
func (a *HTTPVisionAnalyzer) Analyze(ctx context.Context, imageRef string) (*domain.ToneAnalysis, error) {
	body, err := json.Marshal(analyzeRequest{ImageRef: imageRef})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrAnalysis, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrAnalysis, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysis, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned status %d", ErrAnalysis, resp.StatusCode)
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrAnalysis, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrAnalysis, out.Error)
	}
	if out.Tone == "" {
		return nil, fmt.Errorf("%w: provider returned no tone classification", ErrAnalysis)
	}

	return &domain.ToneAnalysis{
		Tone:              out.Tone,
		Undertone:         out.Undertone,
		RecommendedColors: out.RecommendedColors,
		ColorsToAvoid:     out.ColorsToAvoid,
	}, nil
}
