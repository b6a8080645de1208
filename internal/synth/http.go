package synth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"kalshi-edge/pkg/types"
)

// Default endpoints per hosted backend. local assumes a structured-
// output server on the loopback interface.
var defaultEndpoints = map[string]string{
	"provider-a": "https://api.provider-a.example/v1/structured",
	"provider-b": "https://api.provider-b.example/v1/structured",
	"local":      "http://127.0.0.1:8090/v1/structured",
}

// httpBackend posts the synthesis input to a structured-output HTTP
// endpoint and decodes the analysis from the response body.
type httpBackend struct {
	http        *resty.Client
	costPerCall float64
	logger      *slog.Logger
}

func newHTTPBackend(backend, endpoint, apiKey string, costPerCall float64, logger *slog.Logger) (*httpBackend, error) {
	if endpoint == "" {
		endpoint = defaultEndpoints[backend]
	}
	if endpoint == "" {
		return nil, fmt.Errorf("synth: no endpoint for backend %q", backend)
	}
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(60 * time.Second).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &httpBackend{
		http:        client,
		costPerCall: costPerCall,
		logger:      logger.With("component", "synth", "backend", backend),
	}, nil
}

type synthRequest struct {
	Ticker      string         `json:"ticker"`
	Title       string         `json:"title"`
	MarketProb  float64        `json:"market_probability"`
	CloseTime   string         `json:"close_time,omitempty"`
	Factors     []types.Factor `json:"factors"`
	Citations   []string       `json:"citations"`
	PriorThesis string         `json:"prior_thesis,omitempty"`
}

func (h *httpBackend) Synthesize(ctx context.Context, in Input) (Result, error) {
	req := synthRequest{
		Ticker:      in.Ticker,
		Title:       in.Title,
		MarketProb:  in.MarketProb,
		Factors:     in.Factors,
		Citations:   in.Citations,
		PriorThesis: in.PriorThesis,
	}
	if !in.CloseTime.IsZero() {
		req.CloseTime = in.CloseTime.UTC().Format(time.RFC3339)
	}

	var analysis types.AnalysisResult
	resp, err := h.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&analysis).
		Post("")
	if err != nil {
		return Result{}, fmt.Errorf("synth: request failed: %w", err)
	}
	if resp.IsError() {
		return Result{}, fmt.Errorf("synth: backend returned %d: %s", resp.StatusCode(), resp.String())
	}
	h.logger.Debug("synthesis complete", "ticker", in.Ticker, "status", resp.StatusCode())
	return Result{Analysis: analysis, CostDollars: h.costPerCall}, nil
}

var _ Synthesizer = (*httpBackend)(nil)
