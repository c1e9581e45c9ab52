// Package validator calls the external confidence-scoring agent for
// pending proposals. The call is synchronous with an explicit timeout;
// availability failures surface as ErrUnavailable and the caller decides
// how to degrade.
package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/weftlabs/substrate/pkg/contracts"
)

const (
	defaultTimeout = 5 * time.Second
	defaultPath    = "/v1/validate"
)

// ErrUnavailable marks a validator call that timed out or failed before
// producing a report. It is never treated as a successful score.
var ErrUnavailable = errors.New("validator unavailable")

// Config configures the validator client.
type Config struct {
	// URL is the base URL of the validator agent.
	URL string `json:"url"`
	// Path overrides the default scoring endpoint path.
	Path string `json:"path,omitempty"`
	// Timeout bounds the HTTP call. Default: 5s.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Client scores proposals against a remote validator agent.
type Client struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// NewClient creates a validator client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type scoreRequest struct {
	ProposalID string                `json:"proposal_id"`
	BasketID   string                `json:"basket_id"`
	Kind       string                `json:"proposal_kind"`
	Origin     string                `json:"origin"`
	Ops        []contracts.Operation `json:"ops"`
}

type scoreResponse struct {
	Confidence    float64 `json:"confidence"`
	ImpactSummary string  `json:"impact_summary"`
}

// Validate scores p and returns the resulting report. Any transport
// failure, timeout, or non-200 response is reported as ErrUnavailable.
func (c *Client) Validate(ctx context.Context, p *contracts.Proposal) (*contracts.ValidatorReport, error) {
	payload, err := json.Marshal(scoreRequest{
		ProposalID: p.ID,
		BasketID:   p.BasketID,
		Kind:       string(p.Kind),
		Origin:     string(p.Origin),
		Ops:        p.Ops,
	})
	if err != nil {
		return nil, fmt.Errorf("encode score request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := c.config.URL + c.config.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, bytes.TrimSpace(body))
	}

	var score scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&score); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if score.Confidence < 0 || score.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range [0,1]", score.Confidence)
	}
	return &contracts.ValidatorReport{
		Confidence:    score.Confidence,
		ImpactSummary: score.ImpactSummary,
	}, nil
}

// Score applies the degradation policy to a validation attempt. When the
// validator is unavailable and required is false, the request proceeds
// without a report; when required is true the failure propagates so the
// caller fails closed.
func (c *Client) Score(ctx context.Context, p *contracts.Proposal, required bool) (*contracts.ValidatorReport, error) {
	report, err := c.Validate(ctx, p)
	if err == nil {
		return report, nil
	}
	if errors.Is(err, ErrUnavailable) && !required {
		c.logger.Warn("validator unavailable, proceeding without report",
			"proposal_id", p.ID, "error", err)
		return nil, nil
	}
	return nil, err
}
