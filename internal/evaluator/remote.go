package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
)

// Remote calls an evaluator service over HTTP
type Remote struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// RemoteConfig holds configuration for the remote evaluator
type RemoteConfig struct {
	BaseURL string // default: http://localhost:8090
	APIKey  string
	Timeout time.Duration
}

// NewRemote creates a new remote evaluator client
func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8090"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Remote{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: newEvaluatorHTTPClient(cfg.Timeout),
	}
}

// newEvaluatorHTTPClient creates an HTTP client for short evaluation calls
func newEvaluatorHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   20,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

type remoteRequest struct {
	Expression string                  `json:"expression"`
	Domain     domain.ExpressionDomain `json:"domain"`
	Bindings   Bindings                `json:"bindings"`
}

type remoteResponse struct {
	Value *Value `json:"value"`
	Error string `json:"error,omitempty"`
}

// StatusError is returned for non-2xx responses of the evaluator service
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("evaluator error (status %d): %s", e.StatusCode, e.Body)
}

// Evaluate posts the expression to the service. Expressions rejected by the
// service wrap domain.ErrExpressionEvaluation; transport failures and 5xx
// responses do not, so that they can be retried.
func (r *Remote) Evaluate(ctx context.Context, expr domain.Expression, b Bindings) (Value, error) {
	body, err := json.Marshal(remoteRequest{
		Expression: expr.Code,
		Domain:     expr.Dialect(),
		Bindings:   b,
	})
	if err != nil {
		return Value{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/evaluate", bytes.NewReader(body))
	if err != nil {
		return Value{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return Value{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		var out remoteResponse
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return Value{}, fmt.Errorf("%w: %q: %s", domain.ErrExpressionEvaluation, expr.Code, out.Error)
	case resp.StatusCode != http.StatusOK:
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Value{}, &StatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Value{}, fmt.Errorf("decode response: %w", err)
	}
	if out.Value == nil {
		return Value{}, fmt.Errorf("%w: %q: %s", domain.ErrExpressionEvaluation, expr.Code, out.Error)
	}
	return *out.Value, nil
}
