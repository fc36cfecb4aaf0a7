package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"codedojo/internal/catalog"
	"codedojo/internal/telemetry"
)

const (
	pathHealth        = "/api/health"
	pathChallenges    = "/api/challenges"
	pathRunPython     = "/api/run-python"
	pathGenerateHint  = "/api/generate-hint"
	pathGenerateCode  = "/api/generate-code"
	pathExplanation   = "/api/generate-explanation"
	pathRetireExplain = "/api/generate-retire-explanation"

	maxErrorBody = 64 << 10
)

type ClientConfig struct {
	BaseURL string
	// Timeout bounds non-streaming requests. The test stream is bounded
	// only by the caller's context.
	Timeout       time.Duration
	RatePerSecond float64
	Logger        *telemetry.Logger
	Metrics       *telemetry.Metrics
	HTTPClient    *http.Client
}

// Client talks to the challenge backend over JSON and SSE.
type Client struct {
	base    *url.URL
	httpc   *http.Client
	streamc *http.Client
	limiter *rate.Limiter
	log     *telemetry.Logger
	metrics *telemetry.Metrics
}

func NewClient(cfg ClientConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = "http://127.0.0.1:8000"
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("parse base url: unsupported scheme %q", base.Scheme)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: timeout}
	}
	streamc := &http.Client{Transport: httpc.Transport}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Client{
		base:    base,
		httpc:   httpc,
		streamc: streamc,
		limiter: rate.NewLimiter(limit, 4),
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

// RunTests starts a test run and returns the event stream body. The caller
// must close it.
func (c *Client) RunTests(ctx context.Context, code string, cases []catalog.TestCase) (io.ReadCloser, error) {
	const op = "run tests"
	if cases == nil {
		cases = []catalog.TestCase{}
	}
	payload, err := json.Marshal(RunRequest{Code: code, TestCases: cases})
	if err != nil {
		return nil, &Error{Kind: ValidationError, Op: op, Message: "テストケースを送信できませんでした。", Err: err}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: NetworkFailure, Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(pathRunPython), bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: ValidationError, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	start := time.Now()
	resp, err := c.streamc.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(pathRunPython, err, time.Since(start))
		return nil, &Error{Kind: NetworkFailure, Op: op, Message: "テストランナーに接続できませんでした。", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		rerr := remoteError(op, resp)
		c.metrics.ObserveRequest(pathRunPython, rerr, time.Since(start))
		return nil, rerr
	}
	c.metrics.ObserveRequest(pathRunPython, nil, time.Since(start))
	if resp.Body == nil {
		return nil, &Error{Kind: ProtocolError, Op: op, Err: ErrNoBody}
	}
	return resp.Body, nil
}

func (c *Client) GenerateHints(ctx context.Context, in HintRequest) ([]HintCandidate, error) {
	const op = "generate hints"
	var out hintResponse
	if err := c.postJSON(ctx, op, pathGenerateHint, in, &out); err != nil {
		return nil, err
	}
	if msg := firstNonEmpty(out.Error, detailText(out.Detail)); msg != "" {
		return nil, &Error{Kind: RemoteFailure, Op: op, Message: msg}
	}
	return out.Hints, nil
}

func (c *Client) GenerateCode(ctx context.Context, in CodeRequest) (CodeResponse, error) {
	const op = "generate code"
	var out CodeResponse
	if err := c.postJSON(ctx, op, pathGenerateCode, in, &out); err != nil {
		return CodeResponse{}, err
	}
	if strings.TrimSpace(out.Error) != "" {
		return CodeResponse{}, &Error{Kind: RemoteFailure, Op: op, Message: strings.TrimSpace(out.Error)}
	}
	return out, nil
}

func (c *Client) Explain(ctx context.Context, in ExplanationRequest) (Explanation, error) {
	const op = "generate explanation"
	var out Explanation
	if err := c.postJSON(ctx, op, pathExplanation, in, &out); err != nil {
		return Explanation{}, err
	}
	if msg := detailText(out.Detail); msg != "" && out.Reason == "" && out.ExplainDiff == "" {
		return Explanation{}, &Error{Kind: RemoteFailure, Op: op, Message: msg}
	}
	return out, nil
}

func (c *Client) ExplainRetire(ctx context.Context, in ExplanationRequest) (RetireExplanation, error) {
	const op = "generate retire explanation"
	var out RetireExplanation
	if err := c.postJSON(ctx, op, pathRetireExplain, in, &out); err != nil {
		return RetireExplanation{}, err
	}
	return out, nil
}

func (c *Client) List(ctx context.Context) ([]catalog.Challenge, error) {
	var out []catalog.Challenge
	if err := c.getJSON(ctx, "list challenges", pathChallenges, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, id string) (catalog.Challenge, error) {
	var out catalog.Challenge
	err := c.getJSON(ctx, "get challenge", pathChallenges+"/"+url.PathEscape(id), &out)
	if err != nil {
		var be *Error
		if errors.As(err, &be) && be.StatusCode == http.StatusNotFound {
			return catalog.Challenge{}, fmt.Errorf("get challenge %s: %w", id, catalog.ErrNotFound)
		}
		return catalog.Challenge{}, err
	}
	return out, nil
}

func (c *Client) Health(ctx context.Context) error {
	var out map[string]any
	return c.getJSON(ctx, "health", pathHealth, &out)
}

func (c *Client) postJSON(ctx context.Context, op, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return &Error{Kind: ValidationError, Op: op, Err: err}
	}
	return c.do(ctx, op, http.MethodPost, path, payload, out)
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	return c.do(ctx, op, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte, out any) (err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return &Error{Kind: NetworkFailure, Op: op, Err: err}
	}
	start := time.Now()
	defer func() {
		c.metrics.ObserveRequest(routeLabel(path), err, time.Since(start))
		if err != nil {
			c.log.Warn("backend request failed", map[string]any{"op": op, "path": path, "err": err})
		}
	}()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return &Error{Kind: ValidationError, Op: op, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &Error{Kind: NetworkFailure, Op: op, Message: "サーバーに接続できませんでした。", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remoteError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: ProtocolError, Op: op, Message: "サーバーの応答を読み取れませんでした。", Err: err}
	}
	return nil
}

func remoteError(op string, resp *http.Response) *Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	msg := ""
	if json.Unmarshal(raw, &eb) == nil {
		msg = firstNonEmpty(strings.TrimSpace(eb.Error), detailText(eb.Detail))
	}
	return &Error{
		Kind:       RemoteFailure,
		Op:         op,
		Message:    msg,
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("status %d", resp.StatusCode),
	}
}

func routeLabel(path string) string {
	if strings.HasPrefix(path, pathChallenges+"/") {
		return pathChallenges + "/{id}"
	}
	return path
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
