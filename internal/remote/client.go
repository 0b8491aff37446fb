// Package remote delegates operations to the campus that owns the data. Every
// call is a single HTTP round trip to a peer's private API; failures are
// reported as values and never retried here.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-course-api/internal/campus"
	"github.com/noah-isme/campus-course-api/pkg/config"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
	"github.com/noah-isme/campus-course-api/pkg/middleware/requestid"
)

// Call outcomes reported to the Observer.
const (
	OutcomeOK          = "ok"
	OutcomeRemoteError = "remote_error"
	OutcomeUnreachable = "unreachable"
)

// Observer records delegate call metrics.
type Observer interface {
	ObserveRemoteCall(campus, outcome string, duration time.Duration)
}

// Request describes one delegate call. Path is relative to the peer's
// private API prefix.
type Request struct {
	Campus campus.Campus
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
}

// Result is the outcome of a delegate call. Status is zero when the peer
// produced no usable response; Err then describes the transport failure.
type Result struct {
	Status int
	Body   []byte
	Err    string
}

// OK reports whether the peer answered with a 2xx status.
func (r Result) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *appErrors.Error `json:"error"`
}

// Decode unmarshals the data member of the peer's response envelope into dst.
func (r Result) Decode(dst interface{}) error {
	var env envelope
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return fmt.Errorf("decode remote envelope: %w", err)
	}
	if len(env.Data) == 0 {
		return errors.New("remote envelope carries no data")
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("decode remote data: %w", err)
	}
	return nil
}

// AsError translates a failed call into a local error. A peer error whose
// code is known locally maps to that error; everything else is BAD_GATEWAY.
func (r Result) AsError() error {
	if r.Status == 0 {
		return appErrors.Clone(appErrors.ErrBadGateway, r.Err)
	}
	if r.OK() {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(r.Body, &env); err == nil && env.Error != nil {
		if known, ok := appErrors.Lookup(env.Error.Code); ok {
			return appErrors.Clone(known, env.Error.Message)
		}
	}
	return appErrors.Clone(appErrors.ErrBadGateway, fmt.Sprintf("remote campus answered %d", r.Status))
}

// Client sends delegate calls to peer campuses.
type Client struct {
	baseURLs      map[campus.Campus]string
	privatePrefix string
	secret        string
	http          *http.Client
	observer      Observer
	logger        *zap.Logger
}

// NewClient builds a client for the peers configured in cfg.
func NewClient(cfg config.CampusConfig, privatePrefix string, observer Observer, logger *zap.Logger) *Client {
	timeout := cfg.RemoteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	urls := make(map[campus.Campus]string)
	for name, base := range cfg.URLs() {
		urls[campus.Campus(name)] = base
	}
	return &Client{
		baseURLs:      urls,
		privatePrefix: privatePrefix,
		secret:        cfg.APISecret,
		http:          &http.Client{Timeout: timeout},
		observer:      observer,
		logger:        logger,
	}
}

// Call performs one delegate round trip. It never panics and never returns
// a Go error; transport problems are folded into the Result.
func (c *Client) Call(ctx context.Context, req Request) Result {
	start := time.Now()
	result := c.do(ctx, req)

	outcome := OutcomeOK
	switch {
	case result.Status == 0:
		outcome = OutcomeUnreachable
		c.logger.Warn("remote campus unreachable",
			zap.String("campus", string(req.Campus)),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.String("error", result.Err),
		)
	case !result.OK():
		outcome = OutcomeRemoteError
		c.logger.Warn("remote campus returned error",
			zap.String("campus", string(req.Campus)),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("status", result.Status),
		)
	}
	if c.observer != nil {
		c.observer.ObserveRemoteCall(string(req.Campus), outcome, time.Since(start))
	}
	return result
}

func (c *Client) do(ctx context.Context, req Request) Result {
	base, ok := c.baseURLs[req.Campus]
	if !ok {
		return Result{Err: fmt.Sprintf("no address configured for campus %s", req.Campus)}
	}

	target := base + c.privatePrefix + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return Result{Err: fmt.Sprintf("encode request: %v", err)}
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return Result{Err: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secret)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if id := requestid.FromContext(ctx); id != "" {
		httpReq.Header.Set(requestid.HeaderKey, id)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{Err: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Err: fmt.Sprintf("read response: %v", err)}
	}
	return Result{Status: resp.StatusCode, Body: raw}
}
