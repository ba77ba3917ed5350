// Package executor sends probe requests and records what came back. A
// transport failure is data for the detector, not a reason to stop the
// scan.
package executor

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"

	scanerrors "github.com/PentesterFlow/OpenSQLi/internal/errors"
	"github.com/PentesterFlow/OpenSQLi/internal/logger"
	"github.com/PentesterFlow/OpenSQLi/internal/mutation"
	"github.com/PentesterFlow/OpenSQLi/internal/ratelimit"
)

// DefaultUserAgent is a browser-like agent; plenty of targets answer
// differently to obvious tooling.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// DefaultBodyLimit caps the response excerpt kept per probe.
const DefaultBodyLimit = 8 * 1024

// Policy configures probe execution.
type Policy struct {
	Timeout       time.Duration // per-request timeout
	MaxRetries    int           // retries on transport failure
	RetryBackoff  time.Duration // base of the linear backoff
	ProbeDelay    time.Duration // fixed gap before every probe; zero disables
	BodyLimit     int64         // response excerpt cap in bytes
	UserAgent     string
	Headers       map[string]string // attached verbatim to every probe
	SkipTLSVerify bool
	ProxyURL      string // http://, https:// or socks5:// upstream
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:      10 * time.Second,
		MaxRetries:   2,
		RetryBackoff: 500 * time.Millisecond,
		BodyLimit:    DefaultBodyLimit,
		UserAgent:    DefaultUserAgent,
	}
}

// ProbeResult is the observed outcome of one probe.
type ProbeResult struct {
	Request *mutation.ProbeRequest

	StatusCode  int
	ContentType string
	BodyExcerpt string
	BodyLength  int64 // full body length, not the excerpt length
	Latency     time.Duration

	// TransportError is set when no HTTP response was obtained after
	// retries. StatusCode is zero in that case.
	TransportError *scanerrors.ScanError

	Attempts int
}

// Failed reports whether the probe got no HTTP response.
func (r *ProbeResult) Failed() bool {
	return r.TransportError != nil
}

// RateLimiter paces probe sends. Implementations may additionally expose
// RecordSuccess/RecordError (ratelimit.AdaptiveLimiter does); the executor
// feeds those after every probe so the rate tracks target health.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// outcomeRecorder is the optional feedback side of a RateLimiter.
type outcomeRecorder interface {
	RecordSuccess()
	RecordError()
}

// Executor sends probes through a shared client.
type Executor struct {
	client  *http.Client
	policy  Policy
	limiter RateLimiter
	retrier *scanerrors.Retrier
	health  *scanerrors.HostHealth
	log     *logger.Logger
}

// New creates an executor. limiter may be nil for unlimited.
func New(policy Policy, limiter RateLimiter) (*Executor, error) {
	if policy.Timeout <= 0 {
		policy.Timeout = 10 * time.Second
	}
	if policy.BodyLimit <= 0 {
		policy.BodyLimit = DefaultBodyLimit
	}
	if policy.UserAgent == "" {
		policy.UserAgent = DefaultUserAgent
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          500,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: policy.SkipTLSVerify,
		},
	}

	if err := configureProxy(transport, policy.ProxyURL); err != nil {
		return nil, err
	}

	return &Executor{
		client: &http.Client{
			Transport: transport,
			Timeout:   policy.Timeout,
			// Redirects would hand the payload to a different endpoint
			// and skew latency; classify the first response instead.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		policy:  policy,
		limiter: limiter,
		retrier: scanerrors.NewRetrier(scanerrors.RetryConfig{
			MaxRetries: policy.MaxRetries,
			Delay:      policy.RetryBackoff,
			MaxDelay:   10 * time.Second,
			RetryableTypes: []scanerrors.ErrorType{
				scanerrors.Network,
				scanerrors.Timeout,
				scanerrors.RateLimit,
			},
		}),
		health: scanerrors.NewHostHealth(0),
		log:    logger.Global().WithComponent("executor"),
	}, nil
}

// configureProxy wires an upstream proxy into the transport. socks5 goes
// through x/net/proxy, http(s) through the standard proxy hook.
func configureProxy(transport *http.Transport, proxyURL string) error {
	if proxyURL == "" {
		transport.Proxy = http.ProxyFromEnvironment
		return nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return scanerrors.NewConfigError("invalid proxy URL: " + err.Error())
	}

	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
		return nil
	case "socks5", "socks5h":
		var auth *xproxy.Auth
		if u.User != nil {
			password, _ := u.User.Password()
			auth = &xproxy.Auth{User: u.User.Username(), Password: password}
		}
		dialer, err := xproxy.SOCKS5("tcp", u.Host, auth, xproxy.Direct)
		if err != nil {
			return scanerrors.NewConfigError("socks5 proxy: " + err.Error())
		}
		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(xproxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
		return nil
	default:
		return scanerrors.NewConfigError("unsupported proxy scheme: " + u.Scheme)
	}
}

// Execute sends one probe. It always returns a result; transport failures
// after retries land in TransportError.
func (e *Executor) Execute(ctx context.Context, probe *mutation.ProbeRequest) *ProbeResult {
	result := &ProbeResult{Request: probe}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			result.TransportError = scanerrors.NewCancelledError(probe.URL, "rate_wait")
			return result
		}
	}
	if e.policy.ProbeDelay > 0 {
		if err := ratelimit.Delay(ctx, e.policy.ProbeDelay); err != nil {
			result.TransportError = scanerrors.NewCancelledError(probe.URL, "probe_delay")
			return result
		}
	}

	retryResult := e.retrier.Do(ctx, "probe", probe.URL, func(ctx context.Context) error {
		return e.send(ctx, probe, result)
	})
	result.Attempts = retryResult.Attempts

	if !retryResult.Success {
		result.TransportError = scanerrors.Categorize(retryResult.LastError, probe.URL)
		e.health.RecordFailure()
		e.recordOutcome(false)
		e.log.WithError(result.TransportError).
			Debugf("Probe failed after %d attempts: %s %s", result.Attempts, probe.Method, probe.URL)
		return result
	}

	e.health.RecordSuccess()
	e.recordOutcome(true)
	e.log.ProbeEvent(probe.Method, probe.URL, result.StatusCode, result.Latency)
	return result
}

// recordOutcome feeds the adaptive limiter, when one is in use.
func (e *Executor) recordOutcome(success bool) {
	rec, ok := e.limiter.(outcomeRecorder)
	if !ok {
		return
	}
	if success {
		rec.RecordSuccess()
	} else {
		rec.RecordError()
	}
}

// send performs a single attempt, filling the result on success.
func (e *Executor) send(ctx context.Context, probe *mutation.ProbeRequest, result *ProbeResult) error {
	var body io.Reader
	if len(probe.Body) > 0 {
		body = bytes.NewReader(probe.Body)
	}

	// A cancelled scan lets the in-flight request run to completion; the
	// client timeout still bounds it. The retry loop checks ctx between
	// attempts, so no new attempt starts after cancellation.
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), probe.Method, probe.URL, body)
	if err != nil {
		return scanerrors.New(scanerrors.Mutation, probe.URL, "request_build", err.Error(), err)
	}

	req.Header.Set("User-Agent", e.policy.UserAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	if probe.ContentType != "" {
		req.Header.Set("Content-Type", probe.ContentType)
	}
	for k, v := range e.policy.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range probe.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return scanerrors.Categorize(err, probe.URL)
	}
	defer resp.Body.Close()

	// A 429 is the target throttling us, not an answer worth classifying.
	// Treat it as a retryable transport failure so the backoff kicks in.
	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck
		return scanerrors.NewRateLimitError(probe.URL)
	}

	excerpt, total, err := readExcerpt(resp.Body, e.policy.BodyLimit)
	if err != nil {
		return scanerrors.NewNetworkError(probe.URL, "body_read", err)
	}

	result.StatusCode = resp.StatusCode
	result.ContentType = resp.Header.Get("Content-Type")
	result.BodyExcerpt = excerpt
	result.BodyLength = total
	result.Latency = latency
	result.TransportError = nil
	return nil
}

// readExcerpt reads up to limit bytes and drains the rest to keep the
// connection reusable, returning the excerpt and the full body length.
func readExcerpt(r io.Reader, limit int64) (string, int64, error) {
	excerpt, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return "", 0, err
	}
	rest, err := io.Copy(io.Discard, r)
	if err != nil {
		return "", 0, err
	}
	return string(excerpt), int64(len(excerpt)) + rest, nil
}

// Preflight checks that the target base URL answers at all. Any HTTP
// response counts, including 4xx and 5xx.
func (e *Executor) Preflight(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return scanerrors.NewConfigError("invalid base URL: " + err.Error())
	}
	req.Header.Set("User-Agent", e.policy.UserAgent)
	for k, v := range e.policy.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return scanerrors.Categorize(err, baseURL)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck
	resp.Body.Close()
	return nil
}

// Health exposes the target health tracker.
func (e *Executor) Health() *scanerrors.HostHealth {
	return e.health
}

// Close releases idle connections.
func (e *Executor) Close() {
	e.client.CloseIdleConnections()
}

// IsHTML reports whether a content type is HTML.
func IsHTML(contentType string) bool {
	return strings.Contains(contentType, "text/html")
}

// IsJSON reports whether a content type is JSON.
func IsJSON(contentType string) bool {
	return strings.Contains(contentType, "json")
}
