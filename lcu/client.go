// Package lcu fetches asset images from the local League client's game-data
// endpoints and turns them into data URIs for assetcache.
package lcu

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/unkn0wn-root/assetcache/lcu"
	defaultContentType  = "image/png"
	defaultTimeout      = 10 * time.Second
	// icons are tens of KB; anything near this is not an icon
	maxImageBytes = 8 << 20
	// len("data:") + media type + len(";base64,"), with room for long vendor types
	dataURIPrefixMax = 5 + 64 + 8
)

var ErrNoToken = errors.New("lcu: auth token is required")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lcu: GET %s: %d %s", e.Path, e.Code, http.StatusText(e.Code))
}

// Client talks to the League client API at https://127.0.0.1:<port>.
// Safe for concurrent use.
type Client struct {
	base   string
	token  string
	http   *http.Client
	tracer trace.Tracer

	// used to build the default http client
	timeout time.Duration
	rootCAs *x509.CertPool

	maxImage int // raw body cap
}

type Option func(*Client)

// WithHTTPClient replaces the default client; WithTimeout and WithRootCAs are then ignored.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithTimeout bounds each request. Default 10s.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithRootCAs verifies the client's certificate against pool instead of
// skipping verification.
func WithRootCAs(pool *x509.CertPool) Option { return func(c *Client) { c.rootCAs = pool } }

// WithMaxLocatorBytes caps the data URI GetImage returns at n bytes, so every
// locator it produces fits a cache codec bounded by the same n. It lowers the
// raw image cap accordingly; it never raises it above the 8 MiB default.
func WithMaxLocatorBytes(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			return
		}
		// base64 grows 3 bytes to 4; the prefix is at most this long for image types
		c.maxImage = min(maxImageBytes, (n-dataURIPrefixMax)/4*3)
	}
}

// WithTracerProvider sets where request spans go. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(instrumentationName) }
}

// NewClient returns a client for baseURL (scheme://host:port) that
// authenticates as riot:<token>.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	c := &Client{
		base:     strings.TrimRight(baseURL, "/"),
		token:    token,
		timeout:  defaultTimeout,
		maxImage: maxImageBytes,
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		tlsConf := &tls.Config{MinVersion: tls.VersionTLS12}
		if c.rootCAs != nil {
			tlsConf.RootCAs = c.rootCAs
		} else {
			// the client serves a self-signed certificate
			tlsConf.InsecureSkipVerify = true //nolint:gosec
		}
		c.http = &http.Client{
			Timeout:   c.timeout,
			Transport: &http.Transport{TLSClientConfig: tlsConf},
		}
	}
	if c.tracer == nil {
		c.tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	return c, nil
}

// GetImage downloads path and returns it as "data:<content-type>;base64,<...>".
func (c *Client) GetImage(ctx context.Context, path string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "lcu.GetImage", trace.WithAttributes(attribute.String("lcu.path", path)))
	defer span.End()

	resp, err := c.get(ctx, path)
	if err != nil {
		return "", endSpan(span, err)
	}
	defer resp.Body.Close()

	limit := max(c.maxImage, 0)
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(limit)+1))
	if err != nil {
		return "", endSpan(span, fmt.Errorf("lcu: read %s: %w", path, err))
	}
	if len(body) > limit {
		return "", endSpan(span, fmt.Errorf("lcu: %s exceeds %d bytes", path, limit))
	}

	ctype := defaultContentType
	if v := resp.Header.Get("Content-Type"); v != "" {
		if mt, _, err := mime.ParseMediaType(v); err == nil && len(mt) <= dataURIPrefixMax-13 {
			ctype = mt
		}
	}
	span.SetAttributes(attribute.Int("lcu.bytes", len(body)), attribute.String("lcu.content_type", ctype))
	return "data:" + ctype + ";base64," + base64.StdEncoding.EncodeToString(body), nil
}

// getJSON decodes the JSON document at path into v.
func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	ctx, span := c.tracer.Start(ctx, "lcu.GetJSON", trace.WithAttributes(attribute.String("lcu.path", path)))
	defer span.End()

	resp, err := c.get(ctx, path)
	if err != nil {
		return endSpan(span, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return endSpan(span, fmt.Errorf("lcu: decode %s: %w", path, err))
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("lcu: build request: %w", err)
	}
	req.SetBasicAuth("riot", c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lcu: GET %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, &StatusError{Path: path, Code: resp.StatusCode}
	}
	return resp, nil
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
