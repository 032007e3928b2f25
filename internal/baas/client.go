// Package baas holds the HTTP core shared by the Supabase auth, REST and
// storage clients.
package baas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/and161185/student-portal/internal/errs"
)

// DefaultBucket is the storage bucket attachments go to.
const DefaultBucket = "files"

// Config configures access to a Supabase project.
type Config struct {
	URL        string // project base URL, e.g. https://xyz.supabase.co
	APIKey     string // public (anon) key
	Bucket     string // storage bucket, DefaultBucket when empty
	HTTPClient *http.Client
}

// Configured reports whether both the URL and the API key are set.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.APIKey) != ""
}

// Client performs authenticated calls against the project.
type Client struct {
	base   string
	apiKey string
	bucket string
	http   *http.Client
	ok     bool
}

// New builds a client. An unconfigured client is valid; all its calls fail with errs.ErrNotConfigured.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &Client{
		base:   strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		bucket: bucket,
		http:   hc,
		ok:     cfg.Configured(),
	}
}

// Configured reports whether calls can reach the project.
func (c *Client) Configured() bool { return c.ok }

// BaseURL returns the project URL without a trailing slash.
func (c *Client) BaseURL() string { return c.base }

// Bucket returns the storage bucket name.
func (c *Client) Bucket() string { return c.bucket }

// Request describes one call. Path is relative to the project URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
	Token  string // bearer token; the API key is used when empty
}

// Response is a successful (2xx) reply.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// APIError is a non-2xx reply.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("baas: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("baas: %d: %s", e.Status, e.Message)
}

// Unwrap maps well-known replies onto errs sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.Code == "23505" || e.Code == "409" || e.Code == "user_already_exists" || e.Code == "email_exists" ||
		e.Status == http.StatusConflict:
		return errs.ErrAlreadyExists
	case e.Code == "PGRST116" || e.Status == http.StatusNotFound || e.Status == http.StatusNotAcceptable:
		return errs.ErrNotFound
	case e.Code == "invalid_credentials" || e.Code == "invalid_grant" ||
		e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return errs.ErrUnauthorized
	case e.Status == http.StatusTooManyRequests:
		return errs.ErrRateLimited
	}
	return nil
}

// Do executes r and returns the reply, or an *APIError for non-2xx statuses.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	if !c.ok {
		return nil, errs.ErrNotConfigured
	}
	u := c.base + "/" + strings.TrimLeft(r.Path, "/")
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, u, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Content-Type") == "" && r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set("apikey", c.apiKey)
	token := r.Token
	if token == "" {
		token = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp.StatusCode, raw)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

// DoJSON marshals in (if non-nil) as the body and unmarshals the reply into out (if non-nil).
func (c *Client) DoJSON(ctx context.Context, r Request, in, out any) error {
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		r.Body = b
	}
	resp, err := c.Do(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Body, out)
}

// Ping checks that the auth service of the project answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/auth/v1/health"})
	return err
}

// decodeError extracts a message from the various error shapes used by
// GoTrue, PostgREST and Storage.
func decodeError(status int, raw []byte) *APIError {
	e := &APIError{Status: status}
	if !gjson.ValidBytes(raw) {
		e.Message = strings.TrimSpace(string(raw))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}
	res := gjson.GetManyBytes(raw, "msg", "error_description", "message", "error")
	for _, r := range res {
		if r.Exists() && r.String() != "" {
			e.Message = r.String()
			break
		}
	}
	for _, path := range []string{"error_code", "code", "statusCode"} {
		if r := gjson.GetBytes(raw, path); r.Exists() && r.Type == gjson.String {
			e.Code = r.String()
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
