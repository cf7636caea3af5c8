package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cradle5/cradlesync/internal/client/models"
	"github.com/cradle5/cradlesync/internal/common"
	"github.com/cradle5/cradlesync/internal/logging"
	"github.com/cradle5/cradlesync/internal/netx"
	"github.com/golang-jwt/jwt/v5"
)

const maxBodySize = 1 << 20

// refreshLeeway is how long before expiry an access token is renewed.
const refreshLeeway = 30 * time.Second

// RetryPolicy bounds the backoff applied to idempotent GETs.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  30 * time.Second,
		MaxRetries:      5,
	}
}

type Options struct {
	Timeout time.Duration
	Retry   RetryPolicy
	Logger  logging.Logger
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

type RESTClient struct {
	base   *url.URL
	http   *http.Client
	retry  RetryPolicy
	logger logging.Logger
	now    func() time.Time

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

var _ Client = (*RESTClient)(nil)

func NewRESTClient(baseURL string, opts Options) (*RESTClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("bad server url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("bad server url %q: scheme must be http or https", baseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = netx.NewHTTPClient(timeout)
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	return &RESTClient{base: u, http: hc, retry: opts.Retry, logger: opts.Logger, now: time.Now}, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (c *RESTClient) tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *RESTClient) setTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = access
	c.refreshToken = refresh
}

func (c *RESTClient) HasSession() bool {
	a, _ := c.tokens()
	return a != ""
}

func (c *RESTClient) Close() error {
	c.setTokens("", "")
	c.http.CloseIdleConnections()
	return nil
}

func (c *RESTClient) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, http.MethodPost, c.resolve("/api/auth/token"), body, nil, "")
	if err != nil {
		return err
	}
	defer drain(resp)

	if err := c.mapStatus(resp); err != nil {
		return err
	}

	var tr tokenResponse
	if err := decodeJSON(resp, &tr); err != nil {
		return err
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", ErrUnauthorized)
	}
	c.setTokens(tr.AccessToken, tr.RefreshToken)
	return nil
}

// refresh renews the token pair unless another caller already replaced
// stale while we waited for the lock.
func (c *RESTClient) refresh(ctx context.Context, stale string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != stale {
		return nil
	}
	if c.refreshToken == "" {
		return ErrUnauthorized
	}

	body, err := json.Marshal(map[string]string{"refresh_token": c.refreshToken})
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, http.MethodPost, c.resolve("/api/auth/refresh"), body, nil, "")
	if err != nil {
		return err
	}
	defer drain(resp)

	if err := c.mapStatus(resp); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			c.accessToken, c.refreshToken = "", ""
		}
		return err
	}

	var tr tokenResponse
	if err := decodeJSON(resp, &tr); err != nil {
		return err
	}
	c.accessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		c.refreshToken = tr.RefreshToken
	}
	c.logger.Debug(ctx, "access token refreshed")
	return nil
}

// expiresSoon inspects the exp claim without verifying the signature; the
// server remains the authority, this only avoids a wasted round trip.
func (c *RESTClient) expiresSoon(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return c.now().Add(refreshLeeway).After(claims.ExpiresAt.Time)
}

func (c *RESTClient) resolve(p string) string {
	return c.base.ResolveReference(&url.URL{Path: p}).String()
}

func (c *RESTClient) resolveLocation(location string) (string, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("bad location %q: %w", location, err)
	}
	return c.base.ResolveReference(ref).String(), nil
}

func (c *RESTClient) send(ctx context.Context, method, target string, body []byte, hdr http.Header, token string) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, err
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, mapTransport(ctx, err)
	}
	return resp, nil
}

// do sends an authenticated request, refreshing the token proactively when
// it is about to expire and once more if the server answers 401.
func (c *RESTClient) do(ctx context.Context, method, target string, body []byte, hdr http.Header) (*http.Response, error) {
	access, _ := c.tokens()
	if access == "" {
		return nil, ErrUnauthorized
	}
	if c.expiresSoon(access) {
		if err := c.refresh(ctx, access); err != nil {
			return nil, err
		}
		access, _ = c.tokens()
	}

	resp, err := c.send(ctx, method, target, body, hdr, access)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	if err := c.refresh(ctx, access); err != nil {
		return nil, err
	}
	access, _ = c.tokens()
	return c.send(ctx, method, target, body, hdr, access)
}

func (c *RESTClient) Ping(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodGet, c.resolve("/api/ping"), nil, nil, "")
	if err != nil {
		if errors.Is(err, ErrUnavailable) || ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ping status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *RESTClient) PostForm(ctx context.Context, formID int64, sub FormSubmission, idempotencyKey string) (*PostResult, error) {
	if sub.Controls == nil {
		sub.Controls = map[string]any{}
	}
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}

	hdr := http.Header{}
	if idempotencyKey != "" {
		hdr.Set(common.IdempotencyKeyHeaderName, idempotencyKey)
	}

	target := c.resolve("/api/forms/" + strconv.FormatInt(formID, 10) + "/objects")
	resp, err := c.do(ctx, http.MethodPost, target, body, hdr)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if err := c.mapStatus(resp); err != nil {
		return nil, err
	}

	res := &PostResult{Location: resp.Header.Get("Location"), Async: resp.StatusCode == http.StatusAccepted}
	if !res.Async {
		res.ObjectID = ObjectIDFromLocation(res.Location)
	}
	return res, nil
}

// ObjectIDFromLocation extracts N from ".../objects/N". It returns nil for
// any other shape.
func ObjectIDFromLocation(location string) *int64 {
	u, err := url.Parse(location)
	if err != nil {
		return nil
	}
	dir, last := path.Split(strings.TrimSuffix(u.Path, "/"))
	if path.Base(dir) != "objects" {
		return nil
	}
	id, err := strconv.ParseInt(last, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

func (c *RESTClient) GetLocation(ctx context.Context, location string) (*ObjectMeta, error) {
	target, err := c.resolveLocation(location)
	if err != nil {
		return nil, err
	}

	var meta ObjectMeta
	if err := c.getJSON(ctx, target, &meta); err != nil {
		return nil, err
	}
	if meta.ObjectID <= 0 {
		return nil, fmt.Errorf("%w: response without objectId", ErrUnavailable)
	}
	return &meta, nil
}

func (c *RESTClient) GetObject(ctx context.Context, objectID int64) (*ObjectMeta, error) {
	return c.GetLocation(ctx, "/api/objects/"+strconv.FormatInt(objectID, 10))
}

func (c *RESTClient) Enums(ctx context.Context) (map[string][]models.EnumValue, error) {
	var out struct {
		Enums map[string][]models.EnumValue `json:"enums"`
	}
	if err := c.getJSON(ctx, c.resolve("/api/enums"), &out); err != nil {
		return nil, err
	}
	return out.Enums, nil
}

func (c *RESTClient) Lookup(ctx context.Context, name string) ([]models.LookupItem, error) {
	var items []models.LookupItem
	if err := c.getJSON(ctx, c.resolve("/api/lookups/"+url.PathEscape(name)), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// getJSON performs an authenticated GET with bounded exponential backoff.
// Only ErrUnavailable and ErrPending are retried.
func (c *RESTClient) getJSON(ctx context.Context, target string, v any) error {
	op := func() error {
		resp, err := c.do(ctx, http.MethodGet, target, nil, nil)
		if err != nil {
			return classify(err)
		}
		defer drain(resp)

		if resp.StatusCode == http.StatusAccepted {
			return ErrPending
		}
		if err := c.mapStatus(resp); err != nil {
			return classify(err)
		}
		if err := decodeJSON(resp, v); err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry.InitialInterval
	b.MaxInterval = c.retry.MaxInterval
	b.MaxElapsedTime = c.retry.MaxElapsedTime

	var policy backoff.BackOff = b
	if c.retry.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(b, c.retry.MaxRetries)
	}

	notify := func(err error, d time.Duration) {
		c.logger.Debug(ctx, "GET failed, retrying", "url", target, "error", err, "in", d)
	}
	return backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify)
}

func classify(err error) error {
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrPending) {
		return err
	}
	return backoff.Permanent(err)
}

// mapStatus turns a non-2xx response into an error. It is the only place
// HTTP statuses are interpreted.
func (c *RESTClient) mapStatus(resp *http.Response) error {
	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusNotFound:
		return common.ErrNotFound
	case code == http.StatusUnprocessableEntity, code == http.StatusBadRequest:
		var ve ValidationError
		if err := decodeJSON(resp, &ve); err != nil || len(ve.Fields) == 0 {
			if code == http.StatusUnprocessableEntity {
				return &ValidationError{}
			}
			return fmt.Errorf("%w: unexpected status %d", ErrUnavailable, code)
		}
		return &ve
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrUnavailable, code)
	}
}

// mapTransport reports network trouble as ErrUnavailable. Anything else,
// such as a certificate problem, is returned as is and not retried.
func mapTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ctx.Err()
	}
	if netx.IsTransient(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("request failed: %w", err)
}

func decodeJSON(resp *http.Response, v any) error {
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	_ = resp.Body.Close()
}
