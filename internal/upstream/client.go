// Package upstream implements the Upstream Client (C2): translates a
// canonical operation name and parameter set into the upstream's
// form-encoded call, parses its JSON envelope, and feeds the TTL cache
// (C1). Grounded on the teacher's resilience package for breaker/retry and
// its config package's env-loading conventions; envelope extraction uses
// PaesslerAG/jsonpath in place of the teacher's unwired JS-sandbox
// dependency (see DESIGN.md).
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/brightline-ops/bookcore/internal/apperrors"
	"github.com/brightline-ops/bookcore/internal/cache"
	"github.com/brightline-ops/bookcore/internal/resilience"
	"github.com/brightline-ops/bookcore/pkg/logger"
)

const defaultTimeout = 10 * time.Second

// CallOpts controls one Call invocation's caching and timeout behavior.
type CallOpts struct {
	UseCache bool
	TTL      time.Duration
	Timeout  time.Duration
}

// Client is the Upstream Client (C2).
type Client struct {
	baseURL    string
	token      string
	session    string
	httpClient *http.Client
	cache      *cache.Cache
	registry   map[string]OperationSpec
	log        *logger.Logger

	breakerCfg resilience.BreakerConfig
	breakerMu  sync.Mutex
	breakers   map[string]*resilience.Breaker
}

// New constructs a Client. cache may be nil to disable caching entirely
// (every call behaves as if use_cache were false).
func New(baseURL, token, session string, breakerCfg resilience.BreakerConfig, c *cache.Cache, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewFromEnv("upstream-client")
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		session:    session,
		httpClient: &http.Client{},
		cache:      c,
		registry:   DefaultRegistry(),
		log:        log,
		breakerCfg: breakerCfg,
		breakers:   make(map[string]*resilience.Breaker),
	}
}

// Call performs operation with params, consulting the cache first when
// opts.UseCache is set, and never returning a transport-level error: every
// failure is a *apperrors.ServiceError. Transport, status, parse and breaker
// failures are tagged "upstream"; an unknown operation is a validation
// error and a normalizer failure is an internal error.
func (c *Client) Call(ctx context.Context, operation string, params map[string]string, opts CallOpts) (interface{}, error) {
	spec, ok := c.registry[operation]
	if !ok {
		return nil, apperrors.InvalidInput("operation", fmt.Sprintf("unknown upstream operation %q", operation))
	}

	ttl := spec.DefaultTTL
	if opts.TTL > 0 {
		ttl = opts.TTL
	}
	timeout := defaultTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	key := cache.Key(operation, params)
	if opts.UseCache && c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			c.log.LogUpstreamCall(operation, true, 0, nil)
			return v, nil
		}
	}

	breaker := c.breakerFor(operation)
	start := time.Now()

	var raw interface{}
	execErr := breaker.Execute(ctx, func() error {
		var callErr error
		raw, callErr = c.doRequest(ctx, spec, params, timeout)
		return callErr
	})
	durationMs := time.Since(start).Milliseconds()

	if execErr != nil {
		if errors.Is(execErr, resilience.ErrBreakerOpen) {
			err := apperrors.Upstream(apperrors.UpstreamBreakerOpen, "circuit breaker open for operation", execErr).
				WithDetails("operation", operation)
			c.log.LogUpstreamCall(operation, false, durationMs, err)
			return nil, err
		}
		c.log.LogUpstreamCall(operation, false, durationMs, execErr)
		return nil, execErr
	}

	value := raw
	if spec.Normalize != nil {
		normalized, dropped, err := spec.Normalize(raw)
		if err != nil {
			return nil, apperrors.Internal("normalize upstream envelope", err).WithDetails("operation", operation)
		}
		if dropped > 0 {
			c.log.WithFields(nil).
				WithField("operation", operation).
				WithField("dropped", dropped).
				Warn("normalization dropped records missing identity fields")
		}
		value = normalized
	}

	if opts.UseCache && c.cache != nil {
		c.cache.Put(key, value, ttl)
	}

	c.log.LogUpstreamCall(operation, false, durationMs, nil)
	return value, nil
}

// doRequest performs the actual form-encoded POST and envelope extraction.
// It never returns a bare error — only *apperrors.ServiceError, tagged
// "upstream" for every failure except a request that cannot be built,
// which is an internal error (error taxonomy in spec §7).
func (c *Client) doRequest(ctx context.Context, spec OperationSpec, params map[string]string, timeout time.Duration) (interface{}, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	form := url.Values{}
	for k, v := range spec.DefaultParams {
		form.Set(k, v)
	}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("operation", spec.Name)
	form.Set("token", c.token)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+spec.Path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperrors.Internal("build upstream request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if c.session != "" {
		req.Header.Set("Cookie", c.session)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, apperrors.Upstream(apperrors.UpstreamTimeout, "upstream call timed out", err).WithDetails("operation", spec.Name)
		}
		return nil, apperrors.Upstream(apperrors.UpstreamHTTP, "upstream request failed", err).WithDetails("operation", spec.Name)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Upstream(apperrors.UpstreamHTTP, "failed to read upstream response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.Upstream(apperrors.UpstreamHTTP, "upstream returned a non-2xx status", fmt.Errorf("status %d", resp.StatusCode)).
			WithDetails("status", resp.StatusCode).
			WithDetails("body", string(body))
	}

	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperrors.Upstream(apperrors.UpstreamParse, "failed to parse upstream response as JSON", err)
	}

	envelope, err := extractEnvelope(spec.EnvelopeFields, parsed)
	if err != nil {
		return nil, apperrors.Upstream(apperrors.UpstreamParse, "failed to extract envelope field", err).
			WithDetails("fields", spec.EnvelopeFields)
	}
	return envelope, nil
}

// extractEnvelope pulls the registry's envelope path(s) out of the parsed
// JSON body via jsonpath. Each field is a dot path, so a nested envelope
// like "INFO.LIST" resolves in one expression. A single field is returned
// unwrapped; multiple fields are combined into a map keyed by field name
// (e.g. the "GENERAL"+"EXTRA" envelope).
func extractEnvelope(fields []string, parsed interface{}) (interface{}, error) {
	if len(fields) == 1 {
		return jsonpath.Get(toJSONPath(fields[0]), parsed)
	}
	out := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		v, err := jsonpath.Get(toJSONPath(field), parsed)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		out[field] = v
	}
	return out, nil
}

func toJSONPath(field string) string {
	return "$." + field
}

func (c *Client) breakerFor(operation string) *resilience.Breaker {
	c.breakerMu.Lock()
	defer c.breakerMu.Unlock()
	b, ok := c.breakers[operation]
	if !ok {
		b = resilience.NewBreaker(c.breakerCfg)
		c.breakers[operation] = b
	}
	return b
}

// BreakerStates returns each known operation's current breaker state, for
// the health surface's "upstream-breaker state per operation" check.
func (c *Client) BreakerStates() map[string]resilience.State {
	c.breakerMu.Lock()
	defer c.breakerMu.Unlock()
	out := make(map[string]resilience.State, len(c.breakers))
	for op, b := range c.breakers {
		out[op] = b.State()
	}
	return out
}
