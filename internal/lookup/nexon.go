package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bossweek/internal/cache"
	"bossweek/internal/core"
)

const (
	DefaultBaseURL = "https://open.api.nexon.com/maplestory/v1"
	DefaultTimeout = 5 * time.Second

	combatPowerStat = "전투력"
)

// NexonClient talks to the MapleStory Open API.
type NexonClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	ocids      *cache.LRUCache[string]
	retryDelay time.Duration
	log        *slog.Logger
}

type NexonOption func(*NexonClient)

func WithBaseURL(u string) NexonOption {
	return func(c *NexonClient) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(d time.Duration) NexonOption {
	return func(c *NexonClient) { c.httpClient.Timeout = d }
}

func WithRetryDelay(d time.Duration) NexonOption {
	return func(c *NexonClient) { c.retryDelay = d }
}

// WithIDCache shares a name to ocid cache.
func WithIDCache(ocids *cache.LRUCache[string]) NexonOption {
	return func(c *NexonClient) { c.ocids = ocids }
}

func NewNexonClient(apiKey string, logger *slog.Logger, opts ...NexonOption) *NexonClient {
	c := &NexonClient{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		ocids:      cache.NewLRUCache[string](512, 24*time.Hour),
		retryDelay: 500 * time.Millisecond,
		log:        logger.With("adapter", "nexon"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IDCache exposes the ocid cache so it can be registered for cleanup.
func (c *NexonClient) IDCache() *cache.LRUCache[string] { return c.ocids }

// Lookup resolves name to an ocid, then reads its basic info and combat
// power. Missing basic info fails the lookup; a missing stat only leaves
// Power unset.
func (c *NexonClient) Lookup(ctx context.Context, name string) (core.Profile, error) {
	ocid, err := c.ocid(ctx, name)
	if err != nil {
		return core.Profile{}, err
	}

	var basic basicResponse
	if err := c.get(ctx, "character/basic", url.Values{"ocid": {ocid}}, &basic); err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			// A stale cached ocid resolves to nothing; forget it.
			c.ocids.Delete(name)
		}
		return core.Profile{}, fmt.Errorf("nexon: basic info: %w", err)
	}
	if basic.CharacterLevel == nil && basic.CharacterClass == "" {
		return core.Profile{}, fmt.Errorf("nexon: basic info for %q: %w", name, ErrIncomplete)
	}

	p := core.Profile{OCID: core.Ptr(ocid), Level: basic.CharacterLevel}
	if basic.CharacterClass != "" {
		p.Job = core.Ptr(basic.CharacterClass)
	}
	if basic.CharacterImage != "" {
		p.ImageURL = core.Ptr(basic.CharacterImage)
	}

	var stat statResponse
	if err := c.get(ctx, "character/stat", url.Values{"ocid": {ocid}}, &stat); err != nil {
		c.log.WarnContext(ctx, "nexon stat lookup failed", slog.String("name", name), slog.String("error", err.Error()))
	} else if power, ok := combatPower(stat); ok {
		p.Power = core.Ptr(power)
	}

	c.log.DebugContext(ctx, "nexon profile resolved", slog.String("name", name), slog.String("ocid", ocid))
	return p, nil
}

func (c *NexonClient) ocid(ctx context.Context, name string) (string, error) {
	if id, ok := c.ocids.Get(name); ok {
		return id, nil
	}
	var res idResponse
	if err := c.get(ctx, "id", url.Values{"character_name": {name}}, &res); err != nil {
		return "", fmt.Errorf("nexon: resolve id: %w", err)
	}
	if res.OCID == "" {
		return "", fmt.Errorf("nexon: resolve id for %q: %w", name, ErrProfileNotFound)
	}
	c.ocids.Set(name, res.OCID)
	return res.OCID, nil
}

func combatPower(s statResponse) (int64, bool) {
	for _, st := range s.FinalStat {
		if st.StatName != combatPowerStat {
			continue
		}
		v, err := strconv.ParseInt(strings.TrimSpace(st.StatValue), 10, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

func (c *NexonClient) get(ctx context.Context, endpoint string, params url.Values, dst any) error {
	reqURL := c.baseURL + "/" + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-nxopen-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.doWithRetry(ctx, req, endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return ErrProfileNotFound
	case resp.StatusCode == http.StatusBadRequest:
		// The API answers 400 for unknown names and malformed ocids.
		var e errorResponse
		_ = json.Unmarshal(body, &e)
		return fmt.Errorf("%w: %s", ErrProfileNotFound, e.Error.Message)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// doWithRetry retries once on 5xx or network errors.
func (c *NexonClient) doWithRetry(ctx context.Context, req *http.Request, endpoint string) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)

	shouldRetry := err != nil || (resp != nil && resp.StatusCode >= 500)
	if !shouldRetry || ctx.Err() != nil {
		return resp, err
	}

	reason := "network error"
	if err == nil && resp != nil {
		reason = fmt.Sprintf("status %d", resp.StatusCode)
	}
	c.log.WarnContext(ctx, "nexon retry", slog.String("endpoint", endpoint), slog.String("reason", reason))

	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.retryDelay):
	}
	return c.httpClient.Do(req)
}
