package timecamp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/tcsync/tcetl/internal/config"
)

const (
	defaultMaxAttempts = 5
	defaultRetryBase   = 5 * time.Second

	settingsBatchSize      = 50
	applicationsBatchSize  = 200
	activityDatesBatchSize = 20
)

// Client is an authenticated TimeCamp API client. Requests hitting the
// rate limit are retried with a linearly growing delay; every other
// failure surfaces immediately.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	log         *zap.Logger
	maxAttempts int
	retryBase   time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithRetryBase adjusts the base delay of the 429 backoff.
func WithRetryBase(d time.Duration) Option {
	return func(c *Client) { c.retryBase = d }
}

// NewClient creates an API client for the configured TimeCamp domain,
// authenticated with the account's bearer token.
func NewClient(ctx context.Context, cfg config.TimeCampConfig, log *zap.Logger, opts ...Option) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
	c := &Client{
		baseURL:     fmt.Sprintf("https://%s/third_party/api", cfg.Domain),
		httpClient:  oauth2.NewClient(ctx, ts),
		log:         log.Named("timecamp"),
		maxAttempts: defaultMaxAttempts,
		retryBase:   defaultRetryBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// linearBackOff waits base, 2*base, 3*base and so on between attempts.
type linearBackOff struct {
	base time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.base
}

func (b *linearBackOff) Reset() { b.n = 0 }

// request performs one API call, retrying 429 responses up to the
// attempt budget. Non-2xx responses come back as *APIError.
func (c *Client) request(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	u := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimPrefix(endpoint, "/"))
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	c.log.Debug("api request", zap.String("method", method), zap.String("url", u))

	var body []byte
	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, method, u, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("api request failed: %w", err))
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("reading response body: %w", err))
		}
		c.log.Debug("api response", zap.Int("status", resp.StatusCode))

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			c.log.Warn("rate limited, backing off",
				zap.String("url", u), zap.Int("attempt", attempt))
			return errRateLimited
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			apiErr := &APIError{Method: method, URL: u, StatusCode: resp.StatusCode, Body: string(data)}
			c.log.Error("api error",
				zap.String("method", method), zap.String("url", u),
				zap.Int("status", resp.StatusCode), zap.String("body", apiErr.Body))
			return backoff.Permanent(apiErr)
		}
		body = data
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{base: c.retryBase}, uint64(c.maxAttempts-1)), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		if errors.Is(err, errRateLimited) {
			return nil, fmt.Errorf("%s %s: %w", method, u, ErrRetryBudgetExceeded)
		}
		return nil, err
	}
	return body, nil
}

// TimeEntriesQuery bounds a time entry fetch. From and To are inclusive
// YYYY-MM-DD dates.
type TimeEntriesQuery struct {
	From           string
	To             string
	UserIDs        []string
	IncludeProject bool
	IncludeRates   bool
	OptFields      string
}

// TimeEntries fetches time entries for the query's date range.
func (c *Client) TimeEntries(ctx context.Context, q TimeEntriesQuery) ([]TimeEntry, error) {
	params := url.Values{
		"from":            {q.From},
		"to":              {q.To},
		"format":          {"json"},
		"include_project": {boolParam(q.IncludeProject)},
		"include_rates":   {boolParam(q.IncludeRates)},
	}
	if len(q.UserIDs) > 0 {
		params.Set("user_ids", strings.Join(q.UserIDs, ","))
	}
	if q.OptFields != "" {
		params.Set("opt_fields", q.OptFields)
	}
	body, err := c.request(ctx, http.MethodGet, "entries", params)
	if err != nil {
		return nil, err
	}
	var entries []TimeEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decoding time entries: %w", err)
	}
	c.log.Debug("fetched time entries",
		zap.String("from", q.From), zap.String("to", q.To), zap.Int("count", len(entries)))
	return entries, nil
}

// Users fetches the user roster with the enabled status resolved in
// bulk through the settings endpoint.
func (c *Client) Users(ctx context.Context) ([]APIUser, error) {
	body, err := c.request(ctx, http.MethodGet, "users", nil)
	if err != nil {
		return nil, err
	}
	var users []APIUser
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID.String())
	}
	enabled, err := c.UsersEnabled(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].IsEnabled = enabled[users[i].UserID.String()]
	}
	return users, nil
}

// UserSettings fetches one named setting for the given users, batched
// in chunks of 50 ids. Users without the setting are absent from the
// result.
func (c *Client) UserSettings(ctx context.Context, userIDs []string, name string) (map[string]string, error) {
	out := make(map[string]string)
	for _, batch := range chunkStrings(userIDs, settingsBatchSize) {
		endpoint := fmt.Sprintf("user/%s/setting", strings.Join(batch, ","))
		body, err := c.request(ctx, http.MethodGet, endpoint, url.Values{"name[]": {name}})
		if err != nil {
			return nil, err
		}
		settings, err := decodeSettings(body, name)
		if err != nil {
			return nil, err
		}
		for uid, v := range settings {
			if _, ok := out[uid]; !ok {
				out[uid] = v
			}
		}
	}
	return out, nil
}

// UsersEnabled reports whether each user is enabled, resolved from the
// disabled_user setting. Users without the setting count as enabled.
func (c *Client) UsersEnabled(ctx context.Context, userIDs []string) (map[string]bool, error) {
	values, err := c.UserSettings(ctx, userIDs, "disabled_user")
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		out[id] = values[id] != "1"
	}
	return out, nil
}

// Groups fetches the flat group list.
func (c *Client) Groups(ctx context.Context) ([]Group, error) {
	body, err := c.request(ctx, http.MethodGet, "group", nil)
	if err != nil {
		return nil, err
	}
	var groups []Group
	if err := json.Unmarshal(body, &groups); err != nil {
		return nil, fmt.Errorf("decoding groups: %w", err)
	}
	return groups, nil
}

// GroupUsers fetches the members of one group.
func (c *Client) GroupUsers(ctx context.Context, groupID string) ([]APIUser, error) {
	body, err := c.request(ctx, http.MethodGet, fmt.Sprintf("group/%s/user", groupID), nil)
	if err != nil {
		return nil, err
	}
	var users []APIUser
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("decoding group users: %w", err)
	}
	return users, nil
}

// PeoplePicker fetches the user and group directory used for
// enrichment.
func (c *Client) PeoplePicker(ctx context.Context) (*PeoplePicker, error) {
	body, err := c.request(ctx, http.MethodGet, "people_picker", nil)
	if err != nil {
		return nil, err
	}
	var pp PeoplePicker
	if err := json.Unmarshal(body, &pp); err != nil {
		return nil, fmt.Errorf("decoding people_picker: %w", err)
	}
	c.log.Debug("fetched directory",
		zap.Int("users", len(pp.Users)), zap.Int("groups", pp.Groups.Len()))
	return &pp, nil
}

// ActivitiesQuery bounds a computer activity fetch.
type ActivitiesQuery struct {
	Dates   []string
	Include string
	UserIDs []string
}

// ComputerActivities fetches computer activity day by day, at most 20
// dates per request and one request per user. A failing (dates, user)
// pair is logged and skipped so a single bad user cannot sink the whole
// fetch.
func (c *Client) ComputerActivities(ctx context.Context, q ActivitiesQuery) ([]Activity, error) {
	var all []Activity
	for _, dateChunk := range chunkStrings(q.Dates, activityDatesBatchSize) {
		base := url.Values{}
		for i, d := range dateChunk {
			base.Set(fmt.Sprintf("dates[%d]", i), d)
		}
		if q.Include != "" {
			base.Set("include", q.Include)
		}

		if len(q.UserIDs) == 0 {
			acts, err := c.fetchActivities(ctx, base)
			if err != nil {
				c.log.Warn("skipping failed activity batch",
					zap.Strings("dates", dateChunk), zap.Error(err))
				continue
			}
			all = append(all, acts...)
			continue
		}

		for _, uid := range q.UserIDs {
			params := url.Values{}
			for k, v := range base {
				params[k] = v
			}
			params.Set("user_id", uid)
			acts, err := c.fetchActivities(ctx, params)
			if err != nil {
				c.log.Warn("skipping failed activity batch",
					zap.String("user_id", uid), zap.Strings("dates", dateChunk), zap.Error(err))
				continue
			}
			all = append(all, acts...)
		}
	}
	c.log.Debug("fetched computer activities", zap.Int("count", len(all)))
	return all, nil
}

func (c *Client) fetchActivities(ctx context.Context, params url.Values) ([]Activity, error) {
	body, err := c.request(ctx, http.MethodGet, "activity", params)
	if err != nil {
		return nil, err
	}
	var acts []Activity
	if err := json.Unmarshal(body, &acts); err != nil {
		return nil, fmt.Errorf("decoding activities: %w", err)
	}
	return acts, nil
}

// Applications fetches application metadata by id, batched in chunks of
// 200 ids, merged into one map keyed by application id. A non-empty
// date is forwarded to the endpoint; empty omits the parameter.
func (c *Client) Applications(ctx context.Context, appIDs []string, date string) (map[string]Application, error) {
	out := make(map[string]Application, len(appIDs))
	for _, batch := range chunkStrings(appIDs, applicationsBatchSize) {
		params := url.Values{"application_ids": {strings.Join(batch, ",")}}
		if date != "" {
			params.Set("date", date)
		}
		body, err := c.request(ctx, http.MethodGet, "application", params)
		if err != nil {
			return nil, err
		}
		var apps map[string]Application
		if err := json.Unmarshal(body, &apps); err != nil {
			return nil, fmt.Errorf("decoding applications: %w", err)
		}
		for id, app := range apps {
			out[id] = app
		}
	}
	return out, nil
}

// ApplicationsWithCache resolves application metadata through the file
// cache, fetching only ids the cache does not hold and persisting the
// additions. A cache write failure is logged, not fatal.
func (c *Client) ApplicationsWithCache(ctx context.Context, cache *AppCache, appIDs []string, date string) (map[string]Application, error) {
	out := make(map[string]Application, len(appIDs))
	var missing []string
	for _, id := range appIDs {
		if app, ok := cache.Get(id); ok {
			out[id] = app
		} else {
			missing = append(missing, id)
		}
	}
	c.log.Debug("application cache lookup",
		zap.Int("hits", len(out)), zap.Int("misses", len(missing)))
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.Applications(ctx, missing, date)
	if err != nil {
		return nil, err
	}
	for id, app := range fetched {
		out[id] = app
		cache.Put(id, app)
	}
	if err := cache.Save(); err != nil {
		c.log.Warn("could not persist application cache", zap.Error(err))
	}
	return out, nil
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// chunkStrings splits items into consecutive slices of at most size.
func chunkStrings(items []string, size int) [][]string {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	var chunks [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
