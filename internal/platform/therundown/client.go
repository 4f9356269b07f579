// Package therundown fetches NFL, NBA and MLB schedules with betting lines
// from TheRundown via RapidAPI.
package therundown

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// Name is the provider name used in routing tables.
const Name = "therundown"

// DefaultBaseURL is the RapidAPI host for TheRundown.
const DefaultBaseURL = "https://therundown-therundown-v1.p.rapidapi.com"

// Config holds the API root and RapidAPI credentials.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements domain.ScheduleProvider for TheRundown.
type Client struct {
	baseURL    string
	host       string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a TheRundown client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return nil, domain.Configurationf("providers.therundown.base_url", base, "invalid URL")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    base,
		host:       u.Host,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

func (c *Client) Name() string { return Name }

// TeamEvents returns scheduled games starting inside window. Lines come from
// the first of window.AffiliateIDs that quotes the game.
func (c *Client) TeamEvents(ctx context.Context, sport domain.Sport, window domain.EventWindow) ([]domain.TeamEvent, error) {
	sportID, ok := sportIDs[sport]
	if !ok {
		return nil, domain.Configurationf("sport", string(sport), "not supported by %s", Name)
	}
	if c.apiKey == "" {
		return nil, domain.Configurationf("providers.therundown.api_key", "", "no API key configured")
	}

	seen := make(map[string]struct{})
	var events []domain.TeamEvent
	for _, day := range days(window) {
		var resp EventsResponse
		path := fmt.Sprintf("/sports/%d/events/%s", sportID, day)
		if err := c.getJSON(ctx, path, &resp); err != nil {
			return nil, fmt.Errorf("therundown: %s events %s: %w", sport, day, err)
		}
		for _, e := range resp.Events {
			if _, dup := seen[e.EventID]; dup {
				continue
			}
			seen[e.EventID] = struct{}{}
			if e.Score.EventStatus != StatusScheduled {
				continue
			}
			ev, err := e.ToDomain(window.AffiliateIDs)
			if err != nil {
				c.logger.WarnContext(ctx, "therundown: skip event", slog.String("error", err.Error()))
				continue
			}
			if !window.Contains(time.UnixMilli(ev.StartTime)) {
				continue
			}
			events = append(events, ev)
		}
	}

	c.logger.DebugContext(ctx, "therundown: team events",
		slog.String("sport", string(sport)),
		slog.Int("count", len(events)),
	)
	return events, nil
}

// FighterEvents is not offered by TheRundown.
func (c *Client) FighterEvents(_ context.Context, sport domain.Sport, _ domain.EventWindow) ([]domain.FighterEvent, error) {
	return nil, domain.Configurationf("sport", string(sport), "fighter events not supported by %s", Name)
}

// days lists the UTC calendar dates the window touches.
func days(w domain.EventWindow) []string {
	from := w.From.UTC().Truncate(24 * time.Hour)
	to := w.To.UTC()
	var out []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(time.DateOnly))
	}
	return out
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("include", "scores")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-rapidapi-key", c.apiKey)
	req.Header.Set("x-rapidapi-host", c.host)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", domain.ErrUnauthorized, body)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", domain.ErrRateLimited, body)
		default:
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
		}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ domain.ScheduleProvider = (*Client)(nil)
