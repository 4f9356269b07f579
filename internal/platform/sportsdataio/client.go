// Package sportsdataio fetches NFL and MMA schedules from SportsDataIO.
package sportsdataio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// Name is the provider name used in routing tables.
const Name = "sportsdataio"

// DefaultBaseURL is the SportsDataIO API root.
const DefaultBaseURL = "https://api.sportsdata.io/v3"

// Config holds the API root and one subscription key per sport.
type Config struct {
	BaseURL string
	Keys    map[domain.Sport]string
	Timeout time.Duration
}

// Client implements domain.ScheduleProvider for SportsDataIO.
type Client struct {
	baseURL    string
	keys       map[domain.Sport]string
	loc        *time.Location
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a SportsDataIO client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("sportsdataio: load location: %w", err)
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    base,
		keys:       cfg.Keys,
		loc:        loc,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

func (c *Client) Name() string { return Name }

// TeamEvents returns scheduled NFL games starting inside window.
func (c *Client) TeamEvents(ctx context.Context, sport domain.Sport, window domain.EventWindow) ([]domain.TeamEvent, error) {
	if sport != domain.SportNFL {
		return nil, domain.Configurationf("sport", string(sport), "not supported by %s", Name)
	}
	key, err := c.key(sport)
	if err != nil {
		return nil, err
	}

	var events []domain.TeamEvent
	for _, season := range seasons(window) {
		var games []TeamSchedule
		path := fmt.Sprintf("/nfl/scores/json/Schedules/%d", season)
		if err := c.getJSON(ctx, path, key, &games); err != nil {
			return nil, fmt.Errorf("sportsdataio: nfl schedule %d: %w", season, err)
		}
		for _, g := range games {
			if g.Status != StatusScheduled || g.Date == nil {
				continue
			}
			ev, err := g.ToDomain(c.loc)
			if err != nil {
				c.logger.WarnContext(ctx, "sportsdataio: skip game", slog.String("error", err.Error()))
				continue
			}
			if !window.Contains(time.UnixMilli(ev.StartTime)) {
				continue
			}
			events = append(events, ev)
		}
	}

	c.logger.DebugContext(ctx, "sportsdataio: team events",
		slog.String("sport", string(sport)),
		slog.Int("count", len(events)),
	)
	return events, nil
}

// FighterEvents returns scheduled UFC bouts on cards starting inside window.
func (c *Client) FighterEvents(ctx context.Context, sport domain.Sport, window domain.EventWindow) ([]domain.FighterEvent, error) {
	if sport != domain.SportMMA {
		return nil, domain.Configurationf("sport", string(sport), "not supported by %s", Name)
	}
	key, err := c.key(sport)
	if err != nil {
		return nil, err
	}

	var fights []domain.FighterEvent
	for _, season := range seasons(window) {
		var cards []MMAEvent
		path := fmt.Sprintf("/mma/scores/json/Schedule/UFC/%d", season)
		if err := c.getJSON(ctx, path, key, &cards); err != nil {
			return nil, fmt.Errorf("sportsdataio: mma schedule %d: %w", season, err)
		}

		for _, card := range cards {
			if card.Status != StatusScheduled {
				continue
			}
			start, err := card.start(c.loc)
			if err != nil || !window.Contains(start) {
				continue
			}

			var detail MMAEvent
			if err := c.getJSON(ctx, "/mma/scores/json/Event/"+strconv.FormatInt(card.EventID, 10), key, &detail); err != nil {
				return nil, fmt.Errorf("sportsdataio: mma event %d: %w", card.EventID, err)
			}
			for _, f := range detail.Fights {
				if f.Status != StatusScheduled || len(f.Fighters) != 2 {
					continue
				}
				a, b := f.Fighters[0], f.Fighters[1]
				fights = append(fights, domain.FighterEvent{
					ID:                big.NewInt(f.FightID),
					FighterAName:      a.FullName(),
					FighterAID:        a.FighterID,
					FighterBName:      b.FullName(),
					FighterBID:        b.FighterID,
					StartTime:         start.UnixMilli(),
					FighterAMoneyline: a.Moneyline,
					FighterBMoneyline: b.Moneyline,
				})
			}
		}
	}

	c.logger.DebugContext(ctx, "sportsdataio: fighter events",
		slog.String("sport", string(sport)),
		slog.Int("count", len(fights)),
	)
	return fights, nil
}

func (c *Client) key(sport domain.Sport) (string, error) {
	k := c.keys[sport]
	if k == "" {
		return "", domain.Configurationf("providers.sportsdataio", string(sport), "no API key configured")
	}
	return k, nil
}

// seasons lists the calendar years the window touches.
func seasons(w domain.EventWindow) []int {
	from, to := w.From.Year(), w.To.Year()
	out := make([]int, 0, to-from+1)
	for y := from; y <= to; y++ {
		out = append(out, y)
	}
	return out
}

func (c *Client) getJSON(ctx context.Context, path, key string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, body)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, body)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, body)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, body)
	}
}

var _ domain.ScheduleProvider = (*Client)(nil)
