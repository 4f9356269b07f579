package therundown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

const nbaEvents = `{"events":[
  {"event_id":"1f2a","event_date":"2026-10-18T23:30:00Z","score":{"event_status":"STATUS_SCHEDULED"},
   "teams_normalized":[
     {"team_id":13,"name":"Boston","mascot":"Celtics","is_away":true,"is_home":false},
     {"team_id":20,"name":"New York","mascot":"Knicks","is_away":false,"is_home":true}],
   "lines":{
     "1":{"affiliate":{"affiliate_id":1},"moneyline":{"moneyline_away":-150,"moneyline_home":130},"spread":{"point_spread_away":-3.5,"point_spread_home":3.5},"total":{"total_over":221.5,"total_under":221.5}},
     "3":{"affiliate":{"affiliate_id":3},"moneyline":{"moneyline_away":-155,"moneyline_home":135},"spread":{"point_spread_away":-4,"point_spread_home":4},"total":{"total_over":0.0001,"total_under":0.0001}}}},
  {"event_id":"2b3c","event_date":"2026-10-18T20:00:00Z","score":{"event_status":"STATUS_FINAL"},
   "teams_normalized":[
     {"team_id":1,"name":"A","mascot":"As","is_away":true},
     {"team_id":2,"name":"B","mascot":"Bs","is_home":true}]},
  {"event_id":"3c4d","event_date":"2026-10-30T20:00:00Z","score":{"event_status":"STATUS_SCHEDULED"},
   "teams_normalized":[
     {"team_id":1,"name":"A","mascot":"As","is_away":true},
     {"team_id":2,"name":"B","mascot":"Bs","is_home":true}]}
]}`

func newTestClient(t *testing.T, handler http.HandlerFunc, key string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, APIKey: key}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func testWindow(affiliates ...int) domain.EventWindow {
	return domain.EventWindow{
		From:         time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
		To:           time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		AffiliateIDs: affiliates,
	}
}

func TestTeamEventsQueriesEachDayAndDeduplicates(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if r.Header.Get("x-rapidapi-key") != "rapid-key" {
			t.Errorf("missing api key header")
		}
		if !strings.HasPrefix(r.Host, r.Header.Get("x-rapidapi-host")) {
			t.Errorf("x-rapidapi-host = %q, host %q", r.Header.Get("x-rapidapi-host"), r.Host)
		}
		io.WriteString(w, nbaEvents)
	}, "rapid-key")

	events, err := c.TeamEvents(context.Background(), domain.SportNBA, testWindow(3, 1))
	if err != nil {
		t.Fatalf("TeamEvents: %v", err)
	}

	wantPaths := []string{
		"/sports/4/events/2026-10-17",
		"/sports/4/events/2026-10-18",
		"/sports/4/events/2026-10-19",
	}
	if strings.Join(paths, ",") != strings.Join(wantPaths, ",") {
		t.Errorf("paths = %v, want %v", paths, wantPaths)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	ev := events[0]
	if ev.ID.Int64() != 0x1f2a {
		t.Errorf("id = %s", ev.ID)
	}
	if ev.HomeTeamName != "New York Knicks" || ev.AwayTeamName != "Boston Celtics" {
		t.Errorf("teams = %q vs %q", ev.HomeTeamName, ev.AwayTeamName)
	}
	if ev.StartTime != time.Date(2026, 10, 18, 23, 30, 0, 0, time.UTC).UnixMilli() {
		t.Errorf("start = %d", ev.StartTime)
	}
	// Affiliate 3 is preferred; its total is the missing-line sentinel.
	if ev.PointSpread == nil || *ev.PointSpread != 4 {
		t.Errorf("spread = %v, want 4", ev.PointSpread)
	}
	if ev.OverUnder != nil {
		t.Errorf("total = %v, want nil", *ev.OverUnder)
	}
	if ev.HomeMoneyline == nil || *ev.HomeMoneyline != 135 {
		t.Errorf("home moneyline = %v", ev.HomeMoneyline)
	}
}

func TestSelectLine(t *testing.T) {
	e := Event{Lines: map[string]Line{
		"9": {Affiliate: Affiliate{AffiliateID: 9}},
		"4": {Affiliate: Affiliate{AffiliateID: 4}},
	}}
	tests := []struct {
		name      string
		preferred []int
		want      int
	}{
		{"preferred present", []int{9}, 9},
		{"first preferred wins", []int{2, 9, 4}, 9},
		{"fallback lowest", []int{1, 2}, 4},
		{"no preference", nil, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, ok := e.selectLine(tt.preferred)
			if !ok || l.Affiliate.AffiliateID != tt.want {
				t.Fatalf("selectLine = %d/%v, want %d", l.Affiliate.AffiliateID, ok, tt.want)
			}
		})
	}

	if _, ok := (Event{}).selectLine([]int{1}); ok {
		t.Error("event without lines should select nothing")
	}
}

func TestToDomainRejectsBadEvents(t *testing.T) {
	teams := []Team{{TeamID: 1, IsHome: true}, {TeamID: 2, IsAway: true}}
	tests := []struct {
		name string
		ev   Event
	}{
		{"non hex id", Event{EventID: "xyz", EventDate: "2026-10-18T20:00:00Z", Teams: teams}},
		{"bad date", Event{EventID: "ab", EventDate: "tomorrow", Teams: teams}},
		{"missing away", Event{EventID: "ab", EventDate: "2026-10-18T20:00:00Z", Teams: teams[:1]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.ev.ToDomain(nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestUnsupportedRequests(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	}, "k")

	if _, err := c.TeamEvents(context.Background(), domain.SportMMA, testWindow()); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("mma team events err = %v", err)
	}
	if _, err := c.FighterEvents(context.Background(), domain.SportMMA, testWindow()); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("fighter events err = %v", err)
	}

	noKey := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	}, "")
	if _, err := noKey.TeamEvents(context.Background(), domain.SportNFL, testWindow()); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("missing key err = %v", err)
	}
}

func TestRateLimitedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, "k")

	_, err := c.TeamEvents(context.Background(), domain.SportMLB, testWindow())
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want rate limited", err)
	}
}
