package therundown

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// StatusScheduled is the event status markets are created for.
const StatusScheduled = "STATUS_SCHEDULED"

// missingLine is the sentinel TheRundown sends for an unpublished line.
const missingLine = 0.0001

// sportIDs maps sports to TheRundown's numeric sport ids.
var sportIDs = map[domain.Sport]int{
	domain.SportNFL: 2,
	domain.SportMLB: 3,
	domain.SportNBA: 4,
}

// EventsResponse is the body of the events-by-date endpoint.
type EventsResponse struct {
	Events []Event `json:"events"`
}

// Event is one game.
type Event struct {
	EventID   string          `json:"event_id"`
	EventDate string          `json:"event_date"`
	Score     Score           `json:"score"`
	Teams     []Team          `json:"teams_normalized"`
	Lines     map[string]Line `json:"lines"`
}

// Score carries the event status.
type Score struct {
	EventStatus string `json:"event_status"`
}

// Team is one side of a game.
type Team struct {
	TeamID int64  `json:"team_id"`
	Name   string `json:"name"`
	Mascot string `json:"mascot"`
	IsAway bool   `json:"is_away"`
	IsHome bool   `json:"is_home"`
}

// FullName joins the team's location and mascot.
func (t Team) FullName() string {
	return strings.TrimSpace(t.Name + " " + t.Mascot)
}

// Line is one affiliate's odds for a game.
type Line struct {
	Affiliate Affiliate `json:"affiliate"`
	Moneyline Moneyline `json:"moneyline"`
	Spread    Spread    `json:"spread"`
	Total     Total     `json:"total"`
}

// Affiliate identifies the sportsbook behind a line.
type Affiliate struct {
	AffiliateID int    `json:"affiliate_id"`
	Name        string `json:"affiliate_name"`
}

type Moneyline struct {
	MoneylineAway float64 `json:"moneyline_away"`
	MoneylineHome float64 `json:"moneyline_home"`
}

type Spread struct {
	PointSpreadAway float64 `json:"point_spread_away"`
	PointSpreadHome float64 `json:"point_spread_home"`
}

type Total struct {
	TotalOver  float64 `json:"total_over"`
	TotalUnder float64 `json:"total_under"`
}

// lineValue maps the missing-line sentinel to nil.
func lineValue(v float64) *float64 {
	if v == missingLine || v == 0 {
		return nil
	}
	return &v
}

// selectLine picks the first affiliate in preferred that has a line for the
// event, falling back to the lowest affiliate id present.
func (e Event) selectLine(preferred []int) (Line, bool) {
	if len(e.Lines) == 0 {
		return Line{}, false
	}
	for _, id := range preferred {
		if l, ok := e.Lines[strconv.Itoa(id)]; ok {
			return l, true
		}
	}
	keys := make([]int, 0, len(e.Lines))
	for k := range e.Lines {
		if id, err := strconv.Atoi(k); err == nil {
			keys = append(keys, id)
		}
	}
	if len(keys) == 0 {
		return Line{}, false
	}
	sort.Ints(keys)
	return e.Lines[strconv.Itoa(keys[0])], true
}

// ToDomain converts the event using the preferred affiliates for its lines.
func (e Event) ToDomain(preferred []int) (domain.TeamEvent, error) {
	id, ok := new(big.Int).SetString(strings.TrimPrefix(e.EventID, "0x"), 16)
	if !ok {
		return domain.TeamEvent{}, fmt.Errorf("event id %q is not hex", e.EventID)
	}
	start, err := time.Parse(time.RFC3339, e.EventDate)
	if err != nil {
		return domain.TeamEvent{}, fmt.Errorf("event %s: parse date: %w", e.EventID, err)
	}

	var home, away *Team
	for i := range e.Teams {
		switch {
		case e.Teams[i].IsHome:
			home = &e.Teams[i]
		case e.Teams[i].IsAway:
			away = &e.Teams[i]
		}
	}
	if home == nil || away == nil {
		return domain.TeamEvent{}, fmt.Errorf("event %s: missing home or away team", e.EventID)
	}

	ev := domain.TeamEvent{
		ID:           id,
		HomeTeamName: home.FullName(),
		HomeTeamID:   home.TeamID,
		AwayTeamName: away.FullName(),
		AwayTeamID:   away.TeamID,
		StartTime:    start.UnixMilli(),
	}
	if line, ok := e.selectLine(preferred); ok {
		ev.PointSpread = lineValue(line.Spread.PointSpreadHome)
		ev.OverUnder = lineValue(line.Total.TotalOver)
		ev.HomeMoneyline = lineValue(line.Moneyline.MoneylineHome)
		ev.AwayMoneyline = lineValue(line.Moneyline.MoneylineAway)
	}
	return ev, nil
}
