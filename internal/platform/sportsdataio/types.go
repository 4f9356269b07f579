package sportsdataio

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// StatusScheduled is the only game or fight status markets are created for.
const StatusScheduled = "Scheduled"

// apiTimeLayout is SportsDataIO's timestamp format. Values carry no offset
// and are US-Eastern wall clock.
const apiTimeLayout = "2006-01-02T15:04:05"

// TeamSchedule is one entry of the NFL Schedules endpoint.
type TeamSchedule struct {
	Date              *string  `json:"Date"`
	GameID            int64    `json:"GameID"`
	GlobalGameID      int64    `json:"GlobalGameID"`
	AwayTeamName      string   `json:"AwayTeamName"`
	AwayTeamID        int64    `json:"AwayTeamID"`
	HomeTeamName      string   `json:"HomeTeamName"`
	HomeTeamID        int64    `json:"HomeTeamID"`
	Status            string   `json:"Status"`
	PointSpread       *float64 `json:"PointSpread"`
	AwayTeamMoneyLine *float64 `json:"AwayTeamMoneyLine"`
	HomeTeamMoneyLine *float64 `json:"HomeTeamMoneyLine"`
	OverUnder         *float64 `json:"OverUnder"`
}

// ToDomain converts the schedule entry using loc for the start time.
func (s TeamSchedule) ToDomain(loc *time.Location) (domain.TeamEvent, error) {
	if s.Date == nil {
		return domain.TeamEvent{}, fmt.Errorf("game %d has no date", s.GameID)
	}
	start, err := time.ParseInLocation(apiTimeLayout, *s.Date, loc)
	if err != nil {
		return domain.TeamEvent{}, fmt.Errorf("game %d: parse date: %w", s.GameID, err)
	}
	return domain.TeamEvent{
		ID:            big.NewInt(s.GameID),
		HomeTeamName:  s.HomeTeamName,
		HomeTeamID:    s.HomeTeamID,
		AwayTeamName:  s.AwayTeamName,
		AwayTeamID:    s.AwayTeamID,
		StartTime:     start.UnixMilli(),
		PointSpread:   s.PointSpread,
		OverUnder:     s.OverUnder,
		HomeMoneyline: s.HomeTeamMoneyLine,
		AwayMoneyline: s.AwayTeamMoneyLine,
	}, nil
}

// MMAEvent is a card from the MMA schedule and event endpoints.
type MMAEvent struct {
	EventID   int64   `json:"EventId"`
	LeagueID  int64   `json:"LeagueId"`
	Name      string  `json:"Name"`
	ShortName string  `json:"ShortName"`
	Season    int     `json:"Season"`
	Day       *string `json:"Day"`
	DateTime  *string `json:"DateTime"`
	Status    string  `json:"Status"`
	Active    bool    `json:"Active"`
	Fights    []Fight `json:"Fights"`
}

// Fight is one bout on a card.
type Fight struct {
	FightID  int64          `json:"FightId"`
	Order    *int           `json:"Order"`
	Status   string         `json:"Status"`
	Active   bool           `json:"Active"`
	Fighters []FightFighter `json:"Fighters"`
}

// FightFighter is one corner of a bout.
type FightFighter struct {
	FighterID int64    `json:"FighterId"`
	FirstName string   `json:"FirstName"`
	LastName  string   `json:"LastName"`
	Moneyline *float64 `json:"Moneyline"`
	Active    bool     `json:"Active"`
}

// FullName joins the fighter's names.
func (f FightFighter) FullName() string {
	return strings.TrimSpace(f.FirstName + " " + f.LastName)
}

// start parses the card's start time, falling back to its day.
func (e MMAEvent) start(loc *time.Location) (time.Time, error) {
	for _, v := range []*string{e.DateTime, e.Day} {
		if v == nil || *v == "" {
			continue
		}
		return time.ParseInLocation(apiTimeLayout, *v, loc)
	}
	return time.Time{}, fmt.Errorf("event %d has no start time", e.EventID)
}
