package domain

import (
	"math/big"
	"strings"
	"time"
)

// Sport identifies a market factory family. The set is closed; anything not
// in SportProfiles is rejected with a ConfigurationError.
type Sport string

const (
	SportNFL    Sport = "nfl"
	SportNBA    Sport = "nba"
	SportMLB    Sport = "mlb"
	SportMMA    Sport = "mma"
	SportCrypto Sport = "crypto"
)

// Family groups sports by the shape of the data they need.
type Family int

const (
	FamilyTeam Family = iota + 1
	FamilyFighter
	FamilyCrypto
)

// CallShape selects the createEvent overload a factory exposes.
type CallShape int

const (
	ShapeNone CallShape = iota
	// ShapeTeamWithLines is createEvent(id, home, homeId, away, awayId, start, spread, total, moneylines).
	ShapeTeamWithLines
	// ShapeTeamMoneyline is createEvent(id, home, homeId, away, awayId, start, moneylines).
	ShapeTeamMoneyline
	// ShapeFighter is createEvent(id, fighterA, aId, fighterB, bId, start, moneylines).
	ShapeFighter
)

func (s CallShape) String() string {
	switch s {
	case ShapeTeamWithLines:
		return "team_with_lines"
	case ShapeTeamMoneyline:
		return "team_moneyline"
	case ShapeFighter:
		return "fighter"
	default:
		return "none"
	}
}

// SportProfile is the static mapping from a sport to its family and call
// shape.
type SportProfile struct {
	Sport  Sport
	Family Family
	Shape  CallShape
}

// SportProfiles is the explicit variant table.
var SportProfiles = map[Sport]SportProfile{
	SportNFL:    {Sport: SportNFL, Family: FamilyTeam, Shape: ShapeTeamWithLines},
	SportNBA:    {Sport: SportNBA, Family: FamilyTeam, Shape: ShapeTeamWithLines},
	SportMLB:    {Sport: SportMLB, Family: FamilyTeam, Shape: ShapeTeamMoneyline},
	SportMMA:    {Sport: SportMMA, Family: FamilyFighter, Shape: ShapeFighter},
	SportCrypto: {Sport: SportCrypto, Family: FamilyCrypto, Shape: ShapeNone},
}

// ParseSport normalises s and looks it up in SportProfiles.
func ParseSport(s string) (SportProfile, error) {
	key := Sport(strings.ToLower(strings.TrimSpace(s)))
	p, ok := SportProfiles[key]
	if !ok {
		return SportProfile{}, Configurationf("sport", s, "unsupported sport")
	}
	return p, nil
}

// EventWindow bounds the start times of events a provider should return.
type EventWindow struct {
	From         time.Time
	To           time.Time
	AffiliateIDs []int
}

// Contains reports whether t falls inside the window (inclusive).
func (w EventWindow) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// TeamEvent is a scheduled two-team game as reported by a data provider.
// StartTime is in unix milliseconds. Lines are nil when the provider has none.
type TeamEvent struct {
	ID            *big.Int
	HomeTeamName  string
	HomeTeamID    int64
	AwayTeamName  string
	AwayTeamID    int64
	StartTime     int64
	PointSpread   *float64
	OverUnder     *float64
	HomeMoneyline *float64
	AwayMoneyline *float64
}

// FighterEvent is a scheduled bout as reported by a data provider.
type FighterEvent struct {
	ID                *big.Int
	FighterAName      string
	FighterAID        int64
	FighterBName      string
	FighterBID        int64
	StartTime         int64
	FighterAMoneyline *float64
	FighterBMoneyline *float64
}

// EventCall is the argument list for one createEvent transaction. For
// fighter calls the Home/Away fields carry fighter A/B. HomeSpread and
// TotalScore are only sent for ShapeTeamWithLines.
type EventCall struct {
	Shape      CallShape
	EventID    *big.Int
	HomeName   string
	HomeID     int64
	AwayName   string
	AwayID     int64
	StartTime  int64
	HomeSpread int64
	TotalScore int64
	Moneylines [2]int64
}
