package service

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// lineScale is the fixed-point factor contracts use for spreads and totals.
var lineScale = decimal.NewFromInt(10)

// CalcHomeSpread signs the point spread relative to the home team. A missing
// spread or moneyline yields 0. When the home moneyline is below the away
// moneyline the spread is positive, otherwise negative.
func CalcHomeSpread(spread, homeMoneyline, awayMoneyline *float64) float64 {
	if spread == nil || homeMoneyline == nil || awayMoneyline == nil {
		return 0
	}
	abs := math.Abs(*spread)
	if *homeMoneyline < *awayMoneyline {
		return abs
	}
	return -abs
}

// ScaleLine converts a line to the contract's one-decimal fixed point,
// rounding half away from zero.
func ScaleLine(v float64) int64 {
	return decimal.NewFromFloat(v).Mul(lineScale).Round(0).IntPart()
}

// ScaleMoneyline rounds a moneyline to an integer; nil maps to 0.
func ScaleMoneyline(v *float64) int64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromFloat(*v).Round(0).IntPart()
}

// startSeconds converts a millisecond start time to unix seconds, flooring.
func startSeconds(ms int64) int64 {
	s := ms / 1000
	if ms%1000 != 0 && ms < 0 {
		s--
	}
	return s
}

// MapTeamEvent builds the createEvent arguments for a two-team game.
func MapTeamEvent(shape domain.CallShape, ev domain.TeamEvent) (domain.EventCall, error) {
	if shape != domain.ShapeTeamWithLines && shape != domain.ShapeTeamMoneyline {
		return domain.EventCall{}, domain.Configurationf("shape", shape.String(), "not a team call shape")
	}
	if ev.ID == nil {
		return domain.EventCall{}, fmt.Errorf("event_mapper: team event %s vs %s has no id", ev.HomeTeamName, ev.AwayTeamName)
	}

	call := domain.EventCall{
		Shape:     shape,
		EventID:   ev.ID,
		HomeName:  ev.HomeTeamName,
		HomeID:    ev.HomeTeamID,
		AwayName:  ev.AwayTeamName,
		AwayID:    ev.AwayTeamID,
		StartTime: startSeconds(ev.StartTime),
		Moneylines: [2]int64{
			ScaleMoneyline(ev.HomeMoneyline),
			ScaleMoneyline(ev.AwayMoneyline),
		},
	}
	if shape == domain.ShapeTeamWithLines {
		call.HomeSpread = ScaleLine(CalcHomeSpread(ev.PointSpread, ev.HomeMoneyline, ev.AwayMoneyline))
		if ev.OverUnder != nil {
			call.TotalScore = ScaleLine(*ev.OverUnder)
		}
	}
	return call, nil
}

// MapFighterEvent builds the createEvent arguments for a bout.
func MapFighterEvent(ev domain.FighterEvent) (domain.EventCall, error) {
	if ev.ID == nil {
		return domain.EventCall{}, fmt.Errorf("event_mapper: fight %s vs %s has no id", ev.FighterAName, ev.FighterBName)
	}
	return domain.EventCall{
		Shape:     domain.ShapeFighter,
		EventID:   ev.ID,
		HomeName:  ev.FighterAName,
		HomeID:    ev.FighterAID,
		AwayName:  ev.FighterBName,
		AwayID:    ev.FighterBID,
		StartTime: startSeconds(ev.StartTime),
		Moneylines: [2]int64{
			ScaleMoneyline(ev.FighterAMoneyline),
			ScaleMoneyline(ev.FighterBMoneyline),
		},
	}, nil
}
