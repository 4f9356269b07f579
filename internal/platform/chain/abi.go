package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const cryptoFactoryABIJSON = `[
{"type":"function","name":"getCoins","stateMutability":"view","inputs":[],
 "outputs":[{"name":"","type":"tuple[]","components":[
  {"name":"name","type":"string"},
  {"name":"feed","type":"address"},
  {"name":"value","type":"uint256"},
  {"name":"imprecision","type":"uint8"},
  {"name":"currentMarket","type":"uint256"}]}]},
{"type":"function","name":"getMarketDetails","stateMutability":"view",
 "inputs":[{"name":"_marketId","type":"uint256"}],
 "outputs":[{"name":"","type":"tuple","components":[
  {"name":"coinIndex","type":"uint256"},
  {"name":"creationValue","type":"uint256"},
  {"name":"resolutionValue","type":"uint256"},
  {"name":"resolutionTime","type":"uint256"}]}]},
{"type":"function","name":"nextResolutionTime","stateMutability":"view","inputs":[],
 "outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"pokeCoin","stateMutability":"nonpayable",
 "inputs":[{"name":"_coinIndex","type":"uint256"},{"name":"_nextResolutionTime","type":"uint256"},{"name":"_roundId","type":"uint80"}],
 "outputs":[]},
{"type":"function","name":"createAndResolveMarkets","stateMutability":"nonpayable",
 "inputs":[{"name":"_roundIds","type":"uint80[]"},{"name":"_nextResolutionTime","type":"uint256"}],
 "outputs":[]}
]`

const teamLinesFactoryABIJSON = `[
{"type":"function","name":"createEvent","stateMutability":"nonpayable",
 "inputs":[
  {"name":"_eventId","type":"uint256"},
  {"name":"_homeTeamName","type":"string"},
  {"name":"_homeTeamId","type":"uint256"},
  {"name":"_awayTeamName","type":"string"},
  {"name":"_awayTeamId","type":"uint256"},
  {"name":"_startTimestamp","type":"uint256"},
  {"name":"_homeSpread","type":"int256"},
  {"name":"_totalScore","type":"int256"},
  {"name":"_moneylines","type":"int256[2]"}],
 "outputs":[]}
]`

const teamMoneylineFactoryABIJSON = `[
{"type":"function","name":"createEvent","stateMutability":"nonpayable",
 "inputs":[
  {"name":"_eventId","type":"uint256"},
  {"name":"_homeTeamName","type":"string"},
  {"name":"_homeTeamId","type":"uint256"},
  {"name":"_awayTeamName","type":"string"},
  {"name":"_awayTeamId","type":"uint256"},
  {"name":"_startTimestamp","type":"uint256"},
  {"name":"_moneylines","type":"int256[2]"}],
 "outputs":[]}
]`

const fighterFactoryABIJSON = `[
{"type":"function","name":"createEvent","stateMutability":"nonpayable",
 "inputs":[
  {"name":"_eventId","type":"uint256"},
  {"name":"_fighterA","type":"string"},
  {"name":"_fighterAId","type":"uint256"},
  {"name":"_fighterB","type":"string"},
  {"name":"_fighterBId","type":"uint256"},
  {"name":"_startTimestamp","type":"uint256"},
  {"name":"_moneylines","type":"int256[2]"}],
 "outputs":[]}
]`

const aggregatorV3ABIJSON = `[
{"type":"function","name":"latestRoundData","stateMutability":"view","inputs":[],
 "outputs":[
  {"name":"roundId","type":"uint80"},
  {"name":"answer","type":"int256"},
  {"name":"startedAt","type":"uint256"},
  {"name":"updatedAt","type":"uint256"},
  {"name":"answeredInRound","type":"uint80"}]},
{"type":"function","name":"getRoundData","stateMutability":"view",
 "inputs":[{"name":"_roundId","type":"uint80"}],
 "outputs":[
  {"name":"roundId","type":"uint80"},
  {"name":"answer","type":"int256"},
  {"name":"startedAt","type":"uint256"},
  {"name":"updatedAt","type":"uint256"},
  {"name":"answeredInRound","type":"uint80"}]}
]`

var (
	cryptoFactoryABI        = mustParseABI(cryptoFactoryABIJSON)
	teamLinesFactoryABI     = mustParseABI(teamLinesFactoryABIJSON)
	teamMoneylineFactoryABI = mustParseABI(teamMoneylineFactoryABIJSON)
	fighterFactoryABI       = mustParseABI(fighterFactoryABIJSON)
	aggregatorV3ABI         = mustParseABI(aggregatorV3ABIJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("chain: invalid ABI: " + err.Error())
	}
	return parsed
}
