package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// MarketOrchestrator runs crypto market batches against one factory contract.
// Every step runs sequentially on the caller's goroutine.
type MarketOrchestrator struct {
	binder    domain.ContractBinder
	scheduler *Scheduler
	resolver  *RoundResolver
	logger    *slog.Logger
}

// NewMarketOrchestrator creates a MarketOrchestrator.
func NewMarketOrchestrator(
	binder domain.ContractBinder,
	scheduler *Scheduler,
	resolver *RoundResolver,
	logger *slog.Logger,
) *MarketOrchestrator {
	return &MarketOrchestrator{
		binder:    binder,
		scheduler: scheduler,
		resolver:  resolver,
		logger:    logger,
	}
}

// Poke advances every eligible coin of the factory at address with one
// pokeCoin transaction each. Coins that are not yet due or whose oracle has
// not caught up are skipped without consuming a nonce.
func (o *MarketOrchestrator) Poke(ctx context.Context, address string) (domain.BatchResult, error) {
	factory, err := o.binder.CryptoFactory(address)
	if err != nil {
		return domain.BatchResult{}, err
	}

	all, err := factory.Coins(ctx)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("orchestrator: coins: %w", err)
	}

	now := o.scheduler.Now()
	var (
		args    []domain.PokeArgument
		skipped int
	)
	for _, coin := range domain.RealCoins(all) {
		arg, ok, err := o.pokeArgument(ctx, factory, coin, now)
		if err != nil {
			return domain.BatchResult{}, err
		}
		if !ok {
			skipped++
			continue
		}
		args = append(args, arg)
	}

	seq, err := newSequencer(ctx, o.binder.Account(), domain.PolicyLenientPoke, o.logger)
	if err != nil {
		return domain.BatchResult{}, err
	}
	for i := 0; i < skipped; i++ {
		seq.skip()
	}
	for _, arg := range args {
		seq.submit(ctx, "poke:"+arg.Coin, func(nonce uint64) (domain.TxHandle, error) {
			return factory.PokeCoin(ctx, arg, nonce)
		})
	}

	res := seq.done()
	o.logger.InfoContext(ctx, "orchestrator: poke batch finished",
		slog.String("contract", address),
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped),
	)
	return res, nil
}

// pokeArgument builds the poke for one coin. ok is false when the coin must
// be skipped. Only round underflow is returned as an error.
func (o *MarketOrchestrator) pokeArgument(ctx context.Context, factory domain.CryptoMarketFactory, coin domain.Coin, now time.Time) (domain.PokeArgument, bool, error) {
	log := o.logger.With(slog.String("coin", coin.Name), slog.Int("coin_index", coin.Index))

	state, err := factory.MarketState(ctx, coin.CurrentMarketID)
	if err != nil {
		log.ErrorContext(ctx, "orchestrator: read market state", slog.String("error", err.Error()))
		return domain.PokeArgument{}, false, nil
	}

	if !o.scheduler.IsEligible(state.ResolutionTime, now) {
		log.WarnContext(ctx, "next resolution time is in the future",
			slog.Int64("resolution_time", state.ResolutionTime),
		)
		return domain.PokeArgument{}, false, nil
	}

	feed, err := o.binder.Feed(coin.PriceFeed)
	if err != nil {
		log.ErrorContext(ctx, "orchestrator: bind price feed", slog.String("error", err.Error()))
		return domain.PokeArgument{}, false, nil
	}

	roundID, err := o.resolver.Resolve(ctx, coin, feed, state.ResolutionTime)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRoundUnderflow):
		return domain.PokeArgument{}, false, err
	case IsNotReady(err):
		log.WarnContext(ctx, "orchestrator: oracle not ready", slog.String("error", err.Error()))
		return domain.PokeArgument{}, false, nil
	default:
		log.ErrorContext(ctx, "orchestrator: resolve round", slog.String("error", err.Error()))
		return domain.PokeArgument{}, false, nil
	}

	return domain.PokeArgument{
		CoinIndex:          coin.Index,
		Coin:               coin.Name,
		NextResolutionTime: o.scheduler.UpcomingSettlement(now).Unix(),
		RoundID:            roundID,
	}, true, nil
}

// Resolve settles every coin's current market and opens the next ones with a
// single createAndResolveMarkets transaction. If any coin cannot be resolved
// the batch is aborted before anything is sent.
func (o *MarketOrchestrator) Resolve(ctx context.Context, address string) (domain.BatchResult, error) {
	factory, err := o.binder.CryptoFactory(address)
	if err != nil {
		return domain.BatchResult{}, err
	}

	target, err := factory.NextResolutionTime(ctx)
	if err != nil {
		return domain.BatchResult{}, &domain.BatchAbortError{Err: fmt.Errorf("next resolution time: %w", err)}
	}
	now := o.scheduler.Now()
	if !o.scheduler.IsEligible(target, now) {
		return domain.BatchResult{}, &domain.BatchAbortError{
			Err: fmt.Errorf("resolution time %d is in the future", target),
		}
	}

	all, err := factory.Coins(ctx)
	if err != nil {
		return domain.BatchResult{}, &domain.BatchAbortError{Err: fmt.Errorf("coins: %w", err)}
	}

	ids := []*big.Int{big.NewInt(0)}
	for _, coin := range domain.RealCoins(all) {
		id, err := o.resolveStrict(ctx, coin, target)
		if err != nil {
			o.logger.ErrorContext(ctx, "orchestrator: resolve batch aborted",
				slog.String("coin", coin.Name),
				slog.Int64("resolution_time", target),
				slog.String("error", err.Error()),
			)
			return domain.BatchResult{}, &domain.BatchAbortError{Coin: coin.Name, Err: err}
		}
		ids = append(ids, id)
	}

	next := o.scheduler.UpcomingSettlement(now).Unix()
	seq, err := newSequencer(ctx, o.binder.Account(), domain.PolicyStrictResolve, o.logger)
	if err != nil {
		return domain.BatchResult{}, err
	}
	seq.submit(ctx, "create_and_resolve", func(nonce uint64) (domain.TxHandle, error) {
		return factory.CreateAndResolveMarkets(ctx, ids, next, nonce)
	})

	res := seq.done()
	o.logger.InfoContext(ctx, "orchestrator: resolve batch finished",
		slog.String("contract", address),
		slog.Int("coins", len(ids)-1),
		slog.Int64("resolution_time", target),
		slog.Int64("next_resolution_time", next),
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

func (o *MarketOrchestrator) resolveStrict(ctx context.Context, coin domain.Coin, target int64) (*big.Int, error) {
	feed, err := o.binder.Feed(coin.PriceFeed)
	if err != nil {
		return nil, err
	}
	return o.resolver.Resolve(ctx, coin, feed, target)
}
