package api

import (
	"context"

	"github.com/knowable-run/chain-metrics-gateway/internal/cache"
	"github.com/knowable-run/chain-metrics-gateway/internal/chain"
	"github.com/knowable-run/chain-metrics-gateway/internal/location"
	"github.com/knowable-run/chain-metrics-gateway/internal/store"
	"go.uber.org/zap"
)

// Cache keys, also used as store keys.
const (
	KeyValidators             cache.CacheKey = "validators"
	KeyEpoch                  cache.CacheKey = "epoch"
	KeyEffectiveSupply        cache.CacheKey = "effective_supply"
	KeyTotalActiveVotingPower cache.CacheKey = "active_voting_power"
	KeyPGF                    cache.CacheKey = "pgf"
	KeyStakingRewardsRate     cache.CacheKey = "staking_rewards_rate"
	KeyTotalStake             cache.CacheKey = "total_stake"
	KeyTotalNativeSupply      cache.CacheKey = "total_native_supply"
	KeyNodesLocations         cache.CacheKey = "nodes_locations"
)

// LocationSource produces the geolocated peer list.
type LocationSource interface {
	Locations(ctx context.Context) ([]location.EnrichedPeerRecord, error)
}

// Sources holds one fetcher per cached metric plus the chain client for the
// uncached routes.
type Sources struct {
	Validators             *cache.Fetcher[[]chain.Validator]
	Epoch                  *cache.Fetcher[uint64]
	EffectiveSupply        *cache.Fetcher[string]
	TotalActiveVotingPower *cache.Fetcher[string]
	PGF                    *cache.Fetcher[chain.PGFParameters]
	StakingRewardsRate     *cache.Fetcher[string]
	TotalStake             *cache.Fetcher[string]
	TotalNativeSupply      *cache.Fetcher[string]
	NodesLocations         *cache.Fetcher[[]location.EnrichedPeerRecord]

	Chain chain.Querier
}

func NewSources(q chain.Querier, locations LocationSource, s store.Store, logger *zap.Logger) *Sources {
	return &Sources{
		Validators:             cache.NewFetcher(KeyValidators, q.Validators, s, logger),
		Epoch:                  cache.NewFetcher(KeyEpoch, q.Epoch, s, logger),
		EffectiveSupply:        cache.NewFetcher(KeyEffectiveSupply, q.EffectiveNativeSupply, s, logger),
		TotalActiveVotingPower: cache.NewFetcher(KeyTotalActiveVotingPower, q.TotalActiveVotingPower, s, logger),
		PGF:                    cache.NewFetcher(KeyPGF, q.PGFParameters, s, logger),
		StakingRewardsRate:     cache.NewFetcher(KeyStakingRewardsRate, q.StakingRewardsRate, s, logger),
		TotalStake:             cache.NewFetcher(KeyTotalStake, q.TotalStake, s, logger),
		TotalNativeSupply:      cache.NewFetcher(KeyTotalNativeSupply, q.TotalNativeSupply, s, logger),
		NodesLocations:         cache.NewFetcher(KeyNodesLocations, locations.Locations, s, logger),
		Chain:                  q,
	}
}

// Register adds every fetcher to the scheduler.
func (s *Sources) Register(sched *cache.Scheduler) error {
	entries := []struct {
		key cache.CacheKey
		r   cache.Refresher
	}{
		{KeyValidators, s.Validators},
		{KeyEpoch, s.Epoch},
		{KeyEffectiveSupply, s.EffectiveSupply},
		{KeyTotalActiveVotingPower, s.TotalActiveVotingPower},
		{KeyPGF, s.PGF},
		{KeyStakingRewardsRate, s.StakingRewardsRate},
		{KeyTotalStake, s.TotalStake},
		{KeyTotalNativeSupply, s.TotalNativeSupply},
		{KeyNodesLocations, s.NodesLocations},
	}
	for _, e := range entries {
		if err := sched.Register(string(e.key), e.r); err != nil {
			return err
		}
	}
	return nil
}
