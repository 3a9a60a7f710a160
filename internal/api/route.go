package api

// Route identifies one endpoint of the gateway.
type Route int

const (
	RouteValidators Route = iota
	RouteEpoch
	RouteEffectiveSupply
	RouteTotalActiveVotingPower
	RoutePGF
	RouteStakingRewardsRate
	RouteTotalStake
	RouteTotalNativeSupply
	RouteTotalStakePercentage
	RouteCurrentBlock
	RouteChainID
	RouteNodesLocations
)

// Routes lists every route in declaration order.
var Routes = []Route{
	RouteValidators,
	RouteEpoch,
	RouteEffectiveSupply,
	RouteTotalActiveVotingPower,
	RoutePGF,
	RouteStakingRewardsRate,
	RouteTotalStake,
	RouteTotalNativeSupply,
	RouteTotalStakePercentage,
	RouteCurrentBlock,
	RouteChainID,
	RouteNodesLocations,
}

var routePaths = map[Route]string{
	RouteValidators:             "/validators",
	RouteEpoch:                  "/epoch",
	RouteEffectiveSupply:        "/effective_supply",
	RouteTotalActiveVotingPower: "/total_active_voting_power",
	RoutePGF:                    "/pgf",
	RouteStakingRewardsRate:     "/staking_rewards_rate",
	RouteTotalStake:             "/total_stake",
	RouteTotalNativeSupply:      "/total_native_supply",
	RouteTotalStakePercentage:   "/total_stake_percentage",
	RouteCurrentBlock:           "/current_block",
	RouteChainID:                "/chain_id",
	RouteNodesLocations:         "/nodes_locations",
}

var routesByPath = func() map[string]Route {
	m := make(map[string]Route, len(routePaths))
	for r, p := range routePaths {
		m[p] = r
	}
	return m
}()

// Path returns the URL path served for r, or "" for an unknown route.
func (r Route) Path() string {
	return routePaths[r]
}

func (r Route) String() string {
	if p, ok := routePaths[r]; ok {
		return p
	}
	return "unknown"
}

// ParseRoute matches path exactly against the known routes.
func ParseRoute(path string) (Route, bool) {
	r, ok := routesByPath[path]
	return r, ok
}
