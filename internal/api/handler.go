// Package api serves the cached chain metrics as flat JSON endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// ErrZeroSupply is returned by the stake percentage when the native supply is
// zero.
var ErrZeroSupply = errors.New("total native supply is zero")

// Envelope wraps scalar metrics.
type Envelope struct {
	Value interface{} `json:"value"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Dispatcher maps request paths to routes and routes to handlers.
type Dispatcher struct {
	sources *Sources
	logger  *zap.Logger
}

func NewDispatcher(sources *Sources, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sources: sources,
		logger:  logger.Named("api"),
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, ok := ParseRoute(r.URL.Path)
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := d.Handle(r.Context(), route)
	if err != nil {
		d.logger.Error("Handler failed", zap.Stringer("route", route), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// Handle produces the response body for route.
func (d *Dispatcher) Handle(ctx context.Context, route Route) (interface{}, error) {
	s := d.sources
	switch route {
	case RouteValidators:
		return s.Validators.Fetch(ctx, false)
	case RouteEpoch:
		return envelope(s.Epoch.Fetch(ctx, false))
	case RouteEffectiveSupply:
		return envelope(s.EffectiveSupply.Fetch(ctx, false))
	case RouteTotalActiveVotingPower:
		return envelope(s.TotalActiveVotingPower.Fetch(ctx, false))
	case RoutePGF:
		return envelope(s.PGF.Fetch(ctx, false))
	case RouteStakingRewardsRate:
		return envelope(s.StakingRewardsRate.Fetch(ctx, false))
	case RouteTotalStake:
		return envelope(s.TotalStake.Fetch(ctx, false))
	case RouteTotalNativeSupply:
		return envelope(s.TotalNativeSupply.Fetch(ctx, false))
	case RouteTotalStakePercentage:
		return d.totalStakePercentage(ctx)
	case RouteCurrentBlock:
		status, err := s.Chain.Status(ctx)
		if err != nil {
			return nil, err
		}
		return Envelope{Value: status.SyncInfo.LatestBlockHeight}, nil
	case RouteChainID:
		status, err := s.Chain.Status(ctx)
		if err != nil {
			return nil, err
		}
		return Envelope{Value: status.NodeInfo.Network}, nil
	case RouteNodesLocations:
		return s.NodesLocations.Fetch(ctx, false)
	default:
		return nil, fmt.Errorf("unhandled route %d", route)
	}
}

func envelope[T any](v T, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	return Envelope{Value: v}, nil
}

// totalStakePercentage is derived from the two cached values on every call.
func (d *Dispatcher) totalStakePercentage(ctx context.Context) (interface{}, error) {
	stake, err := d.sources.TotalStake.Fetch(ctx, false)
	if err != nil {
		return nil, err
	}
	supply, err := d.sources.TotalNativeSupply.Fetch(ctx, false)
	if err != nil {
		return nil, err
	}
	pct, err := Percentage(stake, supply)
	if err != nil {
		return nil, err
	}
	return Envelope{Value: pct}, nil
}

// Percentage returns part/whole*100 for two decimal integer strings, rounded
// half up to two decimals.
func Percentage(part, whole string) (string, error) {
	p, err := uint256.FromDecimal(strings.TrimSpace(part))
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", part, err)
	}
	w, err := uint256.FromDecimal(strings.TrimSpace(whole))
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", whole, err)
	}
	if w.IsZero() {
		return "", ErrZeroSupply
	}

	// basis points, doubled so that adding w rounds half up
	scaled, overflow := new(uint256.Int).MulOverflow(p, uint256.NewInt(20000))
	if overflow {
		return "", fmt.Errorf("percentage of %s overflows", part)
	}
	scaled.Add(scaled, w)
	bp := scaled.Div(scaled, new(uint256.Int).Mul(w, uint256.NewInt(2)))

	hundredths := new(uint256.Int).Mod(bp, uint256.NewInt(100)).Uint64()
	whole100 := new(uint256.Int).Div(bp, uint256.NewInt(100))
	return fmt.Sprintf("%s.%02d", whole100.Dec(), hundredths), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
