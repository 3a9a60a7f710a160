// Package chain queries a CometBFT-based chain node: plain RPC endpoints over
// HTTP and application state through ABCI queries.
package chain

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/knowable-run/chain-metrics-gateway/internal/config"
	"github.com/knowable-run/chain-metrics-gateway/internal/upstream"
	"go.uber.org/zap"
)

const validatorsPerPage = 100

// Querier is the set of chain metrics the gateway exposes.
type Querier interface {
	Validators(ctx context.Context) ([]Validator, error)
	Epoch(ctx context.Context) (uint64, error)
	EffectiveNativeSupply(ctx context.Context) (string, error)
	TotalActiveVotingPower(ctx context.Context) (string, error)
	PGFParameters(ctx context.Context) (PGFParameters, error)
	StakingRewardsRate(ctx context.Context) (string, error)
	TotalStake(ctx context.Context) (string, error)
	TotalNativeSupply(ctx context.Context) (string, error)
	Status(ctx context.Context) (*Status, error)
}

type Validator struct {
	Address          string `json:"address"`
	PubKey           PubKey `json:"pub_key"`
	VotingPower      string `json:"voting_power"`
	ProposerPriority string `json:"proposer_priority"`
}

type PubKey struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type PGFParameters struct {
	Stewards                []string `json:"stewards"`
	PGFInflationRate        string   `json:"pgf_inflation_rate"`
	StewardsInflationRate   string   `json:"stewards_inflation_rate"`
	MaximumNumberOfStewards uint64   `json:"maximum_number_of_stewards"`
}

// Status is the subset of the node /status response the gateway reads.
type Status struct {
	NodeInfo struct {
		ID      string `json:"id"`
		Network string `json:"network"`
		Moniker string `json:"moniker"`
	} `json:"node_info"`
	SyncInfo struct {
		LatestBlockHeight string `json:"latest_block_height"`
		LatestBlockTime   string `json:"latest_block_time"`
		CatchingUp        bool   `json:"catching_up"`
	} `json:"sync_info"`
}

// rpcCaller is satisfied by *rpc.Client.
type rpcCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	Close()
}

// Client implements Querier against one node.
type Client struct {
	base        string
	http        *upstream.Client
	rpc         rpcCaller
	queries     config.Queries
	nativeToken string
	logger      *zap.Logger
}

// NewClient connects the JSON-RPC transport used for ABCI queries. The
// httpClient is shared with the plain endpoints.
func NewClient(cfg *config.Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(cfg.RPC, "/")
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid rpc url: %w", err)
	}
	rpcClient, err := rpc.DialHTTPWithClient(base, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc %s: %w", base, err)
	}
	return &Client{
		base:        base,
		http:        upstream.NewWithClient(httpClient),
		rpc:         rpcClient,
		queries:     cfg.Chain.Queries,
		nativeToken: cfg.Chain.NativeToken,
		logger:      logger.Named("chain"),
	}, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

type rpcEnvelope[T any] struct {
	Result T `json:"result"`
}

// Status reads the node /status endpoint.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var env rpcEnvelope[Status]
	if err := c.http.GetJSON(ctx, c.base+"/status", &env); err != nil {
		return nil, err
	}
	return &env.Result, nil
}

// Validators walks every page of the consensus validator set.
func (c *Client) Validators(ctx context.Context) ([]Validator, error) {
	var all []Validator
	for page := 1; ; page++ {
		var env rpcEnvelope[struct {
			Validators []Validator `json:"validators"`
			Total      string      `json:"total"`
		}]
		u := fmt.Sprintf("%s/validators?page=%d&per_page=%d", c.base, page, validatorsPerPage)
		if err := c.http.GetJSON(ctx, u, &env); err != nil {
			return nil, err
		}
		all = append(all, env.Result.Validators...)

		total, err := strconv.Atoi(env.Result.Total)
		if err != nil {
			return nil, fmt.Errorf("invalid validator total %q: %w", env.Result.Total, err)
		}
		if len(all) >= total || len(env.Result.Validators) == 0 {
			break
		}
	}
	c.logger.Debug("Fetched validators", zap.Int("count", len(all)))
	return all, nil
}

func (c *Client) Epoch(ctx context.Context) (uint64, error) {
	r, err := c.abciQuery(ctx, c.queries.Epoch)
	if err != nil {
		return 0, err
	}
	return r.u64()
}

func (c *Client) EffectiveNativeSupply(ctx context.Context) (string, error) {
	return c.queryAmount(ctx, c.queries.EffectiveNativeSupply)
}

func (c *Client) TotalActiveVotingPower(ctx context.Context) (string, error) {
	return c.queryAmount(ctx, c.queries.TotalActiveVotingPower)
}

func (c *Client) TotalStake(ctx context.Context) (string, error) {
	return c.queryAmount(ctx, c.queries.TotalStake)
}

func (c *Client) TotalNativeSupply(ctx context.Context) (string, error) {
	return c.queryAmount(ctx, c.queries.TotalSupply+"/"+c.nativeToken)
}

// StakingRewardsRate returns the staking rewards rate. The inflation rate
// that follows it in the response is ignored.
func (c *Client) StakingRewardsRate(ctx context.Context) (string, error) {
	r, err := c.abciQuery(ctx, c.queries.StakingRewardsRate)
	if err != nil {
		return "", err
	}
	return r.dec()
}

func (c *Client) PGFParameters(ctx context.Context) (PGFParameters, error) {
	var p PGFParameters
	r, err := c.abciQuery(ctx, c.queries.PGFParameters)
	if err != nil {
		return p, err
	}

	n, err := r.u32()
	if err != nil {
		return p, fmt.Errorf("pgf stewards: %w", err)
	}
	p.Stewards = make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		addr, err := r.address()
		if err != nil {
			return p, fmt.Errorf("pgf steward %d: %w", i, err)
		}
		p.Stewards = append(p.Stewards, addr)
	}
	if p.PGFInflationRate, err = r.dec(); err != nil {
		return p, fmt.Errorf("pgf inflation rate: %w", err)
	}
	if p.StewardsInflationRate, err = r.dec(); err != nil {
		return p, fmt.Errorf("stewards inflation rate: %w", err)
	}
	if p.MaximumNumberOfStewards, err = r.u64(); err != nil {
		return p, fmt.Errorf("maximum number of stewards: %w", err)
	}
	return p, nil
}

func (c *Client) queryAmount(ctx context.Context, path string) (string, error) {
	r, err := c.abciQuery(ctx, path)
	if err != nil {
		return "", err
	}
	return r.amount()
}

type abciQueryResult struct {
	Response struct {
		Code  uint32 `json:"code"`
		Log   string `json:"log"`
		Info  string `json:"info"`
		Value []byte `json:"value"`
	} `json:"response"`
}

// abciQuery runs abci_query at the latest height without proofs.
func (c *Client) abciQuery(ctx context.Context, path string) (*borshReader, error) {
	var res abciQueryResult
	if err := c.rpc.CallContext(ctx, &res, "abci_query", path, "", "0", false); err != nil {
		return nil, fmt.Errorf("abci_query %s: %w", path, err)
	}
	if res.Response.Code != 0 {
		return nil, fmt.Errorf("abci_query %s: code %d: %s", path, res.Response.Code, strings.TrimSpace(res.Response.Log+" "+res.Response.Info))
	}
	return newBorshReader(res.Response.Value), nil
}
