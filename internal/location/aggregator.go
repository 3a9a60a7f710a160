// Package location builds the geolocated list of reachable network peers from
// the operator's address book and the node's live peer list.
package location

import (
	"context"
	"errors"
	"strings"

	"github.com/knowable-run/chain-metrics-gateway/internal/metrics"
	"github.com/knowable-run/chain-metrics-gateway/internal/upstream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoSources is returned when neither peer source could be read, so that a
// cached list is not replaced by an empty one.
var ErrNoSources = errors.New("no peer source available")

const (
	sourceAddressBook = "address_book"
	sourceNetInfo     = "net_info"
)

type Aggregator struct {
	http           *upstream.Client
	rpc            string
	addressBookURL string
	geo            Locator
	logger         *zap.Logger
}

// NewAggregator reads net_info from rpc and the address book from
// addressBookURL. An empty addressBookURL disables that source.
func NewAggregator(c *upstream.Client, rpc, addressBookURL string, geo Locator, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		http:           c,
		rpc:            strings.TrimRight(rpc, "/"),
		addressBookURL: addressBookURL,
		geo:            geo,
		logger:         logger.Named("location"),
	}
}

// Locations fetches both sources concurrently, merges them and geolocates
// every routable peer. A failed source contributes no records; a failed
// lookup leaves the record with a null location.
func (a *Aggregator) Locations(ctx context.Context) ([]EnrichedPeerRecord, error) {
	var (
		book, live       []PeerRecord
		bookErr, liveErr error
		g                errgroup.Group
	)
	g.Go(func() error {
		book, bookErr = a.addressBook(ctx)
		return nil
	})
	g.Go(func() error {
		live, liveErr = a.netInfo(ctx)
		return nil
	})
	_ = g.Wait()

	if bookErr != nil {
		a.logger.Warn("Address book unavailable", zap.String("url", a.addressBookURL), zap.Error(bookErr))
	}
	if liveErr != nil {
		a.logger.Warn("net_info unavailable", zap.String("rpc", a.rpc), zap.Error(liveErr))
	}
	if liveErr != nil && (bookErr != nil || a.addressBookURL == "") {
		return nil, ErrNoSources
	}

	metrics.PeersDiscovered.WithLabelValues(sourceAddressBook).Set(float64(len(book)))
	metrics.PeersDiscovered.WithLabelValues(sourceNetInfo).Set(float64(len(live)))

	peers := Merge(book, live)
	out := make([]EnrichedPeerRecord, 0, len(peers))
	for _, p := range peers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := a.geo.Locate(ctx, p.IP)
		if err != nil {
			a.logger.Warn("Geolocation failed", zap.String("ip", p.IP), zap.Error(err))
			doc = nil
		}
		out = append(out, EnrichedPeerRecord{PeerRecord: p, Location: doc})
	}
	a.logger.Debug("Aggregated peer locations",
		zap.Int("address_book", len(book)),
		zap.Int("net_info", len(live)),
		zap.Int("routable", len(out)))
	return out, nil
}

func (a *Aggregator) addressBook(ctx context.Context) ([]PeerRecord, error) {
	if a.addressBookURL == "" {
		return nil, nil
	}
	var book AddressBook
	if err := a.http.GetJSON(ctx, a.addressBookURL, &book); err != nil {
		return nil, err
	}
	return ParseAddressBook(&book), nil
}

func (a *Aggregator) netInfo(ctx context.Context) ([]PeerRecord, error) {
	var info NetInfo
	if err := a.http.GetJSON(ctx, a.rpc+"/net_info", &info); err != nil {
		return nil, err
	}
	return ParseNetInfo(&info), nil
}
