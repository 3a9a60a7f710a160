package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/knowable-run/chain-metrics-gateway/internal/metrics"
	"github.com/knowable-run/chain-metrics-gateway/internal/upstream"
)

// Locator resolves an IP to an opaque geolocation document.
type Locator interface {
	Locate(ctx context.Context, ip string) (json.RawMessage, error)
}

// IPAPIClient looks IPs up on an ipapi.co compatible service.
type IPAPIClient struct {
	base string
	http *upstream.Client
	memo *expirable.LRU[string, json.RawMessage]
}

// NewIPAPIClient returns a client for base. When cacheSize and ttl are both
// positive, successful lookups are remembered for ttl.
func NewIPAPIClient(base string, c *upstream.Client, cacheSize int, ttl time.Duration) *IPAPIClient {
	g := &IPAPIClient{
		base: strings.TrimRight(base, "/"),
		http: c,
	}
	if cacheSize > 0 && ttl > 0 {
		g.memo = expirable.NewLRU[string, json.RawMessage](cacheSize, nil, ttl)
	}
	return g
}

func (g *IPAPIClient) Locate(ctx context.Context, ip string) (json.RawMessage, error) {
	if g.memo != nil {
		if doc, ok := g.memo.Get(ip); ok {
			metrics.GeolocationLookups.WithLabelValues("cached").Inc()
			return doc, nil
		}
	}

	var doc json.RawMessage
	if err := g.http.GetJSON(ctx, fmt.Sprintf("%s/%s/json/", g.base, url.PathEscape(ip)), &doc); err != nil {
		metrics.GeolocationLookups.WithLabelValues("error").Inc()
		return nil, err
	}
	// ipapi reports rate limiting and reserved ranges with a 200 and an
	// error flag in the body.
	var flag struct {
		Error  bool   `json:"error"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(doc, &flag); err == nil && flag.Error {
		metrics.GeolocationLookups.WithLabelValues("error").Inc()
		if flag.Reason == "" {
			flag.Reason = "unknown"
		}
		return nil, errors.New("geolocation " + ip + ": " + flag.Reason)
	}

	metrics.GeolocationLookups.WithLabelValues("ok").Inc()
	if g.memo != nil {
		g.memo.Add(ip, doc)
	}
	return doc, nil
}
