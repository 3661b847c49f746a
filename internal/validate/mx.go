package validate

import (
	"context"
	"errors"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

// Resolver abstracts the DNS lookups behind the MX check.
type Resolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

const (
	mxCacheSize = 4096
	mxCacheTTL  = 30 * time.Minute
)

// mxResult is a cached MX outcome. Unknown outcomes are never cached.
type mxResult struct {
	outcome intel.Outcome
	detail  string
	host    string
}

type mxChecker struct {
	resolver Resolver
	timeout  time.Duration
	cache    *expirable.LRU[string, mxResult]
}

func newMXChecker(resolver Resolver, timeout time.Duration) *mxChecker {
	return &mxChecker{
		resolver: resolver,
		timeout:  timeout,
		cache:    expirable.NewLRU[string, mxResult](mxCacheSize, nil, mxCacheTTL),
	}
}

// check resolves the mail exchangers of domain. A missing domain fails; any
// other lookup error is unknown. A domain without MX records but with an
// address record passes through the implicit MX rule.
func (m *mxChecker) check(ctx context.Context, domain string) mxResult {
	if r, ok := m.cache.Get(domain); ok {
		return r
	}
	lookupCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	res := m.lookup(lookupCtx, domain)
	if res.outcome != intel.Unknown {
		m.cache.Add(domain, res)
	}
	return res
}

func (m *mxChecker) lookup(ctx context.Context, domain string) mxResult {
	records, err := m.resolver.LookupMX(ctx, domain)
	if err == nil && len(records) > 0 {
		sort.SliceStable(records, func(i, j int) bool { return records[i].Pref < records[j].Pref })
		host := strings.TrimSuffix(records[0].Host, ".")
		if host == "" {
			return mxResult{outcome: intel.Fail, detail: "null MX: domain accepts no mail"}
		}
		return mxResult{outcome: intel.Pass, host: host}
	}
	if err != nil && !notFound(err) {
		return mxResult{outcome: intel.Unknown, detail: "mx lookup: " + err.Error()}
	}

	addrs, err := m.resolver.LookupHost(ctx, domain)
	switch {
	case err == nil && len(addrs) > 0:
		return mxResult{outcome: intel.Pass, detail: "no MX, address record present", host: domain}
	case err == nil || notFound(err):
		return mxResult{outcome: intel.Fail, detail: "domain has no mail exchanger"}
	default:
		return mxResult{outcome: intel.Unknown, detail: "host lookup: " + err.Error()}
	}
}

func notFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}
