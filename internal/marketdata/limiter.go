package marketdata

import (
	"time"

	"golang.org/x/time/rate"
)

// Limit is a call budget of Calls per Period.
type Limit struct {
	Calls  int
	Period time.Duration
}

// DefaultLimits mirror the free-tier quotas. Providers absent from the map
// are unlimited.
var DefaultLimits = map[string]Limit{
	ProviderAlphaVantage: {Calls: 5, Period: time.Minute},
	ProviderFinnhub:      {Calls: 60, Period: time.Minute},
	ProviderPolygon:      {Calls: 5, Period: time.Minute},
	ProviderAlpaca:       {Calls: 200, Period: time.Minute},
	ProviderTwelveData:   {Calls: 8, Period: time.Minute},
}

// limiterSet holds one token bucket per provider. Buckets start full so a
// provider can spend its whole budget at once, then refill evenly.
type limiterSet struct {
	limiters map[string]*rate.Limiter
}

func newLimiterSet(limits map[string]Limit) *limiterSet {
	ls := &limiterSet{limiters: make(map[string]*rate.Limiter, len(limits))}
	for name, l := range limits {
		if l.Calls <= 0 || l.Period <= 0 {
			continue
		}
		ls.limiters[name] = rate.NewLimiter(rate.Every(l.Period/time.Duration(l.Calls)), l.Calls)
	}
	return ls
}

// allow reports whether provider may be called now, consuming a token if so.
func (ls *limiterSet) allow(provider string) bool {
	if ls == nil {
		return true
	}
	l, ok := ls.limiters[provider]
	if !ok {
		return true
	}
	return l.Allow()
}
