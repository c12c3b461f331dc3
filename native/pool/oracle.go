package pool

import (
	"errors"
	"sync"
	"time"
)

var ErrStalePrice = errors.New("pool: posted dollar price is stale")

// StaticPrice is a PriceOracle pinned to a fixed price, par by default. Used
// in tests and as the fallback when no feed is configured.
type StaticPrice uint64

func (p StaticPrice) DollarPriceUSD() (uint64, error) {
	if p == 0 {
		return ParPrice, nil
	}
	return uint64(p), nil
}

// PostedPrice is a PriceOracle fed by an operator. Reads fail once the last
// post is older than the staleness bound; a zero bound disables the check.
type PostedPrice struct {
	mu       sync.RWMutex
	price    uint64
	postedAt time.Time
	maxAge   time.Duration
	clock    func() time.Time
	everSet  bool
}

// NewPostedPrice constructs a posted-price oracle starting at par.
func NewPostedPrice(maxAge time.Duration) *PostedPrice {
	return &PostedPrice{price: ParPrice, maxAge: maxAge, clock: time.Now}
}

// SetClock overrides the time source for deterministic testing.
func (p *PostedPrice) SetClock(clock func() time.Time) {
	if p == nil || clock == nil {
		return
	}
	p.mu.Lock()
	p.clock = clock
	p.mu.Unlock()
}

// Post records a new dollar price at six implied decimals.
func (p *PostedPrice) Post(price uint64) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.price = price
	p.postedAt = p.clock()
	p.everSet = true
	p.mu.Unlock()
}

// DollarPriceUSD implements PriceOracle.
func (p *PostedPrice) DollarPriceUSD() (uint64, error) {
	if p == nil {
		return 0, ErrNotConfigured
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.everSet && p.maxAge > 0 && p.clock().Sub(p.postedAt) > p.maxAge {
		return 0, ErrStalePrice
	}
	return p.price, nil
}
