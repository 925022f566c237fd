package request

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// cooldown holds back a provider's queue after transport failures. Each
// failure doubles the pause up to max; each success undoes one failure.
type cooldown struct {
	clk  clock.Clock
	base time.Duration
	max  time.Duration

	mu    sync.Mutex
	hosts map[string]*hostPause
}

type hostPause struct {
	strikes int
	until   time.Time
}

func newCooldown(clk clock.Clock, base, ceiling time.Duration) *cooldown {
	if clk == nil {
		clk = clock.New()
	}
	if base <= 0 {
		base = time.Second
	}
	if ceiling < base {
		ceiling = base
	}
	return &cooldown{clk: clk, base: base, max: ceiling, hosts: make(map[string]*hostPause)}
}

// Wait blocks until provider may be contacted again or ctx ends.
func (c *cooldown) Wait(ctx context.Context, provider string) error {
	c.mu.Lock()
	var until time.Time
	if p, ok := c.hosts[provider]; ok {
		until = p.until
	}
	c.mu.Unlock()

	d := until.Sub(c.clk.Now())
	if d <= 0 {
		return nil
	}
	t := c.clk.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *cooldown) Fail(provider string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.hosts[provider]
	if !ok {
		p = &hostPause{}
		c.hosts[provider] = p
	}
	p.strikes++
	d := c.pause(p.strikes)
	p.until = c.clk.Now().Add(d)
	return d
}

func (c *cooldown) Succeed(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.hosts[provider]
	if !ok {
		return
	}
	if p.strikes > 0 {
		p.strikes--
	}
	if p.strikes == 0 {
		delete(c.hosts, provider)
	}
}

// Strikes reports the outstanding failures for provider.
func (c *cooldown) Strikes(provider string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.hosts[provider]; ok {
		return p.strikes
	}
	return 0
}

// pause is base*2^(strikes-1), capped, plus up to 10% jitter.
func (c *cooldown) pause(strikes int) time.Duration {
	d := c.base
	for i := 1; i < strikes && d < c.max; i++ {
		d *= 2
	}
	if d > c.max {
		d = c.max
	}
	return d + time.Duration(rand.Int64N(int64(d)/10+1))
}
