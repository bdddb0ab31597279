package fetcher

import (
	"math/rand"
	"sync"
)

// Small pool of realistic browser identities. Rotation is probabilistic so
// consecutive requests usually share an identity and the traffic does not
// look like a round-robin bot.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// identityPool hands out the current user-agent string, rotating with a
// configured probability per request.
type identityPool struct {
	mu          sync.Mutex
	agents      []string
	current     int
	probability float64
	rng         *rand.Rand
}

func newIdentityPool(agents []string, probability float64, rng *rand.Rand) *identityPool {
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &identityPool{
		agents:      agents,
		probability: probability,
		rng:         rng,
	}
}

// Next returns the user agent for the upcoming request, possibly rotating.
func (p *identityPool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.agents) > 1 && p.rng.Float64() < p.probability {
		next := p.rng.Intn(len(p.agents) - 1)
		if next >= p.current {
			next++
		}
		p.current = next
	}
	return p.agents[p.current]
}

// Current returns the identity without rotating, for robots.txt probes.
func (p *identityPool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agents[p.current]
}
