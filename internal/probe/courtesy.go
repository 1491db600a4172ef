package probe

import (
	"crypto/rand"
	"math/big"
	"time"
)

// DefaultUserAgents is the identity pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64)",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 14_0 like Mac OS X)",
}

// RandomCourtesy draws a jitter in [min, max) and a user agent from a pool on
// every call.
type RandomCourtesy struct {
	minJitter time.Duration
	maxJitter time.Duration
	agents    []string
}

// NewRandomCourtesy builds a RandomCourtesy. An empty pool falls back to
// DefaultUserAgents.
func NewRandomCourtesy(minJitter, maxJitter time.Duration, agents []string) *RandomCourtesy {
	if minJitter < 0 {
		minJitter = 0
	}
	if maxJitter < minJitter {
		maxJitter = minJitter
	}
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	return &RandomCourtesy{
		minJitter: minJitter,
		maxJitter: maxJitter,
		agents:    append([]string(nil), agents...),
	}
}

// Jitter returns a random pre-request delay.
func (c *RandomCourtesy) Jitter() time.Duration {
	span := c.maxJitter - c.minJitter
	if span <= 0 {
		return c.minJitter
	}
	return c.minJitter + time.Duration(randomInt63(int64(span)))
}

// UserAgent returns a random entry from the pool.
func (c *RandomCourtesy) UserAgent() string {
	if len(c.agents) == 1 {
		return c.agents[0]
	}
	return c.agents[randomInt63(int64(len(c.agents)))]
}

func randomInt63(limit int64) int64 {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(limit))
	if err != nil {
		return limit / 2
	}
	return n.Int64()
}

// FixedCourtesy always returns the same delay and agent.
type FixedCourtesy struct {
	Delay time.Duration
	Agent string
}

// Jitter returns the fixed delay.
func (c FixedCourtesy) Jitter() time.Duration {
	return c.Delay
}

// UserAgent returns the fixed agent.
func (c FixedCourtesy) UserAgent() string {
	return c.Agent
}
