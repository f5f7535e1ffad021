// Package metrics wraps the StatsD client behind a small interface so
// services can emit counters and timers without caring whether metrics are
// configured at all.
package metrics

import (
	"time"

	"github.com/cactus/go-statsd-client/v5/statsd"
)

type Client interface {
	// Inc increments a counter.
	Inc(name string, value int64)

	// Timing records a duration.
	Timing(name string, d time.Duration)
}

type StatsdClient struct {
	c statsd.Statter
}

// NewStatsdClient connects to a StatsD endpoint ("host:port"). All metric
// names are prefixed with prefix. Send errors are dropped: metrics are
// best-effort.
func NewStatsdClient(addr, prefix string) (*StatsdClient, error) {
	c, err := statsd.NewClientWithConfig(&statsd.ClientConfig{
		Address: addr,
		Prefix:  prefix,
	})
	if err != nil {
		return nil, err
	}

	return &StatsdClient{c: c}, nil
}

func (s *StatsdClient) Inc(name string, value int64) {
	_ = s.c.Inc(name, value, 1.0)
}

func (s *StatsdClient) Timing(name string, d time.Duration) {
	_ = s.c.TimingDuration(name, d, 1.0)
}

func (s *StatsdClient) Close() error {
	return s.c.Close()
}

// Noop discards all metrics. Used when no StatsD endpoint is configured.
type Noop struct{}

func (Noop) Inc(string, int64)            {}
func (Noop) Timing(string, time.Duration) {}
