package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/dealcache/pkg/logger"
)

const defaultProbeTimeout = 5 * time.Second

// Prober checks the remote health endpoint and feeds the result into a Monitor.
type Prober struct {
	url     string
	client  *http.Client
	monitor *Monitor
}

// ProberOption customises a Prober.
type ProberOption func(*Prober)

// WithHTTPClient overrides the client used for probing.
func WithHTTPClient(client *http.Client) ProberOption {
	return func(p *Prober) {
		if client != nil {
			p.client = client
		}
	}
}

// NewProber creates a prober for url. Any response below 500 counts as reachable.
func NewProber(url string, monitor *Monitor, timeout time.Duration, opts ...ProberOption) (*Prober, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("connectivity: probe url is required")
	}
	if monitor == nil {
		return nil, errors.New("connectivity: monitor is required")
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	p := &Prober{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		monitor: monitor,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Probe performs one check, updates the monitor and returns the probe error, if any.
// A probe failure marks the monitor offline; it is reported but not fatal to callers.
func (p *Prober) Probe(ctx context.Context) error {
	err := p.check(ctx)
	online := err == nil
	if p.monitor.SetFrom(online, "probe") {
		logger.WithModule("connectivity").Info("reachability changed",
			zap.Bool("online", online),
			zap.String("url", p.url),
			zap.Error(err),
		)
	}
	return err
}

func (p *Prober) check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("connectivity: build probe: %w", err)
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("connectivity: probe %s: %w", p.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("connectivity: probe %s: status %d", p.url, resp.StatusCode)
	}
	return nil
}
