package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the health of one component or of the whole daemon.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Probe selects which set of checks an evaluation runs.
type Probe string

const (
	Liveness  Probe = "live"
	Readiness Probe = "ready"
)

const defaultCheckTimeout = 3 * time.Second

// Result is the outcome of a single check.
type Result struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Report aggregates check results. A degraded daemon still answers from its local caches, so
// only a down component makes the report not ready.
type Report struct {
	Ready     bool      `json:"success"`
	Status    Status    `json:"status"`
	Checks    []Result  `json:"checks"`
	CheckedAt time.Time `json:"checked_at"`
}

// Check evaluates one component.
type Check struct {
	Name string
	Run  func(ctx context.Context) Result
}

// NewCheck builds a named check. A nil fn always reports down.
func NewCheck(name string, fn func(ctx context.Context) Result) Check {
	if fn == nil {
		fn = func(context.Context) Result {
			return Result{Status: StatusDown, Details: "check not implemented"}
		}
	}
	return Check{Name: name, Run: fn}
}

// Health holds the checks registered per probe and evaluates them concurrently.
type Health struct {
	mu      sync.RWMutex
	checks  map[Probe][]Check
	timeout time.Duration
}

// NewHealth creates an empty registry. Each check runs under timeout; zero selects 3s.
func NewHealth(timeout time.Duration) *Health {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &Health{checks: make(map[Probe][]Check), timeout: timeout}
}

// Register adds checks to probe. Unnamed checks are ignored.
func (h *Health) Register(probe Probe, checks ...Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, check := range checks {
		if check.Name == "" || check.Run == nil {
			continue
		}
		h.checks[probe] = append(h.checks[probe], check)
	}
}

// Evaluate runs every check registered for probe. Results keep registration order.
func (h *Health) Evaluate(ctx context.Context, probe Probe) Report {
	if ctx == nil {
		ctx = context.Background()
	}
	h.mu.RLock()
	checks := append([]Check(nil), h.checks[probe]...)
	h.mu.RUnlock()

	results := make([]Result, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			results[i] = run(checkCtx, check)
			return nil
		})
	}
	_ = g.Wait()

	return summarise(results)
}

// Combine merges reports into one, as served by the aggregate health endpoint.
func Combine(reports ...Report) Report {
	var results []Result
	for _, report := range reports {
		results = append(results, report.Checks...)
	}
	return summarise(results)
}

// ErrorResult maps err onto a result. Timeouts degrade, other failures are down.
func ErrorResult(err error) Result {
	switch {
	case err == nil:
		return Result{Status: StatusUp}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Result{Status: StatusDegraded, Details: err.Error()}
	default:
		return Result{Status: StatusDown, Details: err.Error()}
	}
}

func run(ctx context.Context, check Check) (result Result) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = Result{Status: StatusDown, Details: fmt.Sprint(rec)}
		}
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
		result.Component = check.Name
	}()
	return check.Run(ctx)
}

func summarise(results []Result) Report {
	report := Report{
		Ready:     true,
		Status:    StatusUp,
		Checks:    results,
		CheckedAt: time.Now().UTC(),
	}
	if report.Checks == nil {
		report.Checks = []Result{}
	}
	for _, r := range results {
		report.Status = Worse(report.Status, r.Status)
	}
	report.Ready = report.Status != StatusDown
	return report
}

var severity = map[Status]int{StatusUp: 0, StatusDegraded: 1, StatusDown: 2}

// Worse returns the more severe of two statuses.
func Worse(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}
