// Package poller drives the fetch, merge and publish cycle for one device.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/raterudder/hanbridge/pkg/log"
	"github.com/raterudder/hanbridge/pkg/schema"
	"github.com/raterudder/hanbridge/pkg/store"
	"github.com/raterudder/hanbridge/pkg/types"
)

// DefaultInterval is the time between poll cycles.
const DefaultInterval = 5 * time.Second

// Fetcher is implemented by *device.Client.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (types.Payload, error)
	FetchIdentity(ctx context.Context, path string) types.Identity
}

// State is the lifecycle state of a Poller.
type State int

const (
	Idle State = iota
	FirstFetchPending
	Steady
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case FirstFetchPending:
		return "first_fetch_pending"
	case Steady:
		return "steady"
	default:
		return "idle"
	}
}

// InitError is returned by Init when the first poll fails. The host should
// not consider the device ready.
type InitError struct {
	Err error
}

// Error implements error.
func (e *InitError) Error() string {
	return fmt.Sprintf("first poll failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *InitError) Unwrap() error {
	return e.Err
}

// Poller fetches every endpoint of a layout on a fixed interval and publishes
// the merged snapshot to the store. Cycles never overlap.
type Poller struct {
	fetcher  Fetcher
	store    *store.Store
	layout   schema.Layout
	interval time.Duration
	metrics  *metrics

	// cycleMu serializes cycles from the timer and from Refresh
	cycleMu sync.Mutex

	mu    sync.Mutex
	state State
	cron  *cron.Cron
}

// New returns an idle poller.
func New(f Fetcher, st *store.Store, layout schema.Layout, interval time.Duration) *Poller {
	return &Poller{
		fetcher:  f,
		store:    st,
		layout:   layout,
		interval: interval,
		metrics:  newMetrics(),
	}
}

// Configured sets up flags for the poller and returns the instance.
func Configured(f Fetcher, st *store.Store) *Poller {
	p := New(f, st, schema.Layout{}, DefaultInterval)
	interval := lflag.Duration("han-interval", DefaultInterval, "Time between polls of the HAN bridge")
	layout := lflag.String("han-layout", schema.DefaultLayout, "Endpoint layout of the HAN bridge firmware (available: meter, han)")

	lflag.Do(func() {
		l, err := schema.LookupLayout(*layout)
		if err != nil {
			panic(fmt.Sprintf("invalid han-layout: %v", err))
		}
		p.layout = l
		p.interval = *interval
	})

	return p
}

// Validate ensures the configuration is valid.
func (p *Poller) Validate() error {
	if p.interval < time.Second {
		return fmt.Errorf("han-interval must be at least 1s, got %s", p.interval)
	}
	// cron.Every truncates to whole seconds
	if p.interval%time.Second != 0 {
		return fmt.Errorf("han-interval must be a whole number of seconds, got %s", p.interval)
	}
	return p.layout.Validate()
}

// Layout returns the endpoint layout being polled.
func (p *Poller) Layout() schema.Layout {
	return p.layout
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// Init fetches the device identity (best effort) and then runs the first
// cycle synchronously. It returns an *InitError if the mandatory endpoint
// could not be fetched.
func (p *Poller) Init(ctx context.Context) error {
	p.mu.Lock()
	if p.state != Idle {
		p.mu.Unlock()
		return errors.New("poller already initialized")
	}
	p.state = FirstFetchPending
	p.mu.Unlock()

	if p.layout.InfoPath != "" {
		p.store.SetIdentity(p.fetcher.FetchIdentity(ctx, p.layout.InfoPath))
	} else {
		p.store.SetIdentity(types.UnknownIdentity())
	}

	if err := p.cycle(ctx); err != nil {
		p.setState(Idle)
		log.Ctx(ctx).ErrorContext(ctx, "first poll failed", slog.Any("error", err))
		return &InitError{Err: err}
	}
	p.setState(Steady)
	log.Ctx(ctx).InfoContext(ctx, "first poll complete", slog.String("layout", p.layout.Name))
	return nil
}

// Refresh runs one cycle now. It waits for a cycle that is already running.
func (p *Poller) Refresh(ctx context.Context) error {
	return p.cycle(ctx)
}

// Start schedules a cycle every interval until Stop is called. Init must have
// succeeded first. A cycle that overruns the interval delays the next one.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Steady {
		return fmt.Errorf("poller cannot start in state %s", p.state)
	}
	if p.cron != nil {
		return errors.New("poller already started")
	}

	l := log.CronLogger{Logger: log.Ctx(ctx)}
	p.cron = cron.New(
		cron.WithLogger(l),
		cron.WithChain(
			cron.Recover(l),
			cron.DelayIfStillRunning(l),
		),
	)
	p.cron.Schedule(cron.Every(p.interval), cron.FuncJob(func() {
		p.tick(ctx)
	}))
	p.cron.Start()

	log.Ctx(ctx).InfoContext(ctx, "polling started", slog.Duration("interval", p.interval))
	return nil
}

// Stop stops the timer. The returned context is done once a running cycle has
// finished.
func (p *Poller) Stop() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	ctx := p.cron.Stop()
	p.cron = nil
	return ctx
}

func (p *Poller) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	wasAvailable := p.store.Availability().Available
	if err := p.cycle(ctx); err != nil {
		if wasAvailable {
			log.Ctx(ctx).WarnContext(ctx, "device became unavailable", slog.Any("error", err))
		} else {
			log.Ctx(ctx).DebugContext(ctx, "poll failed", slog.Any("error", err))
		}
		return
	}
	if !wasAvailable {
		log.Ctx(ctx).InfoContext(ctx, "device available again")
	}
}

// cycle fetches every endpoint concurrently and merges the results. A failed
// optional endpoint keeps its payload from the previous snapshot. A failed
// mandatory endpoint fails the cycle and leaves the snapshot untouched.
func (p *Poller) cycle(ctx context.Context) error {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	start := time.Now()
	fetchedAt := p.store.Now()
	endpoints := p.layout.Endpoints
	payloads := make([]types.Payload, len(endpoints))
	errs := make([]error, len(endpoints))

	// only the mandatory endpoint's error is returned through the group,
	// optional failures are collected in errs
	var g errgroup.Group
	for i, e := range endpoints {
		g.Go(func() error {
			pl, err := p.fetcher.Fetch(ctx, e.Path)
			if err != nil {
				errs[i] = err
				if e.Mandatory {
					return fmt.Errorf("fetching %s: %w", e.Name, err)
				}
				return nil
			}
			payloads[i] = e.Unwrap(pl)
			return nil
		})
	}
	mandatoryErr := g.Wait()

	prev := p.store.Snapshot()
	next := types.Snapshot{
		Payloads:  make(map[string]types.Payload, len(endpoints)),
		FetchedAt: fetchedAt,
	}
	for i, e := range endpoints {
		if errs[i] == nil {
			next.Payloads[e.Name] = payloads[i]
			continue
		}
		p.metrics.endpointFailures.WithLabelValues(e.Name).Inc()
		if e.Mandatory {
			continue
		}
		log.Ctx(ctx).DebugContext(ctx, "optional endpoint failed", slog.String("endpoint", e.Name), slog.Any("error", errs[i]))
		if old, ok := prev.Endpoint(e.Name); ok {
			next.Payloads[e.Name] = old
		}
	}

	p.metrics.duration.Observe(time.Since(start).Seconds())
	if mandatoryErr != nil {
		p.store.RecordFailure(fetchedAt, mandatoryErr)
		p.metrics.cycles.WithLabelValues("failure").Inc()
		return mandatoryErr
	}

	p.store.Publish(next)
	p.store.RecordSuccess(fetchedAt)
	p.metrics.cycles.WithLabelValues("success").Inc()
	return nil
}

// Collectors returns the poller's prometheus collectors.
func (p *Poller) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.metrics.cycles, p.metrics.duration, p.metrics.endpointFailures}
}
