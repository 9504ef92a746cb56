package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-fiber-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
// *core.Scheduler satisfies it.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// SnapshotPoller periodically exports scheduler Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	capacity   *prom.GaugeVec
	slotsUsed  *prom.GaugeVec
	active     *prom.GaugeVec
	waiting    *prom.GaugeVec
	terminated *prom.GaugeVec
	ticks      *prom.GaugeVec
	rejected   *prom.GaugeVec
	tornDown   *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "fiberrunner",
			Subsystem: "scheduler",
			Name:      name,
			Help:      help,
		}, []string{"scheduler"})
	}

	capacity := gauge("capacity", "Fixed size of the task table.")
	slotsUsed := gauge("slots_used", "Assigned task table slots, live or terminated.")
	active := gauge("active", "Live tasks.")
	waiting := gauge("waiting", "Live tasks with a delay pending.")
	terminated := gauge("terminated", "Terminated tasks still occupying a slot.")
	ticks := gauge("ticks", "Scheduler ticks snapshot.")
	rejected := gauge("rejected", "Refused task creations snapshot.")
	tornDown := gauge("torn_down", "Scheduler torn down state (1=torn down, 0=live).")

	var err error
	for _, g := range []**prom.GaugeVec{&capacity, &slotsUsed, &active, &waiting, &terminated, &ticks, &rejected, &tornDown} {
		if *g, err = registerCollector(reg, *g); err != nil {
			return nil, err
		}
	}

	return &SnapshotPoller{
		interval:   interval,
		schedulers: make(map[string]SchedulerSnapshotProvider),
		capacity:   capacity,
		slotsUsed:  slotsUsed,
		active:     active,
		waiting:    waiting,
		terminated: terminated,
		ticks:      ticks,
		rejected:   rejected,
		tornDown:   tornDown,
	}, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

// CollectOnce takes one snapshot of every registered scheduler.
func (p *SnapshotPoller) CollectOnce() {
	if p == nil {
		return
	}
	p.collectOnce()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.schedulersMu.RLock()
	defer p.schedulersMu.RUnlock()

	for name, provider := range p.schedulers {
		stats := provider.Stats()
		p.capacity.WithLabelValues(name).Set(float64(stats.Capacity))
		p.slotsUsed.WithLabelValues(name).Set(float64(stats.Slots))
		p.active.WithLabelValues(name).Set(float64(stats.Active))
		p.waiting.WithLabelValues(name).Set(float64(stats.Waiting))
		p.terminated.WithLabelValues(name).Set(float64(stats.Terminated))
		p.ticks.WithLabelValues(name).Set(float64(stats.Ticks))
		p.rejected.WithLabelValues(name).Set(float64(stats.Rejected))
		if stats.TornDown {
			p.tornDown.WithLabelValues(name).Set(1)
		} else {
			p.tornDown.WithLabelValues(name).Set(0)
		}
	}
}
