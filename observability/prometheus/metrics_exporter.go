package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-fiber-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	// ResumeBuckets are histogram buckets (seconds) for task resume durations.
	ResumeBuckets []float64
	// AdvanceBuckets are histogram buckets (seconds) for whole ticks.
	AdvanceBuckets []float64
}

// Task resumes are expected to be short slices of work between two Delay calls.
var defaultResumeBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskResumeSeconds   *prom.HistogramVec
	taskCreatedTotal    *prom.CounterVec
	taskRejectedTotal   *prom.CounterVec
	taskTerminatedTotal *prom.CounterVec
	taskPanicTotal      *prom.CounterVec
	invalidHandleTotal  *prom.CounterVec
	advanceSeconds      *prom.HistogramVec
	dueTasks            *prom.GaugeVec
	elapsedMSTotal      *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "fiberrunner"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	resumeBuckets := opts.ResumeBuckets
	if len(resumeBuckets) == 0 {
		resumeBuckets = defaultResumeBuckets
	}
	advanceBuckets := opts.AdvanceBuckets
	if len(advanceBuckets) == 0 {
		advanceBuckets = prom.DefBuckets
	}

	resumeVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_resume_seconds",
		Help:      "Time a resumed task ran before handing control back, in seconds.",
		Buckets:   resumeBuckets,
	}, []string{"scheduler", "task"})
	createdVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_created_total",
		Help:      "Total number of tasks created.",
	}, []string{"scheduler"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of refused task creations.",
	}, []string{"scheduler", "reason"})
	terminatedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_terminated_total",
		Help:      "Total number of tasks that left the live set.",
	}, []string{"scheduler", "reason"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"scheduler"})
	invalidVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "invalid_handle_total",
		Help:      "Total number of deletes addressed to stale or unknown handles.",
	}, []string{"scheduler"})
	advanceVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "advance_seconds",
		Help:      "Wall time spent in one scheduler tick, in seconds.",
		Buckets:   advanceBuckets,
	}, []string{"scheduler"})
	dueVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "due_tasks",
		Help:      "Number of tasks resumed by the last tick.",
	}, []string{"scheduler"})
	elapsedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "elapsed_ms_total",
		Help:      "Total elapsed milliseconds fed to the scheduler.",
	}, []string{"scheduler"})

	var err error
	if resumeVec, err = registerCollector(reg, resumeVec); err != nil {
		return nil, err
	}
	if createdVec, err = registerCollector(reg, createdVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if terminatedVec, err = registerCollector(reg, terminatedVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if invalidVec, err = registerCollector(reg, invalidVec); err != nil {
		return nil, err
	}
	if advanceVec, err = registerCollector(reg, advanceVec); err != nil {
		return nil, err
	}
	if dueVec, err = registerCollector(reg, dueVec); err != nil {
		return nil, err
	}
	if elapsedVec, err = registerCollector(reg, elapsedVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskResumeSeconds:   resumeVec,
		taskCreatedTotal:    createdVec,
		taskRejectedTotal:   rejectedVec,
		taskTerminatedTotal: terminatedVec,
		taskPanicTotal:      panicVec,
		invalidHandleTotal:  invalidVec,
		advanceSeconds:      advanceVec,
		dueTasks:            dueVec,
		elapsedMSTotal:      elapsedVec,
	}, nil
}

// RecordTaskCreated counts task creations.
func (m *MetricsExporter) RecordTaskCreated(schedulerName string) {
	if m == nil {
		return
	}
	m.taskCreatedTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown")).Inc()
}

// RecordTaskRejected records refused creations.
func (m *MetricsExporter) RecordTaskRejected(schedulerName string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordTaskResume records the run time of one resume.
func (m *MetricsExporter) RecordTaskResume(schedulerName string, taskName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskResumeSeconds.WithLabelValues(normalizeLabel(schedulerName, "unknown"), normalizeLabel(taskName, "task")).Observe(duration.Seconds())
}

// RecordTaskTerminated counts terminations by reason.
func (m *MetricsExporter) RecordTaskTerminated(schedulerName string, reason string) {
	if m == nil {
		return
	}
	m.taskTerminatedTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(schedulerName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown")).Inc()
}

// RecordInvalidHandle counts deletes of stale or out-of-range handles.
func (m *MetricsExporter) RecordInvalidHandle(schedulerName string) {
	if m == nil {
		return
	}
	m.invalidHandleTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown")).Inc()
}

// RecordAdvance records one tick.
func (m *MetricsExporter) RecordAdvance(schedulerName string, elapsedMS int, due int, duration time.Duration) {
	if m == nil {
		return
	}
	name := normalizeLabel(schedulerName, "unknown")
	m.advanceSeconds.WithLabelValues(name).Observe(duration.Seconds())
	m.dueTasks.WithLabelValues(name).Set(float64(due))
	if elapsedMS > 0 {
		m.elapsedMSTotal.WithLabelValues(name).Add(float64(elapsedMS))
	}
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
