package core

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"navisol/pkg/domain"
)

// PrometheusMetricsRecorder exports operation counters and latency histograms
// through a Prometheus registerer.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the navisol service collectors with
// reg. A nil reg uses a fresh registry.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	rec := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "navisol",
			Subsystem: "service",
			Name:      "operations_total",
			Help:      "Service operations by outcome.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "navisol",
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{rec.operations, rec.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// MultiMetricsRecorder fans observations out to several recorders.
type MultiMetricsRecorder []MetricsRecorder

// Observe implements MetricsRecorder.
func (m MultiMetricsRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range m {
		if r != nil {
			r.Observe(ctx, operation, success, duration)
		}
	}
}

// ProjectStatusGauge exports how many projects sit in each workflow status.
// It is refreshed on a schedule rather than per operation.
type ProjectStatusGauge struct {
	projects *prometheus.GaugeVec
}

// NewProjectStatusGauge registers navisol_projects with reg.
func NewProjectStatusGauge(reg prometheus.Registerer) (*ProjectStatusGauge, error) {
	g := &ProjectStatusGauge{projects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "navisol",
		Name:      "projects",
		Help:      "Projects by workflow status.",
	}, []string{"status", "archived"})}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if err := reg.Register(g.projects); err != nil {
		return nil, err
	}
	return g, nil
}

// Refresh recounts projects. Every workflow status is reported, including
// empty ones, so dashboards see zeros instead of gaps.
func (g *ProjectStatusGauge) Refresh(ctx context.Context, svc *Service) error {
	projects, err := svc.ListProjects(ctx, ProjectQuery{IncludeArchived: true})
	if err != nil {
		return err
	}
	counts := map[[2]string]int{}
	for _, status := range domain.WorkflowStatuses() {
		counts[[2]string{string(status), "false"}] = 0
		counts[[2]string{string(status), "true"}] = 0
	}
	for _, p := range projects {
		counts[[2]string{string(p.Status), strconv.FormatBool(p.Archived())}]++
	}
	for labels, n := range counts {
		g.projects.WithLabelValues(labels[0], labels[1]).Set(float64(n))
	}
	return nil
}
