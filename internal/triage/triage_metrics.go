package triage

import "github.com/prometheus/client_golang/prometheus"

// ServiceHooks are optional callbacks fired by the Service. Nil fields are skipped.
type ServiceHooks struct {
	OnSubmit       func(e *SubmitEvent)
	OnGate         func(ok bool, reasons []string)
	OnExportSend   func(status ExportStatus)
	OnStatusChange func(from, to Status)
}

// SubmitEvent describes one finished intake.
type SubmitEvent struct {
	Result     string // "created", "duplicate", "rejected" or "error"
	Level      PriorityLevel
	Department string
	Duration   float64
}

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	SubmitsTotal       *prometheus.CounterVec
	IntakeDuration     prometheus.Histogram
	PriorityLevels     *prometheus.CounterVec
	DepartmentsTotal   *prometheus.CounterVec
	GateTotal          *prometheus.CounterVec
	GateReasonsTotal   *prometheus.CounterVec
	ExportSendsTotal   *prometheus.CounterVec
	StatusChangesTotal *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cityfix_submits_total",
			Help: "Total complaint submissions by result.",
		}, []string{"result"}),
		IntakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cityfix_intake_duration_seconds",
			Help:    "Duration of complaint intake including classification, in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
		}),
		PriorityLevels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cityfix_priority_levels_total",
			Help: "Priority level assigned at intake.",
		}, []string{"level"}),
		DepartmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cityfix_routed_total",
			Help: "Complaints routed at intake by department.",
		}, []string{"department"}),
		GateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cityfix_export_gate_total",
			Help: "Export gate evaluations by outcome.",
		}, []string{"outcome"}),
		GateReasonsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cityfix_export_gate_rejections_total",
			Help: "Export gate rejection reasons.",
		}, []string{"reason"}),
		ExportSendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cityfix_export_sends_total",
			Help: "Export sends by resulting export status.",
		}, []string{"status"}),
		StatusChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cityfix_status_changes_total",
			Help: "Complaint status transitions.",
		}, []string{"from", "to"}),
	}

	reg.MustRegister(
		m.SubmitsTotal,
		m.IntakeDuration,
		m.PriorityLevels,
		m.DepartmentsTotal,
		m.GateTotal,
		m.GateReasonsTotal,
		m.ExportSendsTotal,
		m.StatusChangesTotal,
	)

	return m
}

// Hooks returns a ServiceHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() ServiceHooks {
	return ServiceHooks{
		OnSubmit: func(e *SubmitEvent) {
			m.SubmitsTotal.WithLabelValues(e.Result).Inc()
			m.IntakeDuration.Observe(e.Duration)
			if e.Level != "" {
				m.PriorityLevels.WithLabelValues(string(e.Level)).Inc()
			}
			if e.Department != "" {
				m.DepartmentsTotal.WithLabelValues(e.Department).Inc()
			}
		},
		OnGate: func(ok bool, reasons []string) {
			outcome := "passed"
			if !ok {
				outcome = "rejected"
			}
			m.GateTotal.WithLabelValues(outcome).Inc()
			for _, r := range reasons {
				m.GateReasonsTotal.WithLabelValues(r).Inc()
			}
		},
		OnExportSend: func(status ExportStatus) {
			m.ExportSendsTotal.WithLabelValues(string(status)).Inc()
		},
		OnStatusChange: func(from, to Status) {
			m.StatusChangesTotal.WithLabelValues(string(from), string(to)).Inc()
		},
	}
}
