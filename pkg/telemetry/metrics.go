package telemetry

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 追加结果的 label 取值
const (
	ResultOK        = "ok"
	ResultDuplicate = "duplicate"
	ResultMalformed = "malformed"
	ResultDangling  = "dangling"
	ResultError     = "error"
)

// Metrics 收集账本写入相关的指标
// 所有方法对 nil 接收者安全，未注入时即为空操作
type Metrics struct {
	Appends         *prometheus.CounterVec
	BranchUpdates   *prometheus.CounterVec
	PersistDuration prometheus.Histogram
	Runs            *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// NewMetrics 创建并注册指标
// reg 为 nil 时使用独立的 Registry，避免污染全局 DefaultRegisterer
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		Appends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "benchvault",
				Name:      "appends_total",
				Help:      "Run record append attempts by suite and result",
			},
			[]string{"suite", "result"},
		),
		BranchUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "benchvault",
				Name:      "branch_updates_total",
				Help:      "Branch pointer updates by result",
			},
			[]string{"result"},
		),
		PersistDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "benchvault",
				Name:      "persist_duration_seconds",
				Help:      "Time spent saving the document to the persistence backend",
				Buckets:   prometheus.DefBuckets,
			},
		),
		Runs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "benchvault",
				Name:      "runs",
				Help:      "Number of run records per suite",
			},
			[]string{"suite"},
		),
		gatherer: reg,
	}

	reg.MustRegister(m.Appends, m.BranchUpdates, m.PersistDuration, m.Runs)
	return m
}

func (m *Metrics) ObserveAppend(suite, result string) {
	if m == nil {
		return
	}
	m.Appends.WithLabelValues(suite, result).Inc()
}

// ObserveAppends 批量计数 (导入时使用)
func (m *Metrics) ObserveAppends(suite, result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Appends.WithLabelValues(suite, result).Add(float64(n))
}

func (m *Metrics) ObserveBranchUpdate(result string) {
	if m == nil {
		return
	}
	m.BranchUpdates.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePersist(d time.Duration) {
	if m == nil {
		return
	}
	m.PersistDuration.Observe(d.Seconds())
}

func (m *Metrics) SetRuns(suite string, n int) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(suite).Set(float64(n))
}

// WriteText 以 Prometheus 文本格式输出当前指标 (bv stats --metrics)
func (m *Metrics) WriteText(w io.Writer) error {
	if m == nil {
		return nil
	}
	families, err := m.gatherer.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
