// Package metrics 提供 scholar 服务的业务指标收集。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scholar"

// ScholarMetrics 任务、智能体、工具与模型调用指标。
// 所有方法对 nil 接收者安全，未启用指标时直接传 nil。
type ScholarMetrics struct {
	TasksTotal     *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
	TasksInFlight  prometheus.Gauge
	AgentRounds    *prometheus.HistogramVec
	ToolCalls      *prometheus.CounterVec
	ProviderErrors *prometheus.CounterVec
	ChunksIndexed  prometheus.Counter
	Rejected       prometheus.Counter
}

// New 在 reg 上注册指标。reg 为 nil 时使用 prometheus.DefaultRegisterer。
func New(reg prometheus.Registerer) *ScholarMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &ScholarMetrics{
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Total number of tasks by kind, mode and outcome.",
			},
			[]string{"kind", "mode", "outcome"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Task duration in seconds.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind", "mode"},
		),
		TasksInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tasks_in_flight",
				Help:      "Number of tasks currently running.",
			},
		),
		AgentRounds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_rounds",
				Help:      "Model calls per agent run.",
				Buckets:   []float64{1, 2, 3, 5, 8, 12, 15},
			},
			[]string{"kind", "status"},
		),
		ToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool invocations.",
			},
			[]string{"tool"},
		),
		ProviderErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Language model failures by classified kind.",
			},
			[]string{"kind"},
		),
		ChunksIndexed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_indexed_total",
				Help:      "Total number of chunks embedded into request indices.",
			},
		),
		Rejected: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_rejected_total",
				Help:      "Tasks rejected because the worker pool was full.",
			},
		),
	}
}

// TaskStarted 任务开始，返回结束时调用的函数。
func (m *ScholarMetrics) TaskStarted() func() {
	if m == nil {
		return func() {}
	}
	m.TasksInFlight.Inc()
	return m.TasksInFlight.Dec
}

// RecordTask 记录任务结果与耗时。outcome 为 "ok" 或错误分类。
func (m *ScholarMetrics) RecordTask(kind, mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(kind, mode, outcome).Inc()
	m.TaskDuration.WithLabelValues(kind, mode).Observe(d.Seconds())
}

// RecordAgent 记录一次智能体运行的轮数与工具使用。
func (m *ScholarMetrics) RecordAgent(kind, status string, rounds int, toolUsage map[string]int) {
	if m == nil {
		return
	}
	m.AgentRounds.WithLabelValues(kind, status).Observe(float64(rounds))
	for tool, n := range toolUsage {
		m.ToolCalls.WithLabelValues(tool).Add(float64(n))
	}
}

// RecordProviderError 记录模型调用失败分类。
func (m *ScholarMetrics) RecordProviderError(kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(kind).Inc()
}

// RecordIndexed 记录写入索引的分块数。
func (m *ScholarMetrics) RecordIndexed(chunks int) {
	if m == nil {
		return
	}
	m.ChunksIndexed.Add(float64(chunks))
}

// RecordRejected 记录因过载被拒绝的任务。
func (m *ScholarMetrics) RecordRejected() {
	if m == nil {
		return
	}
	m.Rejected.Inc()
}
