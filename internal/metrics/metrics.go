package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus指标,通过Register注册后才会记录
var (
	regOK atomic.Bool

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hacksync",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "按最终状态统计的刷新运行次数",
		}, []string{"status"},
	)
	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hacksync",
			Subsystem: "pipeline",
			Name:      "attempts_total",
			Help:      "按结果统计的提取+替换尝试次数",
		}, []string{"result"},
	)
	rejectedRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hacksync",
			Subsystem: "pipeline",
			Name:      "rejected_runs_total",
			Help:      "因已有运行在进行而被拒绝的触发次数",
		},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hacksync",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "单次运行的总耗时,包含重试等待",
			Buckets:   []float64{5, 15, 30, 60, 120, 240, 480},
		},
	)
	extractionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hacksync",
			Subsystem: "extraction",
			Name:      "duration_seconds",
			Help:      "一次页面访问(导航、滚动、提取)的耗时",
			Buckets:   []float64{5, 10, 20, 40, 60, 90, 120},
		},
	)
	recordsExtracted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hacksync",
			Subsystem: "extraction",
			Name:      "records",
			Help:      "最近一次提取得到的记录数",
		},
	)
	recordsWritten = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hacksync",
			Subsystem: "store",
			Name:      "records",
			Help:      "最近一次刷新删除/插入的记录数",
		}, []string{"op"},
	)
	lastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hacksync",
			Subsystem: "pipeline",
			Name:      "last_success_timestamp_seconds",
			Help:      "最近一次成功刷新的Unix时间",
		},
	)
)

// Register 把全部指标注册到r
// 成功之后重复调用为空操作;已注册过的指标会被跳过
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{runsTotal, attemptsTotal, rejectedRuns, runDuration,
		extractionDuration, recordsExtracted, recordsWritten, lastSuccess}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler 暴露DefaultGatherer中的指标
func Handler() http.Handler { return promhttp.Handler() }

// 以下记录函数在Register成功之前什么都不做

// IncRun 记录一次结束的运行,status为succeeded或failed
func IncRun(status string) {
	if regOK.Load() {
		runsTotal.WithLabelValues(status).Inc()
	}
}

// IncAttempt 记录一次尝试的结果
func IncAttempt(succeeded bool) {
	if regOK.Load() {
		result := "failure"
		if succeeded {
			result = "success"
		}
		attemptsTotal.WithLabelValues(result).Inc()
	}
}

// IncRejected 记录一次被拒绝的并发触发
func IncRejected() {
	if regOK.Load() {
		rejectedRuns.Inc()
	}
}

// ObserveRunDuration 记录一次运行的总耗时(秒)
func ObserveRunDuration(seconds float64) {
	if regOK.Load() {
		runDuration.Observe(seconds)
	}
}

// ObserveExtraction 记录一次提取的耗时和记录数
func ObserveExtraction(seconds float64, records int) {
	if regOK.Load() {
		extractionDuration.Observe(seconds)
		recordsExtracted.Set(float64(records))
	}
}

// SetStoreCounts 最近一次刷新的删除数和插入数
func SetStoreCounts(deleted, inserted int64) {
	if regOK.Load() {
		recordsWritten.WithLabelValues("deleted").Set(float64(deleted))
		recordsWritten.WithLabelValues("inserted").Set(float64(inserted))
	}
}

// SetLastSuccess 最近一次成功刷新的时间
func SetLastSuccess(unixSeconds float64) {
	if regOK.Load() {
		lastSuccess.Set(unixSeconds)
	}
}
