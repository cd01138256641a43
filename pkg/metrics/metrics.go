package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API 服务注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		BatchItemsTotal, BatchInFlight, BatchItemDuration, BatchDrainedTotal,
		PollFetchTotal, PollDegraded,
	)
}

// BatchItemsTotal 批处理单元终态总数（按状态）
var BatchItemsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "abp_batch_items_total",
		Help: "批处理单元终态总数（按状态）",
	},
	[]string{"status"}, // completed | failed
)

// BatchInFlight 当前在途的批处理单元数
var BatchInFlight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "abp_batch_inflight",
		Help: "当前在途的批处理单元数",
	},
)

// BatchItemDuration 单元远程调用耗时（秒）
var BatchItemDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "abp_batch_item_duration_seconds",
		Help:    "单元远程调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind"},
)

// BatchDrainedTotal 批次跑空总数
var BatchDrainedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "abp_batch_drained_total",
		Help: "批次跑空总数",
	},
)

// PollFetchTotal 任务状态拉取总数（按结果）
var PollFetchTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "abp_poll_fetch_total",
		Help: "任务状态拉取总数（按结果）",
	},
	[]string{"outcome"}, // ok | error
)

// PollDegraded 处于降级状态的轮询器数量
var PollDegraded = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "abp_poll_degraded",
		Help: "处于降级状态的轮询器数量",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
