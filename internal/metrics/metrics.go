// Package metrics exposes the monitor's counters in Prometheus text
// exposition format at /metrics, without pulling in a full metrics SDK.
// Families are built directly from the exposition model and encoded on
// each scrape.
package metrics

import (
	"net/http"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/sourcewatch/sourcewatch/internal/scheduler"
)

// Collector accumulates run counters and serves them as a Prometheus
// scrape target. Safe for concurrent use.
type Collector struct {
	mu            sync.Mutex
	runsTotal     float64
	checksTotal   float64
	resultsByStat map[string]float64
	alertsCreated float64
	digestsSent   float64
	digestsFailed float64
	lastRunUnix   float64
}

// New returns an empty Collector.
func New() *Collector {
	return &Collector{
		resultsByStat: map[string]float64{"ok": 0, "warning": 0, "error": 0},
	}
}

// RecordRun folds one completed run summary into the counters.
func (c *Collector) RecordRun(sum scheduler.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runsTotal++
	c.checksTotal += float64(sum.TotalChecks)
	c.resultsByStat["ok"] += float64(sum.OKCount)
	c.resultsByStat["warning"] += float64(sum.WarningCount)
	c.resultsByStat["error"] += float64(sum.ErrorCount)
	c.alertsCreated += float64(len(sum.NewAlerts))
	if sum.DigestSent {
		c.digestsSent++
	}
	if sum.DigestFailed {
		c.digestsFailed++
	}
	c.lastRunUnix = float64(sum.FinishedAt.Unix())
}

// ServeHTTP renders all metric families in text exposition format.
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	families := c.families()

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return
		}
	}
}

func (c *Collector) families() []*dto.MetricFamily {
	c.mu.Lock()
	defer c.mu.Unlock()

	results := &dto.MetricFamily{
		Name: proto.String("sourcewatch_check_results_total"),
		Help: proto.String("Check results by status."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, status := range []string{"ok", "warning", "error"} {
		results.Metric = append(results.Metric, &dto.Metric{
			Label: []*dto.LabelPair{{
				Name:  proto.String("status"),
				Value: proto.String(status),
			}},
			Counter: &dto.Counter{Value: proto.Float64(c.resultsByStat[status])},
		})
	}

	return []*dto.MetricFamily{
		counter("sourcewatch_runs_total", "Completed check runs.", c.runsTotal),
		counter("sourcewatch_checks_total", "Individual checks executed.", c.checksTotal),
		results,
		counter("sourcewatch_alerts_created_total", "Alerts created after deduplication.", c.alertsCreated),
		counter("sourcewatch_digests_sent_total", "Alert digests delivered by email.", c.digestsSent),
		counter("sourcewatch_digests_failed_total", "Alert digest deliveries that failed.", c.digestsFailed),
		gauge("sourcewatch_last_run_timestamp_seconds", "Unix time of the last completed run.", c.lastRunUnix),
	}
}

func counter(name, help string, value float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(value)}}},
	}
}

func gauge(name, help string, value float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(value)}}},
	}
}
