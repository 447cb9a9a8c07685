// Package metrics records Prometheus metrics for webhook deliveries, intent routing,
// LLM classifications and outbound sends.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is implemented by PrometheusRecorder and Nop.
type Recorder interface {
	ObserveWebhook(object, outcome string, messages int)
	IncIntent(tool, source string)
	ObserveClassification(model string, success bool, duration time.Duration)
	IncSend(provider, kind string, success bool)
	IncStageRejected(tool, stage string)
}

// PrometheusRecorder implements Recorder using Prometheus collectors.
type PrometheusRecorder struct {
	webhooksTotal      *prometheus.CounterVec
	messagesTotal      *prometheus.CounterVec
	intentsTotal       *prometheus.CounterVec
	classifyTotal      *prometheus.CounterVec
	classifyDuration   *prometheus.HistogramVec
	sendsTotal         *prometheus.CounterVec
	stageRejectedTotal *prometheus.CounterVec
}

// NewPrometheusRecorder registers the collectors with reg.
// A nil reg uses the default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		webhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderpipe_webhook_deliveries_total",
				Help: "Webhook deliveries by object type and outcome",
			},
			[]string{"object", "outcome"},
		),
		messagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderpipe_inbound_messages_total",
				Help: "Processable inbound messages by object type",
			},
			[]string{"object"},
		),
		intentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderpipe_intents_total",
				Help: "Routed intents by tool and routing source (interactive, keyword, llm, fallback)",
			},
			[]string{"tool", "source"},
		),
		classifyTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderpipe_llm_classifications_total",
				Help: "LLM intent classifications by model and status",
			},
			[]string{"model", "status"},
		),
		classifyDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orderpipe_llm_classification_duration_seconds",
				Help:    "Duration of LLM intent classifications in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		sendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderpipe_outbound_messages_total",
				Help: "Outbound messages by provider, kind and status",
			},
			[]string{"provider", "kind", "status"},
		),
		stageRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderpipe_stage_rejections_total",
				Help: "Intents rejected by the stage guard",
			},
			[]string{"tool", "stage"},
		),
	}
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// ObserveWebhook records one webhook delivery and the number of messages it carried.
func (p *PrometheusRecorder) ObserveWebhook(object, outcome string, messages int) {
	p.webhooksTotal.WithLabelValues(object, outcome).Inc()
	if messages > 0 {
		p.messagesTotal.WithLabelValues(object).Add(float64(messages))
	}
}

// IncIntent counts one routed intent.
func (p *PrometheusRecorder) IncIntent(tool, source string) {
	p.intentsTotal.WithLabelValues(tool, source).Inc()
}

// ObserveClassification records one LLM classification call.
func (p *PrometheusRecorder) ObserveClassification(model string, success bool, duration time.Duration) {
	p.classifyTotal.WithLabelValues(model, status(success)).Inc()
	p.classifyDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// IncSend counts one outbound message attempt.
func (p *PrometheusRecorder) IncSend(provider, kind string, success bool) {
	p.sendsTotal.WithLabelValues(provider, kind, status(success)).Inc()
}

// IncStageRejected counts one stage guard rejection.
func (p *PrometheusRecorder) IncStageRejected(tool, stage string) {
	p.stageRejectedTotal.WithLabelValues(tool, stage).Inc()
}

// Nop discards every observation.
type Nop struct{}

func (Nop) ObserveWebhook(string, string, int) {}
func (Nop) IncIntent(string, string) {}
func (Nop) ObserveClassification(string, bool, time.Duration) {}
func (Nop) IncSend(string, string, bool) {}
func (Nop) IncStageRejected(string, string) {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
