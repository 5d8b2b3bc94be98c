package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics agrupa las métricas del ciclo de vida de contratos.
// Todos los métodos toleran receptor nil.
type Metrics struct {
	Transitions         *prometheus.CounterVec
	RenderDuration      prometheus.Histogram
	DocumentsServed     *prometheus.CounterVec
	SignatureRejections *prometheus.CounterVec
}

// New registra las métricas en reg. Con un registry por instancia los tests no chocan
// con el registro global.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "isp_contract_transitions_total",
			Help: "Contract transition requests by edge and outcome",
		}, []string{"from", "to", "outcome"}),

		RenderDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "isp_contract_render_duration_seconds",
			Help:    "Duration of document render + signature embed",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		DocumentsServed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "isp_contract_documents_served_total",
			Help: "Documents served by source (cached, rendered, last_good, frozen)",
		}, []string{"source"}),

		SignatureRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "isp_contract_signature_rejections_total",
			Help: "Rejected signature payloads by violated rule",
		}, []string{"rule"}),
	}
}

func (m *Metrics) IncTransition(from, to, outcome string) {
	if m != nil {
		m.Transitions.WithLabelValues(from, to, outcome).Inc()
	}
}

func (m *Metrics) ObserveRender(d time.Duration) {
	if m != nil {
		m.RenderDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncDocumentServed(source string) {
	if m != nil {
		m.DocumentsServed.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) IncSignatureRejection(rule string) {
	if m != nil {
		m.SignatureRejections.WithLabelValues(rule).Inc()
	}
}
