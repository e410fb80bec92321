package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds Prometheus collectors for the game engine.
type Recorder struct {
	registry *prometheus.Registry

	sessionsCreated prometheus.Counter
	sessionsActive  prometheus.Gauge
	playersJoined   prometheus.Counter
	answers         *prometheus.CounterVec
	rejected        prometheus.Counter
	rounds          prometheus.Counter
}

// NewRecorder registers the engine collectors on a private registry.
func NewRecorder(namespace string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		sessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of game sessions created",
		}),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of game sessions currently registered",
		}),
		playersJoined: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "players_joined_total",
			Help:      "Total number of players admitted to a lobby",
		}),
		answers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answers recorded, by correctness",
		}, []string{"correct"}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_rejected_total",
			Help:      "Answers rejected because the window was closed or the choice was invalid",
		}),
		rounds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_revealed_total",
			Help:      "Total number of rounds revealed",
		}),
	}
}

func (r *Recorder) SessionCreated() {
	r.sessionsCreated.Inc()
	r.sessionsActive.Inc()
}

func (r *Recorder) SessionRemoved() { r.sessionsActive.Dec() }

func (r *Recorder) PlayerJoined() { r.playersJoined.Inc() }

func (r *Recorder) AnswerRecorded(correct bool) {
	label := "false"
	if correct {
		label = "true"
	}
	r.answers.WithLabelValues(label).Inc()
}

func (r *Recorder) AnswerRejected() { r.rejected.Inc() }

func (r *Recorder) RoundRevealed() { r.rounds.Inc() }

// Handler serves the recorder's collectors in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
