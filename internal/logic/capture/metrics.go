package capture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "cycles_total",
		Namespace: "katanapush",
		Help:      "number of capture-upload cycles by result",
	}, []string{"result"})
	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:      "cycle_duration_seconds",
		Namespace: "katanapush",
		Help:      "time spent capturing and uploading one image",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	uploadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "uploaded_bytes_total",
		Namespace: "katanapush",
		Help:      "image bytes accepted by the upload server",
	})
	loopRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "loop_running",
		Namespace: "katanapush",
		Help:      "1 while a capture loop is running",
	})
)

func observe(o Outcome) {
	cyclesTotal.WithLabelValues(o.Result()).Inc()
	cycleDuration.Observe(o.Duration.Seconds())
	if o.OK() {
		uploadedBytes.Add(float64(o.ImageBytes))
	}
}
