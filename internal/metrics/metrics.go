// Package metrics exposes Prometheus collectors for the image crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal         *prometheus.CounterVec
	crawlerPicturesTotal      *prometheus.CounterVec
	crawlerPictureBytesTotal  prometheus.Counter
	crawlerHarvestRoundsTotal prometheus.Counter
	crawlerActiveWorkers      prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times. Observations made before
// Init are dropped.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of content pages visited, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		crawlerPicturesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pictures_total",
				Help: "Total number of picture URLs processed, labeled by result.",
			},
			[]string{"result"},
		)

		crawlerPictureBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_picture_bytes_total",
				Help: "Total number of encoded picture bytes written to blob storage.",
			},
		)

		crawlerHarvestRoundsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_harvest_rounds_total",
				Help: "Total number of non-empty harvest rounds dispatched to the worker pool.",
			},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of workers currently processing a picture.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ResultLabel reduces a failure tag to a bounded label value.
// An empty tag means success.
func ResultLabel(tag string) string {
	if tag == "" {
		return "ok"
	}
	if idx := strings.IndexByte(tag, ':'); idx > 0 {
		return tag[:idx]
	}
	return tag
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts a visited content page.
func ObservePage(pageURL, tag string) {
	if crawlerPagesTotal == nil {
		return
	}
	crawlerPagesTotal.WithLabelValues(SanitizeSite(pageURL), ResultLabel(tag)).Inc()
}

// ObservePicture counts a processed picture URL.
func ObservePicture(tag string) {
	if crawlerPicturesTotal == nil {
		return
	}
	crawlerPicturesTotal.WithLabelValues(ResultLabel(tag)).Inc()
}

// ObservePictureBytes adds stored bytes to the byte counter.
func ObservePictureBytes(n int) {
	if crawlerPictureBytesTotal == nil || n <= 0 {
		return
	}
	crawlerPictureBytesTotal.Add(float64(n))
}

// ObserveHarvestRound counts a dispatched harvest round.
func ObserveHarvestRound() {
	if crawlerHarvestRoundsTotal == nil {
		return
	}
	crawlerHarvestRoundsTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if crawlerActiveWorkers == nil {
		return
	}
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if crawlerActiveWorkers == nil {
		return
	}
	crawlerActiveWorkers.Dec()
}
