package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// POSMetrics содержит метрики терминала: черновики, сканирование, продажи и backend.
type POSMetrics struct {
	// Черновики
	draftsCreated   prometheus.Counter
	draftsDiscarded prometheus.Counter
	draftsRejected  prometheus.Counter
	openDrafts      prometheus.Gauge

	// Сканирование QR по результату (ok или код ошибки)
	qrScans *prometheus.CounterVec

	// Оформление продаж
	salesSubmitted   *prometheus.CounterVec
	salesFailed      prometheus.Counter
	checkoutDuration prometheus.Histogram

	// Вызовы backend
	backendRequests *prometheus.HistogramVec

	// Снимки черновиков
	snapshotWrites  *prometheus.CounterVec
	snapshotDropped prometheus.Counter
}

// NewPOSMetrics создаёт метрики в DefaultRegisterer.
func NewPOSMetrics() *POSMetrics {
	return NewPOSMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewPOSMetricsWithRegisterer создаёт метрики в заданном registerer (в тестах: отдельный registry).
func NewPOSMetricsWithRegisterer(registerer prometheus.Registerer) *POSMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &POSMetrics{
		draftsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_drafts_created_total",
			Help: "Total number of draft sales created",
		}),
		draftsDiscarded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_drafts_discarded_total",
			Help: "Total number of draft sales discarded or detached after checkout",
		}),
		draftsRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_drafts_rejected_total",
			Help: "Total number of draft creations rejected by the open drafts limit",
		}),
		openDrafts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "pos_open_drafts",
			Help: "Number of draft sales currently held by the terminal",
		}),
		qrScans: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pos_qr_scans_total",
			Help: "Total number of scanned QR payloads grouped by validation result",
		}, []string{"result"}),
		salesSubmitted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pos_sales_submitted_total",
			Help: "Total number of sales accepted by the backend grouped by payment method",
		}, []string{"method"}),
		salesFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_sales_failed_total",
			Help: "Total number of sales rejected by validation or the backend",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "pos_checkout_duration_seconds",
			Help:    "Duration of checkout including backend submission",
			Buckets: prometheus.DefBuckets,
		}),
		backendRequests: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "pos_backend_request_duration_seconds",
			Help:    "Duration of REST backend requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "route", "code"}),
		snapshotWrites: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pos_draft_snapshot_writes_total",
			Help: "Total number of draft snapshot writes grouped by result",
		}, []string{"result"}),
		snapshotDropped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_draft_snapshot_dropped_total",
			Help: "Total number of draft snapshots dropped because the queue was full",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// Методы ниже безопасны для nil-получателя: метрики у компонентов необязательны.

// RecordDraftCreated увеличивает счётчик созданных черновиков.
func (m *POSMetrics) RecordDraftCreated() {
	if m == nil {
		return
	}
	m.draftsCreated.Inc()
}

// RecordDraftsDiscarded увеличивает счётчик удалённых черновиков на n.
func (m *POSMetrics) RecordDraftsDiscarded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.draftsDiscarded.Add(float64(n))
}

// RecordDraftRejected фиксирует отказ в создании черновика из-за лимита.
func (m *POSMetrics) RecordDraftRejected() {
	if m == nil {
		return
	}
	m.draftsRejected.Inc()
}

// SetOpenDrafts выставляет текущее число черновиков.
func (m *POSMetrics) SetOpenDrafts(n int) {
	if m == nil {
		return
	}
	m.openDrafts.Set(float64(n))
}

// RecordQRScan увеличивает счётчик сканирований с результатом result.
func (m *POSMetrics) RecordQRScan(result string) {
	if m == nil {
		return
	}
	m.qrScans.WithLabelValues(result).Inc()
}

// RecordSaleSubmitted фиксирует успешно зарегистрированную продажу.
func (m *POSMetrics) RecordSaleSubmitted(method string) {
	if m == nil {
		return
	}
	m.salesSubmitted.WithLabelValues(method).Inc()
}

// RecordSaleFailed фиксирует неудачное оформление продажи.
func (m *POSMetrics) RecordSaleFailed() {
	if m == nil {
		return
	}
	m.salesFailed.Inc()
}

// RecordCheckoutDuration записывает длительность оформления продажи.
func (m *POSMetrics) RecordCheckoutDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordBackendRequest записывает длительность запроса к backend.
func (m *POSMetrics) RecordBackendRequest(method, route, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(method, route, code).Observe(duration.Seconds())
}

// RecordSnapshotWrite фиксирует результат записи снимка ("ok", "error", "deleted").
func (m *POSMetrics) RecordSnapshotWrite(result string) {
	if m == nil {
		return
	}
	m.snapshotWrites.WithLabelValues(result).Inc()
}

// RecordSnapshotDropped фиксирует снимок, выброшенный из-за переполненной очереди.
func (m *POSMetrics) RecordSnapshotDropped() {
	if m == nil {
		return
	}
	m.snapshotDropped.Inc()
}
