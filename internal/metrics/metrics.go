package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"rifa-api/internal/store"
)

var requestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rifa_http_requests_total",
		Help: "HTTP requests by method, path and status.",
	},
	[]string{"method", "path", "status"},
)

func init() {
	prometheus.MustRegister(requestsTotal)
}

// Middleware counts every request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		requestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(ww.Status())).Inc()
	})
}

// TicketCollector exports the pool breakdown as gauges on scrape. The
// three gauges always sum to the pool size; a drifting sum means a
// ticket got counted in two states.
type TicketCollector struct {
	store store.Store
	log   zerolog.Logger
	desc  *prometheus.Desc
}

func NewTicketCollector(st store.Store, log zerolog.Logger) *TicketCollector {
	return &TicketCollector{
		store: st,
		log:   log,
		desc: prometheus.NewDesc(
			"rifa_tickets",
			"Ticket count by allocation state.",
			[]string{"status"}, nil,
		),
	}
}

func (c *TicketCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *TicketCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := c.store.CountTickets(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("no se pudieron contar los números para métricas")
		return
	}

	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts.Free), "free")
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts.Held), "held")
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts.Sold), "sold")
}
