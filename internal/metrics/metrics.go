// Package metrics holds the Prometheus collectors for the issuer and the
// devnet. Collectors are registered lazily on first use.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fizzcaps"

type registry struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	vouchers     prometheus.Counter
	throttles    *prometheus.CounterVec
	transactions *prometheus.CounterVec
	relay        *prometheus.CounterVec
}

var (
	once sync.Once
	reg  *registry
)

func get() *registry {
	once.Do(func() {
		reg = &registry{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP handler latency.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			vouchers: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "issuer",
				Name:      "vouchers_issued_total",
				Help:      "Loot vouchers signed and returned to players.",
			}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "issuer",
				Name:      "throttles_total",
				Help:      "Voucher requests rejected by cooldown or rate limit.",
			}, []string{"reason"}),
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "transactions_total",
				Help:      "Transactions processed by the devnet, by outcome and error code.",
			}, []string{"outcome", "code"}),
			relay: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "messages_total",
				Help:      "Queued transactions handled by the relay consumer.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			reg.requests,
			reg.latency,
			reg.vouchers,
			reg.throttles,
			reg.transactions,
			reg.relay,
		)
	})
	return reg
}

// Middleware records request count and latency per matched route.
func Middleware() gin.HandlerFunc {
	r := get()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		r.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	get()
	return gin.WrapH(promhttp.Handler())
}

func VoucherIssued() { get().vouchers.Inc() }

// Throttled counts a rejected voucher request. reason is "cooldown" or "rate_limit".
func Throttled(reason string) { get().throttles.WithLabelValues(reason).Inc() }

// TransactionProcessed counts one devnet transaction. code is the custom
// program error code when the failure carried one.
func TransactionProcessed(err error, code uint32, hasCode bool) {
	outcome, label := "committed", ""
	if err != nil {
		outcome = "failed"
		if hasCode {
			label = strconv.FormatUint(uint64(code), 10)
		}
	}
	get().transactions.WithLabelValues(outcome, label).Inc()
}

// Relayed counts one queue message by outcome: submitted, failed, retry or dead_letter.
func Relayed(outcome string) { get().relay.WithLabelValues(outcome).Inc() }
