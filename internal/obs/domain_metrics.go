package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutTotal counts checkout attempts by outcome (completed, failed kind).
	CheckoutTotal *prometheus.CounterVec
	// CheckoutStepDuration records processing step latency in milliseconds.
	CheckoutStepDuration *prometheus.HistogramVec
	// CouponValidationTotal counts coupon validations by result reason.
	CouponValidationTotal *prometheus.CounterVec
	// CouponUsageRecordTotal counts usage increments by result.
	CouponUsageRecordTotal *prometheus.CounterVec
	// InventoryAdjustmentsTotal counts cart lines clamped or dropped for stock.
	InventoryAdjustmentsTotal *prometheus.CounterVec
)

func init() {
	newDomainCollectors("toko")
}

func newDomainCollectors(namespace string) {
	CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_total",
		Help:      "Count of checkout attempts by result.",
	}, []string{"result"})
	CheckoutStepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "checkout_step_duration_ms",
		Help:      "Latency of checkout processing steps in milliseconds.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"step"})
	CouponValidationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "coupon_validation_total",
		Help:      "Count of coupon validations by reason.",
	}, []string{"reason"})
	CouponUsageRecordTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "coupon_usage_record_total",
		Help:      "Count of coupon usage increments by result.",
	}, []string{"result"})
	InventoryAdjustmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_adjustments_total",
		Help:      "Count of cart lines adjusted for stock by action.",
	}, []string{"action"})
}

// MustRegisterDomainMetrics registers the checkout collectors under namespace.
// Only the first call has any effect.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		if namespace != "toko" {
			newDomainCollectors(namespace)
		}
		CheckoutTotal = register(reg, CheckoutTotal)
		CheckoutStepDuration = register(reg, CheckoutStepDuration)
		CouponValidationTotal = register(reg, CouponValidationTotal)
		CouponUsageRecordTotal = register(reg, CouponUsageRecordTotal)
		InventoryAdjustmentsTotal = register(reg, InventoryAdjustmentsTotal)
	})
}

// ObserveStep records how long a checkout step took.
func ObserveStep(step string, started time.Time) {
	CheckoutStepDuration.WithLabelValues(step).Observe(DurationMillis(time.Since(started)))
}
