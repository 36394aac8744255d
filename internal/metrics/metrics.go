package metrics

import (
	"context"
	"sync"

	"github.com/prohmpiriya/ticket-storefront/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Sale counters
	SalesCreated   *telemetry.Counter
	SalesConfirmed *telemetry.Counter
	SalesExpired   *telemetry.Counter
	SalesCancelled *telemetry.Counter
	SalesFailed    *telemetry.Counter

	// Inventory counters
	UnitsReserved *telemetry.Counter
	UnitsReleased *telemetry.Counter

	// Side-effect tracking
	NotificationsFailed *telemetry.Counter
	RemindersSent       *telemetry.Counter
	CASConflicts        *telemetry.Counter

	// Histograms
	PurchaseDuration     *telemetry.Histogram
	ConfirmationDuration *telemetry.Histogram

	// Gauges
	PendingSales *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all sales metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	counters := []struct {
		target **telemetry.Counter
		opts   telemetry.MetricOpts
	}{
		{&SalesCreated, telemetry.MetricOpts{Name: "storefront_sales_created_total", Description: "Total number of sales created", Unit: "1"}},
		{&SalesConfirmed, telemetry.MetricOpts{Name: "storefront_sales_confirmed_total", Description: "Total number of sales whose payment was confirmed", Unit: "1"}},
		{&SalesExpired, telemetry.MetricOpts{Name: "storefront_sales_expired_total", Description: "Total number of sales whose payment expired", Unit: "1"}},
		{&SalesCancelled, telemetry.MetricOpts{Name: "storefront_sales_cancelled_total", Description: "Total number of cancelled sales", Unit: "1"}},
		{&SalesFailed, telemetry.MetricOpts{Name: "storefront_purchase_failures_total", Description: "Total number of failed purchases by reason", Unit: "1"}},
		{&UnitsReserved, telemetry.MetricOpts{Name: "storefront_units_reserved_total", Description: "Ticket units reserved", Unit: "1"}},
		{&UnitsReleased, telemetry.MetricOpts{Name: "storefront_units_released_total", Description: "Ticket units released back to inventory", Unit: "1"}},
		{&NotificationsFailed, telemetry.MetricOpts{Name: "storefront_notification_failures_total", Description: "Sale events that could not be published", Unit: "1"}},
		{&RemindersSent, telemetry.MetricOpts{Name: "storefront_reminders_total", Description: "Payment reminders emitted", Unit: "1"}},
		{&CASConflicts, telemetry.MetricOpts{Name: "storefront_state_conflicts_total", Description: "Lost compare-and-swap races on sale state", Unit: "1"}},
	}
	for _, c := range counters {
		if *c.target, err = telemetry.NewCounter(c.opts); err != nil {
			return err
		}
	}

	PurchaseDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "storefront_purchase_duration_seconds",
		Description: "Duration of the purchase flow",
		Unit:        "s",
	}, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}) // 5ms to 10s
	if err != nil {
		return err
	}

	ConfirmationDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "storefront_confirmation_delay_seconds",
		Description: "Time from sale creation to payment confirmation",
		Unit:        "s",
	}, []float64{1, 10, 60, 300, 900, 1800, 3600, 86400, 259200}) // 1s to 3 days
	if err != nil {
		return err
	}

	PendingSales, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "storefront_pending_sales",
		Description: "Current number of sales awaiting payment",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordSaleCreated records a created sale
func RecordSaleCreated(ctx context.Context, ticketTypeID, method string, quantity int, durationSeconds float64) {
	if SalesCreated != nil {
		SalesCreated.Inc(ctx,
			attribute.String("ticket_type_id", ticketTypeID),
			attribute.String("payment_method", method),
		)
	}
	if UnitsReserved != nil {
		UnitsReserved.Add(ctx, int64(quantity), attribute.String("ticket_type_id", ticketTypeID))
	}
	if PurchaseDuration != nil {
		PurchaseDuration.Record(ctx, durationSeconds, attribute.String("payment_method", method))
	}
	if PendingSales != nil {
		PendingSales.Inc(ctx)
	}
}

// RecordPurchaseFailure records a purchase that did not produce a sale
func RecordPurchaseFailure(ctx context.Context, method, reason string) {
	if SalesFailed != nil {
		SalesFailed.Inc(ctx,
			attribute.String("payment_method", method),
			attribute.String("reason", reason),
		)
	}
}

// RecordConfirmation records a confirmed payment
func RecordConfirmation(ctx context.Context, method string, delaySeconds float64) {
	if SalesConfirmed != nil {
		SalesConfirmed.Inc(ctx, attribute.String("payment_method", method))
	}
	if ConfirmationDuration != nil {
		ConfirmationDuration.Record(ctx, delaySeconds, attribute.String("payment_method", method))
	}
	if PendingSales != nil {
		PendingSales.Dec(ctx)
	}
}

// RecordExpiration records an expired payment
func RecordExpiration(ctx context.Context, method string) {
	if SalesExpired != nil {
		SalesExpired.Inc(ctx, attribute.String("payment_method", method))
	}
	if PendingSales != nil {
		PendingSales.Dec(ctx)
	}
}

// RecordCancellation records a cancelled sale
func RecordCancellation(ctx context.Context, method string) {
	if SalesCancelled != nil {
		SalesCancelled.Inc(ctx, attribute.String("payment_method", method))
	}
	if PendingSales != nil {
		PendingSales.Dec(ctx)
	}
}

// RecordRelease records units handed back to the ledger
func RecordRelease(ctx context.Context, ticketTypeID string, quantity int) {
	if UnitsReleased != nil {
		UnitsReleased.Add(ctx, int64(quantity), attribute.String("ticket_type_id", ticketTypeID))
	}
}

// RecordNotificationFailure records a swallowed notification error
func RecordNotificationFailure(ctx context.Context, kind string) {
	if NotificationsFailed != nil {
		NotificationsFailed.Inc(ctx, attribute.String("kind", kind))
	}
}

// RecordReminder records an emitted reminder
func RecordReminder(ctx context.Context) {
	if RemindersSent != nil {
		RemindersSent.Inc(ctx)
	}
}

// RecordConflict records a lost compare-and-swap
func RecordConflict(ctx context.Context, operation string) {
	if CASConflicts != nil {
		CASConflicts.Inc(ctx, attribute.String("operation", operation))
	}
}
