package checkout

import (
	"context"

	"go.uber.org/zap"

	"github.com/xenking/pos-checkout/internal/domain/inventory"
	"github.com/xenking/pos-checkout/internal/domain/order"
)

// AlertSink receives compensation failures for operator follow-up. A failed
// release after a declined charge means stock is still held for an order that
// will never settle; someone has to reconcile it by hand, so these events must
// not vanish into a debug log.
type AlertSink interface {
	CompensationFailed(ctx context.Context, ord order.Order, token inventory.ReservationToken, cause error)
}

// LogAlertSink reports compensation failures at error level on a dedicated
// logger, which operators route to an alerting pipeline.
type LogAlertSink struct {
	lg *zap.Logger
}

// NewLogAlertSink creates a LogAlertSink on the given logger.
func NewLogAlertSink(lg *zap.Logger) *LogAlertSink {
	return &LogAlertSink{lg: lg}
}

func (s *LogAlertSink) CompensationFailed(_ context.Context, ord order.Order, token inventory.ReservationToken, cause error) {
	s.lg.Error("compensation failed, inventory may still be held",
		zap.String("order_id", ord.ID),
		zap.String("reservation_token", string(token)),
		zap.Error(cause),
	)
}
