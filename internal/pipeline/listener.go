package pipeline

import (
	"forwardtest/internal/metrics"
	"forwardtest/internal/model"
	"forwardtest/internal/notification"
)

// runListener counts trades and, when notify is set, queues trade
// notifications. Enqueue is bounded by the dispatcher's MaxBlock, so the
// simulation never waits on delivery.
type runListener struct {
	n       *notification.Dispatcher
	metrics *metrics.Metrics
	notify  bool
}

func (l *runListener) OnEntry(pos model.Position, bar model.EnrichedBar, capital float64) {
	if l.notify {
		l.n.Enqueue(notification.TradeSignal(pos.Side, bar.Close, bar, capital))
	}
}

func (l *runListener) OnExit(t model.Trade, capital float64) {
	l.metrics.Trade(string(t.Side), string(t.Reason))
	if l.notify {
		l.n.Enqueue(notification.TradeClose(t.Side, t.PnLPct, t.Reason, capital))
	}
}
