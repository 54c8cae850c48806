package bus

import "sync/atomic"

type MetricsSnapshot struct {
	Subscriptions int64
	Published     int64
	Delivered     int64
	Failed        int64
}

// Metrics counts bus traffic. All methods are safe for concurrent use.
type Metrics struct {
	subscriptions atomic.Int64
	published     atomic.Int64
	delivered     atomic.Int64
	failed        atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordSubscription(delta int) {
	m.subscriptions.Add(int64(delta))
}

func (m *Metrics) RecordPublished() {
	m.published.Add(1)
}

func (m *Metrics) RecordDelivered() {
	m.delivered.Add(1)
}

func (m *Metrics) RecordFailed() {
	m.failed.Add(1)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Subscriptions: m.subscriptions.Load(),
		Published:     m.published.Load(),
		Delivered:     m.delivered.Load(),
		Failed:        m.failed.Load(),
	}
}
