package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const defaultDeliveryTimeout = 5 * time.Second

// Event describes an incoming transfer to the receiving account's subscriber.
type Event struct {
	FromAccount string          `json:"from_account"`
	Amount      decimal.Decimal `json:"amount"`
	Content     string          `json:"content"`
	NewBalance  decimal.Decimal `json:"new_balance"`
}

// Sink is a destination a transfer event can be delivered to, typically the
// subscriber's live callback endpoint.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// Hub tracks at most one live sink per account and delivers transfer events
// best effort: no queueing, no retry, at most once.
type Hub struct {
	mu      sync.Mutex
	sinks   map[string]Sink
	logger  *slog.Logger
	timeout time.Duration
}

// NewHub builds a hub. The timeout bounds each delivery attempt; zero selects
// the default.
func NewHub(logger *slog.Logger, timeout time.Duration) *Hub {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &Hub{sinks: make(map[string]Sink), logger: logger, timeout: timeout}
}

// Subscribe registers the sink for the account, replacing any prior one. A
// fresh login supersedes the previous session's subscription.
func (h *Hub) Subscribe(accountNumber string, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks[accountNumber] = sink
	h.logger.Info("subscriber registered", "account", accountNumber)
}

// Unsubscribe removes the account's sink. Calling it without an active
// subscription is a no-op.
func (h *Hub) Unsubscribe(accountNumber string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sinks[accountNumber]; ok {
		delete(h.sinks, accountNumber)
		h.logger.Info("subscriber removed", "account", accountNumber)
	}
}

// Notify delivers the event to the account's sink, if any. Delivery runs in
// its own goroutine and never blocks or fails the triggering operation. A
// delivery failure marks the sink dead and drops the subscription; the
// account stays silent until it resubscribes.
func (h *Hub) Notify(accountNumber string, event Event) {
	h.mu.Lock()
	sink := h.sinks[accountNumber]
	h.mu.Unlock()
	if sink == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		if err := sink.Deliver(ctx, event); err != nil {
			h.logger.Warn("notification delivery failed, dropping subscriber",
				"account", accountNumber, "error", err)
			h.mu.Lock()
			// Only prune if the failed sink is still the registered one; the
			// client may have resubscribed mid-delivery.
			if h.sinks[accountNumber] == sink {
				delete(h.sinks, accountNumber)
			}
			h.mu.Unlock()
		}
	}()
}
