package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// WebhookSink posts transfer events as JSON to a callback URL registered by
// the subscriber.
type WebhookSink struct {
	URL string
}

// NewWebhookSink builds a sink targeting the given callback URL.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{URL: url}
}

// Deliver posts the event. Any transport error or non-2xx response counts as
// a failed delivery, which the hub answers by dropping the subscription.
func (s *WebhookSink) Deliver(ctx context.Context, event Event) error {
	agent := fiber.Post(s.URL)
	agent.JSON(event)
	if deadline, ok := ctx.Deadline(); ok {
		agent.Timeout(time.Until(deadline))
	}

	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("post callback %s: %w", s.URL, errs[0])
	}
	if code < 200 || code > 299 {
		return fmt.Errorf("callback %s returned status %d", s.URL, code)
	}
	return nil
}
