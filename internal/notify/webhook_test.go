package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestWebhookSinkPostsEvent(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		received <- body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	event := Event{
		FromAccount: "01234",
		Amount:      decimal.NewFromInt(1000),
		Content:     "rent",
		NewBalance:  decimal.NewFromInt(11000),
	}
	if err := sink.Deliver(ctx, event); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	select {
	case body := <-received:
		var got Event
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("payload not json: %v", err)
		}
		if got.FromAccount != "01234" || !got.Amount.Equal(decimal.NewFromInt(1000)) ||
			got.Content != "rent" || !got.NewBalance.Equal(decimal.NewFromInt(11000)) {
			t.Fatalf("unexpected payload: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("callback never received the event")
	}
}

func TestWebhookSinkNon2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := sink.Deliver(ctx, Event{FromAccount: "01234"}); err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
}

func TestWebhookSinkUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	sink := NewWebhookSink(url)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := sink.Deliver(ctx, Event{FromAccount: "01234"}); err == nil {
		t.Fatalf("expected error for unreachable endpoint")
	}
}
