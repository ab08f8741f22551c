package dispatch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"loadsignal.dev/collector/internal/db"
)

func webhookSubscription(url, secret string) db.Subscription {
	cfg, _ := json.Marshal(WebhookConfig{URL: url, Secret: secret})
	return db.Subscription{
		ID:            "sub-1",
		Name:          "test",
		Channel:       "webhook",
		Frequency:     "realtime",
		Enabled:       true,
		ChannelConfig: datatypes.JSON(cfg),
	}
}

func shortBackoff(t *testing.T) {
	t.Helper()
	saved := webhookBackoff
	webhookBackoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	t.Cleanup(func() { webhookBackoff = saved })
}

func TestSignVerifiable(t *testing.T) {
	body := []byte(`{"id":"a1"}`)
	secret := "topsecret"

	got := Sign(body, secret)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	if got != want {
		t.Fatalf("signature %s != %s", got, want)
	}
}

func TestDeliverSignsAndPosts(t *testing.T) {
	secret := "s3cret"
	var received atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get(HeaderEvent) != EventArticleNew {
			t.Errorf("event header = %q", r.Header.Get(HeaderEvent))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get(HeaderSignature) != Sign(body, secret) {
			t.Error("signature does not verify against the body")
		}
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewWebhookSender(nil, 1, zerolog.Nop())
	sender.deliver(context.Background(), delivery{
		subscription: webhookSubscription(server.URL, secret),
		article:      sampleArticle(),
	})
	if received.Load() != 1 {
		t.Fatalf("received = %d, want 1", received.Load())
	}
}

func TestDeliverRetriesOnServerError(t *testing.T) {
	shortBackoff(t)
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewWebhookSender(nil, 1, zerolog.Nop())
	sender.deliver(context.Background(), delivery{
		subscription: webhookSubscription(server.URL, "s"),
		article:      sampleArticle(),
	})
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3 (500, 500, 200)", calls.Load())
	}
}

func TestDeliverGivesUpAfterThreeAttempts(t *testing.T) {
	shortBackoff(t)
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender := NewWebhookSender(nil, 1, zerolog.Nop())
	sender.deliver(context.Background(), delivery{
		subscription: webhookSubscription(server.URL, "s"),
		article:      sampleArticle(),
	})
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want exactly 3", calls.Load())
	}
}

func TestDeliverDoesNotRetryClientError(t *testing.T) {
	shortBackoff(t)
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sender := NewWebhookSender(nil, 1, zerolog.Nop())
	sender.deliver(context.Background(), delivery{
		subscription: webhookSubscription(server.URL, "s"),
		article:      sampleArticle(),
	})
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1 (4xx is terminal)", calls.Load())
	}
}

func TestDeliverMissingURL(t *testing.T) {
	sender := NewWebhookSender(nil, 1, zerolog.Nop())
	sub := webhookSubscription("", "s")
	// No URL: delivery is skipped without panicking.
	sender.deliver(context.Background(), delivery{subscription: sub, article: sampleArticle()})
}
