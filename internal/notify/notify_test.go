package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"crmaudit/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	return redis.NewIntResult(1, f.err)
}

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) Notify(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func sampleRecord() *models.AuditRecord {
	return &models.AuditRecord{
		ID:            "rec-1",
		Category:      models.CategorySecurityViolation,
		EntityType:    "SECURITY",
		EntityID:      "s-1",
		ActorID:       "u-1",
		ClientAddress: "203.0.113.9",
		Timestamp:     time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		category models.EventCategory
		want     Severity
	}{
		{models.CategorySecurityViolation, SeverityCritical},
		{models.CategoryCriticalError, SeverityCritical},
		{models.CategoryGDPRRequest, SeverityCritical},
		{models.CategoryPermissionDenied, SeverityWarning},
		{models.CategoryRetentionPurge, SeverityWarning},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			if got := SeverityFor(tt.category); got != tt.want {
				t.Errorf("SeverityFor(%s) = %s, want %s", tt.category, got, tt.want)
			}
		})
	}
}

func TestRedisSink_Notify(t *testing.T) {
	t.Run("publishes_json", func(t *testing.T) {
		pub := &fakePublisher{}
		sink := NewRedisSink(pub, "audit:security")

		if err := sink.Notify(context.Background(), EventFor(sampleRecord())); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
		if pub.channel != "audit:security" {
			t.Errorf("channel = %q", pub.channel)
		}
		var got Event
		if err := json.Unmarshal(pub.payload, &got); err != nil {
			t.Fatalf("payload is not JSON: %v", err)
		}
		if got.RecordID != "rec-1" || got.Severity != SeverityCritical {
			t.Errorf("unexpected payload: %+v", got)
		}
	})

	t.Run("publish_error", func(t *testing.T) {
		sink := NewRedisSink(&fakePublisher{err: errors.New("connection refused")}, "audit:security")
		err := sink.Notify(context.Background(), EventFor(sampleRecord()))
		if err == nil || !strings.Contains(err.Error(), "connection refused") {
			t.Fatalf("expected publish error, got %v", err)
		}
	})
}

func TestLogSink_Notify(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := NewLogSink(zap.New(core).Sugar())

	if err := sink.Notify(context.Background(), EventFor(sampleRecord())); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["record_id"]; got != "rec-1" {
		t.Errorf("record_id = %v, want rec-1", got)
	}
}

func TestMulti_Notify(t *testing.T) {
	ok := &recordingSink{}
	failing := &recordingSink{err: errors.New("sink down")}
	m := Multi{failing, nil, ok}

	err := m.Notify(context.Background(), EventFor(sampleRecord()))
	if err == nil || !strings.Contains(err.Error(), "sink down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.events) != 1 {
		t.Errorf("expected remaining sinks to be attempted, got %d events", len(ok.events))
	}
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), "not a url"); err == nil {
		t.Error("expected error for invalid url")
	}
}

// TestRedisSink_Integration requires a redis on localhost:6379.
func TestRedisSink_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := NewRedisClient(ctx, "redis://localhost:6379/0")
	if err != nil {
		t.Skip("Redis not available, skipping integration test")
	}
	defer client.Close()

	sub := client.Subscribe(ctx, "audit:test")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := NewRedisSink(client, "audit:test").Notify(ctx, EventFor(sampleRecord())); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage() error = %v", err)
	}
	if !strings.Contains(msg.Payload, `"record_id":"rec-1"`) {
		t.Errorf("unexpected payload: %s", msg.Payload)
	}
}
