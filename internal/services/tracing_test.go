package services

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"crmaudit/internal/testutil"
)

func withSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return recorder
}

func spanNamed(recorder *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	for _, span := range recorder.Ended() {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

func TestServiceSpans(t *testing.T) {
	ctx := context.Background()
	now := testutil.BaseTime.Add(time.Hour)

	t.Run("verify_chain_and_dashboard", func(t *testing.T) {
		recorder := withSpanRecorder(t)
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestQueryService(db, now)
		testutil.CreateTestChain(t, db, 2, testutil.BaseTime)

		_, err := svc.VerifyChain(ctx, testutil.BaseTime, now)
		testutil.AssertNoError(t, err)
		_, err = svc.Dashboard(ctx)
		testutil.AssertNoError(t, err)

		verify := spanNamed(recorder, "audit.verify_chain")
		if verify == nil {
			t.Fatal("expected an audit.verify_chain span")
		}
		var storeChild bool
		for _, span := range recorder.Ended() {
			if span.Parent().SpanID() == verify.SpanContext().SpanID() {
				storeChild = true
			}
		}
		if !storeChild {
			t.Error("store spans should be children of the verification span")
		}
		if spanNamed(recorder, "audit.dashboard") == nil {
			t.Error("expected an audit.dashboard span")
		}
	})

	t.Run("purge_error_recorded", func(t *testing.T) {
		recorder := withSpanRecorder(t)
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc, _ := newTestRetentionService(t, db)

		_, err := svc.Purge(ctx, time.Now().Add(time.Hour), true)
		testutil.AssertAppError(t, err, "INVALID_PURGE_CUTOFF")

		span := spanNamed(recorder, "audit.retention_purge")
		if span == nil {
			t.Fatal("expected an audit.retention_purge span")
		}
		if span.Status().Code != codes.Error {
			t.Errorf("span status = %v, want Error", span.Status().Code)
		}
	})
}
