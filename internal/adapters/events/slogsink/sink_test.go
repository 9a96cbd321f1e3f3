package slogsink

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSink(level slog.Level) (*Sink, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level}))
	return NewSink(logger), &buf
}

func TestSinkWritesEventFields(t *testing.T) {
	t.Parallel()

	sink, buf := newTestSink(slog.LevelDebug)
	sink.Emit(context.Background(), domain.Event{
		Type:      domain.EventAccountTransition,
		Time:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		AccountID: "acc-1",
		From:      "active",
		To:        "cooling_down",
		Reason:    "rate_throttled",
	})

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "account.transition", record["msg"])
	assert.Equal(t, "account.transition", record["event"])
	assert.Equal(t, "acc-1", record["account_id"])
	assert.Equal(t, "active", record["from"])
	assert.Equal(t, "cooling_down", record["to"])
	assert.Equal(t, "rate_throttled", record["reason"])
	assert.Equal(t, "2026-03-01T12:00:00Z", record["at"])
	assert.NotContains(t, record, "campaign_id")
	assert.NotContains(t, record, "target_id")
}

func TestSinkLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event domain.Event
		want  string
	}{
		{name: "granted", event: domain.Event{Type: domain.EventAllocationGranted}, want: "DEBUG"},
		{name: "classified", event: domain.Event{Type: domain.EventErrorClassified}, want: "WARN"},
		{name: "sweep failed", event: domain.Event{Type: domain.EventRecoverySweepFailed}, want: "ERROR"},
		{name: "target succeeded", event: domain.Event{Type: domain.EventTargetOutcome, To: "succeeded"}, want: "INFO"},
		{name: "target failed", event: domain.Event{Type: domain.EventTargetOutcome, To: "failed_permanent"}, want: "WARN"},
		{name: "finished", event: domain.Event{Type: domain.EventCampaignFinished}, want: "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sink, buf := newTestSink(slog.LevelDebug)
			sink.Emit(context.Background(), tt.event)

			var record map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
			assert.Equal(t, tt.want, record["level"])
		})
	}
}

func TestSinkRespectsHandlerLevel(t *testing.T) {
	t.Parallel()

	sink, buf := newTestSink(slog.LevelInfo)
	sink.Emit(context.Background(), domain.Event{Type: domain.EventLeaseReleased, AccountID: "acc-1"})

	assert.Empty(t, buf.String())
}
