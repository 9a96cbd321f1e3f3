// Package slogsink writes pool events as structured log records.
package slogsink

import (
	"context"
	"log/slog"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
)

type Sink struct {
	logger *slog.Logger
}

var _ ports.EventSink = (*Sink)(nil)

func NewSink(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger}
}

func (s *Sink) Emit(ctx context.Context, event domain.Event) {
	attrs := []slog.Attr{slog.String("event", string(event.Type))}
	if !event.Time.IsZero() {
		attrs = append(attrs, slog.Time("at", event.Time))
	}
	attrs = appendNonEmpty(attrs, "account_id", string(event.AccountID))
	attrs = appendNonEmpty(attrs, "from", event.From)
	attrs = appendNonEmpty(attrs, "to", event.To)
	attrs = appendNonEmpty(attrs, "reason", event.Reason)
	attrs = appendNonEmpty(attrs, "campaign_id", string(event.CampaignID))
	attrs = appendNonEmpty(attrs, "target_id", string(event.TargetID))

	s.logger.LogAttrs(ctx, levelOf(event), string(event.Type), attrs...)
}

// levelOf keeps per-lease chatter at debug and surfaces penalties and failures.
func levelOf(event domain.Event) slog.Level {
	switch event.Type {
	case domain.EventAllocationGranted, domain.EventLeaseReleased, domain.EventLedgerDailyReset:
		return slog.LevelDebug
	case domain.EventErrorClassified, domain.EventAllocationExhausted:
		return slog.LevelWarn
	case domain.EventRecoverySweepFailed:
		return slog.LevelError
	case domain.EventTargetOutcome:
		if event.To == string(domain.TargetStateFailedPermanent) {
			return slog.LevelWarn
		}
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

func appendNonEmpty(attrs []slog.Attr, key, value string) []slog.Attr {
	if value == "" {
		return attrs
	}
	return append(attrs, slog.String(key, value))
}
