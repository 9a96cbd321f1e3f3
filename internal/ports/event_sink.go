package ports

import (
	"context"

	"github.com/bnema/outreach-pool/internal/domain"
)

type EventSink interface {
	Emit(ctx context.Context, event domain.Event)
}

type NopEventSink struct{}

func (NopEventSink) Emit(context.Context, domain.Event) {}
