package application

import (
	"context"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
)

func emit(ctx context.Context, sink ports.EventSink, clock ports.Clock, event domain.Event) {
	if sink == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = clock.Now()
	}
	sink.Emit(context.WithoutCancel(ctx), event)
}

func orNopSink(sink ports.EventSink) ports.EventSink {
	if sink == nil {
		return ports.NopEventSink{}
	}
	return sink
}

func orSystemClock(clock ports.Clock) ports.Clock {
	if clock == nil {
		return ports.SystemClock{}
	}
	return clock
}
