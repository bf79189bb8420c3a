// Package operator exposes the operator surface spec §6 describes as
// "not part of the dispatch core, included for completeness":
// stop/start/reset a consumer group, and stats reporting.
package operator

import (
	"context"

	"go.eventlog.dev/core/internal/store"
)

type Operator struct {
	store store.Store
}

func New(s store.Store) *Operator { return &Operator{store: s} }

func (o *Operator) Stop(ctx context.Context, groupID, reason string) error {
	return o.store.StopConsumerGroup(ctx, groupID, reason)
}

func (o *Operator) Start(ctx context.Context, groupID string) error {
	return o.store.StartConsumerGroup(ctx, groupID)
}

func (o *Operator) Reset(ctx context.Context, groupID string) error {
	return o.store.ResetConsumerGroup(ctx, groupID)
}

func (o *Operator) Stats(ctx context.Context, groupID string) (*store.GroupStats, error) {
	return o.store.Stats(ctx, groupID)
}
