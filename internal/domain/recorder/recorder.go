// Package recorder appends user interactions to the persisted profile,
// enforcing the retention caps.
package recorder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/showcase/internal/domain/model"
	"github.com/okian/showcase/pkg/logger"
	"github.com/okian/showcase/pkg/metrics"
)

// Store serializes read-modify-write cycles on one profile.
type Store interface {
	Update(ctx context.Context, userID string, reason model.ChangeReason, fn func(p *model.Profile)) model.Profile
}

// CategoryResolver maps an item id to its catalog category.
type CategoryResolver interface {
	Category(itemID string) (string, bool)
}

type noCategories struct{}

func (noCategories) Category(string) (string, bool) { return "", false }

// Option applies a configuration option to the Recorder.
type Option func(*Recorder)

// WithResolver sets the resolver used to bump category preferences.
func WithResolver(r CategoryResolver) Option {
	return func(rec *Recorder) {
		if r != nil {
			rec.resolver = r
		}
	}
}

// WithLimits sets the retention caps.
func WithLimits(l model.Limits) Option {
	return func(rec *Recorder) {
		if l.History > 0 {
			rec.limits.History = l.History
		}
		if l.Interactions > 0 {
			rec.limits.Interactions = l.Interactions
		}
	}
}

// WithClock sets the time source for interaction timestamps.
func WithClock(now func() time.Time) Option {
	return func(rec *Recorder) {
		if now != nil {
			rec.now = now
		}
	}
}

// WithLogger sets the recorder logger.
func WithLogger(l logger.Logger) Option {
	return func(rec *Recorder) {
		if l != nil {
			rec.logger = l
		}
	}
}

// Recorder records interactions.
type Recorder struct {
	store    Store
	resolver CategoryResolver
	limits   model.Limits
	now      func() time.Time
	logger   logger.Logger
}

// New creates a Recorder writing through store.
func New(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:    store,
		resolver: noCategories{},
		limits:   model.DefaultLimits(),
		now:      time.Now,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends {itemID, action, now} to the interactions of userID, adds
// itemID to the browsing history if it is not there yet, bumps the item's
// category preference and persists the profile. Only contract violations are
// returned; persistence failures are handled by the store.
func (r *Recorder) Record(ctx context.Context, userID, itemID string, action model.Action) error {
	return r.RecordAt(ctx, userID, itemID, action, time.Time{})
}

// RecordAt is Record with the interaction stamped at. A zero at means now.
// The last visit always uses the recorder clock.
func (r *Recorder) RecordAt(ctx context.Context, userID, itemID string, action model.Action, at time.Time) error {
	if strings.TrimSpace(itemID) == "" {
		return r.reject(ctx, userID, "empty_item", ErrInvalidItem)
	}
	if !action.Valid() {
		return r.reject(ctx, userID, "invalid_action", fmt.Errorf("%w: %q", ErrInvalidAction, action))
	}

	var evictedInteractions, evictedHistory int
	category, known := r.resolver.Category(itemID)
	now := r.now()
	if at.IsZero() {
		at = now
	}

	r.store.Update(ctx, userID, model.ChangeInteraction, func(p *model.Profile) {
		evictedInteractions = p.AppendInteraction(model.Interaction{
			ItemID:    itemID,
			Action:    action,
			Timestamp: at.UnixMilli(),
		}, r.limits.Interactions)
		_, evictedHistory = p.AddToHistory(itemID, r.limits.History)
		if known {
			p.PreferCategory(category)
		}
		p.Touch(now)
	})

	metrics.RecordInteraction(string(action))
	metrics.RecordInteractionsEvicted(evictedInteractions)
	metrics.RecordHistoryEvicted(evictedHistory)
	r.logger.Debug(ctx, "interaction recorded",
		logger.UserID(userID),
		logger.String("item_id", itemID),
		logger.String("action", string(action)),
	)
	return nil
}

func (r *Recorder) reject(ctx context.Context, userID, reason string, err error) error {
	metrics.RecordInteractionRejected(reason)
	r.logger.Warn(ctx, "interaction rejected", logger.UserID(userID), logger.Error(err))
	return err
}
