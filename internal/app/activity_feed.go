package app

import (
	"context"
	"time"

	"assessment-service/internal/domain"
	"github.com/golang/glog"
	"github.com/google/uuid"
)

// Notifier delivers achievements outside the service (log, e-mail).
type Notifier interface {
	Notify(ctx context.Context, a domain.Activity) error
}

// ActivityFeed appends achievements inside the originating transaction and
// notifies after commit. Notification failures never fail the operation.
type ActivityFeed struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

func NewActivityFeed(store Store, notifier Notifier) *ActivityFeed {
	return &ActivityFeed{store: store, notifier: notifier, now: time.Now}
}

// WithClock is test-only for deterministic timestamps.
func (f *ActivityFeed) WithClock(now func() time.Time) *ActivityFeed {
	f.now = now
	return f
}

// record appends an activity to tx and returns it for delivery.
func (f *ActivityFeed) record(ctx context.Context, tx Tx, kind domain.ActivityKind, userID, subjectID, msg string) (domain.Activity, error) {
	a := domain.Activity{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		SubjectID: subjectID,
		Message:   msg,
		CreatedAt: f.now(),
	}
	return a, tx.InsertActivity(ctx, a)
}

func (f *ActivityFeed) deliver(ctx context.Context, activities []domain.Activity) {
	if f.notifier == nil {
		return
	}
	for _, a := range activities {
		if err := f.notifier.Notify(ctx, a); err != nil {
			glog.Warningf("notify %s for user %s: %v", a.Kind, a.UserID, err)
		}
	}
}

// List returns the caller's most recent activities, newest first.
func (f *ActivityFeed) List(ctx context.Context, actor domain.Actor, limit int) ([]domain.Activity, error) {
	switch {
	case limit <= 0:
		limit = 20
	case limit > 100:
		limit = 100
	}
	var out []domain.Activity
	err := f.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Activities(ctx, actor.UserID, limit)
		return err
	})
	return out, err
}
