// Package notify delivers achievement activities outside the service.
package notify

import (
	"context"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"github.com/golang/glog"
)

// LogNotifier writes activities to the glog info log.
type LogNotifier struct{}

var _ app.Notifier = LogNotifier{}

func (LogNotifier) Notify(_ context.Context, a domain.Activity) error {
	glog.Infof("activity %s user=%s subject=%s: %s", a.Kind, a.UserID, a.SubjectID, a.Message)
	return nil
}

// Multi fans out to every notifier and returns the first error after trying all.
type Multi []app.Notifier

func (m Multi) Notify(ctx context.Context, a domain.Activity) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil && first == nil {
			first = err
		}
	}
	return first
}
