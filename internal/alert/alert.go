// Package alert raises operator-facing warnings about accounts and data
// integrity.
package alert

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

type Notifier interface {
	Alert(ctx context.Context, kind, message string, fields map[string]string)
}

type LogNotifier struct {
	Log logrus.FieldLogger
}

func (n LogNotifier) Alert(_ context.Context, kind, message string, fields map[string]string) {
	log := n.Log.WithField("alert", kind)
	for k, v := range fields {
		log = log.WithField(k, v)
	}
	log.Warn(message)
}

// SentryNotifier sends alerts as Sentry messages tagged with kind and fields.
// sentry.Init must have been called.
type SentryNotifier struct{}

func (SentryNotifier) Alert(_ context.Context, kind, message string, fields map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTag("alert", kind)
		for k, v := range fields {
			scope.SetTag(k, v)
		}
		sentry.CaptureMessage(message)
	})
}

// Multi fans an alert out to every notifier.
type Multi []Notifier

func (m Multi) Alert(ctx context.Context, kind, message string, fields map[string]string) {
	for _, n := range m {
		n.Alert(ctx, kind, message, fields)
	}
}

var (
	_ Notifier = LogNotifier{}
	_ Notifier = SentryNotifier{}
	_ Notifier = Multi{}
)
