package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/rs/zerolog"
)

// TypeAlert is the notification type used for weather alerts.
const TypeAlert = 2

// Notification is a broadcast message for all eligible users.
type Notification struct {
	Title   string
	Message string
	Type    int
}

// Notifier delivers notifications. Delivery is best effort; callers log
// failures and move on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log. It is always enabled so
// alerts are visible without any delivery channel configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.log.Info().Str("title", n.Title).Int("type", n.Type).Msg(n.Message)
	return nil
}

// ShoutrrrNotifier pushes notifications to shoutrrr service URLs
// (smtp://, telegram://, generic webhooks, ...).
type ShoutrrrNotifier struct {
	urls []string
	send func(url, message string) error
}

func NewShoutrrrNotifier(urls []string) *ShoutrrrNotifier {
	clean := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			clean = append(clean, u)
		}
	}
	return &ShoutrrrNotifier{urls: clean, send: shoutrrr.Send}
}

func (s *ShoutrrrNotifier) Notify(ctx context.Context, n Notification) error {
	body := n.Message
	if n.Title != "" {
		body = n.Title + "\n" + n.Message
	}

	var errs []error
	for _, u := range s.urls {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.send(u, body); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", scheme(u), err))
		}
	}
	return errors.Join(errs...)
}

// Multi fans a notification out to every notifier.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// scheme keeps credentials embedded in service URLs out of error messages.
func scheme(u string) string {
	if i := strings.Index(u, "://"); i > 0 {
		return u[:i]
	}
	return "unknown"
}
