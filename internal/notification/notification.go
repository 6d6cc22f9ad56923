// Package notification sends operator alerts through shoutrrr service URLs.
package notification

import (
	"context"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/logger"
)

// DefaultTimeout bounds one send when none is configured
const DefaultTimeout = 10 * time.Second

// Notifier delivers a titled message to the operator
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// sendFunc matches router.ServiceRouter.Send
type sendFunc func(message string, params *stypes.Params) []error

// ShoutrrrNotifier fans a message out to every configured service URL.
type ShoutrrrNotifier struct {
	node    string
	urls    []string
	timeout time.Duration
	send    sendFunc
	log     logger.Logger
}

// GetLogger returns the notification module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("notification")
}

// NewShoutrrrNotifier builds a notifier for settings.URLs. With no URLs the
// notifier is disabled and Notify is a no-op.
func NewShoutrrrNotifier(settings conf.NotificationSettings, node string) (*ShoutrrrNotifier, error) {
	n := &ShoutrrrNotifier{
		node:    strings.TrimSpace(node),
		urls:    slices.Clone(settings.URLs),
		timeout: settings.Timeout,
		log:     GetLogger(),
	}
	if n.timeout <= 0 {
		n.timeout = DefaultTimeout
	}
	if len(n.urls) == 0 {
		return n, nil
	}

	sender, err := shoutrrr.CreateSender(n.urls...)
	if err != nil {
		return nil, errors.New(scrub(err)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("url_count", len(n.urls)).
			Build()
	}
	sender.Timeout = n.timeout
	sender.SetLogger(log.New(io.Discard, "", 0))
	n.send = sender.Send
	return n, nil
}

// Enabled reports whether any service URL is configured.
func (n *ShoutrrrNotifier) Enabled() bool {
	return n != nil && n.send != nil
}

// Notify sends message to all services. The first failure is returned with
// service credentials scrubbed.
func (n *ShoutrrrNotifier) Notify(ctx context.Context, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if n.node != "" {
		title = "[" + n.node + "] " + title
	}
	params := stypes.Params{}
	params.SetTitle(title)

	start := time.Now()
	for _, err := range n.send(message, &params) {
		if err == nil {
			continue
		}
		return errors.New(scrub(err)).
			Component("notification").
			Category(errors.CategoryNotification).
			Context("title", title).
			Timing("notify", time.Since(start)).
			Build()
	}

	n.log.Debug("notification sent",
		logger.String("title", title),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// scrub drops tokens and passwords that shoutrrr errors tend to echo back
func scrub(err error) error {
	return errors.NewStd(errors.ScrubCredentials(err.Error()))
}
