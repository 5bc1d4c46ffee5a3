// Package notify sends desktop notifications when a generation finishes.
package notify

import (
	"fmt"

	"github.com/aschepis/backscratcher/compgen/generator"
	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
)

// Notifier posts desktop notifications.
type Notifier struct {
	send   func(title, message string) error
	logger zerolog.Logger
}

// New creates a Notifier backed by the system notification service.
func New(logger zerolog.Logger) *Notifier {
	return &Notifier{
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		logger: logger.With().Str("component", "notifier").Logger(),
	}
}

// Result announces a generation result. Failures to notify are logged and
// returned; they never affect the result itself.
func (n *Notifier) Result(r *generator.Result) error {
	title, message := format(r)
	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Str("title", title).Msg("Failed to send desktop notification")
		return fmt.Errorf("send notification: %w", err)
	}
	n.logger.Debug().Str("title", title).Msg("Sent desktop notification")
	return nil
}

func format(r *generator.Result) (string, string) {
	if r.Status == generator.StatusSuccess {
		message := fmt.Sprintf("%s: %d files", r.ComponentName, len(r.GeneratedFiles))
		if r.Model != "" {
			message += " (" + r.Model + ")"
		}
		if r.Fallback {
			message += " via fallback model"
		}
		return "Component generated", message
	}
	return "Component generation failed", r.Error
}
