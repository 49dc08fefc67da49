package discord

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/livewatch/live"
)

// classify wraps a discordgo error with the matching live sentinel so the
// reconciler can tell permission problems from vanished messages and outages.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch code := rest.Response.StatusCode; {
		case code == http.StatusForbidden || code == http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", live.ErrForbidden, err)
		case code == http.StatusNotFound:
			return fmt.Errorf("%w: %w", live.ErrNotFound, err)
		case code == http.StatusTooManyRequests || code >= 500:
			return fmt.Errorf("%w: %w", live.ErrTransient, err)
		}
		return err
	}
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return fmt.Errorf("%w: %w", live.ErrTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", live.ErrTransient, err)
	}
	return err
}
