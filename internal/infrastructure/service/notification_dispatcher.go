package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/alem-hub/progress-engine/internal/domain/notification"
	"github.com/alem-hub/progress-engine/pkg/circuitbreaker"
	"github.com/alem-hub/progress-engine/pkg/retry"
)

// FeatureChecker decides whether a notification kind is enabled for a user.
type FeatureChecker interface {
	IsEnabled(feature, userID string) bool
}

// DispatcherConfig configures NotificationDispatcher.
type DispatcherConfig struct {
	// RateLimit is writes per second across all users.
	RateLimit float64

	// Burst is the limiter bucket size.
	Burst int

	// WriteTimeout bounds one write including the limiter wait.
	WriteTimeout time.Duration

	// Features maps a notification type to its feature flag name.
	// Types without an entry are always enabled.
	Features map[notification.NotificationType]string
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		RateLimit:    50,
		Burst:        20,
		WriteTimeout: 3 * time.Second,
	}
}

// NotificationDispatcher writes reward notifications on a best-effort basis.
// Failures are logged at WARN and never reach the caller: a lost notification
// must not undo or fail a granted reward.
type NotificationDispatcher struct {
	writer  notification.Writer
	ids     *IDGenerator
	breaker *circuitbreaker.CircuitBreaker
	limiter *rate.Limiter
	retrier *retry.Retrier
	flags   FeatureChecker
	config  DispatcherConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewNotificationDispatcher creates a dispatcher. flags may be nil.
func NewNotificationDispatcher(
	writer notification.Writer,
	ids *IDGenerator,
	breaker *circuitbreaker.CircuitBreaker,
	flags FeatureChecker,
	config DispatcherConfig,
	logger *slog.Logger,
) *NotificationDispatcher {
	if breaker == nil {
		breaker = circuitbreaker.NotificationSinkBreaker(nil)
	}
	if config.RateLimit <= 0 {
		config.RateLimit = DefaultDispatcherConfig().RateLimit
	}
	if config.Burst <= 0 {
		config.Burst = DefaultDispatcherConfig().Burst
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultDispatcherConfig().WriteTimeout
	}
	return &NotificationDispatcher{
		writer:  writer,
		ids:     ids,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst),
		retrier: retry.NotificationRetrier(),
		flags:   flags,
		config:  config,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With(slog.String("component", "notification_dispatcher")),
	}
}

// Dispatch writes the message. Reports whether it was written.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, msg notification.Message) bool {
	log := d.logger.With(
		slog.String("user_id", msg.UserID),
		slog.String("type", msg.Type.String()),
	)

	if feature, ok := d.config.Features[msg.Type]; ok && d.flags != nil && !d.flags.IsEnabled(feature, msg.UserID) {
		log.DebugContext(ctx, "notification disabled by feature flag", slog.String("feature", feature))
		return false
	}

	n, err := notification.NewNotification(notification.NewNotificationParams{
		ID:       d.ids.GenerateID(),
		UserID:   msg.UserID,
		Type:     msg.Type,
		Title:    msg.Title,
		Message:  msg.Text,
		Metadata: msg.Metadata,
		Now:      d.now(),
	})
	if err != nil {
		log.WarnContext(ctx, "invalid notification dropped", slog.Any("error", err))
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.WriteTimeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		log.WarnContext(ctx, "notification rate limited", slog.Any("error", err))
		return false
	}

	err = d.breaker.Execute(ctx, func(ctx context.Context) error {
		return d.retrier.Do(ctx, func(ctx context.Context) error {
			return d.writer.Write(ctx, n)
		})
	})
	if err != nil {
		log.WarnContext(ctx, "notification delivery failed",
			slog.String("notification_id", n.ID),
			slog.String("breaker_state", d.breaker.State().String()),
			slog.Any("error", err),
		)
		return false
	}

	log.DebugContext(ctx, "notification written", slog.String("notification_id", n.ID))
	return true
}
