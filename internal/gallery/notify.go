package gallery

import (
	"context"
	"log/slog"

	"github.com/pixelnest/gallery/internal/session"
)

// Subscriber hands out per-user event streams.
type Subscriber interface {
	Subscribe(userID string) (<-chan session.Event, func())
}

// RefreshNotifier publishes a refresh event for the user on pub.
func RefreshNotifier(pub session.Publisher, logger *slog.Logger) Notifier {
	return func(ctx context.Context, userID string) {
		ev := session.Event{Kind: session.EventRefresh, UserID: userID}
		if err := pub.Publish(ctx, ev); err != nil {
			logger.Warn("publish refresh failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// DeleteNotifier tells other views of a user's gallery that one image is gone.
type DeleteNotifier func(ctx context.Context, userID, imageID string)

// DeletedNotifier publishes a deleted event carrying imageID on pub.
func DeletedNotifier(pub session.Publisher, logger *slog.Logger) DeleteNotifier {
	return func(ctx context.Context, userID, imageID string) {
		ev := session.Event{Kind: session.EventDeleted, UserID: userID, ImageID: imageID}
		if err := pub.Publish(ctx, ev); err != nil {
			logger.Warn("publish delete failed",
				slog.String("user_id", userID),
				slog.String("image_id", imageID),
				slog.String("error", err.Error()),
			)
		}
	}
}
