// CLAUDE:SUMMARY Notification writer: subscribes to engine events and stores per-user vote/win/loss/start notifications
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/debatehub/internal/db"
	"github.com/hazyhaar/debatehub/internal/event"
)

// Store persists notifications. *db.DB satisfies it.
type Store interface {
	CreateNotification(ctx context.Context, userID, kind, message string, debateID *string) (*db.Notification, error)
}

// Subscriber turns engine events into user notifications.
type Subscriber struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
}

func NewSubscriber(store Store, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{store: store, logger: logger, timeout: 5 * time.Second}
}

// Attach registers the subscriber on bus. Delivery stops when the bus stops.
func (s *Subscriber) Attach(bus *event.Bus) {
	bus.SubscribeFunc(event.VoteCastType, s.Handle)
	bus.SubscribeFunc(event.DebateResolvedType, s.Handle)
	bus.SubscribeFunc(event.DebateStartedType, s.Handle)
}

// Handle writes the notifications for a single event.
func (s *Subscriber) Handle(evt event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	switch data := evt.Data.(type) {
	case event.VoteCast:
		if data.Recipient == nil {
			return
		}
		s.write(ctx, *data.Recipient, db.NotifyVoteReceived,
			fmt.Sprintf("Your side received a vote in %q (%d-%d)", data.Title, data.VotesA, data.VotesB), data.DebateID)
	case event.DebateResolved:
		if data.Winner != nil {
			s.write(ctx, *data.Winner, db.NotifyWin, fmt.Sprintf("You won %q", data.Title), data.DebateID)
		}
		if data.Loser != nil {
			s.write(ctx, *data.Loser, db.NotifyLoss, fmt.Sprintf("You lost %q", data.Title), data.DebateID)
		}
	case event.DebateStarted:
		for _, p := range data.Participants {
			s.write(ctx, p, db.NotifyDebateStart, fmt.Sprintf("%q has started", data.Title), data.DebateID)
		}
	}
}

func (s *Subscriber) write(ctx context.Context, userID, kind, message, debateID string) {
	if _, err := s.store.CreateNotification(ctx, userID, kind, message, &debateID); err != nil {
		s.logger.Error("storing notification", "user_id", userID, "type", kind, "error", err)
	}
}
