package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/calroth/questboard/internal/events"
	"github.com/calroth/questboard/internal/store"
)

// Notifier consumes bus events and turns the ones kids care about into push
// notifications. It is best-effort: delivery failures are logged, expired
// subscriptions are pruned, and nothing ever propagates back to the caller.
type Notifier struct {
	svc    *Service
	subs   *store.PushStore
	logger *slog.Logger
}

func NewNotifier(svc *Service, subs *store.PushStore, logger *slog.Logger) *Notifier {
	return &Notifier{svc: svc, subs: subs, logger: logger}
}

// Run consumes bus events until the context is cancelled. Run it in its own
// goroutine.
func (n *Notifier) Run(ctx context.Context, bus *events.Bus) {
	ch := bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			n.handle(ev)
		}
	}
}

func (n *Notifier) handle(ev events.Event) {
	switch ev.Type {
	case events.TypePointsAwarded:
		amount, _ := ev.Extra["amount"].(int)
		n.notify(ev.MemberID, Payload{
			Title: "Quest approved!",
			Body:  fmt.Sprintf("You earned %d points", amount),
			Tag:   "points",
		})
	case events.TypeStreakUpdated:
		streak, _ := ev.Extra["streak"].(int)
		if streak > 1 {
			n.notify(ev.MemberID, Payload{
				Title: "Streak!",
				Body:  fmt.Sprintf("%d days in a row", streak),
				Tag:   "streak",
			})
		}
	}
}

func (n *Notifier) notify(memberID int64, payload Payload) {
	subs, err := n.subs.ListByMember(memberID)
	if err != nil {
		n.logger.Error("list push subscriptions", "member_id", memberID, "error", err)
		return
	}

	for i := range subs {
		err := n.svc.Send(&subs[i], payload)
		if errors.Is(err, ErrExpired) {
			if err := n.subs.DeleteByEndpoint(subs[i].Endpoint); err != nil {
				n.logger.Error("prune expired subscription", "error", err)
			}
			continue
		}
		if err != nil {
			n.logger.Error("send push", "member_id", memberID, "error", err)
		}
	}
}
