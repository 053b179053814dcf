package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MetaFacil/AppConecta/internal/feed"
	"github.com/MetaFacil/AppConecta/internal/logger"
	"github.com/MetaFacil/AppConecta/internal/model"
	"github.com/MetaFacil/AppConecta/internal/session"
	"github.com/MetaFacil/AppConecta/internal/store"
)

const refreshTimeout = 10 * time.Second

// Aggregator maintains the conversation summaries for the current user. It
// listens to the same change-feed event class as the reconciler but at
// global scope, and re-derives everything on any change: intentionally
// coarse, acceptable at this data volume.
type Aggregator struct {
	sess     *session.Session
	chats    store.ChatStore
	msgs     store.MessageStore
	profiles store.ProfileStore
	msgSub   *feed.Subscription
	chatSub  *feed.Subscription

	// refreshMu serializes full refreshes; mu guards the published state.
	refreshMu sync.Mutex
	mu        sync.Mutex
	state     State
	summaries []model.Summary

	kick      chan struct{}
	updates   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewAggregator opens the two global subscriptions (messages and chats).
// Start the loop with go a.Run(ctx); an initial Refresh is up to the caller.
func NewAggregator(
	sess *session.Session,
	chats store.ChatStore,
	msgs store.MessageStore,
	profiles store.ProfileStore,
	subr feed.Subscriber,
) (*Aggregator, error) {
	if !sess.Valid() {
		return nil, session.ErrAuthRequired
	}
	msgSub, err := subr.Subscribe("messages", "")
	if err != nil {
		return nil, fmt.Errorf("chat.NewAggregator subscribe messages: %w", err)
	}
	chatSub, err := subr.Subscribe("chats", "")
	if err != nil {
		msgSub.Close()
		return nil, fmt.Errorf("chat.NewAggregator subscribe chats: %w", err)
	}
	return &Aggregator{
		sess:     sess,
		chats:    chats,
		msgs:     msgs,
		profiles: profiles,
		msgSub:   msgSub,
		chatSub:  chatSub,
		kick:     make(chan struct{}, 1),
		updates:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Run serializes refreshes triggered by remote events until ctx is cancelled
// or Close is called. Background refresh failures are logged, never surfaced:
// the list keeps its last-known-good state.
func (a *Aggregator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			a.Close()
			return
		case <-a.done:
			return
		case <-a.msgSub.Events():
		case <-a.chatSub.Events():
		case <-a.kick:
		}
		a.drainTriggers()
		refreshCtx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		if err := a.Refresh(refreshCtx); err != nil {
			logger.Errorf("chat list refresh: %v", err)
		}
		cancel()
	}
}

// drainTriggers coalesces a burst of events into the refresh already due.
func (a *Aggregator) drainTriggers() {
	for {
		select {
		case <-a.msgSub.Events():
		case <-a.chatSub.Events():
		case <-a.kick:
		default:
			return
		}
	}
}

// Close releases the global subscriptions and stops the loop.
func (a *Aggregator) Close() {
	a.closeOnce.Do(func() {
		a.msgSub.Close()
		a.chatSub.Close()
		close(a.done)
	})
}

// Updates signals (coalesced) that summaries changed.
func (a *Aggregator) Updates() <-chan struct{} { return a.updates }

func (a *Aggregator) notify() {
	select {
	case a.updates <- struct{}{}:
	default:
	}
}

// State reports the list lifecycle.
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Summaries returns the current summaries, most recent activity first.
func (a *Aggregator) Summaries() []model.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.Summary, len(a.summaries))
	copy(out, a.summaries)
	return out
}

// Refresh re-fetches the user's conversations and recomputes every summary.
// Duplicate conversations (the non-atomic find-or-create race) collapse by
// participant-pair key, keeping the most recently updated one. A failure
// resolving one counterparty must not take down the rest of the list: that
// entry degrades to a placeholder instead.
func (a *Aggregator) Refresh(ctx context.Context) error {
	defer logger.DeferLogDuration("chat.Refresh", time.Now())()
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	a.mu.Lock()
	if a.state == StateEmpty {
		a.state = StateLoading
	}
	a.mu.Unlock()

	userID := a.sess.UserID
	chats, err := a.chats.ListForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("chat.Refresh list chats: %w", err)
	}

	summaries := make([]model.Summary, 0, len(chats))
	seen := make(map[string]struct{}, len(chats))
	for _, c := range chats {
		if _, dup := seen[c.PairKey()]; dup {
			continue
		}
		seen[c.PairKey()] = struct{}{}
		summaries = append(summaries, a.summarize(ctx, c))
	}

	a.mu.Lock()
	a.summaries = summaries
	a.state = StateReady
	a.mu.Unlock()
	a.notify()
	return nil
}

// summarize derives one summary; partial failures degrade, never error.
func (a *Aggregator) summarize(ctx context.Context, c model.Chat) model.Summary {
	userID := a.sess.UserID
	s := model.Summary{Chat: c}

	msgs, err := a.msgs.ListByChat(ctx, c.ID)
	if err != nil {
		logger.Errorf("chat list messages chat=%s: %v", c.ID, err)
		s.Degraded = true
	} else if len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		s.LastMessage = &last
		for _, m := range msgs {
			if m.SenderID != userID && !m.Lida {
				s.UnreadCount++
			}
		}
	}

	otherID := c.OtherParticipant(userID)
	prof, err := a.profiles.Profile(ctx, otherID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Errorf("chat resolve profile user=%s: %v", otherID, err)
		}
		s.Degraded = true
	} else {
		s.Other = &prof
	}
	return s
}

// FindOrCreateChat returns the conversation with the freelancer, creating it
// when missing. The check-then-insert is not atomic against the store:
// concurrent creation can still produce duplicates, which the next Refresh
// collapses by pair key.
func (a *Aggregator) FindOrCreateChat(ctx context.Context, freelancerID string) (model.Chat, error) {
	defer logger.DeferLogDuration("chat.FindOrCreateChat", time.Now())()
	if !a.sess.Valid() {
		return model.Chat{}, session.ErrAuthRequired
	}

	c, err := a.chats.FindByPair(ctx, a.sess.UserID, freelancerID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Chat{}, fmt.Errorf("chat.FindOrCreateChat find: %w", err)
	}

	c, err = a.chats.Create(ctx, a.sess.UserID, freelancerID, nil)
	if err != nil {
		return model.Chat{}, fmt.Errorf("chat.FindOrCreateChat create: %w", err)
	}

	select {
	case a.kick <- struct{}{}:
	default:
	}
	return c, nil
}
