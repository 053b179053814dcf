// Package chat is the conversation delivery core: it merges persisted
// history, live change-feed events and local optimistic sends into one
// ordered, deduplicated, read-state-aware message list per conversation, and
// owns the typing-indicator lifecycle on both ends.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MetaFacil/AppConecta/internal/feed"
	"github.com/MetaFacil/AppConecta/internal/logger"
	"github.com/MetaFacil/AppConecta/internal/model"
	"github.com/MetaFacil/AppConecta/internal/presence"
	"github.com/MetaFacil/AppConecta/internal/session"
	"github.com/MetaFacil/AppConecta/internal/store"
)

const sweepInterval = 250 * time.Millisecond

// Options are the timing knobs of the delivery core.
type Options struct {
	// TypingIdle is the sender-side auto-cancel window (default 2s).
	TypingIdle time.Duration
	// TypingExpiry is the receiver-side safety window that expires a stale
	// typing=true when the cancel signal was lost (default 3s).
	TypingExpiry time.Duration
	// SendConfirmTimeout bounds how long an optimistic entry waits for its
	// store-confirmed row before being marked failed (default 15s). Doubles
	// as the time-proximity window when matching feed inserts to pending
	// entries.
	SendConfirmTimeout time.Duration
	// AutoMarkRead marks the conversation read when a counterparty message
	// arrives while the view is open.
	AutoMarkRead bool

	// now is a test hook; nil means time.Now.
	now func() time.Time
}

// DefaultOptions returns the windows from the product spec.
func DefaultOptions() Options {
	return Options{
		TypingIdle:         2 * time.Second,
		TypingExpiry:       3 * time.Second,
		SendConfirmTimeout: 15 * time.Second,
		AutoMarkRead:       true,
	}
}

func (o *Options) normalize() {
	d := DefaultOptions()
	if o.TypingIdle <= 0 {
		o.TypingIdle = d.TypingIdle
	}
	if o.TypingExpiry <= 0 {
		o.TypingExpiry = d.TypingExpiry
	}
	if o.SendConfirmTimeout <= 0 {
		o.SendConfirmTimeout = d.SendConfirmTimeout
	}
	if o.now == nil {
		o.now = time.Now
	}
}

// pendingEntry tracks one optimistic message awaiting its confirmed row.
type pendingEntry struct {
	sentAt      time.Time
	deadline    time.Time
	conteudo    string
	messageType model.MessageType
}

// Reconciler owns the live state of one open conversation. All mutations of
// the message set go through its mutex; a single run goroutine drains the
// inbound event queue, presence signals and expiry sweeps. A send racing a
// remote event for the same conversation is resolved by the idempotent
// upsert / optimistic-replace rule, not by broad mutual exclusion.
type Reconciler struct {
	opts    Options
	sess    *session.Session
	chatID  string
	msgs    store.MessageStore
	media   store.MediaStore
	sub     *feed.Subscription
	channel presence.Channel

	mu         sync.Mutex
	state      State
	set        *messageSet
	pending    map[string]pendingEntry
	selfTyping bool
	selfIdleAt time.Time
	peerTyping bool
	peerUntil  time.Time

	updates   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewReconciler opens the conversation's change-feed subscription and
// presence channel. Start the event loop with go r.Run(ctx); release
// everything with Close.
func NewReconciler(
	opts Options,
	sess *session.Session,
	chatID string,
	msgs store.MessageStore,
	media store.MediaStore,
	subr feed.Subscriber,
	joiner presence.Joiner,
) (*Reconciler, error) {
	if !sess.Valid() {
		return nil, session.ErrAuthRequired
	}
	opts.normalize()

	sub, err := subr.Subscribe("messages", "chat_id=eq."+chatID)
	if err != nil {
		return nil, fmt.Errorf("chat.NewReconciler subscribe: %w", err)
	}
	channel, err := joiner.Join(chatID)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("chat.NewReconciler join presence: %w", err)
	}

	return &Reconciler{
		opts:    opts,
		sess:    sess,
		chatID:  chatID,
		msgs:    msgs,
		media:   media,
		sub:     sub,
		channel: channel,
		set:     newMessageSet(),
		pending: make(map[string]pendingEntry),
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}, nil
}

// Run drains the inbound queues until ctx is cancelled or Close is called.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-r.done:
			return
		case ev := <-r.sub.Events():
			r.ApplyRemoteEvent(ev)
		case sig := <-r.channel.Signals():
			r.applySignal(sig)
		case <-ticker.C:
			r.sweep()
		}
	}
}

// Close unsubscribes the change feed and presence channel and stops the run
// loop. Leaving a conversation without closing leaks a subscription whose
// duplicate events the idempotent upsert would mask but not justify.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() {
		r.sub.Close()
		if err := r.channel.Close(); err != nil {
			logger.Errorf("chat close presence chat=%s: %v", r.chatID, err)
		}
		close(r.done)
	})
}

// Updates signals (coalesced) that the observable state changed.
func (r *Reconciler) Updates() <-chan struct{} { return r.updates }

func (r *Reconciler) notify() {
	select {
	case r.updates <- struct{}{}:
	default:
	}
}

// State reports the view lifecycle: EMPTY → LOADING → READY.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Messages returns an ascending (created_at, id) snapshot including pending
// and failed optimistic entries.
func (r *Reconciler) Messages() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set.snapshot()
}

// PeerTyping reports whether the counterparty is typing. The answer expires
// on its own after the receiver-side safety window even if the cancel signal
// never arrived.
func (r *Reconciler) PeerTyping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peerTyping && r.opts.now().Before(r.peerUntil)
}

// LoadHistory fetches the persisted message set and merges it in ascending
// order. Transient failures surface as store.ErrUnavailable; the caller may
// retry with backoff.
func (r *Reconciler) LoadHistory(ctx context.Context) error {
	defer logger.DeferLogDuration("chat.LoadHistory", time.Now())()
	r.mu.Lock()
	if r.state == StateEmpty {
		r.state = StateLoading
	}
	r.mu.Unlock()

	list, err := r.msgs.ListByChat(ctx, r.chatID)
	if err != nil {
		return fmt.Errorf("chat.LoadHistory: %w", err)
	}

	r.mu.Lock()
	for _, m := range list {
		r.upsertServerLocked(m)
	}
	r.state = StateReady
	r.mu.Unlock()
	r.notify()
	return nil
}

// ApplyRemoteEvent upserts a change-feed event into the ordered set.
// Idempotent: applying the same event twice leaves the set unchanged. An
// insert whose sender is the local user adopts the matching un-expired
// optimistic entry instead of appending a duplicate.
func (r *Reconciler) ApplyRemoteEvent(ev feed.Event) {
	if ev.Table != "messages" {
		return
	}
	var m model.Message
	if err := json.Unmarshal(ev.Row, &m); err != nil {
		logger.Errorf("chat event decode chat=%s: %v", r.chatID, err)
		return
	}
	if m.ChatID != r.chatID {
		return
	}

	r.mu.Lock()
	if ev.Op == feed.OpInsert && m.SenderID == r.sess.UserID {
		if localID := r.matchPendingLocked(m); localID != "" {
			r.set.remove(localID)
			delete(r.pending, localID)
		}
	}
	changed := r.upsertServerLocked(m)
	r.state = StateReady
	r.mu.Unlock()

	if !changed {
		return
	}
	r.notify()

	// Mirror the open-view behavior: a counterparty message seen live is read.
	// Off the event loop; store I/O must not stall event application.
	if r.opts.AutoMarkRead && ev.Op == feed.OpInsert && m.SenderID != r.sess.UserID {
		go func() {
			markCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.MarkRead(markCtx); err != nil {
				logger.Errorf("chat auto mark read chat=%s: %v", r.chatID, err)
			}
		}()
	}
}

// upsertServerLocked applies a store-confirmed row with the monotonic read
// flag rule.
func (r *Reconciler) upsertServerLocked(m model.Message) bool {
	m.Pending = false
	m.Failed = false
	m.LocalID = ""
	return r.set.upsert(m)
}

// matchPendingLocked finds the oldest pending entry matching a confirmed row
// by content and best-effort time proximity. The provisional id is never the
// server id, so content/time is all there is to match on.
func (r *Reconciler) matchPendingLocked(m model.Message) string {
	var bestID string
	var bestAt time.Time
	for id, p := range r.pending {
		if p.conteudo != m.Conteudo || p.messageType != m.MessageType {
			continue
		}
		gap := m.CreatedAt.Sub(p.sentAt)
		if gap < 0 {
			gap = -gap
		}
		if gap > r.opts.SendConfirmTimeout {
			continue
		}
		if bestID == "" || p.sentAt.Before(bestAt) {
			bestID, bestAt = id, p.sentAt
		}
	}
	return bestID
}

// SendText persists a text message with an immediately-observable optimistic
// entry. On persist failure the entry stays visible, marked failed, and
// ErrSendFailed is returned; there is no automatic retry.
func (r *Reconciler) SendText(ctx context.Context, conteudo string) (model.Message, error) {
	return r.send(ctx, conteudo, model.MessageTypeText, nil)
}

// SendImage uploads the media first; an upload failure aborts the whole send
// with ErrMediaUploadFailed and no state mutation. The stored reference then
// rides a regular send carrying the fixed image placeholder conteudo.
func (r *Reconciler) SendImage(ctx context.Context, data io.Reader, ext string) (model.Message, error) {
	if !r.sess.Valid() {
		return model.Message{}, session.ErrAuthRequired
	}
	path := fmt.Sprintf("%s/%s/%d.%s", r.sess.UserID, r.chatID, r.opts.now().UnixMilli(), ext)
	url, err := r.media.Upload(ctx, path, "image/"+ext, data)
	if err != nil {
		return model.Message{}, fmt.Errorf("%w: %v", ErrMediaUploadFailed, err)
	}
	return r.send(ctx, model.ImagePlaceholder, model.MessageTypeImage, &url)
}

func (r *Reconciler) send(ctx context.Context, conteudo string, mtype model.MessageType, mediaURL *string) (model.Message, error) {
	defer logger.DeferLogDuration("chat.send", time.Now())()
	if !r.sess.Valid() {
		return model.Message{}, session.ErrAuthRequired
	}

	now := r.opts.now()
	localID := uuid.New().String()
	optimistic := model.Message{
		ID:          localID,
		LocalID:     localID,
		ChatID:      r.chatID,
		SenderID:    r.sess.UserID,
		Conteudo:    conteudo,
		MessageType: mtype,
		MediaURL:    mediaURL,
		CreatedAt:   now,
		Pending:     true,
	}

	r.mu.Lock()
	r.set.upsert(optimistic)
	r.pending[localID] = pendingEntry{
		sentAt:      now,
		deadline:    now.Add(r.opts.SendConfirmTimeout),
		conteudo:    conteudo,
		messageType: mtype,
	}
	r.state = StateReady
	r.mu.Unlock()
	r.notify()
	r.SetTyping(false)

	row, err := r.msgs.Insert(ctx, model.MessageInsert{
		ChatID:      r.chatID,
		SenderID:    r.sess.UserID,
		Conteudo:    conteudo,
		MessageType: mtype,
		MediaURL:    mediaURL,
	})
	if err != nil {
		r.failPending(localID)
		return model.Message{}, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	// The store response is the immediate confirmation key; the feed event for
	// the same row, whenever it arrives, degrades to an idempotent no-op.
	r.confirm(localID, row)
	return row, nil
}

// confirm retires the optimistic entry and applies the store row. The local
// entry goes unconditionally: a confirmation arriving after the sweep already
// failed it still converges on the single confirmed row.
func (r *Reconciler) confirm(localID string, row model.Message) {
	r.mu.Lock()
	r.set.remove(localID)
	delete(r.pending, localID)
	r.upsertServerLocked(row)
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) failPending(localID string) {
	r.mu.Lock()
	changed := r.failPendingLocked(localID)
	r.mu.Unlock()
	if changed {
		r.notify()
	}
}

func (r *Reconciler) failPendingLocked(localID string) bool {
	if _, ok := r.pending[localID]; !ok {
		return false
	}
	delete(r.pending, localID)
	m, ok := r.set.get(localID)
	if !ok {
		return false
	}
	m.Pending = false
	m.Failed = true
	return r.set.upsert(m)
}

// MarkRead issues the batched lida update for every counterparty message
// still unread, then folds the transition into the local set. Safe to call
// redundantly and concurrently with event application.
func (r *Reconciler) MarkRead(ctx context.Context) error {
	if !r.sess.Valid() {
		return session.ErrAuthRequired
	}
	if err := r.msgs.MarkRead(ctx, r.chatID, r.sess.UserID); err != nil {
		return fmt.Errorf("chat.MarkRead: %w", err)
	}

	r.mu.Lock()
	changed := false
	for _, m := range r.set.snapshot() {
		if m.SenderID == r.sess.UserID || m.Lida || m.Pending {
			continue
		}
		m.Lida = true
		if r.set.upsert(m) {
			changed = true
		}
	}
	r.mu.Unlock()
	if changed {
		r.notify()
	}
	return nil
}

// SetTyping publishes typing state edge-triggered: only a transition reaches
// the presence channel, repeated true calls just refresh the idle deadline.
// After TypingIdle without calls the sweep publishes the auto-cancel.
func (r *Reconciler) SetTyping(typing bool) {
	r.mu.Lock()
	transition := typing != r.selfTyping
	r.selfTyping = typing
	if typing {
		r.selfIdleAt = r.opts.now().Add(r.opts.TypingIdle)
	}
	r.mu.Unlock()
	if transition {
		r.publishTyping(typing)
	}
}

func (r *Reconciler) publishTyping(typing bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sig := model.TypingSignal{ChatID: r.chatID, UserID: r.sess.UserID, IsTyping: typing}
	if err := r.channel.Publish(ctx, sig); err != nil {
		// Fire-and-forget: a lost signal self-heals via the receiver expiry.
		logger.Errorf("chat publish typing chat=%s: %v", r.chatID, err)
	}
}

func (r *Reconciler) applySignal(sig model.TypingSignal) {
	if sig.ChatID != r.chatID || sig.UserID == r.sess.UserID {
		return
	}
	r.mu.Lock()
	r.peerTyping = sig.IsTyping
	if sig.IsTyping {
		r.peerUntil = r.opts.now().Add(r.opts.TypingExpiry)
	}
	r.mu.Unlock()
	r.notify()
}

// sweep expires pending sends past their confirm deadline, auto-cancels the
// local typing state after the idle window and retires stale peer typing.
func (r *Reconciler) sweep() {
	now := r.opts.now()

	r.mu.Lock()
	changed := false
	for id, p := range r.pending {
		if now.After(p.deadline) {
			logger.Errorf("chat send confirm timeout chat=%s local=%s", r.chatID, id)
			if r.failPendingLocked(id) {
				changed = true
			}
		}
	}
	if r.peerTyping && now.After(r.peerUntil) {
		r.peerTyping = false
		changed = true
	}
	idleExpired := r.selfTyping && now.After(r.selfIdleAt)
	if idleExpired {
		r.selfTyping = false
	}
	r.mu.Unlock()

	if idleExpired {
		r.publishTyping(false)
	}
	if changed {
		r.notify()
	}
}
