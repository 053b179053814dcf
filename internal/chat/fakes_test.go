package chat

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MetaFacil/AppConecta/internal/feed"
	"github.com/MetaFacil/AppConecta/internal/model"
	"github.com/MetaFacil/AppConecta/internal/presence"
	"github.com/MetaFacil/AppConecta/internal/session"
	"github.com/MetaFacil/AppConecta/internal/store"
)

// clock is a hand-driven time source for the expiry windows.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeMessageStore is an in-memory MessageStore with injectable failures.
type fakeMessageStore struct {
	mu            sync.Mutex
	rows          []model.Message
	nextID        int
	clk           *clock
	listErr       error
	insertErr     error
	markReadErr   error
	markReadCalls int

	// onInsert runs inside Insert after the row is built but before it is
	// returned, letting a test race a feed event against the response.
	onInsert func(model.Message)
	// insertGate, when set, blocks Insert until the gate closes.
	insertGate chan struct{}
}

func (f *fakeMessageStore) ListByChat(ctx context.Context, chatID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Message, 0, len(f.rows))
	for _, m := range f.rows {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) Insert(ctx context.Context, ins model.MessageInsert) (model.Message, error) {
	f.mu.Lock()
	gate := f.insertGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	if f.insertErr != nil {
		err := f.insertErr
		f.mu.Unlock()
		return model.Message{}, err
	}
	f.nextID++
	m := model.Message{
		ID:          fmt.Sprintf("srv-%03d", f.nextID),
		ChatID:      ins.ChatID,
		SenderID:    ins.SenderID,
		Conteudo:    ins.Conteudo,
		MessageType: ins.MessageType,
		MediaURL:    ins.MediaURL,
		CreatedAt:   f.clk.now(),
	}
	f.rows = append(f.rows, m)
	hook := f.onInsert
	f.mu.Unlock()

	if hook != nil {
		hook(m)
	}
	return m, nil
}

func (f *fakeMessageStore) MarkRead(ctx context.Context, chatID, readerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadCalls++
	if f.markReadErr != nil {
		return f.markReadErr
	}
	for i := range f.rows {
		if f.rows[i].ChatID == chatID && f.rows[i].SenderID != readerID {
			f.rows[i].Lida = true
		}
	}
	return nil
}

func (f *fakeMessageStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markReadCalls
}

// fakeMediaStore records uploads.
type fakeMediaStore struct {
	mu      sync.Mutex
	err     error
	uploads []string
}

func (f *fakeMediaStore) Upload(ctx context.Context, path, contentType string, r io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.uploads = append(f.uploads, path)
	return "https://media.example/" + path, nil
}

// fakeSubscriber hands out real feed.Subscriptions and remembers them so tests
// can push events or assert closure.
type fakeSubscriber struct {
	mu     sync.Mutex
	subs   []*feed.Subscription
	closed int
}

func (f *fakeSubscriber) Subscribe(table, filter string) (*feed.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := feed.NewSubscription(table, filter, func() {
		f.mu.Lock()
		f.closed++
		f.mu.Unlock()
	})
	f.subs = append(f.subs, sub)
	return sub, nil
}

// fakeChannel records published typing signals and lets tests inject inbound
// ones.
type fakeChannel struct {
	mu        sync.Mutex
	published []model.TypingSignal
	signals   chan model.TypingSignal
	closed    bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{signals: make(chan model.TypingSignal, 16)}
}

func (f *fakeChannel) Publish(ctx context.Context, sig model.TypingSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, sig)
	return nil
}

func (f *fakeChannel) Signals() <-chan model.TypingSignal { return f.signals }

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) sent() []model.TypingSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.TypingSignal(nil), f.published...)
}

type fakeJoiner struct {
	channel *fakeChannel
}

func (f *fakeJoiner) Join(chatID string) (presence.Channel, error) {
	return f.channel, nil
}

// fakeChatStore is an in-memory ChatStore.
type fakeChatStore struct {
	mu        sync.Mutex
	chats     []model.Chat
	listErr   error
	findErr   error
	createErr error
	created   int
	clk       *clock
}

func (f *fakeChatStore) ListForUser(ctx context.Context, userID string) ([]model.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Chat, 0, len(f.chats))
	for _, c := range f.chats {
		if c.HasParticipant(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChatStore) FindByPair(ctx context.Context, userA, userB string) (model.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return model.Chat{}, f.findErr
	}
	for _, c := range f.chats {
		if c.HasParticipant(userA) && c.HasParticipant(userB) {
			return c, nil
		}
	}
	return model.Chat{}, fmt.Errorf("pair: %w", store.ErrNotFound)
}

func (f *fakeChatStore) Create(ctx context.Context, clienteID, freelancerID string, projectID *string) (model.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return model.Chat{}, f.createErr
	}
	f.created++
	now := f.clk.now()
	c := model.Chat{
		ID:           fmt.Sprintf("chat-%03d", f.created),
		ClienteID:    clienteID,
		FreelancerID: freelancerID,
		ProjectID:    projectID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.chats = append(f.chats, c)
	return c, nil
}

func (f *fakeChatStore) Chat(ctx context.Context, id string) (model.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.chats {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Chat{}, store.ErrNotFound
}

// fakeProfileStore resolves counterparties; per-id errors model partial
// failure.
type fakeProfileStore struct {
	mu       sync.Mutex
	profiles map[string]model.Profile
	errs     map[string]error
}

func (f *fakeProfileStore) Profile(ctx context.Context, id string) (model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[id]; ok {
		return model.Profile{}, err
	}
	p, ok := f.profiles[id]
	if !ok {
		return model.Profile{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeProfileStore) ListFreelancers(ctx context.Context) ([]model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Profile
	for _, p := range f.profiles {
		if p.Tipo == model.ProfileTypeFreelancer {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProfileStore) Search(ctx context.Context, query, categoryID string) ([]model.Profile, error) {
	return f.ListFreelancers(ctx)
}

func testSession(userID string) *session.Session {
	return session.New(model.Profile{ID: userID, Nome: "Tester", Tipo: model.ProfileTypeCliente}, "token")
}
