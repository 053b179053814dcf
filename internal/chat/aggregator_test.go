package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MetaFacil/AppConecta/internal/model"
	"github.com/MetaFacil/AppConecta/internal/session"
)

type aggRig struct {
	agg      *Aggregator
	chats    *fakeChatStore
	msgs     *fakeMessageStore
	profiles *fakeProfileStore
	subr     *fakeSubscriber
	clk      *clock
}

func newAggRig(t *testing.T) *aggRig {
	t.Helper()
	clk := newClock()
	chats := &fakeChatStore{clk: clk}
	msgs := &fakeMessageStore{clk: clk}
	profiles := &fakeProfileStore{
		profiles: map[string]model.Profile{
			testPeer: {ID: testPeer, Nome: "Peer", Tipo: model.ProfileTypeFreelancer},
		},
		errs: map[string]error{},
	}
	subr := &fakeSubscriber{}

	agg, err := NewAggregator(testSession(testUser), chats, msgs, profiles, subr)
	require.NoError(t, err)
	t.Cleanup(agg.Close)
	return &aggRig{agg: agg, chats: chats, msgs: msgs, profiles: profiles, subr: subr, clk: clk}
}

func TestNewAggregatorRequiresSession(t *testing.T) {
	_, err := NewAggregator(&session.Session{}, &fakeChatStore{clk: newClock()},
		&fakeMessageStore{clk: newClock()}, &fakeProfileStore{}, &fakeSubscriber{})
	assert.ErrorIs(t, err, session.ErrAuthRequired)
}

func TestNewAggregatorOpensGlobalSubscriptions(t *testing.T) {
	rig := newAggRig(t)
	require.Len(t, rig.subr.subs, 2)
	assert.Equal(t, "messages", rig.subr.subs[0].Table)
	assert.Empty(t, rig.subr.subs[0].Filter)
	assert.Equal(t, "chats", rig.subr.subs[1].Table)
}

func TestRefreshBuildsSummaries(t *testing.T) {
	rig := newAggRig(t)
	base := rig.clk.now()
	rig.chats.chats = []model.Chat{
		{ID: "c1", ClienteID: testUser, FreelancerID: testPeer, UpdatedAt: base},
	}
	rig.msgs.rows = []model.Message{
		{ID: "m1", ChatID: "c1", SenderID: testPeer, Conteudo: "oi", CreatedAt: base},
		{ID: "m2", ChatID: "c1", SenderID: testPeer, Conteudo: "tudo bem?", CreatedAt: base.Add(time.Second)},
		{ID: "m3", ChatID: "c1", SenderID: testUser, Conteudo: "sim", Lida: true, CreatedAt: base.Add(2 * time.Second)},
	}

	require.NoError(t, rig.agg.Refresh(context.Background()))
	assert.Equal(t, StateReady, rig.agg.State())

	sums := rig.agg.Summaries()
	require.Len(t, sums, 1)
	s := sums[0]
	require.NotNil(t, s.LastMessage)
	assert.Equal(t, "m3", s.LastMessage.ID)
	assert.Equal(t, 2, s.UnreadCount, "own and already-read messages do not count")
	require.NotNil(t, s.Other)
	assert.Equal(t, "Peer", s.Other.Nome)
	assert.False(t, s.Degraded)
}

func TestRefreshCollapsesDuplicatePairs(t *testing.T) {
	rig := newAggRig(t)
	base := rig.clk.now()
	// ListForUser order is most recent first; the duplicate pair keeps the
	// first (most recently updated) entry.
	rig.chats.chats = []model.Chat{
		{ID: "c2", ClienteID: testUser, FreelancerID: testPeer, UpdatedAt: base.Add(time.Hour)},
		{ID: "c1", ClienteID: testUser, FreelancerID: testPeer, UpdatedAt: base},
	}

	require.NoError(t, rig.agg.Refresh(context.Background()))
	sums := rig.agg.Summaries()
	require.Len(t, sums, 1)
	assert.Equal(t, "c2", sums[0].Chat.ID)
}

func TestRefreshDegradesOnProfileFailureOnly(t *testing.T) {
	rig := newAggRig(t)
	other := "user-other"
	rig.chats.chats = []model.Chat{
		{ID: "c1", ClienteID: testUser, FreelancerID: testPeer, UpdatedAt: rig.clk.now().Add(time.Minute)},
		{ID: "c2", ClienteID: testUser, FreelancerID: other, UpdatedAt: rig.clk.now()},
	}
	rig.profiles.errs[other] = errors.New("profile service down")

	require.NoError(t, rig.agg.Refresh(context.Background()))
	sums := rig.agg.Summaries()
	require.Len(t, sums, 2)
	assert.False(t, sums[0].Degraded)
	assert.True(t, sums[1].Degraded, "one failed counterparty degrades its entry, not the list")
	assert.Nil(t, sums[1].Other)
}

func TestRefreshDegradesOnMessageListFailure(t *testing.T) {
	rig := newAggRig(t)
	rig.chats.chats = []model.Chat{{ID: "c1", ClienteID: testUser, FreelancerID: testPeer, UpdatedAt: rig.clk.now()}}
	rig.msgs.listErr = errors.New("boom")

	require.NoError(t, rig.agg.Refresh(context.Background()))
	sums := rig.agg.Summaries()
	require.Len(t, sums, 1)
	assert.True(t, sums[0].Degraded)
	assert.Nil(t, sums[0].LastMessage)
}

func TestRefreshListFailureKeepsLastKnownGood(t *testing.T) {
	rig := newAggRig(t)
	rig.chats.chats = []model.Chat{{ID: "c1", ClienteID: testUser, FreelancerID: testPeer, UpdatedAt: rig.clk.now()}}
	require.NoError(t, rig.agg.Refresh(context.Background()))
	require.Len(t, rig.agg.Summaries(), 1)

	rig.chats.listErr = errors.New("boom")
	require.Error(t, rig.agg.Refresh(context.Background()))
	assert.Len(t, rig.agg.Summaries(), 1, "failed refresh keeps the previous list")
}

func TestFindOrCreateChatReturnsExisting(t *testing.T) {
	rig := newAggRig(t)
	rig.chats.chats = []model.Chat{{ID: "c1", ClienteID: testUser, FreelancerID: testPeer, UpdatedAt: rig.clk.now()}}

	c, err := rig.agg.FindOrCreateChat(context.Background(), testPeer)
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, 0, rig.chats.created)
}

func TestFindOrCreateChatCreatesWhenMissing(t *testing.T) {
	rig := newAggRig(t)

	c, err := rig.agg.FindOrCreateChat(context.Background(), testPeer)
	require.NoError(t, err)
	assert.Equal(t, testUser, c.ClienteID)
	assert.Equal(t, testPeer, c.FreelancerID)
	assert.Equal(t, 1, rig.chats.created)
}

func TestFindOrCreateChatSurfacesFindErrors(t *testing.T) {
	rig := newAggRig(t)
	rig.chats.findErr = errors.New("store down")

	_, err := rig.agg.FindOrCreateChat(context.Background(), testPeer)
	require.Error(t, err)
	assert.Equal(t, 0, rig.chats.created, "only a definite not-found triggers creation")
}

func TestRunRefreshesOnFeedEvents(t *testing.T) {
	rig := newAggRig(t)
	rig.chats.chats = []model.Chat{{ID: "c1", ClienteID: testUser, FreelancerID: testPeer, UpdatedAt: rig.clk.now()}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rig.agg.Run(ctx)

	require.True(t, rig.subr.subs[0].Deliver(insertEvent(t, model.Message{ID: "m", ChatID: "c1", SenderID: testPeer, Conteudo: "oi"})))
	require.Eventually(t, func() bool { return len(rig.agg.Summaries()) == 1 }, time.Second, 5*time.Millisecond)
}
