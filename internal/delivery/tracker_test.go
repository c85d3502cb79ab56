package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ent0n29/chatrelay/internal/message"
	"github.com/ent0n29/chatrelay/internal/mocks"
	"github.com/ent0n29/chatrelay/internal/protocol"
	"github.com/ent0n29/chatrelay/internal/session"
	"github.com/ent0n29/chatrelay/internal/session/sessiontest"
	"github.com/ent0n29/chatrelay/internal/store"
)

type fixture struct {
	reg     *session.Registry
	ledger  *message.Ledger
	mem     *store.InMemoryStore
	writer  *store.Writer
	tracker *Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewInMemoryStore()
	w := store.NewWriter(mem, store.WriterConfig{}, nil, nil)
	t.Cleanup(w.Close)
	reg := session.NewRegistry()
	ledger := message.NewLedger(100, mem)
	return &fixture{
		reg:     reg,
		ledger:  ledger,
		mem:     mem,
		writer:  w,
		tracker: NewTracker(reg, ledger, w, nil, nil),
	}
}

func msg(id, from, to string) message.Message {
	return message.Message{ID: id, ConversationID: "c1", SenderID: from, ReceiverID: to, Content: "hi"}
}

func TestCreatedWithOnlineReceiverIsDelivered(t *testing.T) {
	f := newFixture(t)
	alice, bob := sessiontest.NewHandle("a"), sessiontest.NewHandle("b")
	f.reg.Register("alice", alice)
	f.reg.Register("bob", bob)

	got, err := f.tracker.Created(msg("m1", "alice", "bob"))
	require.NoError(t, err)
	require.Equal(t, message.StatusDelivered, got.Status)

	received := sessiontest.Of[protocol.ReceiveMessage](bob)
	require.Len(t, received, 1)
	require.Equal(t, "m1", received[0].Message.ID)

	updates := sessiontest.Of[protocol.MessageStatusUpdate](alice)
	require.Equal(t, []protocol.MessageStatusUpdate{{
		Type: protocol.TypeMessageStatusUpdate, MessageID: "m1", Status: message.StatusDelivered,
	}}, updates)
}

func TestCreatedWithOfflineReceiverStaysSent(t *testing.T) {
	f := newFixture(t)
	alice := sessiontest.NewHandle("a")
	f.reg.Register("alice", alice)

	got, err := f.tracker.Created(msg("m1", "alice", "bob"))
	require.NoError(t, err)
	require.Equal(t, message.StatusSent, got.Status)
	require.Empty(t, alice.Messages())
}

func TestCreatedRejectsIncompleteMessage(t *testing.T) {
	f := newFixture(t)
	_, err := f.tracker.Created(message.Message{ID: "m1", SenderID: "alice"})
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestMarkReadGroupsBySenderAndSkipsOthers(t *testing.T) {
	f := newFixture(t)
	alice, carol := sessiontest.NewHandle("a"), sessiontest.NewHandle("c")
	f.reg.Register("alice", alice)
	f.reg.Register("carol", carol)

	for _, m := range []message.Message{
		msg("m1", "alice", "bob"),
		msg("m2", "carol", "bob"),
		msg("m3", "alice", "bob"),
		msg("m4", "alice", "dave"),
	} {
		_, err := f.tracker.Created(m)
		require.NoError(t, err)
	}

	read, err := f.tracker.MarkRead(context.Background(), "bob", []string{"m1", "m2", "m3", "m4", "m1", "unknown"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"m1", "m2", "m3"}, read)

	aliceIDs := []string{}
	for _, u := range sessiontest.Of[protocol.MessageStatusUpdate](alice) {
		require.Equal(t, message.StatusRead, u.Status)
		aliceIDs = append(aliceIDs, u.MessageID)
	}
	require.ElementsMatch(t, []string{"m1", "m3"}, aliceIDs)

	carolUpdates := sessiontest.Of[protocol.MessageStatusUpdate](carol)
	require.Len(t, carolUpdates, 1)
	require.Equal(t, "m2", carolUpdates[0].MessageID)

	m4, ok := f.ledger.Get("m4")
	require.True(t, ok)
	require.Equal(t, message.StatusSent, m4.Status)
}

func TestMarkReadNeverRegressesAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	alice := sessiontest.NewHandle("a")
	f.reg.Register("alice", alice)
	_, err := f.tracker.Created(msg("m1", "alice", "bob"))
	require.NoError(t, err)

	_, err = f.tracker.MarkRead(context.Background(), "bob", []string{"m1"})
	require.NoError(t, err)
	read, err := f.tracker.MarkRead(context.Background(), "bob", []string{"m1"})
	require.NoError(t, err)
	require.Empty(t, read)
	require.Len(t, sessiontest.Of[protocol.MessageStatusUpdate](alice), 1)

	_, changed := f.ledger.Advance("m1", message.StatusDelivered)
	require.False(t, changed)
	m, _ := f.ledger.Get("m1")
	require.Equal(t, message.StatusRead, m.Status)
}

func TestMarkReadLoadsFromStoreAndPersistsWhenSenderOffline(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mem.RecordMessage(context.Background(), msg("old", "alice", "bob")))

	read, err := f.tracker.MarkRead(context.Background(), "bob", []string{"old"})
	require.NoError(t, err)
	require.Equal(t, []string{"old"}, read)
	f.writer.Close()

	got, err := f.mem.LoadMessages(context.Background(), []string{"old"})
	require.NoError(t, err)
	require.Equal(t, message.StatusRead, got[0].Status)
}

func TestMarkReadSurfacesLoadFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockStore(ctrl)
	s.EXPECT().LoadMessages(gomock.Any(), []string{"m9"}).Return(nil, errors.New("store down"))

	tr := NewTracker(session.NewRegistry(), message.NewLedger(10, s), nil, nil, nil)
	_, err := tr.MarkRead(context.Background(), "bob", []string{"m9"})
	require.Error(t, err)
}

func TestDeletedForwardsAndForgets(t *testing.T) {
	f := newFixture(t)
	bob := sessiontest.NewHandle("b")
	f.reg.Register("bob", bob)
	_, err := f.tracker.Created(msg("m1", "alice", "bob"))
	require.NoError(t, err)
	bob.Reset()

	require.True(t, f.tracker.Deleted("m1", "bob"))
	require.Equal(t, []protocol.MessageDeleted{{Type: protocol.TypeMessageDeleted, MessageID: "m1"}},
		sessiontest.Of[protocol.MessageDeleted](bob))
	_, ok := f.ledger.Get("m1")
	require.False(t, ok)
}
