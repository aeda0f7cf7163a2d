package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/webitel/chat-routing-service/internal/domain/model"
	"github.com/webitel/chat-routing-service/internal/domain/registry"
	"github.com/webitel/chat-routing-service/internal/metrics"
)

// --- fakes ---------------------------------------------------------------

type fakeStore struct {
	mu      sync.Mutex
	users   map[int64]model.User
	friends map[int64][]int64
	groups  map[int64]model.Group
	offline map[int64][][]byte
	nextID  int64

	failQueryUser map[int64]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[int64]model.User),
		friends:       make(map[int64][]int64),
		groups:        make(map[int64]model.Group),
		offline:       make(map[int64][][]byte),
		failQueryUser: make(map[int64]error),
	}
}

func (f *fakeStore) addUser(name, password string, state model.UserState) int64 {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.users[f.nextID] = model.User{ID: f.nextID, Name: name, Password: string(hash), State: state}
	return f.nextID
}

func (f *fakeStore) QueryUser(_ context.Context, id int64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failQueryUser[id]; ok {
		return model.User{}, err
	}
	u, ok := f.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) InsertUser(_ context.Context, name, passwordHash string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Name == name {
			return 0, errors.New("name taken")
		}
	}
	f.nextID++
	f.users[f.nextID] = model.User{ID: f.nextID, Name: name, Password: passwordHash, State: model.StateOffline}
	return f.nextID, nil
}

func (f *fakeStore) UpdateUserState(_ context.Context, id int64, state model.UserState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.ID, u.State = id, state
	f.users[id] = u
	return nil
}

func (f *fakeStore) ResetAllStates(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		u.State = model.StateOffline
		f.users[id] = u
	}
	return nil
}

func (f *fakeStore) QueryFriends(_ context.Context, id int64) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.User
	for _, fid := range f.friends[id] {
		out = append(out, f.users[fid])
	}
	return out, nil
}

func (f *fakeStore) InsertFriendEdge(_ context.Context, userID, friendID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.friends[userID] = append(f.friends[userID], friendID)
	return nil
}

func (f *fakeStore) CreateGroup(_ context.Context, name, desc string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.groups[f.nextID] = model.Group{ID: f.nextID, Name: name, Desc: desc}
	return f.nextID, nil
}

func (f *fakeStore) AddMembership(_ context.Context, groupID, userID int64, role model.GroupRole) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[groupID]
	if !ok {
		return errors.New("no such group")
	}
	g.Users = append(g.Users, model.GroupMember{User: f.users[userID], Role: role})
	f.groups[groupID] = g
	return nil
}

func (f *fakeStore) QueryGroupsWithMembers(_ context.Context, userID int64) ([]model.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Group
	for _, g := range f.groups {
		for _, m := range g.Users {
			if m.User.ID == userID {
				out = append(out, g)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) QueryGroupMemberIDs(_ context.Context, groupID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[groupID]
	if !ok {
		return nil, errors.New("no such group")
	}
	var ids []int64
	for _, m := range g.Users {
		ids = append(ids, m.User.ID)
	}
	return ids, nil
}

func (f *fakeStore) Append(_ context.Context, userID int64, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline[userID] = append(f.offline[userID], payload)
	return nil
}

func (f *fakeStore) DrainAndClear(_ context.Context, userID int64) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.offline[userID]
	delete(f.offline, userID)
	return q, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) queuedFor(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.offline[userID])
}

func (f *fakeStore) stateOf(userID int64) model.UserState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[userID].State
}

type fakeBridge struct {
	mu         sync.Mutex
	subscribed map[int64]bool
	published  map[int64][][]byte
	publishErr error
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{subscribed: make(map[int64]bool), published: make(map[int64][][]byte)}
}

func (b *fakeBridge) Subscribe(_ context.Context, userID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed[userID] = true
	return nil
}

func (b *fakeBridge) Unsubscribe(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribed, userID)
}

func (b *fakeBridge) Publish(_ context.Context, userID int64, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published[userID] = append(b.published[userID], payload)
	return nil
}

func (b *fakeBridge) publishedTo(userID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[userID])
}

func (b *fakeBridge) isSubscribed(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribed[userID]
}

type fakeConn struct {
	id   string
	mu   sync.Mutex
	sent [][]byte
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, payload)
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

// --- harness -------------------------------------------------------------

type harness struct {
	svc    *ChatService
	store  *fakeStore
	bridge *fakeBridge
	reg    *registry.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := newFakeStore()
	bridge := newFakeBridge()
	reg := registry.New()
	m := metrics.New(prometheus.NewRegistry(), reg.Len)

	svc, err := NewChatService(st, reg, bridge, m, slog.New(slog.NewTextHandler(io.Discard, nil)), 4)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	return &harness{svc: svc, store: st, bridge: bridge, reg: reg}
}

func frame(t *testing.T, fields map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	return raw
}

// --- tests ---------------------------------------------------------------

func TestLoginSuccessDrainsOfflineQueue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.store.addUser("zhang", "123456", model.StateOffline)
	require.NoError(t, h.store.Append(ctx, id, []byte(`{"msgid":5,"msg":"while you were away"}`)))

	conn := &fakeConn{id: "c1"}
	ack, err := h.svc.Login(ctx, conn, id, "123456")
	require.NoError(t, err)

	assert.Equal(t, model.MsgLoginAck, ack.MsgID)
	assert.Equal(t, model.ErrnoOK, ack.Errno)
	assert.Equal(t, "zhang", ack.Name)
	require.Len(t, ack.OfflineMsg, 1)

	assert.Equal(t, model.StateOnline, h.store.stateOf(id))
	assert.True(t, h.bridge.isSubscribed(id))
	assert.True(t, h.reg.LookupAndSend(id, []byte("direct")), "login must register the connection")

	// Queue drained exactly once.
	assert.Zero(t, h.store.queuedFor(id))
	ack2, err := h.svc.Login(ctx, &fakeConn{id: "c2"}, id, "123456")
	assert.Nil(t, ack2)
	assert.ErrorIs(t, err, model.ErrAlreadyLoggedIn)
}

func TestLoginBadCredentials(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.store.addUser("zhang", "123456", model.StateOffline)

	_, err := h.svc.Login(ctx, &fakeConn{id: "c"}, id, "wrong")
	assert.ErrorIs(t, err, model.ErrAuth)

	_, err = h.svc.Login(ctx, &fakeConn{id: "c"}, 404, "123456")
	assert.ErrorIs(t, err, model.ErrAuth)

	assert.Equal(t, model.StateOffline, h.store.stateOf(id))
	assert.Equal(t, 0, h.reg.Len())
}

func TestDuplicateLoginLeavesSessionUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.store.addUser("zhang", "123456", model.StateOffline)

	first := &fakeConn{id: "first"}
	_, err := h.svc.Login(ctx, first, id, "123456")
	require.NoError(t, err)

	_, err = h.svc.Login(ctx, &fakeConn{id: "second"}, id, "123456")
	require.ErrorIs(t, err, model.ErrAlreadyLoggedIn)

	// Existing session still owns the registry entry.
	require.True(t, h.reg.LookupAndSend(id, []byte("ping")))
	assert.Len(t, first.received(), 1)
}

func TestDirectMessageLocalPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.store.addUser("li", "pw", model.StateOffline)

	conn := &fakeConn{id: "c"}
	_, err := h.svc.Login(ctx, conn, id, "pw")
	require.NoError(t, err)

	payload := frame(t, map[string]any{"msgid": model.MsgChat, "to": id, "msg": "hello"})
	require.NoError(t, h.svc.DirectMessage(ctx, id, payload))

	received := conn.received()
	require.Len(t, received, 1)
	assert.JSONEq(t, string(payload), string(received[0]))
	assert.Zero(t, h.bridge.publishedTo(id), "local delivery must not touch the bus")
	assert.Zero(t, h.store.queuedFor(id), "local delivery must not enqueue")
}

func TestDirectMessageRelayPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	// Online but absent from the local registry: connected to another node.
	id := h.store.addUser("li", "pw", model.StateOnline)

	require.NoError(t, h.svc.DirectMessage(ctx, id, []byte(`{"msgid":5}`)))

	assert.Equal(t, 1, h.bridge.publishedTo(id), "exactly one relay publish")
	assert.Zero(t, h.store.queuedFor(id), "relayed delivery must not enqueue")
}

func TestDirectMessageOfflinePath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.store.addUser("li", "pw", model.StateOffline)

	require.NoError(t, h.svc.DirectMessage(ctx, id, []byte(`{"msgid":5}`)))

	assert.Equal(t, 1, h.store.queuedFor(id))
	assert.Zero(t, h.bridge.publishedTo(id), "offline delivery must not publish")
}

func TestDirectMessageRelayFailureDegradesToQueue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.store.addUser("li", "pw", model.StateOnline)
	h.bridge.publishErr = model.ErrBusUnavailable

	require.NoError(t, h.svc.DirectMessage(ctx, id, []byte(`{"msgid":5}`)))
	assert.Equal(t, 1, h.store.queuedFor(id))
}

func TestLogoutIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.store.addUser("li", "pw", model.StateOffline)

	_, err := h.svc.Login(ctx, &fakeConn{id: "c"}, id, "pw")
	require.NoError(t, err)

	h.svc.Logout(ctx, id)
	assert.Equal(t, model.StateOffline, h.store.stateOf(id))
	assert.False(t, h.bridge.isSubscribed(id))
	assert.Equal(t, 0, h.reg.Len())

	// Second logout is a no-op beyond the state write.
	h.svc.Logout(ctx, id)
	assert.Equal(t, model.StateOffline, h.store.stateOf(id))
}

func TestDisconnectResolvesOwningUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.store.addUser("a", "pw", model.StateOffline)
	b := h.store.addUser("b", "pw", model.StateOffline)

	connA := &fakeConn{id: "ca"}
	connB := &fakeConn{id: "cb"}
	_, err := h.svc.Login(ctx, connA, a, "pw")
	require.NoError(t, err)
	_, err = h.svc.Login(ctx, connB, b, "pw")
	require.NoError(t, err)

	h.svc.HandleDisconnect(ctx, connA)

	assert.Equal(t, model.StateOffline, h.store.stateOf(a))
	assert.Equal(t, model.StateOnline, h.store.stateOf(b), "only the owner's presence flips")
	assert.False(t, h.bridge.isSubscribed(a))
	assert.True(t, h.bridge.isSubscribed(b))

	// A connection that never logged in changes nothing.
	h.svc.HandleDisconnect(ctx, &fakeConn{id: "stranger"})
	assert.Equal(t, model.StateOnline, h.store.stateOf(b))
}

func TestRegisterAssignsID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.svc.Register(ctx, "wang", "secret")
	require.NoError(t, err)
	require.NotZero(t, id)

	// Fresh account can log in with the plaintext it registered with.
	_, err = h.svc.Login(ctx, &fakeConn{id: "c"}, id, "secret")
	require.NoError(t, err)

	_, err = h.svc.Register(ctx, "wang", "again")
	assert.ErrorIs(t, err, model.ErrRegistration)
}

func TestGroupFanoutPerRecipientDecisions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sender := h.store.addUser("sender", "pw", model.StateOffline)
	local := h.store.addUser("local", "pw", model.StateOffline)
	remote := h.store.addUser("remote", "pw", model.StateOnline)
	offline := h.store.addUser("offline", "pw", model.StateOffline)

	senderConn := &fakeConn{id: "cs"}
	localConn := &fakeConn{id: "cl"}
	_, err := h.svc.Login(ctx, senderConn, sender, "pw")
	require.NoError(t, err)
	_, err = h.svc.Login(ctx, localConn, local, "pw")
	require.NoError(t, err)

	gid, err := h.svc.CreateGroup(ctx, sender, "team", "the team")
	require.NoError(t, err)
	for _, id := range []int64{local, remote, offline} {
		require.NoError(t, h.svc.JoinGroup(ctx, id, gid))
	}

	payload := frame(t, map[string]any{"msgid": model.MsgGroupChat, "id": sender, "groupid": gid})
	h.svc.DeliverToGroup(ctx, sender, gid, payload)

	assert.Len(t, senderConn.received(), 1, "sender is an ordinary member (self-echo)")
	assert.Len(t, localConn.received(), 1)
	assert.Equal(t, 1, h.bridge.publishedTo(remote))
	assert.Equal(t, 1, h.store.queuedFor(offline))
}

func TestGroupFanoutIsolatesMemberFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sender := h.store.addUser("sender", "pw", model.StateOffline)
	broken := h.store.addUser("broken", "pw", model.StateOffline)
	healthy := h.store.addUser("healthy", "pw", model.StateOffline)

	gid, err := h.svc.CreateGroup(ctx, sender, "team", "")
	require.NoError(t, err)
	require.NoError(t, h.svc.JoinGroup(ctx, broken, gid))
	require.NoError(t, h.svc.JoinGroup(ctx, healthy, gid))

	h.store.failQueryUser[broken] = errors.New("store unavailable")

	h.svc.DeliverToGroup(ctx, sender, gid, []byte(`{"msgid":9}`))

	// The failing member is skipped; the rest still get their attempt.
	assert.Equal(t, 1, h.store.queuedFor(sender))
	assert.Equal(t, 1, h.store.queuedFor(healthy))
	assert.Zero(t, h.store.queuedFor(broken))
}

func TestMemberRosterCacheInvalidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sender := h.store.addUser("sender", "pw", model.StateOffline)
	late := h.store.addUser("late", "pw", model.StateOffline)

	gid, err := h.svc.CreateGroup(ctx, sender, "team", "")
	require.NoError(t, err)

	// Prime the cache with the single-member roster.
	h.svc.DeliverToGroup(ctx, sender, gid, []byte(`{"msgid":9,"n":1}`))
	assert.Equal(t, 1, h.store.queuedFor(sender))
	assert.Zero(t, h.store.queuedFor(late))

	require.NoError(t, h.svc.JoinGroup(ctx, late, gid))
	h.svc.DeliverToGroup(ctx, sender, gid, []byte(`{"msgid":9,"n":2}`))
	assert.Equal(t, 1, h.store.queuedFor(late), "join must invalidate the cached roster")
}

func TestHandleFrameDispatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.store.addUser("zhang", "123456", model.StateOffline)

	conn := &fakeConn{id: "c"}
	h.svc.HandleFrame(ctx, conn,
		frame(t, map[string]any{"msgid": model.MsgLogin, "id": id, "password": "123456"}),
		time.Now())

	received := conn.received()
	require.Len(t, received, 1)

	var ack model.LoginAck
	require.NoError(t, json.Unmarshal(received[0], &ack))
	assert.Equal(t, model.MsgLoginAck, ack.MsgID)
	assert.Equal(t, model.ErrnoOK, ack.Errno)
	assert.Equal(t, id, ack.ID)
	assert.Equal(t, "zhang", ack.Name)
}

func TestHandleFrameUnknownTypeIsSilent(t *testing.T) {
	h := newHarness(t)
	conn := &fakeConn{id: "c"}

	h.svc.HandleFrame(context.Background(), conn, []byte(`{"msgid":999}`), time.Now())
	h.svc.HandleFrame(context.Background(), conn, []byte(`not json at all`), time.Now())

	assert.Empty(t, conn.received(), "unknown types never surface to the sender")
}

func TestLoginAckCarriesRosters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	me := h.store.addUser("me", "pw", model.StateOffline)
	buddy := h.store.addUser("buddy", "pw", model.StateOnline)
	require.NoError(t, h.store.InsertFriendEdge(ctx, me, buddy))

	_, err := h.svc.CreateGroup(ctx, me, "crew", "the crew")
	require.NoError(t, err)

	ack, err := h.svc.Login(ctx, &fakeConn{id: "c"}, me, "pw")
	require.NoError(t, err)

	require.Len(t, ack.Friends, 1)
	assert.Equal(t, "buddy", ack.Friends[0].Name)
	assert.Equal(t, model.StateOnline, ack.Friends[0].State)

	require.Len(t, ack.Groups, 1)
	assert.Equal(t, "crew", ack.Groups[0].GroupName)
	require.Len(t, ack.Groups[0].Users, 1)
	assert.Equal(t, model.RoleCreator, ack.Groups[0].Users[0].Role)
}
