package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pluk/internal/apperror"
	"github.com/sakif/pluk/internal/auth"
	"github.com/sakif/pluk/internal/directory"
	"github.com/sakif/pluk/internal/model"
	"github.com/sakif/pluk/internal/repository"
	"github.com/sakif/pluk/internal/repository/sessionstore"
)

// =========================================================================
// FAKES
// =========================================================================

// fakeStore is a PlantStore that can also push changes like the remote
// store does. Set saveErr to make every Save fail.
type fakeStore struct {
	mu      sync.Mutex
	docs    map[string][]model.Plant
	saveErr error
	saves   int
	subs    []*fakeSub
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string][]model.Plant)}
}

func (s *fakeStore) Load(_ context.Context, accountID string) ([]model.Plant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.ClonePlants(s.docs[accountID]), nil
}

func (s *fakeStore) Save(_ context.Context, accountID, _ string, plants []model.Plant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.docs[accountID] = model.ClonePlants(plants)
	return nil
}

func (s *fakeStore) Subscribe(_ context.Context, _ string) (repository.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &fakeSub{ch: make(chan []model.Plant, 4)}
	s.subs = append(s.subs, sub)
	return sub, nil
}

func (s *fakeStore) lastSub() *fakeSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return nil
	}
	return s.subs[len(s.subs)-1]
}

func (s *fakeStore) stored(accountID string) []model.Plant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.ClonePlants(s.docs[accountID])
}

type fakeSub struct {
	ch     chan []model.Plant
	once   sync.Once
	closes atomic.Int32
}

func (s *fakeSub) Updates() <-chan []model.Plant { return s.ch }

func (s *fakeSub) Close() error {
	s.closes.Add(1)
	s.once.Do(func() { close(s.ch) })
	return nil
}

// plainStore hides Subscribe so the controller sees a store without a feed.
type plainStore struct{ repository.PlantStore }

type fixture struct {
	store     *fakeStore
	snapshots *sessionstore.Store
	dir       *directory.Local
	deps      Deps
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts := sessionstore.New()
	dir := directory.NewLocal(accounts, auth.NewPasswordServiceForTest(4), logger)

	_, err := dir.Register(context.Background(), "ana@x.com", "secret1")
	require.NoError(t, err)

	f := &fixture{
		store:     newFakeStore(),
		snapshots: sessionstore.New(),
		dir:       dir,
		clock:     time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.deps = Deps{
		Directory: dir,
		Plants:    f.store,
		Logger:    logger,
		Now:       func() time.Time { return f.clock },
	}
	return f
}

func (f *fixture) controller(id string) *Controller {
	return NewController(id, f.deps, f.snapshots.Scoped(id))
}

func (f *fixture) loggedIn(t *testing.T) *Controller {
	t.Helper()
	c := f.controller("s1")
	_, err := c.Login(context.Background(), "ana@x.com", "secret1")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// =========================================================================
// CONTROLLER TESTS
// =========================================================================

func TestState_Reset(t *testing.T) {
	s := State{Account: &model.Account{Email: "a@x.com"}, DarkMode: true, Plants: []model.Plant{{ID: "p"}}}
	s.Reset()
	assert.False(t, s.LoggedIn())
	assert.False(t, s.DarkMode)
	assert.Nil(t, s.Plants)
	assert.Nil(t, s.Subscription)
}

func TestLogin_LoadsPlantsAndWritesSnapshot(t *testing.T) {
	f := newFixture(t)
	f.store.docs["ana@x.com"] = []model.Plant{{ID: "p1", Nickname: "Spike"}}

	c := f.controller("s1")
	acc, err := c.Login(context.Background(), " ANA@x.com", "secret1")
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "ana@x.com", acc.Email)
	assert.Empty(t, acc.PasswordHash)

	plants, err := c.Plants()
	require.NoError(t, err)
	assert.Len(t, plants, 1)

	snap, err := f.snapshots.Scoped("s1").LoadCurrentAccount(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "ana@x.com", snap.Email)
	assert.Empty(t, snap.PasswordHash)
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newFixture(t)
	c := f.controller("s1")

	_, err := c.Login(context.Background(), "ana@x.com", "nope-nope")

	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Nil(t, c.Account())
	assert.Nil(t, f.store.lastSub(), "no feed for a failed login")
}

func TestRegister_LogsIn(t *testing.T) {
	f := newFixture(t)
	c := f.controller("s1")
	defer c.Close()

	acc, err := c.Register(context.Background(), "bia@x.com", "secret2")
	require.NoError(t, err)
	assert.Equal(t, "bia@x.com", acc.Email)

	plants, err := c.Plants()
	require.NoError(t, err)
	assert.Empty(t, plants)

	_, err = f.controller("s2").Register(context.Background(), "bia@x.com", "secret2")
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestNotLoggedIn(t *testing.T) {
	f := newFixture(t)
	c := f.controller("s1")
	ctx := context.Background()

	_, err := c.Plants()
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	_, err = c.AddPlant(ctx, model.NewPlantInput{Type: "cacto", Nickname: "Spike"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	_, err = c.WaterPlant(ctx, "p1")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.ErrorIs(t, c.SetSecurityQuestion(ctx, "q?", "a"), apperror.ErrUnauthorized)
}

func TestCareActions(t *testing.T) {
	f := newFixture(t)
	c := f.loggedIn(t)
	ctx := context.Background()
	t0 := f.clock

	p, err := c.AddPlant(ctx, model.NewPlantInput{Type: "suculenta", Nickname: "Spike"})
	require.NoError(t, err)
	assert.Equal(t, "ana@x.com", p.AccountID)
	assert.Equal(t, t0.Add(7*24*time.Hour), p.NextWaterDue)

	f.clock = t0.Add(3 * 24 * time.Hour)
	watered, err := c.WaterPlant(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(10*24*time.Hour), watered.NextWaterDue)
	assert.Equal(t, p.NextSunDue, watered.NextSunDue)

	sunned, err := c.SunPlant(ctx, p.ID, 2.5)
	require.NoError(t, err)
	assert.Equal(t, 2.5, sunned.TotalSunHours)
	assert.Equal(t, f.clock.Add(4*time.Hour), sunned.NextSunDue)

	got, err := c.Plant(p.ID)
	require.NoError(t, err)
	assert.Equal(t, sunned, got)
	assert.Equal(t, []model.Plant{sunned}, f.store.stored("ana@x.com"))

	require.NoError(t, c.DeletePlant(ctx, p.ID))
	_, err = c.Plant(p.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Empty(t, f.store.stored("ana@x.com"))
}

func TestCareActions_WallClockSurvivesStore(t *testing.T) {
	f := newFixture(t)
	store := sessionstore.New()
	f.deps.Plants = store
	f.deps.Now = nil

	c := f.loggedIn(t)
	ctx := context.Background()

	p, err := c.AddPlant(ctx, model.NewPlantInput{Type: "violeta", Nickname: "Vivi"})
	require.NoError(t, err)
	watered, err := c.WaterPlant(ctx, p.ID)
	require.NoError(t, err)

	stored, err := store.Load(ctx, "ana@x.com")
	require.NoError(t, err)
	assert.Equal(t, []model.Plant{watered}, stored)

	mirror, err := c.Plants()
	require.NoError(t, err)
	assert.Equal(t, mirror, stored)
}

func TestCareActions_Rejections(t *testing.T) {
	f := newFixture(t)
	c := f.loggedIn(t)
	ctx := context.Background()

	p, err := c.AddPlant(ctx, model.NewPlantInput{Type: "cacto", Nickname: "Spike"})
	require.NoError(t, err)
	saves := f.store.saves

	_, err = c.AddPlant(ctx, model.NewPlantInput{Type: "cacto", Nickname: "  "})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = c.SunPlant(ctx, p.ID, 0)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = c.WaterPlant(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	assert.ErrorIs(t, c.DeletePlant(ctx, "missing"), apperror.ErrNotFound)

	assert.Equal(t, saves, f.store.saves, "rejected actions never reach the store")
	got, _ := c.Plant(p.ID)
	assert.Equal(t, p, got)
}

func TestSaveFailure_LeavesMirrorAndSession(t *testing.T) {
	f := newFixture(t)
	c := f.loggedIn(t)
	ctx := context.Background()

	p, err := c.AddPlant(ctx, model.NewPlantInput{Type: "violeta", Nickname: "Vi"})
	require.NoError(t, err)

	f.store.mu.Lock()
	f.store.saveErr = errors.New("network down")
	f.store.mu.Unlock()

	f.clock = f.clock.Add(time.Hour)
	_, err = c.WaterPlant(ctx, p.ID)

	assert.ErrorIs(t, err, apperror.ErrUnavailable)
	assert.NotContains(t, err.Error(), "network down")
	got, _ := c.Plant(p.ID)
	assert.Equal(t, p.NextWaterDue, got.NextWaterDue)
	assert.NotNil(t, c.Account(), "still logged in")

	_, err = c.AddPlant(ctx, model.NewPlantInput{Type: "violeta", Nickname: "Other"})
	assert.ErrorIs(t, err, apperror.ErrUnavailable)
	plants, _ := c.Plants()
	assert.Len(t, plants, 1)
}

func TestSubscription_ReplacesMirror(t *testing.T) {
	f := newFixture(t)
	c := f.loggedIn(t)

	sub := f.store.lastSub()
	require.NotNil(t, sub)

	remote := []model.Plant{{ID: "from-other-device", Nickname: "Remote"}}
	sub.ch <- remote

	assert.Eventually(t, func() bool {
		plants, _ := c.Plants()
		return len(plants) == 1 && plants[0].ID == "from-other-device"
	}, time.Second, 5*time.Millisecond)
}

func TestNoSubscriptionWithoutFeed(t *testing.T) {
	f := newFixture(t)
	f.deps.Plants = plainStore{f.store}
	c := f.loggedIn(t)

	_, err := c.AddPlant(context.Background(), model.NewPlantInput{Type: "jiboia", Nickname: "Jibs"})
	require.NoError(t, err)
	assert.Nil(t, f.store.lastSub())
	assert.NoError(t, c.Logout(context.Background()))
}

func TestLogout_ClosesSubscriptionOnce(t *testing.T) {
	f := newFixture(t)
	c := f.loggedIn(t)
	ctx := context.Background()
	sub := f.store.lastSub()

	require.NoError(t, c.Logout(ctx))
	require.NoError(t, c.Logout(ctx))
	require.NoError(t, c.Close())

	assert.Equal(t, int32(1), sub.closes.Load())
	assert.Nil(t, c.Account())
	_, err := c.Plants()
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	snap, err := f.snapshots.Scoped("s1").LoadCurrentAccount(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRelogin_ReplacesSubscription(t *testing.T) {
	f := newFixture(t)
	c := f.loggedIn(t)
	first := f.store.lastSub()

	_, err := c.Login(context.Background(), "ana@x.com", "secret1")
	require.NoError(t, err)

	assert.Equal(t, int32(1), first.closes.Load())
	assert.NotSame(t, first, f.store.lastSub())
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.docs["ana@x.com"] = []model.Plant{{ID: "p1"}}

	first := f.loggedIn(t)
	require.NoError(t, first.SetDarkMode(ctx, true))
	require.NoError(t, first.Close())

	again := f.controller("s1")
	defer again.Close()
	acc, err := again.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "ana@x.com", acc.Email)
	assert.True(t, again.DarkMode())
	plants, _ := again.Plants()
	assert.Len(t, plants, 1)

	empty := f.controller("nobody")
	acc, err = empty.Restore(ctx)
	assert.NoError(t, err)
	assert.Nil(t, acc)
}

func TestSetSecurityQuestion(t *testing.T) {
	f := newFixture(t)
	c := f.loggedIn(t)
	ctx := context.Background()

	require.NoError(t, c.SetSecurityQuestion(ctx, " Cidade natal? ", "Recife"))

	assert.Equal(t, "Cidade natal?", c.Account().SecurityQuestion)
	assert.NoError(t, f.dir.VerifySecurityAnswer(ctx, "ana@x.com", "RECIFE"))
	assert.ErrorIs(t, c.SetSecurityQuestion(ctx, "", "x"), apperror.ErrValidation)
}

func TestEnvironment_WithoutCollaborators(t *testing.T) {
	f := newFixture(t)
	c := f.loggedIn(t)

	r := c.Environment(context.Background(), nil)

	assert.True(t, r.LocationFallback)
	assert.True(t, r.Weather.Fallback)
	assert.NotNil(t, r.Stores)
}

// =========================================================================
// MANAGER TESTS
// =========================================================================

func newTestManager(t *testing.T, f *fixture) *Manager {
	t.Helper()
	m := NewManager(f.deps, f.snapshots, 10*time.Minute)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManager_LoginGetLogout(t *testing.T) {
	f := newFixture(t)
	m := newTestManager(t, f)
	ctx := context.Background()

	c, err := m.Login(ctx, "ana@x.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID())
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(ctx, c.ID())
	require.NoError(t, err)
	assert.Same(t, c, got)

	require.NoError(t, m.Logout(ctx, c.ID()))
	assert.Equal(t, 0, m.Len())

	_, err = m.Get(ctx, c.ID())
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestManager_FailedLoginLeavesNothing(t *testing.T) {
	f := newFixture(t)
	m := newTestManager(t, f)
	before := f.snapshots.Len()

	_, err := m.Login(context.Background(), "ana@x.com", "wrong-pass")

	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, before, f.snapshots.Len())
}

func TestManager_EvictAndRestore(t *testing.T) {
	f := newFixture(t)
	m := newTestManager(t, f)
	ctx := context.Background()

	c, err := m.Register(ctx, "bia@x.com", "secret2")
	require.NoError(t, err)
	_, err = c.AddPlant(ctx, model.NewPlantInput{Type: "orquidea", Nickname: "Flor"})
	require.NoError(t, err)
	sub := f.store.lastSub()

	f.clock = f.clock.Add(5 * time.Minute)
	assert.Equal(t, 0, m.Sweep(), "still inside the idle window")

	f.clock = f.clock.Add(10 * time.Minute)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, int32(1), sub.closes.Load(), "eviction closes the feed")

	restored, err := m.Get(ctx, c.ID())
	require.NoError(t, err)
	assert.NotSame(t, c, restored)
	assert.Equal(t, "bia@x.com", restored.Account().Email)
	plants, _ := restored.Plants()
	assert.Len(t, plants, 1)
}

func TestManager_UnknownSession(t *testing.T) {
	f := newFixture(t)
	m := newTestManager(t, f)

	_, err := m.Get(context.Background(), "never-issued")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	_, err = m.Get(context.Background(), "")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestManager_Close(t *testing.T) {
	f := newFixture(t)
	m := NewManager(f.deps, f.snapshots, 0)
	ctx := context.Background()

	_, err := m.Login(ctx, "ana@x.com", "secret1")
	require.NoError(t, err)
	sub := f.store.lastSub()

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.Equal(t, int32(1), sub.closes.Load())
	_, err = m.Login(ctx, "ana@x.com", "secret1")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestManager_RunStopsWithContext(t *testing.T) {
	f := newFixture(t)
	m := newTestManager(t, f)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
