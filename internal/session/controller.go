package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/pluk/internal/apperror"
	"github.com/sakif/pluk/internal/care"
	"github.com/sakif/pluk/internal/collab"
	"github.com/sakif/pluk/internal/directory"
	"github.com/sakif/pluk/internal/model"
	"github.com/sakif/pluk/internal/repository"
)

// Deps are shared by every Controller of a process.
type Deps struct {
	Directory   directory.Directory
	Plants      repository.PlantStore
	Environment *collab.Environment
	Logger      *slog.Logger
	Now         func() time.Time // defaults to time.Now
}

// Controller is one session. It is safe for concurrent use: the mirror is
// guarded by mu and all store I/O happens outside the lock, so two
// overlapping saves race and the last one written wins.
type Controller struct {
	id        string
	dir       directory.Directory
	plants    repository.PlantStore
	snapshots repository.SnapshotStore
	env       *collab.Environment
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	state  State
	closed bool
}

func NewController(id string, deps Deps, snapshots repository.SnapshotStore) *Controller {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		id:        id,
		dir:       deps.Directory,
		plants:    deps.Plants,
		snapshots: snapshots,
		env:       deps.Environment,
		logger:    deps.Logger.With("session_id", id),
		now:       now,
	}
}

func (c *Controller) ID() string {
	return c.id
}

// Register creates the account and logs it in.
func (c *Controller) Register(ctx context.Context, email, password string) (*model.Account, error) {
	acc, err := c.dir.Register(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := c.start(ctx, *acc); err != nil {
		return nil, err
	}
	return c.Account(), nil
}

func (c *Controller) Login(ctx context.Context, email, password string) (*model.Account, error) {
	acc, err := c.dir.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := c.start(ctx, *acc); err != nil {
		return nil, err
	}
	return c.Account(), nil
}

// Restore logs back in from the persisted snapshot. It returns nil, nil when
// there is nothing to restore.
func (c *Controller) Restore(ctx context.Context) (*model.Account, error) {
	acc, err := c.snapshots.LoadCurrentAccount(ctx)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("session: reading snapshot: %w", err))
	}
	if acc == nil {
		return nil, nil
	}
	if err := c.start(ctx, *acc); err != nil {
		return nil, err
	}
	return c.Account(), nil
}

// start loads the account's plants, attaches the change feed when the store
// has one and records the snapshot.
func (c *Controller) start(ctx context.Context, acc model.Account) error {
	plants, err := c.plants.Load(ctx, acc.ID)
	if err != nil {
		c.logger.Error("loading plants failed", "email", acc.Email, "error", err)
		return apperror.StorageFailure(fmt.Errorf("session: loading plants for %s: %w", acc.Email, err))
	}

	dark, err := c.snapshots.LoadDarkMode(ctx)
	if err != nil {
		c.logger.Warn("reading dark mode failed", "error", err)
	}

	sub := c.subscribe(ctx, acc)
	pub := acc.Public()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
		return apperror.SessionExpired()
	}
	previous := c.state.Subscription
	c.state = State{
		Account:      &pub,
		DarkMode:     dark,
		Plants:       plants,
		Subscription: sub,
	}
	c.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	if sub != nil {
		go c.follow(sub)
	}

	if err := c.snapshots.SaveCurrentAccount(ctx, pub); err != nil {
		c.logger.Warn("saving session snapshot failed", "error", err)
	}

	c.logger.Info("session started",
		"email", pub.Email,
		"plants", len(plants),
		"live", sub != nil,
	)
	return nil
}

func (c *Controller) subscribe(ctx context.Context, acc model.Account) repository.Subscription {
	ps, ok := c.plants.(repository.PlantSubscriber)
	if !ok {
		return nil
	}
	// The feed outlives the request that opened it.
	sub, err := ps.Subscribe(context.WithoutCancel(ctx), acc.ID)
	if err != nil {
		c.logger.Warn("live updates unavailable", "email", acc.Email, "error", err)
		return nil
	}
	return sub
}

// follow replaces the mirror with every collection the feed delivers. It
// returns when the subscription is closed.
//
// WHY ACCEPT OUR OWN ECHOES?
//
// Every Save on the remote store comes back through the feed, sometimes after
// a newer local change was already applied. Such a stale echo briefly puts
// the older collection back in the mirror. The next echo, the one for the
// newer save, restores it, so the mirror always settles on the last write
// the store accepted. Filtering echoes would need a version on every
// document, and last write wins across tabs anyway.
//
// The Subscription check drops deliveries from a feed that was replaced by a
// later login while this goroutine was still draining it.
func (c *Controller) follow(sub repository.Subscription) {
	for plants := range sub.Updates() {
		c.mu.Lock()
		if c.state.Subscription == sub {
			c.state.Plants = plants
		}
		c.mu.Unlock()
	}
}

// detach clears the state and returns the subscription that was active, if
// any, for the caller to close outside the lock.
func (c *Controller) detach() repository.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := c.state.Subscription
	c.state.Reset()
	return sub
}

// Logout forgets the account and closes the change feed. A save that is
// already in flight is not aborted.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	email := ""
	if c.state.Account != nil {
		email = c.state.Account.Email
	}
	c.mu.Unlock()

	if sub := c.detach(); sub != nil {
		sub.Close()
	}

	if err := c.snapshots.ClearCurrentAccount(ctx); err != nil {
		c.logger.Warn("clearing session snapshot failed", "error", err)
	}
	c.logger.Info("logged out", "email", email)
	return nil
}

// Close tears the controller down without touching its snapshot, so the
// session can be restored later. It is safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if sub := c.detach(); sub != nil {
		return sub.Close()
	}
	return nil
}

// Account returns a copy of the logged-in account, or nil.
func (c *Controller) Account() *model.Account {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Account == nil {
		return nil
	}
	acc := *c.state.Account
	return &acc
}

func (c *Controller) Plants() ([]model.Plant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.LoggedIn() {
		return nil, apperror.SessionExpired()
	}
	return model.ClonePlants(c.state.Plants), nil
}

func (c *Controller) Plant(id string) (model.Plant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.LoggedIn() {
		return model.Plant{}, apperror.SessionExpired()
	}
	i := model.FindPlant(c.state.Plants, id)
	if i < 0 {
		return model.Plant{}, apperror.NotFound("plant", id)
	}
	return c.state.Plants[i], nil
}

func (c *Controller) AddPlant(ctx context.Context, in model.NewPlantInput) (model.Plant, error) {
	var created model.Plant
	_, err := c.apply(ctx, "adding plant", func(acc model.Account, plants []model.Plant, now time.Time) ([]model.Plant, error) {
		p, err := care.CreatePlant(acc.ID, in, now)
		if err != nil {
			return nil, err
		}
		created = p
		return append(plants, p), nil
	})
	if err != nil {
		return model.Plant{}, err
	}
	return created, nil
}

func (c *Controller) WaterPlant(ctx context.Context, id string) (model.Plant, error) {
	return c.applyOne(ctx, "watering plant", id, func(p model.Plant, now time.Time) (model.Plant, error) {
		return care.ScheduleWater(p, now), nil
	})
}

func (c *Controller) SunPlant(ctx context.Context, id string, hours float64) (model.Plant, error) {
	return c.applyOne(ctx, "logging sun", id, func(p model.Plant, now time.Time) (model.Plant, error) {
		return care.ScheduleSun(p, hours, now)
	})
}

func (c *Controller) DeletePlant(ctx context.Context, id string) error {
	_, err := c.apply(ctx, "deleting plant", func(_ model.Account, plants []model.Plant, _ time.Time) ([]model.Plant, error) {
		i := model.FindPlant(plants, id)
		if i < 0 {
			return nil, apperror.NotFound("plant", id)
		}
		return append(plants[:i], plants[i+1:]...), nil
	})
	return err
}

type changeFunc func(acc model.Account, plants []model.Plant, now time.Time) ([]model.Plant, error)

// apply computes a new collection from a copy of the mirror, saves it and
// only then installs it as the mirror. When the save fails the mirror is
// left as it was.
func (c *Controller) apply(ctx context.Context, op string, change changeFunc) ([]model.Plant, error) {
	c.mu.Lock()
	if !c.state.LoggedIn() {
		c.mu.Unlock()
		return nil, apperror.SessionExpired()
	}
	acc := *c.state.Account
	current := model.ClonePlants(c.state.Plants)
	c.mu.Unlock()

	next, err := change(acc, current, care.Normalize(c.now()))
	if err != nil {
		return nil, err
	}

	if err := c.plants.Save(ctx, acc.ID, acc.Email, next); err != nil {
		c.logger.Error("saving plants failed", "op", op, "email", acc.Email, "error", err)
		return nil, apperror.StorageFailure(fmt.Errorf("session: %s: %w", op, err))
	}

	c.mu.Lock()
	if c.state.Account != nil && c.state.Account.ID == acc.ID {
		c.state.Plants = next
	}
	c.mu.Unlock()

	return model.ClonePlants(next), nil
}

func (c *Controller) applyOne(ctx context.Context, op, id string, change func(model.Plant, time.Time) (model.Plant, error)) (model.Plant, error) {
	var updated model.Plant
	_, err := c.apply(ctx, op, func(_ model.Account, plants []model.Plant, now time.Time) ([]model.Plant, error) {
		i := model.FindPlant(plants, id)
		if i < 0 {
			return nil, apperror.NotFound("plant", id)
		}
		p, err := change(plants[i], now)
		if err != nil {
			return nil, err
		}
		plants[i] = p
		updated = p
		return plants, nil
	})
	if err != nil {
		return model.Plant{}, err
	}
	return updated, nil
}

func (c *Controller) SetDarkMode(ctx context.Context, on bool) error {
	c.mu.Lock()
	c.state.DarkMode = on
	c.mu.Unlock()

	if err := c.snapshots.SaveDarkMode(ctx, on); err != nil {
		c.logger.Error("saving dark mode failed", "error", err)
		return apperror.StorageFailure(fmt.Errorf("session: saving dark mode: %w", err))
	}
	return nil
}

func (c *Controller) DarkMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.DarkMode
}

// SetSecurityQuestion attaches a recovery question to the logged-in account.
func (c *Controller) SetSecurityQuestion(ctx context.Context, question, answer string) error {
	acc := c.Account()
	if acc == nil {
		return apperror.SessionExpired()
	}
	if err := c.dir.SetSecurityQuestion(ctx, acc.Email, question, answer); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state.Account != nil && c.state.Account.ID == acc.ID {
		c.state.Account.SecurityQuestion = strings.TrimSpace(question)
		acc = c.state.Account
	}
	pub := *acc
	c.mu.Unlock()

	if err := c.snapshots.SaveCurrentAccount(ctx, pub); err != nil {
		c.logger.Warn("saving session snapshot failed", "error", err)
	}
	return nil
}

// Environment reports weather and nearby garden shops around coords, or
// around the default location when coords is nil. It never fails.
func (c *Controller) Environment(ctx context.Context, coords *collab.Coordinates) collab.Report {
	if c.env == nil {
		loc, fallback := collab.ResolveLocation(coords)
		return collab.Report{
			Location:         loc,
			LocationFallback: fallback,
			Weather:          collab.FallbackReading,
			Stores:           []collab.Place{},
		}
	}
	return c.env.Report(ctx, coords)
}
