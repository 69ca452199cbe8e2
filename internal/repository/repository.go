package repository

import (
	"context"

	"github.com/sakif/pluk/internal/model"
)

// PlantStore persists an account's whole plant collection. Save always
// overwrites; the last writer wins.
type PlantStore interface {
	Load(ctx context.Context, accountID string) ([]model.Plant, error)
	Save(ctx context.Context, accountID, email string, plants []model.Plant) error
}

// PlantSubscriber is implemented by stores that can push changes.
// Callers type-assert a PlantStore to find out.
type PlantSubscriber interface {
	Subscribe(ctx context.Context, accountID string) (Subscription, error)
}

// Subscription delivers full collections, current one first. Updates is
// closed after Close, and Close is safe to call more than once.
type Subscription interface {
	Updates() <-chan []model.Plant
	Close() error
}

// AccountStore holds local-directory accounts keyed by normalized email.
// GetAccount returns apperror.ErrNotFound when there is no such account and
// CreateAccount returns apperror.ErrConflict when the email is taken.
type AccountStore interface {
	GetAccount(ctx context.Context, email string) (*model.Account, error)
	CreateAccount(ctx context.Context, account *model.Account) error
	UpdateAccount(ctx context.Context, account *model.Account) error
}

// SnapshotStore remembers who is logged in and their dark-mode choice so a
// session can be restored. LoadCurrentAccount returns nil, nil when nobody
// is logged in.
type SnapshotStore interface {
	SaveCurrentAccount(ctx context.Context, account model.Account) error
	LoadCurrentAccount(ctx context.Context) (*model.Account, error)
	ClearCurrentAccount(ctx context.Context) error
	SaveDarkMode(ctx context.Context, on bool) error
	LoadDarkMode(ctx context.Context) (bool, error)
}
