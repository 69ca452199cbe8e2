// Package sessionstore is the ephemeral persistence backend. It keeps every
// value as JSON text in a string key-value map, the same shape a browser's
// session storage has, and loses everything when the process exits.
//
// Keys:
//
//	plukPlants_<accountID>   plant collection of one account
//	plukUsers                every registered account (local directory)
//	plukUser                 current-account snapshot, per scope
//	plukDarkMode             dark-mode flag, per scope
//
// The local directory uses the email as account id, so plant keys end up as
// plukPlants_<email>.
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sakif/pluk/internal/apperror"
	"github.com/sakif/pluk/internal/model"
	"github.com/sakif/pluk/internal/repository"
)

const (
	plantsKeyPrefix = "plukPlants_"
	usersKey        = "plukUsers"
	userKey         = "plukUser"
	darkModeKey     = "plukDarkMode"
)

var (
	_ repository.PlantStore    = (*Store)(nil)
	_ repository.AccountStore  = (*Store)(nil)
	_ repository.SnapshotStore = (*View)(nil)
)

// Store is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

func New() *Store {
	return &Store{data: make(map[string]string)}
}

// GetItem returns the raw text stored under key.
func (s *Store) GetItem(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *Store) SetItem(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *Store) RemoveItem(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Len reports how many keys are set.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// =========================================================================
// PLANTS
// =========================================================================

func plantsKey(accountID string) string {
	return plantsKeyPrefix + accountID
}

// Load returns an empty, non-nil collection when nothing was saved yet.
func (s *Store) Load(_ context.Context, accountID string) ([]model.Plant, error) {
	raw, ok := s.GetItem(plantsKey(accountID))
	if !ok {
		return []model.Plant{}, nil
	}
	var plants []model.Plant
	if err := json.Unmarshal([]byte(raw), &plants); err != nil {
		return nil, fmt.Errorf("sessionstore: decoding plants of %s: %w", accountID, err)
	}
	if plants == nil {
		plants = []model.Plant{}
	}
	return plants, nil
}

func (s *Store) Save(_ context.Context, accountID, _ string, plants []model.Plant) error {
	if plants == nil {
		plants = []model.Plant{}
	}
	b, err := json.Marshal(plants)
	if err != nil {
		return fmt.Errorf("sessionstore: encoding plants of %s: %w", accountID, err)
	}
	s.SetItem(plantsKey(accountID), string(b))
	return nil
}

// =========================================================================
// ACCOUNTS
// =========================================================================

// accounts and putAccounts must be called with s.mu held.
func (s *Store) accounts() ([]model.Account, error) {
	raw, ok := s.data[usersKey]
	if !ok {
		return nil, nil
	}
	var list []model.Account
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("sessionstore: decoding accounts: %w", err)
	}
	return list, nil
}

func (s *Store) putAccounts(list []model.Account) error {
	b, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("sessionstore: encoding accounts: %w", err)
	}
	s.data[usersKey] = string(b)
	return nil
}

func indexOfEmail(list []model.Account, email string) int {
	for i := range list {
		if strings.EqualFold(list[i].Email, email) {
			return i
		}
	}
	return -1
}

func (s *Store) GetAccount(_ context.Context, email string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, err := s.accounts()
	if err != nil {
		return nil, err
	}
	i := indexOfEmail(list, email)
	if i < 0 {
		return nil, apperror.AccountNotFound(email)
	}
	acc := list[i]
	return &acc, nil
}

func (s *Store) CreateAccount(_ context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.accounts()
	if err != nil {
		return err
	}
	if indexOfEmail(list, account.Email) >= 0 {
		return apperror.DuplicateAccount(account.Email)
	}

	now := time.Now()
	if account.ID == "" {
		account.ID = account.Email
	}
	account.CreatedAt = now
	account.UpdatedAt = now

	return s.putAccounts(append(list, *account))
}

func (s *Store) UpdateAccount(_ context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.accounts()
	if err != nil {
		return err
	}
	i := indexOfEmail(list, account.Email)
	if i < 0 {
		return apperror.AccountNotFound(account.Email)
	}

	account.CreatedAt = list[i].CreatedAt
	account.UpdatedAt = time.Now()
	list[i] = *account

	return s.putAccounts(list)
}

// =========================================================================
// SNAPSHOTS
// =========================================================================

// View is a namespaced window onto a Store. Every HTTP login gets its own
// View, so "the current user" is per login rather than per process.
type View struct {
	store  *Store
	prefix string
}

// Scoped returns a View whose snapshot keys are prefixed with prefix.
// An empty prefix addresses the bare keys.
func (s *Store) Scoped(prefix string) *View {
	return &View{store: s, prefix: prefix}
}

func (v *View) key(k string) string {
	if v.prefix == "" {
		return k
	}
	return v.prefix + ":" + k
}

func (v *View) SaveCurrentAccount(_ context.Context, account model.Account) error {
	b, err := json.Marshal(account.Public())
	if err != nil {
		return fmt.Errorf("sessionstore: encoding current account: %w", err)
	}
	v.store.SetItem(v.key(userKey), string(b))
	return nil
}

func (v *View) LoadCurrentAccount(_ context.Context) (*model.Account, error) {
	raw, ok := v.store.GetItem(v.key(userKey))
	if !ok {
		return nil, nil
	}
	var acc model.Account
	if err := json.Unmarshal([]byte(raw), &acc); err != nil {
		return nil, fmt.Errorf("sessionstore: decoding current account: %w", err)
	}
	return &acc, nil
}

func (v *View) ClearCurrentAccount(_ context.Context) error {
	v.store.RemoveItem(v.key(userKey))
	return nil
}

func (v *View) SaveDarkMode(_ context.Context, on bool) error {
	b, _ := json.Marshal(on)
	v.store.SetItem(v.key(darkModeKey), string(b))
	return nil
}

// LoadDarkMode defaults to false when the flag was never set.
func (v *View) LoadDarkMode(_ context.Context) (bool, error) {
	raw, ok := v.store.GetItem(v.key(darkModeKey))
	if !ok {
		return false, nil
	}
	var on bool
	if err := json.Unmarshal([]byte(raw), &on); err != nil {
		return false, fmt.Errorf("sessionstore: decoding dark mode: %w", err)
	}
	return on, nil
}

// Forget drops every key of the view. Used when a login is evicted for good.
func (v *View) Forget() {
	if v.prefix == "" {
		return
	}
	v.store.RemoveItem(v.key(userKey))
	v.store.RemoveItem(v.key(darkModeKey))
}
