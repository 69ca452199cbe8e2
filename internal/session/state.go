// Package session orchestrates one logged-in user: it owns the in-memory
// plant mirror, routes every care action through the care scheduler and the
// active PlantStore, and keeps the mirror in step with the store's change
// feed when the store has one.
//
// A Manager keeps one Controller per login session id and evicts idle ones;
// an evicted session is rebuilt from its snapshot on the next request.
package session

import (
	"github.com/sakif/pluk/internal/model"
	"github.com/sakif/pluk/internal/repository"
)

// State is the application state of a single session. It is only touched
// under the owning Controller's mutex.
type State struct {
	Account      *model.Account // nil when logged out; never carries secrets
	DarkMode     bool
	Plants       []model.Plant
	Subscription repository.Subscription
}

// Reset returns the state to logged out. It does not close the
// subscription; the caller detaches it first.
func (s *State) Reset() {
	*s = State{}
}

func (s *State) LoggedIn() bool {
	return s.Account != nil
}
