package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sakif/pluk/internal/model"
	"github.com/sakif/pluk/internal/repository"
)

var (
	_ repository.PlantStore      = (*DB)(nil)
	_ repository.PlantSubscriber = (*DB)(nil)
)

// Load is a one-shot read. An account that never saved gets an empty
// collection, not an error.
func (db *DB) Load(ctx context.Context, accountID string) ([]model.Plant, error) {
	doc, err := db.document(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return doc.Plants, nil
}

func (db *DB) document(ctx context.Context, accountID string) (model.PlantDocument, error) {
	doc := model.PlantDocument{AccountID: accountID, Plants: []model.Plant{}}

	var raw string
	err := db.conn.QueryRowContext(ctx,
		`SELECT email, plants, updated_at FROM plant_documents WHERE account_id = ?`,
		accountID,
	).Scan(&doc.Email, &raw, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("sqlite: loading plants of %s: %w", accountID, err)
	}

	if err := json.Unmarshal([]byte(raw), &doc.Plants); err != nil {
		return doc, fmt.Errorf("sqlite: decoding plants of %s: %w", accountID, err)
	}
	if doc.Plants == nil {
		doc.Plants = []model.Plant{}
	}
	return doc, nil
}

// Save overwrites the account's document with plants, then publishes it.
// There is no version check: concurrent saves race and the last one wins.
// A failed publish is logged but does not fail the save, since the row is
// already committed and subscribers catch up on their next event.
func (db *DB) Save(ctx context.Context, accountID, email string, plants []model.Plant) error {
	if plants == nil {
		plants = []model.Plant{}
	}
	raw, err := json.Marshal(plants)
	if err != nil {
		return fmt.Errorf("sqlite: encoding plants of %s: %w", accountID, err)
	}

	doc := model.PlantDocument{
		AccountID: accountID,
		Email:     email,
		Plants:    plants,
		UpdatedAt: time.Now().UTC(),
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO plant_documents (account_id, email, plants, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(account_id) DO UPDATE SET
			email      = excluded.email,
			plants     = excluded.plants,
			updated_at = excluded.updated_at`,
		doc.AccountID,
		doc.Email,
		string(raw),
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving plants of %s: %w", accountID, err)
	}

	if err := db.broker.Publish(ctx, accountID, doc); err != nil {
		db.logger.Warn("plant document saved but not published",
			"account_id", accountID,
			"error", err,
		)
	}
	return nil
}

// Subscribe delivers the stored collection first and then every collection
// published for accountID. The feed is attached before the first read, so a
// save landing in between shows up at least once.
func (db *DB) Subscribe(ctx context.Context, accountID string) (repository.Subscription, error) {
	feed, err := db.broker.Subscribe(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: subscribing to %s: %w", accountID, err)
	}

	current, err := db.document(ctx, accountID)
	if err != nil {
		feed.Close()
		return nil, err
	}

	sub := &subscription{
		updates: make(chan []model.Plant, 1),
		done:    make(chan struct{}),
		close:   feed.Close,
	}
	go sub.run(current.Plants, feed.Events())
	return sub, nil
}

type subscription struct {
	updates chan []model.Plant
	done    chan struct{}
	once    sync.Once
	close   func() error
}

func (s *subscription) run(first []model.Plant, events <-chan model.PlantDocument) {
	defer close(s.updates)

	if !s.send(first) {
		return
	}
	for doc := range events {
		if !s.send(doc.Plants) {
			return
		}
	}
}

func (s *subscription) send(plants []model.Plant) bool {
	if plants == nil {
		plants = []model.Plant{}
	}
	select {
	case s.updates <- plants:
		return true
	case <-s.done:
		return false
	}
}

func (s *subscription) Updates() <-chan []model.Plant {
	return s.updates
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.close()
	})
	return err
}
