package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"mailbag/internal/models"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

func New(db *sqlx.DB) *Store { return &Store{db: db, now: time.Now} }

func (s *Store) ListContacts(ctx context.Context) ([]models.Contact, error) {
	var rows []models.ContactRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id,name,email,created_at FROM contacts ORDER BY created_at ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	out := make([]models.Contact, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Contact())
	}
	return out, nil
}

// AddContact stores a new contact. Callers validate name and email.
func (s *Store) AddContact(ctx context.Context, name, email string) (models.Contact, error) {
	row := models.ContactRow{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Email:     strings.TrimSpace(email),
		CreatedAt: s.now().UTC().Unix(),
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO contacts(id,name,email,created_at) VALUES(:id,:name,:email,:created_at)`, row)
	if err != nil {
		return models.Contact{}, err
	}
	return row.Contact(), nil
}

func (s *Store) GetContact(ctx context.Context, id string) (models.Contact, error) {
	var row models.ContactRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT id,name,email,created_at FROM contacts WHERE id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Contact{}, ErrNotFound
	}
	if err != nil {
		return models.Contact{}, err
	}
	return row.Contact(), nil
}

func (s *Store) DeleteContact(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM contacts WHERE id=?`), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
