package models

import "time"

type Contact struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"-" json:"created_at"`
}

// ContactRow is the storage shape; created_at is kept as unix seconds so the
// same column type works on sqlite, mysql and postgres.
type ContactRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Email     string `db:"email"`
	CreatedAt int64  `db:"created_at"`
}

func (r ContactRow) Contact() Contact {
	c := Contact{ID: r.ID, Name: r.Name, Email: r.Email}
	if r.CreatedAt > 0 {
		c.CreatedAt = time.Unix(r.CreatedAt, 0).UTC()
	}
	return c
}
