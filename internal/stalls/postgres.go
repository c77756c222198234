package stalls

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGRegistry struct{ DB *pgxpool.Pool }

const stallColumns = `id, name, owner_id, locked, created_at`

func scanStall(row pgx.Row) (Stall, error) {
	var s Stall
	err := row.Scan(&s.ID, &s.Name, &s.OwnerID, &s.Locked, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stall{}, ErrNotFound
	}
	return s, err
}

func (r *PGRegistry) Create(ctx context.Context, s Stall) (Stall, error) {
	if s.Name == "" || s.OwnerID == "" {
		return Stall{}, ErrInvalid
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	out, err := scanStall(r.DB.QueryRow(ctx, `
		INSERT INTO stalls(id, name, owner_id, locked) VALUES ($1,$2,$3,$4)
		RETURNING `+stallColumns, s.ID, s.Name, s.OwnerID, s.Locked))
	if duplicate(err) {
		return Stall{}, ErrExists
	}
	return out, err
}

func (r *PGRegistry) Get(ctx context.Context, id string) (Stall, error) {
	return scanStall(r.DB.QueryRow(ctx, `SELECT `+stallColumns+` FROM stalls WHERE id=$1`, id))
}

func (r *PGRegistry) List(ctx context.Context) ([]Stall, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+stallColumns+` FROM stalls ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Stall
	for rows.Next() {
		s, err := scanStall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PGRegistry) SetLocked(ctx context.Context, id string, locked bool) (Stall, error) {
	return scanStall(r.DB.QueryRow(ctx, `UPDATE stalls SET locked=$2 WHERE id=$1 RETURNING `+stallColumns, id, locked))
}

func (r *PGRegistry) Delete(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM stalls WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRegistry) LiveIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.DB.Query(ctx, `SELECT id FROM stalls`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func duplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
