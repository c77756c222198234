package slots

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct{ DB *pgxpool.Pool }

const slotColumns = `id, label, starts_at, ends_at, max_bookings, current_bookings`

func scanSlot(row pgx.Row) (Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.Label, &s.StartsAt, &s.EndsAt, &s.Max, &s.Current)
	if errors.Is(err, pgx.ErrNoRows) {
		return Slot{}, ErrNotFound
	}
	return s, err
}

func (p *PGStore) Create(ctx context.Context, s Slot) (Slot, error) {
	if err := s.Validate(); err != nil {
		return Slot{}, err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	out, err := scanSlot(p.DB.QueryRow(ctx, `
		INSERT INTO slots (id, label, starts_at, ends_at, max_bookings, current_bookings)
		VALUES ($1, $2, $3, $4, $5, 0)
		RETURNING `+slotColumns, s.ID, s.Label, s.StartsAt, s.EndsAt, s.Max))
	if duplicate(err) {
		return Slot{}, ErrExists
	}
	return out, err
}

func (p *PGStore) Get(ctx context.Context, id string) (Slot, error) {
	return scanSlot(p.DB.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id=$1`, id))
}

func (p *PGStore) List(ctx context.Context) ([]Slot, error) {
	rows, err := p.DB.Query(ctx, `SELECT `+slotColumns+` FROM slots ORDER BY starts_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PGStore) Update(ctx context.Context, in Slot) (Slot, error) {
	if !in.EndsAt.After(in.StartsAt) {
		return Slot{}, ErrInvalidWindow
	}
	return scanSlot(p.DB.QueryRow(ctx, `
		UPDATE slots SET label=$2, starts_at=$3, ends_at=$4 WHERE id=$1
		RETURNING `+slotColumns, in.ID, in.Label, in.StartsAt, in.EndsAt))
}

func (p *PGStore) SetCapacity(ctx context.Context, id string, max int) (Slot, error) {
	if max < 0 {
		return Slot{}, ErrInvalidCapacity
	}
	return scanSlot(p.DB.QueryRow(ctx, `
		UPDATE slots SET max_bookings=$2 WHERE id=$1
		RETURNING `+slotColumns, id, max))
}

func (p *PGStore) Delete(ctx context.Context, id string) error {
	ct, err := p.DB.Exec(ctx, `DELETE FROM slots WHERE id=$1 AND current_bookings = 0`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	if _, err := p.Get(ctx, id); err != nil {
		return err
	}
	return ErrInUse
}

func (p *PGStore) Reserve(ctx context.Context, id string) (Slot, error) {
	s, err := scanSlot(p.DB.QueryRow(ctx, `
		UPDATE slots SET current_bookings = current_bookings + 1
		WHERE id=$1 AND current_bookings < max_bookings
		RETURNING `+slotColumns, id))
	if !errors.Is(err, ErrNotFound) {
		return s, err
	}
	cur, err := p.Get(ctx, id)
	if err != nil {
		return Slot{}, err
	}
	return cur, ErrSlotFull
}

func (p *PGStore) Release(ctx context.Context, id string) (Slot, error) {
	return scanSlot(p.DB.QueryRow(ctx, `
		UPDATE slots SET current_bookings = GREATEST(current_bookings - 1, 0)
		WHERE id=$1
		RETURNING `+slotColumns, id))
}

func duplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
