package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TableCatalog = "items"
	TableStall   = "stall_items"
)

// PGStore keeps one keyspace in a Postgres table. Every stock mutation is a
// single conditional UPDATE, so the row lock serializes operations per id.
type PGStore struct {
	DB    *pgxpool.Pool
	table string
}

func NewPGStore(db *pgxpool.Pool, table string) *PGStore {
	return &PGStore{DB: db, table: pgx.Identifier{table}.Sanitize()}
}

const itemColumns = `id, variety, weight_class, price_cents, quantity, active, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Variety, &it.WeightClass, &it.PriceCents, &it.Quantity, &it.Active, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, err
}

func (s *PGStore) Get(ctx context.Context, id string) (Item, error) {
	return scanItem(s.DB.QueryRow(ctx, `SELECT `+itemColumns+` FROM `+s.table+` WHERE id=$1`, id))
}

func (s *PGStore) List(ctx context.Context, prefix string) ([]Item, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+itemColumns+` FROM `+s.table+`
		WHERE starts_with(id, $1) ORDER BY id`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *PGStore) Put(ctx context.Context, in Item) (Item, error) {
	if err := in.Validate(); err != nil {
		return Item{}, err
	}
	return scanItem(s.DB.QueryRow(ctx, `
		INSERT INTO `+s.table+` (id, variety, weight_class, price_cents, quantity, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			variety = EXCLUDED.variety,
			weight_class = EXCLUDED.weight_class,
			price_cents = EXCLUDED.price_cents,
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING `+itemColumns,
		in.ID, in.Variety, in.WeightClass, in.PriceCents, in.Quantity, in.Active))
}

func (s *PGStore) Reserve(ctx context.Context, id string, qty int) (Item, error) {
	if qty <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	it, err := scanItem(s.DB.QueryRow(ctx, `
		UPDATE `+s.table+` SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND active AND quantity >= $2
		RETURNING `+itemColumns, id, qty))
	if !errors.Is(err, ErrNotFound) {
		return it, err
	}
	// nothing updated: find out why
	cur, err := s.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if !cur.Active {
		return cur, ErrInactive
	}
	return cur, ErrInsufficientStock
}

func (s *PGStore) Release(ctx context.Context, id string, qty int) (Item, error) {
	if qty <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	return scanItem(s.DB.QueryRow(ctx, `
		UPDATE `+s.table+` SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1
		RETURNING `+itemColumns, id, qty))
}

func (s *PGStore) Adjust(ctx context.Context, id string, qty int) (int, error) {
	if qty < 0 {
		return 0, ErrInvalidQuantity
	}
	var prev int
	err := s.DB.QueryRow(ctx, `
		WITH prev AS (SELECT id, quantity FROM `+s.table+` WHERE id = $1 FOR UPDATE)
		UPDATE `+s.table+` t SET quantity = $2, updated_at = now()
		FROM prev WHERE t.id = prev.id
		RETURNING prev.quantity`, id, qty).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("adjust %s: %w", id, err)
	}
	return prev, nil
}

func (s *PGStore) SetActive(ctx context.Context, id string, active bool) error {
	ct, err := s.DB.Exec(ctx, `UPDATE `+s.table+` SET active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
