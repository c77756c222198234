package crm

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct{ DB *pgxpool.Pool }

const recordColumns = `id, name, contact, consent, stall_id, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.Name, &r.Contact, &r.Consent, &r.StallID, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return r, err
}

func (s *PGStore) Put(ctx context.Context, r Record) (Record, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return scanRecord(s.DB.QueryRow(ctx, `
		INSERT INTO crm_records(id, name, contact, consent, stall_id, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, contact=EXCLUDED.contact, consent=EXCLUDED.consent,
			stall_id=EXCLUDED.stall_id, updated_at=now()
		RETURNING `+recordColumns, r.ID, r.Name, r.Contact, r.Consent, r.StallID))
}

func (s *PGStore) Get(ctx context.Context, id string) (Record, error) {
	return scanRecord(s.DB.QueryRow(ctx, `SELECT `+recordColumns+` FROM crm_records WHERE id=$1`, id))
}

func (s *PGStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+recordColumns+` FROM crm_records ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) Relabel(ctx context.Context, id, fromStall, label string) (bool, error) {
	ct, err := s.DB.Exec(ctx, `UPDATE crm_records SET stall_id=$3, updated_at=now() WHERE id=$1 AND stall_id=$2`, id, fromStall, label)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PGStore) Delete(ctx context.Context, id, fromStall string) (bool, error) {
	ct, err := s.DB.Exec(ctx, `DELETE FROM crm_records WHERE id=$1 AND stall_id=$2`, id, fromStall)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
