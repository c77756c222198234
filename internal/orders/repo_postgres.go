package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGRepo struct{ DB *pgxpool.Pool }

const orderColumns = `id, customer_id, stall_id, lines, subtotal_cents, shipping_cents, total_cents, currency,
	status, payment_mode, payment_status, payment_intent, payment_reference, payment_deadline,
	slot_id, contact, address, cancel_reason, version, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                        Order
		lines, contact, address  []byte
		stall, intent, ref, slot *string
	)
	err := row.Scan(&o.ID, &o.CustomerID, &stall, &lines, &o.SubtotalCents, &o.ShippingCents, &o.TotalCents, &o.Currency,
		&o.Status, &o.PaymentMode, &o.PaymentStatus, &intent, &ref, &o.PaymentDeadline,
		&slot, &contact, &address, &o.CancelReason, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.StallID, o.PaymentIntent, o.PaymentReference, o.SlotID = deref(stall), deref(intent), deref(ref), deref(slot)
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(contact, &o.Contact); err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(address, &o.Address); err != nil {
		return Order{}, err
	}
	return o, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *PGRepo) Insert(ctx context.Context, o *Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return err
	}
	contact, _ := json.Marshal(o.Contact)
	address, _ := json.Marshal(o.Address)
	o.Version = 1
	_, err = r.DB.Exec(ctx, `INSERT INTO orders(`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		o.ID, o.CustomerID, nullable(o.StallID), lines, o.SubtotalCents, o.ShippingCents, o.TotalCents, o.Currency,
		o.Status, o.PaymentMode, o.PaymentStatus, nullable(o.PaymentIntent), nullable(o.PaymentReference), o.PaymentDeadline,
		nullable(o.SlotID), contact, address, o.CancelReason, o.Version, o.CreatedAt, o.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

func (r *PGRepo) Get(ctx context.Context, id string) (Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
}

func (r *PGRepo) FindByIntent(ctx context.Context, intent string) (Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_intent=$1`, intent))
}

// Update only writes the mutable columns. Lines and amounts are fixed at insert.
func (r *PGRepo) Update(ctx context.Context, o *Order) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$3, payment_status=$4, payment_intent=$5, payment_reference=$6,
		       payment_deadline=$7, cancel_reason=$8, updated_at=$9, version = version + 1
		WHERE id=$1 AND version=$2`,
		o.ID, o.Version, o.Status, o.PaymentStatus, nullable(o.PaymentIntent), nullable(o.PaymentReference),
		o.PaymentDeadline, o.CancelReason, o.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	o.Version++
	return nil
}

func (r *PGRepo) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE customer_id=$1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PGRepo) ListOverdue(ctx context.Context, now, staleBefore time.Time, limit int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status=$1 AND payment_mode=$2 AND payment_status=$3
		  AND ((payment_deadline IS NOT NULL AND payment_deadline <= $4)
		    OR (payment_deadline IS NULL AND created_at <= $5))
		ORDER BY created_at
		LIMIT $6`,
		StatusPending, PaymentOnline, PaymentPending, now.UTC(), staleBefore.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
