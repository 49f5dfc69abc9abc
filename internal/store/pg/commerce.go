package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/commerce"
)

func (s *Store) GetCart(ctx context.Context, identityID string) (commerce.Cart, error) {
	cart := commerce.Cart{IdentityID: identityID, Items: []commerce.CartItem{}}
	var raw []byte
	err := s.db.QueryRowContext(ctx, `select items, updated_at from carts where identity_id = $1`, identityID).
		Scan(&raw, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cart, nil
	}
	if err != nil {
		return commerce.Cart{}, err
	}
	if err := json.Unmarshal(raw, &cart.Items); err != nil {
		return commerce.Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	return cart, nil
}

func (s *Store) SaveCart(ctx context.Context, cart commerce.Cart) error {
	items, err := encodeJSON(nonNil(cart.Items))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into carts (identity_id, items, updated_at) values ($1, $2, $3)
		on conflict (identity_id) do update set items = excluded.items, updated_at = excluded.updated_at`,
		cart.IdentityID, items, cart.UpdatedAt)
	return mapWriteError(err, "cart")
}

// PlaceOrder inserts the order and enrollments and clears the cart in one transaction.
func (s *Store) PlaceOrder(ctx context.Context, order commerce.Order, enrollments []commerce.Enrollment) error {
	items, err := encodeJSON(nonNil(order.Items))
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		insert into orders (id, identity_id, email, items, total_cents, currency, payment_reference, status, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		order.ID, order.IdentityID, order.Email, items, order.TotalCents, order.Currency,
		order.PaymentReference, order.Status, order.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: payment reference already used", apperr.ErrConflict)
		}
		return err
	}
	for _, e := range enrollments {
		if _, err := tx.ExecContext(ctx, `
			insert into enrollments (identity_id, course_id, order_id, enrolled_at)
			values ($1, $2, $3, $4)`, e.IdentityID, e.CourseID, e.OrderID, e.EnrolledAt); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return fmt.Errorf("%w: already enrolled in course %s", apperr.ErrConflict, e.CourseID)
			}
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `delete from carts where identity_id = $1`, order.IdentityID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListOrders(ctx context.Context, f commerce.OrderFilter) ([]commerce.Order, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from orders where $1 = '' or identity_id = $1`,
		f.IdentityID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, identity_id, email, items, total_cents, currency, payment_reference, status, created_at
		from orders
		where $1 = '' or identity_id = $1
		order by created_at desc, id desc
		limit $2 offset $3`, f.IdentityID, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []commerce.Order{}
	for rows.Next() {
		var (
			o   commerce.Order
			raw []byte
		)
		if err := rows.Scan(&o.ID, &o.IdentityID, &o.Email, &raw, &o.TotalCents, &o.Currency,
			&o.PaymentReference, &o.Status, &o.CreatedAt); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(raw, &o.Items); err != nil {
			return nil, 0, fmt.Errorf("decode order items: %w", err)
		}
		result = append(result, o)
	}
	return result, total, rows.Err()
}

func (s *Store) ListEnrollments(ctx context.Context, identityID string) ([]commerce.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select identity_id, course_id, order_id, enrolled_at
		from enrollments
		where identity_id = $1
		order by enrolled_at desc, course_id`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []commerce.Enrollment{}
	for rows.Next() {
		var e commerce.Enrollment
		if err := rows.Scan(&e.IdentityID, &e.CourseID, &e.OrderID, &e.EnrolledAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) IsEnrolled(ctx context.Context, identityID, courseID string) (bool, error) {
	var enrolled bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from enrollments where identity_id = $1 and course_id = $2)`,
		identityID, courseID).Scan(&enrolled)
	return enrolled, err
}
