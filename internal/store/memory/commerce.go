package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/commerce"
)

func (s *Store) GetCart(ctx context.Context, identityID string) (commerce.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cart, ok := s.carts[identityID]
	if !ok {
		return commerce.Cart{IdentityID: identityID, Items: []commerce.CartItem{}}, nil
	}
	cart.Items = slices.Clone(cart.Items)
	return cart, nil
}

func (s *Store) SaveCart(ctx context.Context, cart commerce.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart.Items = slices.Clone(cart.Items)
	s.carts[cart.IdentityID] = cart
	return nil
}

func (s *Store) PlaceOrder(ctx context.Context, order commerce.Order, enrollments []commerce.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.PaymentReference == order.PaymentReference {
			return fmt.Errorf("%w: payment reference already used", apperr.ErrConflict)
		}
	}
	for _, e := range enrollments {
		if s.enrolledLocked(e.IdentityID, e.CourseID) {
			return fmt.Errorf("%w: already enrolled in course %s", apperr.ErrConflict, e.CourseID)
		}
	}
	order.Items = slices.Clone(order.Items)
	s.orders = append(s.orders, order)
	s.enrollments = append(s.enrollments, enrollments...)
	delete(s.carts, order.IdentityID)
	return nil
}

func (s *Store) ListOrders(ctx context.Context, f commerce.OrderFilter) ([]commerce.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []commerce.Order
	for i := len(s.orders) - 1; i >= 0; i-- {
		o := s.orders[i]
		if f.IdentityID != "" && o.IdentityID != f.IdentityID {
			continue
		}
		o.Items = slices.Clone(o.Items)
		matched = append(matched, o)
	}
	return page(matched, f.Limit, f.Offset), len(matched), nil
}

func (s *Store) ListEnrollments(ctx context.Context, identityID string) ([]commerce.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []commerce.Enrollment{}
	for _, e := range s.enrollments {
		if e.IdentityID == identityID {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b commerce.Enrollment) int {
		if c := b.EnrolledAt.Compare(a.EnrolledAt); c != 0 {
			return c
		}
		return strings.Compare(a.CourseID, b.CourseID)
	})
	return out, nil
}

func (s *Store) IsEnrolled(ctx context.Context, identityID, courseID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enrolledLocked(identityID, courseID), nil
}

func (s *Store) enrolledLocked(identityID, courseID string) bool {
	for _, e := range s.enrollments {
		if e.IdentityID == identityID && e.CourseID == courseID {
			return true
		}
	}
	return false
}
