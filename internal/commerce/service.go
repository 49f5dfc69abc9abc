// Package commerce implements the cart, local checkout confirmation and enrollments.
package commerce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/catalog"
	"learnhub.org/internal/ids"
)

const maxPaymentReference = 128

// CourseLookup resolves courses added to carts.
type CourseLookup interface {
	Course(ctx context.Context, id string) (catalog.Course, error)
}

// Limits supplies the cart cap.
type Limits interface {
	MaxCartItems(ctx context.Context) int
}

// Buyer identifies the learner acting on a cart.
type Buyer struct {
	IdentityID string
	Email      string
}

type Service struct {
	store   Store
	courses CourseLookup
	limits  Limits
	now     func() time.Time
}

func NewService(store Store, courses CourseLookup, limits Limits) *Service {
	return &Service{store: store, courses: courses, limits: limits, now: time.Now}
}

// Cart returns the buyer's cart.
func (s *Service) Cart(ctx context.Context, buyer Buyer) (Cart, error) {
	cart, err := s.store.GetCart(ctx, buyer.IdentityID)
	if err != nil {
		return Cart{}, err
	}
	if cart.Items == nil {
		cart.Items = []CartItem{}
	}
	return cart, nil
}

// AddItem puts a published course in the cart.
func (s *Service) AddItem(ctx context.Context, buyer Buyer, courseID string) (Cart, error) {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return Cart{}, fmt.Errorf("%w: course_id is required", apperr.ErrInvalidInput)
	}
	course, err := s.courses.Course(ctx, courseID)
	if err != nil {
		return Cart{}, err
	}
	if !course.Published {
		return Cart{}, fmt.Errorf("course: %w", apperr.ErrNotFound)
	}
	enrolled, err := s.store.IsEnrolled(ctx, buyer.IdentityID, courseID)
	if err != nil {
		return Cart{}, err
	}
	if enrolled {
		return Cart{}, fmt.Errorf("%w: already enrolled in this course", apperr.ErrConflict)
	}
	cart, err := s.Cart(ctx, buyer)
	if err != nil {
		return Cart{}, err
	}
	if cart.Has(courseID) {
		return Cart{}, fmt.Errorf("%w: course already in cart", apperr.ErrConflict)
	}
	if limit := s.maxItems(ctx); len(cart.Items) >= limit {
		return Cart{}, fmt.Errorf("%w: cart holds at most %d items", apperr.ErrInvalidInput, limit)
	}
	now := s.now().UTC()
	cart.IdentityID = buyer.IdentityID
	cart.Items = append(cart.Items, CartItem{
		CourseID:   course.ID,
		Title:      course.Title,
		PriceCents: course.PriceCents,
		Currency:   course.Currency,
		AddedAt:    now,
	})
	cart.UpdatedAt = now
	if err := s.store.SaveCart(ctx, cart); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

// RemoveItem drops courseID from the cart.
func (s *Service) RemoveItem(ctx context.Context, buyer Buyer, courseID string) (Cart, error) {
	cart, err := s.Cart(ctx, buyer)
	if err != nil {
		return Cart{}, err
	}
	kept := cart.Items[:0]
	found := false
	for _, it := range cart.Items {
		if it.CourseID == courseID {
			found = true
			continue
		}
		kept = append(kept, it)
	}
	if !found {
		return Cart{}, fmt.Errorf("cart item: %w", apperr.ErrNotFound)
	}
	cart.IdentityID = buyer.IdentityID
	cart.Items = kept
	cart.UpdatedAt = s.now().UTC()
	if err := s.store.SaveCart(ctx, cart); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

// Confirm records the buyer's cart as a paid order once the external payment
// processor has succeeded, enrolls the buyer and empties the cart.
func (s *Service) Confirm(ctx context.Context, buyer Buyer, paymentReference string) (Order, error) {
	paymentReference = strings.TrimSpace(paymentReference)
	if paymentReference == "" {
		return Order{}, fmt.Errorf("%w: payment_reference is required", apperr.ErrInvalidInput)
	}
	if len(paymentReference) > maxPaymentReference {
		return Order{}, fmt.Errorf("%w: payment_reference is too long", apperr.ErrInvalidInput)
	}
	cart, err := s.Cart(ctx, buyer)
	if err != nil {
		return Order{}, err
	}
	if len(cart.Items) == 0 {
		return Order{}, fmt.Errorf("%w: cart is empty", apperr.ErrInvalidInput)
	}
	currency := cart.Items[0].Currency
	for _, it := range cart.Items[1:] {
		if it.Currency != currency {
			return Order{}, fmt.Errorf("%w: cart mixes currencies", apperr.ErrInvalidInput)
		}
	}
	now := s.now().UTC()
	order := Order{
		ID:               ids.New(),
		IdentityID:       buyer.IdentityID,
		Email:            buyer.Email,
		Items:            cart.Items,
		TotalCents:       cart.Total(),
		Currency:         currency,
		PaymentReference: paymentReference,
		Status:           OrderStatusPaid,
		CreatedAt:        now,
	}
	enrollments := make([]Enrollment, 0, len(cart.Items))
	for _, it := range cart.Items {
		enrollments = append(enrollments, Enrollment{
			IdentityID: buyer.IdentityID,
			CourseID:   it.CourseID,
			OrderID:    order.ID,
			EnrolledAt: now,
		})
	}
	if err := s.store.PlaceOrder(ctx, order, enrollments); err != nil {
		return Order{}, err
	}
	return order, nil
}

// Orders lists orders matching f.
func (s *Service) Orders(ctx context.Context, f OrderFilter) ([]Order, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	return s.store.ListOrders(ctx, f)
}

// Enrollments lists the buyer's enrollments.
func (s *Service) Enrollments(ctx context.Context, buyer Buyer) ([]Enrollment, error) {
	return s.store.ListEnrollments(ctx, buyer.IdentityID)
}

func (s *Service) maxItems(ctx context.Context) int {
	if s.limits == nil {
		return 20
	}
	return s.limits.MaxCartItems(ctx)
}
