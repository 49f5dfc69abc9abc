package commerce

import (
	"context"
	"time"
)

// CartItem is one course waiting to be purchased.
type CartItem struct {
	CourseID   string    `json:"course_id"`
	Title      string    `json:"title"`
	PriceCents int64     `json:"price_cents"`
	Currency   string    `json:"currency"`
	AddedAt    time.Time `json:"added_at"`
}

// Cart is a learner's pending purchase.
type Cart struct {
	IdentityID string     `json:"identity_id"`
	Items      []CartItem `json:"items"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Total sums item prices.
func (c Cart) Total() int64 {
	var sum int64
	for _, it := range c.Items {
		sum += it.PriceCents
	}
	return sum
}

// Has reports whether courseID is in the cart.
func (c Cart) Has(courseID string) bool {
	for _, it := range c.Items {
		if it.CourseID == courseID {
			return true
		}
	}
	return false
}

// Order statuses.
const OrderStatusPaid = "paid"

// Order records a confirmed purchase.
type Order struct {
	ID               string     `json:"id"`
	IdentityID       string     `json:"identity_id"`
	Email            string     `json:"email"`
	Items            []CartItem `json:"items"`
	TotalCents       int64      `json:"total_cents"`
	Currency         string     `json:"currency"`
	PaymentReference string     `json:"payment_reference"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Enrollment grants a learner access to a course.
type Enrollment struct {
	IdentityID string    `json:"identity_id"`
	CourseID   string    `json:"course_id"`
	OrderID    string    `json:"order_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// OrderFilter pages through orders. IdentityID narrows to one buyer.
type OrderFilter struct {
	IdentityID string
	Limit      int
	Offset     int
}

// Store persists carts, orders and enrollments. GetCart returns an empty cart
// when none exists. PlaceOrder stores the order and its enrollments and clears
// the buyer's cart as one unit, returning apperr.ErrConflict if the payment
// reference was already used.
type Store interface {
	GetCart(ctx context.Context, identityID string) (Cart, error)
	SaveCart(ctx context.Context, cart Cart) error
	PlaceOrder(ctx context.Context, order Order, enrollments []Enrollment) error
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error)
	ListEnrollments(ctx context.Context, identityID string) ([]Enrollment, error)
	IsEnrolled(ctx context.Context, identityID, courseID string) (bool, error)
}
