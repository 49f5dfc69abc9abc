package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"learnhub.org/internal/auth"
	"learnhub.org/internal/commerce"
)

type addCartItemRequest struct {
	CourseID string `json:"course_id"`
}

type confirmCheckoutRequest struct {
	PaymentReference string `json:"payment_reference"`
}

type cartResponse struct {
	commerce.Cart
	TotalCents int64 `json:"total_cents"`
}

func newCartResponse(c commerce.Cart) cartResponse {
	return cartResponse{Cart: c, TotalCents: c.Total()}
}

func buyerOf(p auth.Principal) commerce.Buyer {
	return commerce.Buyer{IdentityID: p.IdentityID(), Email: p.Session.Email}
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	r, p, ok := a.guard(w, r, auth.NamespaceUser, auth.ResourceCart, auth.ActionRead)
	if !ok {
		return
	}
	cart, err := a.deps.Commerce.Cart(r.Context(), buyerOf(p))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(cart))
}

func (a *API) handleCartItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	r, p, ok := a.guard(w, r, auth.NamespaceUser, auth.ResourceCart, auth.ActionCreate)
	if !ok {
		return
	}
	var req addCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if a.suspended(w, r) {
		return
	}
	cart, err := a.deps.Commerce.AddItem(r.Context(), buyerOf(p), req.CourseID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(cart))
}

func (a *API) handleCartItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	r, p, ok := a.guard(w, r, auth.NamespaceUser, auth.ResourceCart, auth.ActionDelete)
	if !ok {
		return
	}
	courseID, err := pathID(r, "courseID")
	if err != nil {
		handleError(w, r, err)
		return
	}
	if a.suspended(w, r) {
		return
	}
	cart, err := a.deps.Commerce.RemoveItem(r.Context(), buyerOf(p), courseID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(cart))
}

// handleCheckoutConfirm records the purchase after the external payment
// processor has succeeded.
func (a *API) handleCheckoutConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	r, p, ok := a.guard(w, r, auth.NamespaceUser, auth.ResourceOrders, auth.ActionCreate)
	if !ok {
		return
	}
	var req confirmCheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if a.suspended(w, r) {
		return
	}
	order, err := a.deps.Commerce.Confirm(r.Context(), buyerOf(p), req.PaymentReference)
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.audit(r.Context(), "commerce.checkout.confirm", "order", order.ID, map[string]string{
		"payment_reference": order.PaymentReference,
		"total_cents":       strconv.FormatInt(order.TotalCents, 10),
		"currency":          order.Currency,
		"items":             strconv.Itoa(len(order.Items)),
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/orders?limit=%d", defaultPageLimit))
	writeJSON(w, http.StatusCreated, order)
}

func (a *API) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	r, p, ok := a.guard(w, r, auth.NamespaceUser, auth.ResourceOrders, auth.ActionRead)
	if !ok {
		return
	}
	params, err := parseQuery(r.URL.Query(), qLimit, qOffset)
	if err != nil {
		handleError(w, r, err)
		return
	}
	items, total, err := a.deps.Commerce.Orders(r.Context(), commerce.OrderFilter{
		IdentityID: p.IdentityID(),
		Limit:      params.Limit,
		Offset:     params.Offset,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[commerce.Order]{Items: items, Total: total, Limit: params.Limit, Offset: params.Offset})
}

func (a *API) handleMyEnrollments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	r, p, ok := a.guard(w, r, auth.NamespaceUser, auth.ResourceEnrollments, auth.ActionRead)
	if !ok {
		return
	}
	if _, err := parseQuery(r.URL.Query()); err != nil {
		handleError(w, r, err)
		return
	}
	items, err := a.deps.Commerce.Enrollments(r.Context(), buyerOf(p))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleAdminOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	r, _, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceOrders, auth.ActionRead)
	if !ok {
		return
	}
	params, err := parseQuery(r.URL.Query(), qLimit, qOffset, qUser)
	if err != nil {
		handleError(w, r, err)
		return
	}
	items, total, err := a.deps.Commerce.Orders(r.Context(), commerce.OrderFilter{
		IdentityID: params.User,
		Limit:      params.Limit,
		Offset:     params.Offset,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[commerce.Order]{Items: items, Total: total, Limit: params.Limit, Offset: params.Offset})
}
