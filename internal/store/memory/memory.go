// Package memory implements every store interface in process memory. It backs
// tests and the "memory" session backend.
package memory

import (
	"strings"
	"sync"

	"learnhub.org/internal/analytics"
	"learnhub.org/internal/audit"
	"learnhub.org/internal/auth"
	"learnhub.org/internal/catalog"
	"learnhub.org/internal/commerce"
	"learnhub.org/internal/settings"
)

var (
	_ auth.IdentityStore    = (*Store)(nil)
	_ auth.SessionStore     = (*Store)(nil)
	_ catalog.Store         = (*Store)(nil)
	_ commerce.Store        = (*Store)(nil)
	_ settings.Store        = (*Store)(nil)
	_ settings.CourseLookup = (*Store)(nil)
	_ audit.Store           = (*Store)(nil)
	_ analytics.Store       = (*Store)(nil)
)

// Store keeps all collections behind one lock. Values are copied on the way
// in and out so callers never share memory with the store.
type Store struct {
	mu sync.RWMutex

	identities map[string]auth.Identity // id -> identity
	emails     map[string]string        // lowercased email -> id
	sessions   map[auth.Namespace]map[string]auth.Session

	courses    map[string]catalog.Course
	categories map[string]catalog.Category
	tracks     map[string]catalog.CareerTrack

	carts       map[string]commerce.Cart
	orders      []commerce.Order
	enrollments []commerce.Enrollment

	settings *settings.Settings
	auditLog []audit.Entry
}

// New creates an empty store.
func New() *Store {
	s := &Store{
		identities: make(map[string]auth.Identity),
		emails:     make(map[string]string),
		sessions:   make(map[auth.Namespace]map[string]auth.Session),
		courses:    make(map[string]catalog.Course),
		categories: make(map[string]catalog.Category),
		tracks:     make(map[string]catalog.CareerTrack),
		carts:      make(map[string]commerce.Cart),
	}
	for _, ns := range auth.Namespaces {
		s.sessions[ns] = make(map[string]auth.Session)
	}
	return s
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
