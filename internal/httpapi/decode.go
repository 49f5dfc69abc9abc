package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"learnhub.org/internal/apperr"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	maxSearchLength  = 200
	maxIDLength      = 128
	maxWindowDays    = 365
)

// decodeJSON reads exactly one JSON object, rejecting unknown fields and
// trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", apperr.ErrInvalidInput)
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body too large", apperr.ErrInvalidInput)
		}
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON body", apperr.ErrInvalidInput)
	}
	return nil
}

// Query keys accepted by list endpoints.
const (
	qLimit       = "limit"
	qOffset      = "offset"
	qSearch      = "q"
	qDays        = "days"
	qCategory    = "category"
	qCareerTrack = "career_track"
	qAction      = "action"
	qActor       = "actor"
	qUser        = "user"
	qFeatured    = "featured"
)

// queryParams holds decoded query values. Absent keys keep their zero value,
// except Limit which defaults to defaultPageLimit.
type queryParams struct {
	Limit       int
	Offset      int
	Search      string
	Days        int
	Category    string
	CareerTrack string
	Action      string
	Actor       string
	User        string
	Featured    bool
}

// parseQuery accepts only the listed keys, each at most once, and validates
// their values. Anything else is invalid input.
func parseQuery(values url.Values, allowed ...string) (queryParams, error) {
	p := queryParams{Limit: defaultPageLimit}
	permitted := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		permitted[k] = true
	}
	for key, vals := range values {
		if !permitted[key] {
			return queryParams{}, fmt.Errorf("%w: unknown query parameter %q", apperr.ErrInvalidInput, key)
		}
		if len(vals) != 1 {
			return queryParams{}, fmt.Errorf("%w: query parameter %q must appear once", apperr.ErrInvalidInput, key)
		}
		raw := strings.TrimSpace(vals[0])
		var err error
		switch key {
		case qLimit:
			p.Limit, err = parseIntRange(key, raw, 1, maxPageLimit)
		case qOffset:
			p.Offset, err = parseIntRange(key, raw, 0, 1<<31-1)
		case qDays:
			p.Days, err = parseIntRange(key, raw, 1, maxWindowDays)
		case qSearch:
			if utf8.RuneCountInString(raw) > maxSearchLength {
				err = fmt.Errorf("%w: q exceeds %d characters", apperr.ErrInvalidInput, maxSearchLength)
			}
			p.Search = raw
		case qCategory:
			p.Category, err = parseID(key, raw)
		case qCareerTrack:
			p.CareerTrack, err = parseID(key, raw)
		case qAction:
			p.Action, err = parseID(key, raw)
		case qActor:
			p.Actor, err = parseID(key, raw)
		case qUser:
			p.User, err = parseID(key, raw)
		case qFeatured:
			p.Featured, err = strconv.ParseBool(raw)
			if err != nil {
				err = fmt.Errorf("%w: featured must be true or false", apperr.ErrInvalidInput)
			}
		default:
			err = fmt.Errorf("%w: unsupported query parameter %q", apperr.ErrInvalidInput, key)
		}
		if err != nil {
			return queryParams{}, err
		}
	}
	return p, nil
}

func parseIntRange(key, raw string, min, max int) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", apperr.ErrInvalidInput, key)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%w: %s must be between %d and %d", apperr.ErrInvalidInput, key, min, max)
	}
	return v, nil
}

func parseID(key, raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: %s must not be empty", apperr.ErrInvalidInput, key)
	}
	if len(raw) > maxIDLength {
		return "", fmt.Errorf("%w: %s is too long", apperr.ErrInvalidInput, key)
	}
	return raw, nil
}

// pathID returns the named path wildcard, rejecting blank or oversized ids.
func pathID(r *http.Request, name string) (string, error) {
	return parseID(name, strings.TrimSpace(r.PathValue(name)))
}
