// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating request bodies
// and the transaction view query string.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"

	"budgetbook/internal/core"
	"budgetbook/internal/views"
)

const maxBodyBytes = 1 << 20

var (
	errBadRequest   = errors.New("malformed request")
	errInvalidQuery = errors.New("invalid query parameter")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJSON reads a single JSON object into dst and validates its struct
// tags. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		// domain unmarshalers report their own validation errors
		if errors.Is(err, core.ErrInvalidAmount) || errors.Is(err, core.ErrInvalidDate) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", errBadRequest)
	}
	if err := validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil
		}
		return err
	}
	return nil
}

// ParseViewQuery reads the table state from query parameters:
//
//	period=thisMonth | custom&from=2024-01-01&to=2024-01-31
//	q=market  category=<id>|all  sort=date|category|amount  order=asc|desc
//	lang=de
//
// An absent period falls back to the project's default period.
func ParseViewQuery(query url.Values, defaultPeriod core.Period) (views.Query, error) {
	q := views.Query{
		Period:     defaultPeriod,
		Search:     sanitizeInput(query.Get("q")),
		CategoryID: strings.TrimSpace(query.Get("category")),
		Sort:       views.DefaultSort(),
		Lang:       language.Und,
	}

	if v := strings.TrimSpace(query.Get("period")); v != "" {
		p := core.Period(v)
		if !p.Valid() {
			return views.Query{}, fmt.Errorf("%w: %q", core.ErrInvalidPeriod, v)
		}
		q.Period = p
	}

	var err error
	if q.From, err = parseOptionalDate(query.Get("from")); err != nil {
		return views.Query{}, err
	}
	if q.To, err = parseOptionalDate(query.Get("to")); err != nil {
		return views.Query{}, err
	}

	if v := strings.TrimSpace(query.Get("sort")); v != "" {
		col := views.SortColumn(v)
		if !col.Valid() {
			return views.Query{}, fmt.Errorf("%w: sort %q", errInvalidQuery, v)
		}
		q.Sort = views.SortState{Column: col, Desc: true}
	}
	switch strings.ToLower(strings.TrimSpace(query.Get("order"))) {
	case "":
	case "asc":
		q.Sort.Desc = false
	case "desc":
		q.Sort.Desc = true
	default:
		return views.Query{}, fmt.Errorf("%w: order %q", errInvalidQuery, query.Get("order"))
	}

	if v := strings.TrimSpace(query.Get("lang")); v != "" {
		tag, err := language.Parse(v)
		if err != nil {
			return views.Query{}, fmt.Errorf("%w: lang %q", errInvalidQuery, v)
		}
		q.Lang = tag
	}
	return q, nil
}

func parseOptionalDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

// parseIndex reads a non-negative integer path value.
func parseIndex(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s %q", core.ErrOutOfRange, name, r.PathValue(name))
	}
	return v, nil
}
