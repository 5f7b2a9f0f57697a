// Package http serves the persisted stock history over a read-only JSON API.
//
// This file parses the query parameters shared by the stock endpoints.

package http

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"stockhistory/internal/core"
)

var errEmptySelection = errors.New("assortments parameter is present but selects nothing")

// TableKind names one table of the snapshot pair.
type TableKind string

const (
	KindValue    TableKind = "value"
	KindQuantity TableKind = "quantity"
)

// ParseKind accepts "value" or "quantity", case-insensitively.
func ParseKind(s string) (TableKind, bool) {
	switch k := TableKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindValue, KindQuantity:
		return k, true
	default:
		return "", false
	}
}

// StockQuery holds the filters of a stock request.
type StockQuery struct {
	// Assortments is nil when the request did not name any, meaning the
	// default selection.
	Assortments []core.Assortment
	Horizon     core.Horizon
}

// ParseStockQuery reads the assortments and horizon parameters. A missing
// assortments parameter selects the default; a present but blank one is an
// error.
func ParseStockQuery(query url.Values) (StockQuery, error) {
	var q StockQuery

	if _, ok := query["assortments"]; ok {
		q.Assortments = core.ParseAssortments(strings.Join(query["assortments"], ","))
		if len(q.Assortments) == 0 {
			return StockQuery{}, errEmptySelection
		}
	}

	h, err := core.ParseHorizon(query.Get("horizon"))
	if err != nil {
		return StockQuery{}, err
	}
	q.Horizon = h
	return q, nil
}

// Columns resolves the requested codes against the columns present in t.
// The default selection keeps only the codes t actually has.
func (q StockQuery) Columns(t core.Table) []core.Assortment {
	if q.Assortments != nil {
		return q.Assortments
	}
	var out []core.Assortment
	for _, c := range core.DefaultSelection {
		if t.HasColumn(c) {
			out = append(out, c)
		}
	}
	return out
}

// Apply filters t to the requested columns and horizon.
func (q StockQuery) Apply(t core.Table) (core.Table, error) {
	selected, err := t.Select(q.Columns(t))
	if err != nil {
		return core.Table{}, fmt.Errorf("select columns: %w", err)
	}
	return selected.Tail(q.Horizon.Months), nil
}
