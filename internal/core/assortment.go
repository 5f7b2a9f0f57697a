package core

import (
	"fmt"
	"strings"
)

// Assortment is an inventory classification code grouping items by
// production stage.
type Assortment string

// NormalizeAssortment trims the padding some ERP exports put around codes.
func NormalizeAssortment(code string) Assortment {
	return Assortment(strings.TrimSpace(code))
}

func (a Assortment) String() string { return string(a) }

// AssortmentRange is an inclusive code range, compared the way SQL BETWEEN
// compares equal-length codes.
type AssortmentRange struct {
	Low, High Assortment
}

// DefaultAssortmentRange covers raw parts up to finished goods.
var DefaultAssortmentRange = AssortmentRange{Low: "200000", High: "300000"}

func (r AssortmentRange) Contains(a Assortment) bool {
	return a >= r.Low && a <= r.High
}

func (r AssortmentRange) Validate() error {
	if r.Low == "" || r.High == "" {
		return fmt.Errorf("assortment range bounds cannot be empty")
	}
	if r.Low > r.High {
		return fmt.Errorf("assortment range %s..%s: low bound is above high bound", r.Low, r.High)
	}
	return nil
}

func (r AssortmentRange) String() string { return string(r.Low) + ".." + string(r.High) }

// AssortmentInfo describes a known assortment.
type AssortmentInfo struct {
	Code        Assortment `json:"code"`
	Description string     `json:"description"`
}

// KnownAssortments lists the catalogue in display order.
var KnownAssortments = []AssortmentInfo{
	{Code: "200004", Description: "pre-cut, grinded and bent parts"},
	{Code: "200003", Description: "welded parts"},
	{Code: "200002", Description: "parts in primer"},
	{Code: "200001", Description: "machined parts"},
	{Code: "200000", Description: "machined parts 2 (mostly sticks)"},
	{Code: "200100", Description: "assembled machines in primer"},
	{Code: "300000", Description: "finished goods (painted machines)"},
}

// DefaultSelection is the set of assortments shown when none is requested.
var DefaultSelection = []Assortment{"200000", "200100", "300000"}

// ParseAssortments splits a comma separated list, dropping blanks and
// repeats.
func ParseAssortments(s string) []Assortment {
	var out []Assortment
	for _, part := range strings.Split(s, ",") {
		if a := NormalizeAssortment(part); a != "" {
			out = append(out, a)
		}
	}
	return uniqueAssortments(out)
}

func uniqueAssortments(codes []Assortment) []Assortment {
	if codes == nil {
		return nil
	}
	seen := make(map[Assortment]bool, len(codes))
	out := make([]Assortment, 0, len(codes))
	for _, c := range codes {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// JoinAssortments is the inverse of ParseAssortments.
func JoinAssortments(codes []Assortment) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}
