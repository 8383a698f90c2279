package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Filters narrows a search by structured profile fields. Nil fields are inactive.
type Filters struct {
	Category  *string
	MinBudget *float64
	MaxBudget *float64
	Location  *string
}

// ParseFilters builds Filters from raw transport values. Empty strings leave a
// filter unset. Budgets that are not numbers are rejected, never coerced to zero.
func ParseFilters(category, minBudget, maxBudget, location string) (Filters, error) {
	var f Filters

	if c := strings.TrimSpace(category); c != "" {
		f.Category = &c
	}
	if l := strings.TrimSpace(location); l != "" {
		f.Location = &l
	}

	var err error
	if f.MinBudget, err = parseBudget("min_budget", minBudget); err != nil {
		return Filters{}, err
	}
	if f.MaxBudget, err = parseBudget("max_budget", maxBudget); err != nil {
		return Filters{}, err
	}

	if err := f.Validate(); err != nil {
		return Filters{}, err
	}
	return f, nil
}

func parseBudget(field, raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &ValidationError{Field: field, Value: raw, Reason: "not a number"}
	}
	return &v, nil
}

// Validate rejects unknown categories and malformed budget bounds.
func (f Filters) Validate() error {
	if f.Category != nil && !IsValidCategory(*f.Category) {
		return &ValidationError{
			Field:  "category",
			Value:  *f.Category,
			Reason: fmt.Sprintf("must be one of %s", strings.Join(Categories, ", ")),
		}
	}
	if err := validateBudget("min_budget", f.MinBudget); err != nil {
		return err
	}
	if err := validateBudget("max_budget", f.MaxBudget); err != nil {
		return err
	}
	if f.MinBudget != nil && f.MaxBudget != nil && *f.MinBudget > *f.MaxBudget {
		return &ValidationError{
			Field:  "min_budget",
			Value:  strconv.FormatFloat(*f.MinBudget, 'f', -1, 64),
			Reason: "greater than max_budget",
		}
	}
	return nil
}

func validateBudget(field string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return &ValidationError{Field: field, Value: fmt.Sprint(*v), Reason: "not a finite number"}
	}
	if *v < 0 {
		return &ValidationError{Field: field, Value: fmt.Sprint(*v), Reason: "must not be negative"}
	}
	return nil
}

// IsEmpty reports whether no filter is active.
func (f Filters) IsEmpty() bool {
	return f.Category == nil && f.MinBudget == nil && f.MaxBudget == nil && f.Location == nil
}

// Match applies every active filter to p.
//
// Budget filters test range overlap: a freelancer is affordable for a client
// whose lower bound is X when the freelancer's max_budget >= X, and for a
// client whose upper bound is Y when the freelancer's min_budget <= Y.
func (f Filters) Match(p *FreelancerProfile) bool {
	if p == nil {
		return false
	}
	if f.Category != nil && NormalizeCategory(p.Category) != NormalizeCategory(*f.Category) {
		return false
	}
	if f.MinBudget != nil && p.MaxBudget < *f.MinBudget {
		return false
	}
	if f.MaxBudget != nil && p.MinBudget > *f.MaxBudget {
		return false
	}
	if f.Location != nil {
		needle := strings.ToLower(strings.TrimSpace(*f.Location))
		if needle != "" && !strings.Contains(strings.ToLower(p.Location), needle) {
			return false
		}
	}
	return true
}

// Key renders the active filters deterministically, for cache keys and logs.
func (f Filters) Key() string {
	var b strings.Builder
	if f.Category != nil {
		b.WriteString("category=" + NormalizeCategory(*f.Category) + ";")
	}
	if f.MinBudget != nil {
		b.WriteString("min=" + strconv.FormatFloat(*f.MinBudget, 'g', -1, 64) + ";")
	}
	if f.MaxBudget != nil {
		b.WriteString("max=" + strconv.FormatFloat(*f.MaxBudget, 'g', -1, 64) + ";")
	}
	if f.Location != nil {
		b.WriteString("location=" + strings.ToLower(strings.TrimSpace(*f.Location)) + ";")
	}
	return b.String()
}

// String and Float64 are small helpers for building Filters literals.
func String(s string) *string { return &s }

func Float64(v float64) *float64 { return &v }
