package models

import "kycverify/internal/decision"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListFilter selects a page of a project's verifications, newest first.
type ListFilter struct {
	Status decision.Status
	Page   int
	Limit  int
}

// Normalize clamps page and limit into their valid ranges.
func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.Limit < 1:
		f.Limit = DefaultPageSize
	case f.Limit > MaxPageSize:
		f.Limit = MaxPageSize
	}
	return f
}

func (f ListFilter) Offset() int { return (f.Page - 1) * f.Limit }

type Page struct {
	Items []*Verification
	Total int
	Page  int
	Limit int
}

func (p Page) TotalPages() int {
	if p.Limit == 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}
