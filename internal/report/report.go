// Package report aggregates sales history over calendar periods.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"pharmapos/m/domain"
	"pharmapos/m/internal/pricing"
)

var ErrInvalidRange = errors.New("invalid report range")

// Summary totals completed sales; cancelled sales are only counted.
type Summary struct {
	Completed          int     `json:"completed"`
	Cancelled          int     `json:"cancelled"`
	Gross              float64 `json:"gross"`
	Discounts          float64 `json:"discounts"`
	StatutoryDiscounts float64 `json:"statutory_discounts"`
	Net                float64 `json:"net"`
	CancelledValue     float64 `json:"cancelled_value"`
}

type Day struct {
	Date string `json:"date"`
	Summary
}

type Report struct {
	From         time.Time                `json:"from"`
	To           time.Time                `json:"to"`
	Summary      Summary                  `json:"summary"`
	Days         []Day                    `json:"days"`
	Transactions []domain.SaleTransaction `json:"transactions,omitempty"`
}

// Summarize aggregates headers in whatever order they arrive.
func Summarize(txns []domain.SaleTransaction) Summary {
	var s Summary
	for _, t := range txns {
		if t.Status == domain.StatusCancelled {
			s.Cancelled++
			s.CancelledValue += t.TotalAmount
			continue
		}
		s.Completed++
		s.Gross += t.Subtotal
		s.Discounts += t.DiscountAmount
		s.StatutoryDiscounts += t.StatutoryDiscountAmount
		s.Net += t.TotalAmount
	}
	s.Gross = pricing.Round2(s.Gross)
	s.Discounts = pricing.Round2(s.Discounts)
	s.StatutoryDiscounts = pricing.Round2(s.StatutoryDiscounts)
	s.Net = pricing.Round2(s.Net)
	s.CancelledValue = pricing.Round2(s.CancelledValue)
	return s
}

type source interface {
	ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.SaleTransaction, error)
}

type Service struct {
	src source
	loc *time.Location
}

// New reports in loc; days start at local midnight.
func New(src source, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{src: src, loc: loc}
}

func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) Daily(ctx context.Context, day time.Time) (Report, error) {
	start := s.midnight(day)
	return s.Range(ctx, start, start.AddDate(0, 0, 1))
}

func (s *Service) Monthly(ctx context.Context, year int, month time.Month) (Report, error) {
	if month < time.January || month > time.December {
		return Report{}, fmt.Errorf("%w: month %d", ErrInvalidRange, month)
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, s.loc)
	return s.Range(ctx, start, start.AddDate(0, 1, 0))
}

// Range covers [from, to) and breaks it down per local day.
func (s *Service) Range(ctx context.Context, from, to time.Time) (Report, error) {
	if !from.Before(to) {
		return Report{}, fmt.Errorf("%w: %s is not before %s", ErrInvalidRange, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	txns, err := s.src.ListTransactions(ctx, domain.TransactionFilter{From: from, To: to})
	if err != nil {
		return Report{}, fmt.Errorf("list transactions: %w", err)
	}

	byDay := make(map[string][]domain.SaleTransaction)
	for _, t := range txns {
		key := t.CreatedAt.In(s.loc).Format(time.DateOnly)
		byDay[key] = append(byDay[key], t)
	}
	days := make([]Day, 0, len(byDay))
	for key, group := range byDay {
		days = append(days, Day{Date: key, Summary: Summarize(group)})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })

	return Report{From: from, To: to, Summary: Summarize(txns), Days: days, Transactions: txns}, nil
}

func (s *Service) midnight(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}
