package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"pharmapos/m/domain"
	"pharmapos/m/internal/store"
)

// RowError explains why one CSV row was skipped. Line counts the header as 1.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

type ImportReport struct {
	Imported int        `json:"imported"`
	Skipped  []RowError `json:"skipped,omitempty"`
}

// ImportCSV creates one product per row. The header names the columns; only
// name is required and multipliers default to 1. Bad rows are reported and skipped.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (ImportReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return ImportReport{}, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["name"]; !ok {
		return ImportReport{}, fmt.Errorf("%w: header has no name column", ErrInvalidProduct)
	}

	var rep ImportReport
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			rep.Skipped = append(rep.Skipped, RowError{Line: line, Reason: err.Error()})
			continue
		}
		in, err := parseRow(cols, record)
		if err != nil {
			rep.Skipped = append(rep.Skipped, RowError{Line: line, Reason: err.Error()})
			continue
		}
		if _, err := s.create(ctx, in, domain.RefImport); err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return rep, err
			}
			rep.Skipped = append(rep.Skipped, RowError{Line: line, Reason: err.Error()})
			continue
		}
		rep.Imported++
	}

	s.log.Info("catalog import finished", zap.Int("imported", rep.Imported), zap.Int("skipped", len(rep.Skipped)))
	return rep, nil
}

// ImportFile loads a catalog CSV from disk.
func (s *Service) ImportFile(ctx context.Context, path string) (ImportReport, error) {
	file, err := os.Open(path)
	if err != nil {
		return ImportReport{}, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer file.Close()
	return s.ImportCSV(ctx, file)
}

func parseRow(cols map[string]int, record []string) (ProductInput, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	in := ProductInput{
		Name:         field("name"),
		GenericName:  field("generic_name"),
		Manufacturer: field("manufacturer"),
	}
	if in.Name == "" {
		return in, errors.New("name is empty")
	}

	var err error
	ints := []struct {
		col string
		dst *int64
		def int64
	}{
		{"pieces_per_sheet", &in.PiecesPerSheet, 1},
		{"sheets_per_box", &in.SheetsPerBox, 1},
		{"stock", &in.InitialStock, 0},
		{"critical_level", &in.CriticalLevel, 0},
	}
	for _, f := range ints {
		*f.dst = f.def
		if v := field(f.col); v != "" {
			if *f.dst, err = strconv.ParseInt(v, 10, 64); err != nil {
				return in, fmt.Errorf("%s: %q is not a whole number", f.col, v)
			}
		}
	}
	floats := []struct {
		col string
		dst *float64
	}{
		{"cost", &in.CostPrice},
		{"price", &in.SellingPrice},
	}
	for _, f := range floats {
		if v := field(f.col); v != "" {
			if *f.dst, err = strconv.ParseFloat(v, 64); err != nil {
				return in, fmt.Errorf("%s: %q is not a number", f.col, v)
			}
		}
	}
	return in, in.validate()
}
