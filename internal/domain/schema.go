package domain

import (
	"fmt"
	"strings"
)

// Required input columns, matched case-insensitively.
const (
	ColumnPID      = "pid"
	ColumnEasting  = "easting"
	ColumnNorthing = "northing"
)

var requiredColumns = []string{ColumnPID, ColumnEasting, ColumnNorthing}

// MissingColumnsError reports an input header lacking required columns.
type MissingColumnsError struct {
	Missing []string
	Found   []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("required columns not found: missing %s; available columns: %s",
		strings.Join(e.Missing, ", "), strings.Join(e.Found, ", "))
}

// ColumnMapping holds the positions of the required columns in an input header.
type ColumnMapping struct {
	PID      int
	Easting  int
	Northing int

	header []string
}

// ResolveColumns locates the required columns in a header row. The first
// occurrence of each name wins.
func ResolveColumns(header []string) (ColumnMapping, error) {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		name := normalizeColumn(col, i)
		if _, seen := idx[name]; !seen {
			idx[name] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return ColumnMapping{}, &MissingColumnsError{Missing: missing, Found: append([]string(nil), header...)}
	}

	return ColumnMapping{
		PID:      idx[ColumnPID],
		Easting:  idx[ColumnEasting],
		Northing: idx[ColumnNorthing],
		header:   append([]string(nil), header...),
	}, nil
}

// normalizeColumn lowercases and trims a header cell, dropping a UTF-8 BOM on the first one.
func normalizeColumn(col string, pos int) string {
	if pos == 0 {
		col = strings.TrimPrefix(col, "\ufeff")
	}
	return strings.ToLower(strings.TrimSpace(col))
}

// Record extracts the required fields from a data row. Short rows yield empty
// fields rather than an error so the row still produces output.
func (m ColumnMapping) Record(row []string) PointRecord {
	return PointRecord{
		PointID:  field(row, m.PID),
		Easting:  field(row, m.Easting),
		Northing: field(row, m.Northing),
	}
}

// Describe lists the resolved header names, e.g. "pid=PID, easting=Easting, northing=Northing".
func (m ColumnMapping) Describe() string {
	return fmt.Sprintf("pid=%s, easting=%s, northing=%s",
		field(m.header, m.PID), field(m.header, m.Easting), field(m.header, m.Northing))
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
