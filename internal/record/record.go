// Package record defines the daily record contract shared by source
// adapters and the sink, and the schema-driven caster that sits between them.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is a single day produced by a source aggregator.
type Record interface {
	// RecordDate returns the day as YYYY-MM-DD, or "" if unknown.
	RecordDate() string
	// Cells returns the record's values. A nil Value means no measurement.
	Cells() []Cell
}

// Cell is one named value of a record. Value is loosely typed until cast.
type Cell struct {
	Name  string
	Value any
}

// Map is a loosely typed record keyed by field name, with the day under "date".
// It lets adapters that do not build typed structs plug into the caster.
type Map map[string]any

func (m Map) RecordDate() string {
	s, _ := m["date"].(string)
	return s
}

func (m Map) Cells() []Cell {
	cells := make([]Cell, 0, len(m))
	for k, v := range m {
		if k == "date" {
			continue
		}
		cells = append(cells, Cell{Name: k, Value: v})
	}
	return cells
}

// Row is a cast, validated record ready for the sink. Values follow the
// order of the provider schema's fields.
type Row struct {
	Date   string
	Fields []Field
	Values []any
}

// Get returns the value of the named field.
func (r Row) Get(name string) (any, bool) {
	for i, f := range r.Fields {
		if f.Name == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// MarshalJSON writes the row as a flat object with "date" first and the
// remaining fields in schema order, so identical rows encode identically.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"date":`)
	date, err := json.Marshal(r.Date)
	if err != nil {
		return nil, err
	}
	buf.Write(date)

	for i, f := range r.Fields {
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", f.Name, err)
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MaxDate returns the latest row date, or "" when rows is empty.
// Dates are zero-padded so string comparison orders them correctly.
func MaxDate(rows []Row) string {
	var latest string
	for _, r := range rows {
		if r.Date > latest {
			latest = r.Date
		}
	}
	return latest
}
