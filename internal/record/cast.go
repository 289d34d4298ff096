package record

import (
	"errors"
	"fmt"
	"math"

	"github.com/igorvidecnik/databox-integration/internal/daterange"
	"github.com/spf13/cast"
)

// ErrInvalidRecord is returned when a record violates its provider schema.
var ErrInvalidRecord = errors.New("invalid record")

// CastAndValidate casts recs to the provider's schema and validates the
// result. An empty input yields an empty result, not an error.
func CastAndValidate(provider string, recs []Record) ([]Row, error) {
	rows, err := Cast(provider, recs)
	if err != nil {
		return nil, err
	}
	if err := Validate(provider, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Cast coerces every record to the provider's schema.
//
// Nil and empty-string values are passed through untouched; anything else is
// coerced to the field's kind. Fields the record does not mention are emitted
// as nil.
func Cast(provider string, recs []Record) ([]Row, error) {
	schema, ok := Schemas[provider]
	if !ok {
		return nil, fmt.Errorf("%w: no schema for provider %q", ErrInvalidRecord, provider)
	}

	rows := make([]Row, 0, len(recs))
	for i, rec := range recs {
		row, err := castRecord(schema, rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Validate checks that rows carry the provider's schema and a valid
// YYYY-MM-DD date.
func Validate(provider string, rows []Row) error {
	schema, ok := Schemas[provider]
	if !ok {
		return fmt.Errorf("%w: no schema for provider %q", ErrInvalidRecord, provider)
	}
	for i, row := range rows {
		if !schema.shapes(row) {
			return fmt.Errorf("record %d: %w: not shaped by the %s schema", i, ErrInvalidRecord, provider)
		}
		if row.Date == "" {
			return fmt.Errorf("record %d: %w: missing date", i, ErrInvalidRecord)
		}
		if !daterange.IsValid(row.Date) {
			return fmt.Errorf("record %d: %w: date %q is not YYYY-MM-DD", i, ErrInvalidRecord, row.Date)
		}
	}
	return nil
}

func (s Schema) shapes(row Row) bool {
	if len(row.Fields) != len(s.Fields) || len(row.Values) != len(s.Fields) {
		return false
	}
	for i, f := range s.Fields {
		if row.Fields[i].Name != f.Name {
			return false
		}
	}
	return true
}

func castRecord(schema Schema, rec Record) (Row, error) {
	if rec == nil {
		return Row{}, fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	date := rec.RecordDate()
	row := Row{
		Date:   date,
		Fields: schema.Fields,
		Values: make([]any, len(schema.Fields)),
	}

	for _, c := range rec.Cells() {
		idx := schema.Index(c.Name)
		if idx < 0 {
			// Unknown fields are not part of the dataset and are dropped.
			continue
		}
		v, err := coerce(schema.Fields[idx], c.Value)
		if err != nil {
			return Row{}, fmt.Errorf("%w: %s on %s: %v", ErrInvalidRecord, c.Name, date, err)
		}
		row.Values[idx] = v
	}
	return row, nil
}

func coerce(f Field, v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return t, nil
		}
	case *float64:
		if t == nil {
			return nil, nil
		}
		v = *t
	}

	switch f.Kind {
	case KindInt:
		n, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("non-finite value %v", n)
		}
		return int64(math.Round(n)), nil
	case KindFloat:
		n, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("non-finite value %v", n)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported kind %s", f.Kind)
	}
}
