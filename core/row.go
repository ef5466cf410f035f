package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shrek82/jdb/config"
)

// RowShape selects how a Row renders itself as JSON.
type RowShape int

const (
	// ShapeMap renders a row as an object keyed by column name.
	ShapeMap RowShape = iota
	// ShapeList renders a row as an array of values in column order.
	ShapeList
)

// ParseRowShape converts the configuration value: "map" (or "dict") and
// "list" (or "tuple").
func ParseRowShape(s string) (RowShape, error) {
	switch s {
	case "", config.RowShapeMap, config.RowShapeDict:
		return ShapeMap, nil
	case config.RowShapeList, config.RowShapeTuple:
		return ShapeList, nil
	}
	return ShapeMap, fmt.Errorf("unknown row shape %q", s)
}

// Row is one result record: column names and values in column order.
type Row struct {
	columns []string
	values  []any
	shape   RowShape
}

// NewRow builds a row; columns and values must have the same length.
func NewRow(columns []string, values []any) *Row {
	if len(columns) != len(values) {
		panic(fmt.Sprintf("jdb: %d columns but %d values", len(columns), len(values)))
	}
	return &Row{columns: columns, values: values}
}

// Columns returns the column names.
func (r *Row) Columns() []string {
	return r.columns
}

// Values returns the values in column order.
func (r *Row) Values() []any {
	return r.values
}

// Len returns the number of columns.
func (r *Row) Len() int {
	return len(r.values)
}

// Index returns the i-th value.
func (r *Row) Index(i int) any {
	return r.values[i]
}

// Get returns the value of the named column. With duplicate names the
// first one wins.
func (r *Row) Get(name string) (any, bool) {
	for i, col := range r.columns {
		if col == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// Value returns the named column's value, or nil when it is absent.
func (r *Row) Value(name string) any {
	v, _ := r.Get(name)
	return v
}

// Map returns the row as a column → value map.
func (r *Row) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i := len(r.columns) - 1; i >= 0; i-- {
		m[r.columns[i]] = r.values[i]
	}
	return m
}

func (r *Row) lookup(name string) (any, error) {
	v, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	if v == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNullValue)
	}
	return v, nil
}

// Int64 returns the named column as an int64.
func (r *Row) Int64(name string) (int64, error) {
	v, err := r.lookup(name)
	if err != nil {
		return 0, err
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

// Float64 returns the named column as a float64.
func (r *Row) Float64(name string) (float64, error) {
	v, err := r.lookup(name)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case decimal.Decimal:
		f, _ := x.Float64()
		return f, nil
	case string:
		return strconv.ParseFloat(x, 64)
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return float64(n), nil
}

// String returns the named column formatted as a string.
func (r *Row) String(name string) (string, error) {
	v, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	}
	return fmt.Sprint(v), nil
}

// Bool returns the named column as a bool; numeric values are true when non-zero.
func (r *Row) Bool(name string) (bool, error) {
	v, err := r.lookup(name)
	if err != nil {
		return false, err
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(x)
	}
	n, err := toInt64(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return n != 0, nil
}

// Time returns the named column as a time.Time.
func (r *Row) Time(name string) (time.Time, error) {
	v, err := r.lookup(name)
	if err != nil {
		return time.Time{}, err
	}
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02"} {
			if t, err := time.Parse(layout, x); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%s: cannot convert %T to time", name, v)
}

// Decimal returns the named column as a decimal.Decimal.
func (r *Row) Decimal(name string) (decimal.Decimal, error) {
	v, err := r.lookup(name)
	if err != nil {
		return decimal.Zero, err
	}
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case string:
		return decimal.NewFromString(x)
	case float64:
		return decimal.NewFromFloat(x), nil
	}
	n, err := toInt64(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", name, err)
	}
	return decimal.New(n, 0), nil
}

// MarshalJSON renders the row in its shape.
func (r *Row) MarshalJSON() ([]byte, error) {
	if r.shape == ShapeList {
		return json.Marshal(r.values)
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Format prints the row as {col: value, ...}, or [v, ...] for ShapeList.
func (r *Row) Format(f fmt.State, verb rune) {
	if r == nil {
		fmt.Fprint(f, "<nil>")
		return
	}
	if r.shape == ShapeList {
		fmt.Fprint(f, r.values)
		return
	}
	fmt.Fprint(f, "{")
	for i, col := range r.columns {
		if i > 0 {
			fmt.Fprint(f, ", ")
		}
		fmt.Fprintf(f, "%s: %v", col, r.values[i])
	}
	fmt.Fprint(f, "}")
}

// scalar applies the single-column rule: the bare value for a one-column
// row, the row itself otherwise.
func scalar(r *Row) any {
	if len(r.values) == 1 {
		return r.values[0]
	}
	return r
}

// AsInt64 converts a value returned by FetchValue or FetchValues to an
// int64, whatever integer type the driver produced.
func AsInt64(v any) (int64, error) {
	if v == nil {
		return 0, ErrNullValue
	}
	return toInt64(v)
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", x)
		}
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%v is not an integer", x)
		}
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case decimal.Decimal:
		if !x.Equal(x.Truncate(0)) {
			return 0, fmt.Errorf("%s is not an integer", x)
		}
		return x.IntPart(), nil
	}
	return 0, fmt.Errorf("cannot convert %T to int64", v)
}

// normalize turns driver values into the types a Row exposes: text
// arrives as string, DECIMAL/NUMERIC text as decimal.Decimal, binary
// columns stay []byte.
func normalize(v any, dbType string) any {
	switch x := v.(type) {
	case []byte:
		if isBinaryType(dbType) {
			return x
		}
		if isDecimalType(dbType) {
			if d, err := decimal.NewFromString(string(x)); err == nil {
				return d
			}
		}
		return string(x)
	case string:
		if isDecimalType(dbType) {
			if d, err := decimal.NewFromString(x); err == nil {
				return d
			}
		}
	}
	return v
}

func isBinaryType(dbType string) bool {
	t := strings.ToUpper(dbType)
	return strings.Contains(t, "BLOB") || strings.Contains(t, "BINARY") || t == "BYTEA" || t == "BIT"
}

func isDecimalType(dbType string) bool {
	t := strings.ToUpper(dbType)
	return strings.HasPrefix(t, "DECIMAL") || strings.HasPrefix(t, "NUMERIC")
}
