package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// wireRows is the cache encoding of a result: one column list shared by
// every row, and values tagged with their Go type so they decode back to
// the same type.
type wireRows struct {
	Columns []string      `json:"c"`
	Rows    [][]wireValue `json:"r"`
}

type wireValue struct {
	T string `json:"t"`
	V string `json:"v,omitempty"`
}

// EncodeRows serialises rows. All rows must share one column list.
func EncodeRows(rows []*Row) ([]byte, error) {
	w := wireRows{Rows: make([][]wireValue, len(rows))}
	for i, r := range rows {
		if i == 0 {
			w.Columns = r.columns
		} else if len(r.columns) != len(w.Columns) {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(r.columns), len(w.Columns))
		}
		vals := make([]wireValue, len(r.values))
		for j, v := range r.values {
			wv, err := encodeValue(v)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", r.columns[j], err)
			}
			vals[j] = wv
		}
		w.Rows[i] = vals
	}
	return json.Marshal(w)
}

// DecodeRows restores rows produced by EncodeRows.
func DecodeRows(data []byte, shape RowShape) ([]*Row, error) {
	var w wireRows
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	rows := make([]*Row, len(w.Rows))
	for i, vals := range w.Rows {
		if len(vals) != len(w.Columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(vals), len(w.Columns))
		}
		values := make([]any, len(vals))
		for j, wv := range vals {
			v, err := decodeValue(wv)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", w.Columns[j], err)
			}
			values[j] = v
		}
		rows[i] = &Row{columns: w.Columns, values: values, shape: shape}
	}
	return rows, nil
}

func encodeValue(v any) (wireValue, error) {
	switch x := v.(type) {
	case nil:
		return wireValue{T: "n"}, nil
	case int64:
		return wireValue{T: "i", V: strconv.FormatInt(x, 10)}, nil
	case int:
		return wireValue{T: "i", V: strconv.FormatInt(int64(x), 10)}, nil
	case int32:
		return wireValue{T: "i", V: strconv.FormatInt(int64(x), 10)}, nil
	case uint64:
		return wireValue{T: "u", V: strconv.FormatUint(x, 10)}, nil
	case float64:
		return wireValue{T: "f", V: strconv.FormatFloat(x, 'g', -1, 64)}, nil
	case float32:
		return wireValue{T: "f", V: strconv.FormatFloat(float64(x), 'g', -1, 64)}, nil
	case bool:
		return wireValue{T: "b", V: strconv.FormatBool(x)}, nil
	case string:
		return wireValue{T: "s", V: x}, nil
	case []byte:
		return wireValue{T: "x", V: base64.StdEncoding.EncodeToString(x)}, nil
	case time.Time:
		return wireValue{T: "t", V: x.Format(time.RFC3339Nano)}, nil
	case decimal.Decimal:
		return wireValue{T: "d", V: x.String()}, nil
	}
	return wireValue{}, fmt.Errorf("cannot encode %T", v)
}

func decodeValue(w wireValue) (any, error) {
	switch w.T {
	case "n":
		return nil, nil
	case "i":
		return strconv.ParseInt(w.V, 10, 64)
	case "u":
		return strconv.ParseUint(w.V, 10, 64)
	case "f":
		return strconv.ParseFloat(w.V, 64)
	case "b":
		return strconv.ParseBool(w.V)
	case "s":
		return w.V, nil
	case "x":
		return base64.StdEncoding.DecodeString(w.V)
	case "t":
		return time.Parse(time.RFC3339Nano, w.V)
	case "d":
		return decimal.NewFromString(w.V)
	}
	return nil, fmt.Errorf("unknown value tag %q", w.T)
}
