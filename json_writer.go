package vtrade

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// objectWriter writes a JSON object whose fields keep their insertion order,
// so that saved portfolios diff line by line. Its zero value is an empty
// object. The first failure sticks and is returned by MarshalJSON.
type objectWriter struct {
	buf bytes.Buffer
	err error
}

// Field appends key with value marshaled by encoding/json.
func (w *objectWriter) Field(key string, value any) *objectWriter {
	if w.err != nil {
		return w
	}
	raw, err := json.Marshal(value)
	if err != nil {
		w.err = fmt.Errorf("field %q: %w", key, err)
		return w
	}
	return w.raw(key, raw)
}

// Amount appends key with amount as a string of exactly places decimals.
// Amounts never go through float64.
func (w *objectWriter) Amount(key string, amount decimal.Decimal, places int32) *objectWriter {
	if w.err != nil {
		return w
	}
	return w.raw(key, []byte(`"`+amount.StringFixed(places)+`"`))
}

func (w *objectWriter) raw(key string, value []byte) *objectWriter {
	if w.buf.Len() > 0 {
		w.buf.WriteByte(',')
	}
	k, _ := json.Marshal(key)
	w.buf.Write(k)
	w.buf.WriteByte(':')
	w.buf.Write(value)
	return w
}

// MarshalJSON returns the object.
func (w *objectWriter) MarshalJSON() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	out := make([]byte, 0, w.buf.Len()+2)
	out = append(out, '{')
	out = append(out, w.buf.Bytes()...)
	return append(out, '}'), nil
}
