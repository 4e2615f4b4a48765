package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

var null = []byte("null")

// FlexString decodes a JSON string, number, boolean or null into a string.
// The TimeCamp API switches between spellings per endpoint (ids in
// particular arrive as numbers or strings), so boundary structs use this
// instead of string. It always marshals back as a JSON string.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, null) {
		*s = ""
		return nil
	}
	if raw[0] == '"' {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode flexible string: %w", err)
		}
		*s = FlexString(v)
		return nil
	}
	if bytes.Equal(raw, []byte("true")) || bytes.Equal(raw, []byte("false")) {
		*s = FlexString(raw)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("decode flexible string from %q: %w", raw, err)
	}
	*s = FlexString(n.String())
	return nil
}

func (s FlexString) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

func (s FlexString) String() string { return string(s) }

// FlexInt decodes a JSON number or numeric string into an int64. Null and
// the empty string decode to zero; fractional input truncates toward zero.
// It marshals as a plain JSON number.
type FlexInt int64

func (i *FlexInt) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, null) {
		*i = 0
		return nil
	}
	if raw[0] == '"' {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode flexible int: %w", err)
		}
		v = strings.TrimSpace(v)
		if v == "" {
			*i = 0
			return nil
		}
		raw = []byte(v)
	}
	if n, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		*i = FlexInt(n)
		return nil
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return fmt.Errorf("decode flexible int from %q: %w", data, err)
	}
	*i = FlexInt(int64(f))
	return nil
}

func (i FlexInt) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(i), 10)), nil
}

func (i FlexInt) Int64() int64 { return int64(i) }

// FlexFloat decodes a JSON number or numeric string into a float64. Null
// and the empty string decode to zero.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, null) {
		*f = 0
		return nil
	}
	if raw[0] == '"' {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode flexible float: %w", err)
		}
		v = strings.TrimSpace(v)
		if v == "" {
			*f = 0
			return nil
		}
		raw = []byte(v)
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return fmt.Errorf("decode flexible float from %q: %w", data, err)
	}
	*f = FlexFloat(v)
	return nil
}

func (f FlexFloat) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(f))
}

func (f FlexFloat) Float64() float64 { return float64(f) }

// FlexBool decodes true/false, 0/1 and their string forms into a bool.
// Null and the empty string decode to false.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, null) {
		*b = false
		return nil
	}
	if raw[0] == '"' {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode flexible bool: %w", err)
		}
		raw = []byte(strings.TrimSpace(v))
	}
	switch strings.ToLower(string(raw)) {
	case "true", "1":
		*b = true
	case "false", "0", "":
		*b = false
	default:
		return fmt.Errorf("decode flexible bool: unrecognized value %q", data)
	}
	return nil
}

func (b FlexBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}

func (b FlexBool) Bool() bool { return bool(b) }
