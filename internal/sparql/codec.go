package sparql

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// rawResultSet keeps head and results as pointers so absent sections can be told
// apart from empty ones.
type rawResultSet struct {
	Head    *Head    `json:"head"`
	Results *Results `json:"results"`
}

// Decode parses a SPARQL JSON results document. Documents without a head or
// results section are rejected.
func Decode(r io.Reader) (*ResultSet, error) {
	var raw rawResultSet
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding result set: %w", err)
	}
	if raw.Head == nil {
		return nil, errors.New("decoding result set: missing head")
	}
	if raw.Results == nil {
		return nil, errors.New("decoding result set: missing results")
	}
	return &ResultSet{Head: *raw.Head, Results: *raw.Results}, nil
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(data []byte) (*ResultSet, error) {
	return Decode(bytes.NewReader(data))
}

// Encode writes rs as indented JSON.
func Encode(w io.Writer, rs *ResultSet) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rs); err != nil {
		return fmt.Errorf("encoding result set: %w", err)
	}
	return nil
}

// Marshal returns the indented JSON form of rs.
func Marshal(rs *ResultSet) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, rs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
