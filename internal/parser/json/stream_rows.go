// Package json reads a JSON array of objects into header-aligned records.
// The odds exports are arrays of per-game objects with nested bookmaker
// structures; nested values are materialized as Go trees and serialized
// later by the loader's coercion step.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// StreamRows decodes a root-level JSON array of objects from src and invokes
// fn once per object.
//
// The returned header is the union of object keys in first-seen order.
// Because later objects may introduce new keys, the whole array is decoded
// before fn runs; records are aligned to the final header, with nil for keys
// an object does not carry. Scalar values arrive as string, json.Number,
// bool or nil; nested arrays and objects arrive as []any and map[string]any.
//
// A malformed document is a whole-file error; there is no per-row recovery.
func StreamRows(ctx context.Context, src io.Reader, fn func(index int, rec []any) error) ([]string, error) {
	dec := json.NewDecoder(src)
	dec.UseNumber() // keep numbers textual; coercion decides integer vs float

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("json: empty document")
		}
		return nil, fmt.Errorf("json: read: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("json: expected array, got %v", tok)
	}

	var (
		header []string
		colIx  = map[string]int{}
		rows   []map[string]any
	)

	for dec.More() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: element %d: %w", len(rows), err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			return nil, fmt.Errorf("json: element %d: expected object, got %v", len(rows), tok)
		}

		row := make(map[string]any)
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: element %d: %w", len(rows), err)
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("json: element %d: non-string key %v", len(rows), keyTok)
			}
			valTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: element %d: %w", len(rows), err)
			}
			v, err := materializeValue(dec, valTok)
			if err != nil {
				return nil, fmt.Errorf("json: element %d: key %s: %w", len(rows), key, err)
			}
			if _, seen := colIx[key]; !seen {
				colIx[key] = len(header)
				header = append(header, key)
			}
			row[key] = v
		}
		if _, err := dec.Token(); err != nil { // closing '}'
			return nil, fmt.Errorf("json: element %d: %w", len(rows), err)
		}
		rows = append(rows, row)
	}
	if _, err := dec.Token(); err != nil { // closing ']'
		return nil, fmt.Errorf("json: close array: %w", err)
	}

	for i, row := range rows {
		rec := make([]any, len(header))
		for key, v := range row {
			rec[colIx[key]] = v
		}
		if err := fn(i, rec); err != nil {
			return header, err
		}
	}
	return header, nil
}

// materializeValue rebuilds the value that starts at tok, descending into
// nested arrays and objects token by token.
func materializeValue(dec *json.Decoder, tok json.Token) (any, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '{':
		obj := make(map[string]any)
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", keyTok)
			}
			valTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			v, err := materializeValue(dec, valTok)
			if err != nil {
				return nil, err
			}
			obj[key] = v
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := make([]any, 0, 4)
		for dec.More() {
			valTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			v, err := materializeValue(dec, valTok)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", d)
	}
}
