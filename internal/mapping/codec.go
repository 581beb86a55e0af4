package mapping

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"placeholder-anonymizer/internal/pyjson"
)

// DocumentKey is the single top-level key of a mapping document.
const DocumentKey = "entity_mapping"

var (
	// ErrMissingEntityMapping is returned when a document has no entity_mapping key.
	ErrMissingEntityMapping = errors.New("mapping: document has no \"entity_mapping\" key")
	// ErrMalformedMapping is returned for documents that are not valid JSON
	// or do not have the entity type → value → placeholder shape.
	ErrMalformedMapping = errors.New("mapping: malformed mapping document")
)

// Marshal renders s as a mapping document:
//
//	{
//	  "entity_mapping": {
//	    "PERSON": {
//	      "Peter": "<PERSON_0>"
//	    }
//	  }
//	}
//
// with two-space indentation, ASCII-only escaping and no trailing newline.
func Marshal(s *Store) []byte {
	types := pyjson.Object{}
	for _, t := range s.Types() {
		values := pyjson.Object{}
		for _, e := range s.Entries(t) {
			values = append(values, pyjson.Member{Key: e.Value, Value: e.Placeholder})
		}
		types = append(types, pyjson.Member{Key: t, Value: values})
	}
	return pyjson.MarshalIndent(pyjson.Object{{Key: DocumentKey, Value: types}}, "  ")
}

// Unmarshal parses a mapping document, preserving key order. Top-level
// keys other than entity_mapping are ignored.
func Unmarshal(data []byte) (*Store, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var store *Store
	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return nil, err
		}
		if key != DocumentKey {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, malformed(err)
			}
			continue
		}
		if store, err = decodeTypes(dec); err != nil {
			return nil, err
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after document", ErrMalformedMapping)
	}
	if store == nil {
		return nil, ErrMissingEntityMapping
	}
	return store, nil
}

func decodeTypes(dec *json.Decoder) (*Store, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	s := NewStore()
	seen := make(map[string]bool)
	for dec.More() {
		entityType, err := stringToken(dec)
		if err != nil {
			return nil, err
		}
		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("entity type %q: %w", entityType, err)
		}
		// A repeated type key replaces the earlier object but keeps its
		// position, as Python's json.load does.
		if seen[entityType] {
			s.resetType(entityType)
		} else {
			seen[entityType] = true
			s.ensureType(entityType)
		}
		for dec.More() {
			value, err := stringToken(dec)
			if err != nil {
				return nil, err
			}
			token, err := stringToken(dec)
			if err != nil {
				return nil, fmt.Errorf("entity type %q: %w", entityType, err)
			}
			s.put(entityType, value, token)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return s, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return malformed(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrMalformedMapping, want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", malformed(err)
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected string, got %v", ErrMalformedMapping, tok)
	}
	return s, nil
}

func malformed(err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %v", ErrMalformedMapping, err)
}
