package domain

import (
	"encoding/json"
	"fmt"
)

// EntryKind identifies the type of value stored under a key.
type EntryKind uint8

const (
	// KindString marks a String entry.
	KindString EntryKind = iota + 1
	// KindList marks a List entry.
	KindList
)

// String returns the name used in snapshots and replies.
func (k EntryKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Entry is the value stored under a key. Its kind is fixed for the key's lifetime.
type Entry struct {
	Kind EntryKind
	Str  string
	List []string
}

// NewString creates a String entry.
func NewString(value string) *Entry {
	return &Entry{Kind: KindString, Str: value}
}

// NewList creates a List entry holding a copy of values.
func NewList(values ...string) *Entry {
	list := make([]string, len(values))
	copy(list, values)
	return &Entry{Kind: KindList, List: list}
}

// IsString reports whether e is a String entry.
func (e *Entry) IsString() bool { return e != nil && e.Kind == KindString }

// IsList reports whether e is a List entry.
func (e *Entry) IsList() bool { return e != nil && e.Kind == KindList }

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := &Entry{Kind: e.Kind, Str: e.Str}
	if e.List != nil {
		c.List = make([]string, len(e.List))
		copy(c.List, e.List)
	}
	return c
}

// Equal reports whether two entries hold the same kind and value.
func (e *Entry) Equal(o *Entry) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.Kind != o.Kind || e.Str != o.Str || len(e.List) != len(o.List) {
		return false
	}
	for i := range e.List {
		if e.List[i] != o.List[i] {
			return false
		}
	}
	return true
}

type entryJSON struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the entry as {"type":...,"value":...}.
func (e *Entry) MarshalJSON() ([]byte, error) {
	var (
		value []byte
		err   error
	)
	switch e.Kind {
	case KindString:
		value, err = json.Marshal(e.Str)
	case KindList:
		list := e.List
		if list == nil {
			list = []string{}
		}
		value, err = json.Marshal(list)
	default:
		return nil, fmt.Errorf("marshal entry: unknown kind %d", e.Kind)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(entryJSON{Type: e.Kind.String(), Value: value})
}

// UnmarshalJSON decodes the {"type":...,"value":...} form.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case "string":
		var s string
		if err := json.Unmarshal(raw.Value, &s); err != nil {
			return fmt.Errorf("unmarshal string entry: %w", err)
		}
		*e = Entry{Kind: KindString, Str: s}
	case "list":
		list := []string{}
		if err := json.Unmarshal(raw.Value, &list); err != nil {
			return fmt.Errorf("unmarshal list entry: %w", err)
		}
		if list == nil {
			list = []string{}
		}
		*e = Entry{Kind: KindList, List: list}
	default:
		return fmt.Errorf("unmarshal entry: unknown type %q", raw.Type)
	}
	return nil
}
