package specialist

import (
	"encoding/json"
	"fmt"
)

// Encode serializes a specialist into its persisted document form. Runtime
// state is dropped.
func Encode(s *Specialist) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode specialist %s: %w", s.ID, err)
	}
	return data, nil
}

// Decode parses a persisted document. Unparseable or invalid documents
// return an error wrapping ErrCorrupt.
func Decode(data []byte) (*Specialist, error) {
	var s Specialist
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &s, nil
}

// EncodeTemplate serializes a template document.
func EncodeTemplate(t *Template) ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode template %s: %w", t.ID, err)
	}
	return data, nil
}

// DecodeTemplate parses and validates a template document.
func DecodeTemplate(data []byte) (*Template, error) {
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: template: %v", ErrCorrupt, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &t, nil
}
