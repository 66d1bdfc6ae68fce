// Package message defines the versioned request envelope accepted at the API boundary.
//
// Every message is {version, type, payload}. Decode rejects unknown versions,
// unknown types, unknown payload fields and payloads that fail validation.
package message

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/coderag/internal/domain"
)

// Version is the current envelope schema version.
const Version = 1

// Type discriminates the payload.
type Type string

// Message types.
const (
	TypeQuery         Type = "query"
	TypeIndex         Type = "index"
	TypeComputeDiff   Type = "compute_diff"
	TypeApplyEdit     Type = "apply_edit"
	TypeApplyPatch    Type = "apply_patch"
	TypeApplyResponse Type = "apply_response"
)

// Envelope is the wire form of a message.
type Envelope struct {
	Version int             `json:"version"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Message is implemented by every payload type.
type Message interface {
	Type() Type
	Validate() error
}

// Query asks a question against the index.
type Query struct {
	Query  string         `json:"query"`
	Filter map[string]any `json:"filter,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Stream bool           `json:"stream,omitempty"`
}

// Index requests a workspace index, or a single file reindex when Path is set.
type Index struct {
	Path string `json:"path,omitempty"`
}

// ComputeDiff asks for a unified diff between two texts.
type ComputeDiff struct {
	Original string `json:"original"`
	Updated  string `json:"updated"`
	Path     string `json:"path,omitempty"`
}

// ApplyEdit writes proposed full content to Path through the diff engine.
type ApplyEdit struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Create  bool   `json:"create,omitempty"`
}

// ApplyPatch applies a unified diff to the workspace.
type ApplyPatch struct {
	Diff string `json:"diff"`
}

// ApplyResponse extracts and applies edits from free-form model output.
type ApplyResponse struct {
	Text string `json:"text"`
}

// Type implements Message.
func (Query) Type() Type { return TypeQuery }

// Type implements Message.
func (Index) Type() Type { return TypeIndex }

// Type implements Message.
func (ComputeDiff) Type() Type { return TypeComputeDiff }

// Type implements Message.
func (ApplyEdit) Type() Type { return TypeApplyEdit }

// Type implements Message.
func (ApplyPatch) Type() Type { return TypeApplyPatch }

// Type implements Message.
func (ApplyResponse) Type() Type { return TypeApplyResponse }

// Validate implements Message.
func (m Query) Validate() error {
	if m.Query == "" {
		return domain.InvalidInputf("query is required")
	}
	if m.Limit < 0 {
		return domain.InvalidInputf("limit must not be negative")
	}
	return nil
}

// Validate implements Message.
func (Index) Validate() error { return nil }

// Validate implements Message.
func (ComputeDiff) Validate() error { return nil }

// Validate implements Message.
func (m ApplyEdit) Validate() error {
	if m.Path == "" {
		return domain.InvalidInputf("path is required")
	}
	return nil
}

// Validate implements Message.
func (m ApplyPatch) Validate() error {
	if m.Diff == "" {
		return domain.InvalidInputf("diff is required")
	}
	return nil
}

// Validate implements Message.
func (m ApplyResponse) Validate() error {
	if m.Text == "" {
		return domain.InvalidInputf("text is required")
	}
	return nil
}

// Decode parses and validates an envelope.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := strictUnmarshal(data, &env); err != nil {
		return nil, domain.InvalidInputf("envelope: %v", err)
	}
	if env.Version != Version {
		return nil, domain.InvalidInputf("unsupported message version %d (want %d)", env.Version, Version)
	}

	var msg Message
	switch env.Type {
	case TypeQuery:
		msg = &Query{}
	case TypeIndex:
		msg = &Index{}
	case TypeComputeDiff:
		msg = &ComputeDiff{}
	case TypeApplyEdit:
		msg = &ApplyEdit{}
	case TypeApplyPatch:
		msg = &ApplyPatch{}
	case TypeApplyResponse:
		msg = &ApplyResponse{}
	default:
		return nil, domain.InvalidInputf("unknown message type %q", env.Type)
	}

	if len(env.Payload) > 0 {
		if err := strictUnmarshal(env.Payload, msg); err != nil {
			return nil, domain.InvalidInputf("%s payload: %v", env.Type, err)
		}
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", env.Type, err)
	}
	return deref(msg), nil
}

// Encode wraps m into a current-version envelope.
func Encode(m Message) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", m.Type(), err)
	}
	data, err := json.Marshal(Envelope{Version: Version, Type: m.Type(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// deref returns payloads by value so callers can type-switch on value types.
func deref(m Message) Message {
	switch v := m.(type) {
	case *Query:
		return *v
	case *Index:
		return *v
	case *ComputeDiff:
		return *v
	case *ApplyEdit:
		return *v
	case *ApplyPatch:
		return *v
	case *ApplyResponse:
		return *v
	}
	return m
}
