package fhir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SourcePrefix is the scheme carried in meta.source to reference the
// originating HL7v2 message.
const SourcePrefix = "urn:hl7v2:"

// ClinicalResource is one FHIR R4 resource in canonical map form. Fields
// are addressed by dot paths with optional [n] indexes, for example
// "code.coding[0].system". json.Marshal of the underlying maps sorts keys,
// so two resources with equal content serialize to identical bytes.
type ClinicalResource struct {
	Type            string
	ID              string
	SourceMessageID string
	Profiles        []string

	fields map[string]any
}

// NewResource creates a resource of the given type and logical ID, tagged
// with the originating message.
func NewResource(resourceType, id, sourceMessageID string) *ClinicalResource {
	return &ClinicalResource{
		Type:            resourceType,
		ID:              id,
		SourceMessageID: sourceMessageID,
		fields:          map[string]any{},
	}
}

// Set writes a value at a dot path, creating intermediate maps and slices.
// Slice indexes must be set in order; setting index n requires length >= n.
func (r *ClinicalResource) Set(path string, value any) {
	if r.fields == nil {
		r.fields = map[string]any{}
	}
	setPath(r.fields, splitPath(path), value)
}

// Delete removes the value at a dot path. Absent paths are a no-op.
func (r *ClinicalResource) Delete(path string) {
	if r.fields == nil {
		return
	}
	elems := splitPath(path)
	if len(elems) == 1 && elems[0].index < 0 {
		delete(r.fields, elems[0].key)
		return
	}
	parent, ok := getPath(r.fields, elems[:len(elems)-1])
	if !ok {
		return
	}
	if m, ok := parent.(map[string]any); ok {
		last := elems[len(elems)-1]
		if last.index < 0 {
			delete(m, last.key)
		}
	}
}

// Get reads a value at a dot path. The second return value is false when
// any path element is absent.
func (r *ClinicalResource) Get(path string) (any, bool) {
	return getPath(r.fields, splitPath(path))
}

// GetString reads a string value at a dot path, returning "" when absent
// or not a string.
func (r *ClinicalResource) GetString(path string) string {
	v, ok := r.Get(path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Body returns the full resource content as a map, including resourceType,
// id, and meta. The returned map shares no state with the resource.
func (r *ClinicalResource) Body() map[string]any {
	body := map[string]any{
		"resourceType": r.Type,
		"id":           r.ID,
	}
	meta := map[string]any{
		"source": SourcePrefix + r.SourceMessageID,
	}
	if len(r.Profiles) > 0 {
		profiles := make([]any, len(r.Profiles))
		for i, p := range r.Profiles {
			profiles[i] = p
		}
		meta["profile"] = profiles
	}
	body["meta"] = meta
	for k, v := range r.fields {
		body[k] = deepCopy(v)
	}
	return body
}

// MarshalJSON serializes the full resource body. Key order is the sorted
// map order produced by encoding/json.
func (r *ClinicalResource) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Body())
}

// Clone returns a deep copy.
func (r *ClinicalResource) Clone() *ClinicalResource {
	out := &ClinicalResource{
		Type:            r.Type,
		ID:              r.ID,
		SourceMessageID: r.SourceMessageID,
		fields:          map[string]any{},
	}
	out.Profiles = append(out.Profiles, r.Profiles...)
	for k, v := range r.fields {
		out.fields[k] = deepCopy(v)
	}
	return out
}

// Bundle is the canonical output of one transformation: a FHIR collection
// bundle of the resources produced from a single message.
type Bundle struct {
	Type            string              `json:"type"`
	SourceMessageID string              `json:"sourceMessageId"`
	RuleVersion     string              `json:"ruleVersion"`
	Partial         bool                `json:"partial,omitempty"`
	Resources       []*ClinicalResource `json:"-"`
}

// NewBundle creates an empty collection bundle for a message.
func NewBundle(sourceMessageID, ruleVersion string) *Bundle {
	return &Bundle{
		Type:            "collection",
		SourceMessageID: sourceMessageID,
		RuleVersion:     ruleVersion,
	}
}

// Add appends a resource to the bundle.
func (b *Bundle) Add(r *ClinicalResource) {
	b.Resources = append(b.Resources, r)
}

// Clone returns a deep copy. Cached bundles are cloned before any caller
// may observe them, so filtering never mutates shared state.
func (b *Bundle) Clone() *Bundle {
	out := &Bundle{
		Type:            b.Type,
		SourceMessageID: b.SourceMessageID,
		RuleVersion:     b.RuleVersion,
		Partial:         b.Partial,
	}
	for _, r := range b.Resources {
		out.Resources = append(out.Resources, r.Clone())
	}
	return out
}

// MarshalJSON renders the bundle as a FHIR Bundle resource.
func (b *Bundle) MarshalJSON() ([]byte, error) {
	entries := make([]map[string]any, 0, len(b.Resources))
	for _, r := range b.Resources {
		entries = append(entries, map[string]any{"resource": r.Body()})
	}
	return json.Marshal(map[string]any{
		"resourceType": "Bundle",
		"type":         b.Type,
		"entry":        entries,
	})
}

// pathElem is one parsed step of a dot path: a key plus an optional index.
type pathElem struct {
	key   string
	index int // -1 when no [n] suffix
}

func splitPath(path string) []pathElem {
	parts := strings.Split(path, ".")
	elems := make([]pathElem, 0, len(parts))
	for _, p := range parts {
		e := pathElem{key: p, index: -1}
		if i := strings.IndexByte(p, '['); i >= 0 && strings.HasSuffix(p, "]") {
			if n, err := strconv.Atoi(p[i+1 : len(p)-1]); err == nil {
				e.key = p[:i]
				e.index = n
			}
		}
		elems = append(elems, e)
	}
	return elems
}

func setPath(m map[string]any, elems []pathElem, value any) {
	e := elems[0]
	last := len(elems) == 1

	if e.index < 0 {
		if last {
			m[e.key] = value
			return
		}
		child, ok := m[e.key].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[e.key] = child
		}
		setPath(child, elems[1:], value)
		return
	}

	slice, _ := m[e.key].([]any)
	for len(slice) <= e.index {
		slice = append(slice, map[string]any{})
	}
	m[e.key] = slice
	if last {
		slice[e.index] = value
		return
	}
	child, ok := slice[e.index].(map[string]any)
	if !ok {
		child = map[string]any{}
		slice[e.index] = child
	}
	setPath(child, elems[1:], value)
}

func getPath(m map[string]any, elems []pathElem) (any, bool) {
	if m == nil {
		return nil, false
	}
	e := elems[0]
	v, ok := m[e.key]
	if !ok {
		return nil, false
	}
	if e.index >= 0 {
		slice, ok := v.([]any)
		if !ok || e.index >= len(slice) {
			return nil, false
		}
		v = slice[e.index]
	}
	if len(elems) == 1 {
		return v, true
	}
	child, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return getPath(child, elems[1:])
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

// Reference builds a literal reference string to another resource.
func Reference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}
