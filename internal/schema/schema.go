// Package schema compiles JSON Schema documents into record models that
// validate, encode and match collection documents.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema structure errors.
var (
	ErrSchemaInvalid = errors.New("schema invalid")
	ErrSchemaTooDeep = errors.New("schema nesting too deep")
)

// maxDepth bounds nested properties/items levels. Deeper schemas are
// rejected rather than degraded.
const maxDepth = 10

// idProperty is injected into every compiled schema so documents may carry
// their assigned identifier.
var idProperty = map[string]interface{}{
	"type":        "string",
	"description": "Unique record identifier",
}

var allowedTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"object":  true,
	"array":   true,
	"null":    true,
}

// Compiled is an immutable record model derived from a registered schema.
// It is safe for concurrent use.
type Compiled struct {
	canonical string
	sha       string
	doc       map[string]interface{}
	projDoc   map[string]interface{}
	projected string
	validator *jsonschema.Schema
	title     string
	desc      string
}

// Compile parses, checks and compiles a JSON Schema document.
//
// The compiled model validates against a closed variant of the input: the
// top level rejects unknown fields unless the author set additionalProperties
// explicitly, and an optional string "id" property is injected.
func Compile(raw []byte) (*Compiled, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %v", ErrSchemaInvalid, err)
	}
	if t, _ := doc["type"].(string); t != "object" {
		return nil, fmt.Errorf("%w: top-level type must be %q", ErrSchemaInvalid, "object")
	}
	props, ok := doc["properties"].(map[string]interface{})
	if !ok || len(props) == 0 {
		return nil, fmt.Errorf("%w: schema must enumerate properties", ErrSchemaInvalid)
	}
	if d := depth(doc); d > maxDepth {
		return nil, fmt.Errorf("%w: depth %d exceeds limit %d", ErrSchemaTooDeep, d, maxDepth)
	}
	if err := checkTypes(doc, ""); err != nil {
		return nil, err
	}

	canonical := canonicalize(doc)

	projected := withIDProperty(doc)
	validation := make(map[string]interface{}, len(projected)+1)
	for k, v := range projected {
		validation[k] = v
	}
	if _, ok := validation["additionalProperties"]; !ok {
		validation["additionalProperties"] = false
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("schema.json", strings.NewReader(canonicalize(validation))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	validator, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}

	title, _ := doc["title"].(string)
	desc, _ := doc["description"].(string)
	return &Compiled{
		canonical: canonical,
		sha:       fingerprint(canonical),
		doc:       doc,
		projDoc:   projected,
		projected: canonicalize(projected),
		validator: validator,
		title:     title,
		desc:      desc,
	}, nil
}

// SHA returns the hex-encoded SHA-256 of the canonical schema. Structurally
// identical schemas share it regardless of key order or whitespace.
func (c *Compiled) SHA() string {
	return c.sha
}

// Schema returns the canonical form of the registered schema.
func (c *Compiled) Schema() json.RawMessage {
	return json.RawMessage(c.canonical)
}

// ProjectSchema returns the registered schema with the id property injected,
// the shape documents actually take.
func (c *Compiled) ProjectSchema() json.RawMessage {
	return json.RawMessage(c.projected)
}

// Validate checks a document against the compiled model. Unknown top-level
// fields, missing required fields and type mismatches all fail with
// field-path diagnostics.
func (c *Compiled) Validate(doc map[string]interface{}) error {
	err := c.validator.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("document invalid: %s", flattenCauses(ve))
	}
	return err
}

// Serialize encodes a validated document in canonical form. Stored bytes are
// stable: re-serializing a deserialized document is the identity.
func (c *Compiled) Serialize(doc map[string]interface{}) []byte {
	return []byte(canonicalize(doc))
}

// Deserialize decodes stored record bytes.
func (c *Compiled) Deserialize(data []byte) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("corrupt record: %w", err)
	}
	return doc, nil
}

// Match reports whether a document satisfies an equality filter on top-level
// fields. An "id" key in the filter is ignored.
func (c *Compiled) Match(doc, filter map[string]interface{}) bool {
	for k, want := range filter {
		if k == "id" {
			continue
		}
		got, ok := doc[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// ApplyPatch returns a copy of current with the patch's top-level fields
// replaced. The id field is never patched; re-validate the result before
// writing it.
func (c *Compiled) ApplyPatch(current, patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(current)+len(patch))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}

// withIDProperty returns a copy of the schema document whose properties map
// includes the id property.
func withIDProperty(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	props, _ := doc["properties"].(map[string]interface{})
	next := make(map[string]interface{}, len(props)+1)
	for k, v := range props {
		next[k] = v
	}
	if _, ok := next["id"]; !ok {
		next["id"] = idProperty
	}
	out["properties"] = next
	return out
}

// depth measures nested properties/items levels, counting the top level as 1.
func depth(node map[string]interface{}) int {
	d := 1
	if props, ok := node["properties"].(map[string]interface{}); ok {
		for _, p := range props {
			if child, ok := p.(map[string]interface{}); ok {
				if n := depth(child) + 1; n > d {
					d = n
				}
			}
		}
	}
	if items, ok := node["items"].(map[string]interface{}); ok {
		if n := depth(items) + 1; n > d {
			d = n
		}
	}
	return d
}

// checkTypes rejects property types outside the supported set.
func checkTypes(node map[string]interface{}, path string) error {
	switch t := node["type"].(type) {
	case string:
		if !allowedTypes[t] {
			return fmt.Errorf("%w: unsupported type %q at %s", ErrSchemaInvalid, t, pathOrRoot(path))
		}
	case []interface{}:
		for _, v := range t {
			s, ok := v.(string)
			if !ok || !allowedTypes[s] {
				return fmt.Errorf("%w: unsupported type %v at %s", ErrSchemaInvalid, v, pathOrRoot(path))
			}
		}
	}
	if props, ok := node["properties"].(map[string]interface{}); ok {
		for name, p := range props {
			if child, ok := p.(map[string]interface{}); ok {
				if err := checkTypes(child, path+"/"+name); err != nil {
					return err
				}
			}
		}
	}
	if items, ok := node["items"].(map[string]interface{}); ok {
		if err := checkTypes(items, path+"/items"); err != nil {
			return err
		}
	}
	return nil
}

func pathOrRoot(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

// flattenCauses collapses a validation error tree into one line of
// leaf-level field diagnostics.
func flattenCauses(ve *jsonschema.ValidationError) string {
	var leaves []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			leaves = append(leaves, loc+": "+e.Message)
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return strings.Join(leaves, "; ")
}
