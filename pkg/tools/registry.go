package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Kind classifies how a tool call is handled during a turn.
type Kind string

const (
	// KindQuery tools are resolved server-side during the turn and their
	// results attached to the tool call before the assistant message is
	// stored.
	KindQuery Kind = "query"
	// KindCommand tools are surfaced to the caller unexecuted; they run
	// client-side after an explicit approve/deny decision.
	KindCommand Kind = "command"
)

const (
	// ResultField is the reserved argument key a QUERY resolution is
	// written under. Tools cannot declare it and models cannot set it.
	ResultField = "result"
	// ConfirmationField is the optional COMMAND argument carrying the
	// model-authored confirmation prompt.
	ConfirmationField = "confirmationMessage"
)

// Parameter defines one tool argument.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Definition describes a registered tool.
type Definition struct {
	Name        string      `json:"name"`
	Kind        Kind        `json:"kind"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// Registry is the static tool catalog. Definitions are validated and
// their JSON Schemas compiled at registration; lookups never mutate.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register validates a definition, compiles its schema, and adds it.
func (r *Registry) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	if def.Kind == KindCommand && !hasParameter(def, ConfirmationField) {
		def.Parameters = append(def.Parameters, Parameter{
			Name:        ConfirmationField,
			Type:        "string",
			Description: "Short question shown to the user before this action runs",
		})
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}

	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema

	log.Info().
		Str("tool", def.Name).
		Str("kind", string(def.Kind)).
		Msg("Tool registered")

	return nil
}

// Resolve returns a tool definition by name.
func (r *Registry) Resolve(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tools[name]
	return def, ok
}

// Validate checks arguments against the tool's compiled schema.
// QUERY tools additionally reject a caller-populated result field.
func (r *Registry) Validate(name string, args map[string]interface{}) error {
	r.mu.RLock()
	def := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if def == nil {
		return fmt.Errorf("tool not found: %s", name)
	}

	if def.Kind == KindQuery {
		if _, present := args[ResultField]; present {
			return fmt.Errorf("argument %q is reserved", ResultField)
		}
	}

	loader := gojsonschema.NewGoLoader(args)
	result, err := schema.Validate(loader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var issues []string
		for _, verr := range result.Errors() {
			issues = append(issues, verr.String())
		}
		return fmt.Errorf("validation errors: %v", issues)
	}

	return nil
}

// Schemas exports the catalog in the shape providers expect:
// {name, description, input_schema}.
func (r *Registry) Schemas() []interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]interface{}, 0, len(names))
	for _, name := range names {
		def := r.tools[name]
		out = append(out, map[string]interface{}{
			"name":         def.Name,
			"description":  def.Description,
			"input_schema": schemaMap(*def),
		})
	}
	return out
}

// ConfirmationMessage returns the confirmation prompt for a COMMAND
// call: the model-populated field when present, otherwise a synthesized
// question listing the call's arguments.
func (r *Registry) ConfirmationMessage(name string, args map[string]interface{}) string {
	if msg, ok := args[ConfirmationField].(string); ok && strings.TrimSpace(msg) != "" {
		return msg
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		if k == ConfirmationField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}

	return fmt.Sprintf("execute %s with %s?", name, strings.Join(parts, ", "))
}

// List returns registered tool names sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Kind != KindQuery && def.Kind != KindCommand {
		return fmt.Errorf("unknown tool kind %q", def.Kind)
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}

	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Name == ResultField {
			return fmt.Errorf("parameter name %q is reserved", ResultField)
		}
		if param.Type == "" {
			return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

func hasParameter(def Definition, name string) bool {
	for _, p := range def.Parameters {
		if p.Name == name {
			return true
		}
	}
	return false
}

// schemaMap builds the JSON Schema for a definition. COMMAND schemas
// are closed; QUERY schemas stay open so the reserved result field can
// be attached after resolution without re-validation failures.
func schemaMap(def Definition) map[string]interface{} {
	properties := make(map[string]interface{})
	var required []string

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": def.Kind == KindQuery,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func compileSchema(def Definition) (*gojsonschema.Schema, error) {
	loader := gojsonschema.NewGoLoader(schemaMap(def))
	return gojsonschema.NewSchema(loader)
}
