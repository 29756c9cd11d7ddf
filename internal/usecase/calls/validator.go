package calls

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"conduit-ai/internal/domain"
)

// Validator checks function-call arguments against registered JSON
// schemas before the call is queued. Schema-invalid calls never reach a
// handler.
type Validator struct {
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

// NewValidator creates a validator with no registered schemas.
func NewValidator() *Validator {
	return &Validator{compiled: make(map[string]*jsonschema.Schema)}
}

// Register compiles and stores the argument schema for a function name,
// replacing any previous schema.
func (v *Validator) Register(name string, schemaBytes json.RawMessage) error {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(schemaBytes))
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", name, err)
	}
	v.mu.Lock()
	v.compiled[name] = schema
	v.mu.Unlock()
	return nil
}

// Validate checks a call's arguments against the schema registered for
// its function name. Functions without a registered schema pass.
func (v *Validator) Validate(call domain.FunctionCallRequest) error {
	v.mu.RLock()
	schema, ok := v.compiled[call.Name]
	v.mu.RUnlock()
	if !ok {
		return nil
	}

	var args any
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return domain.NewDomainError("Validator.Validate", domain.ErrInvalidInput,
			fmt.Sprintf("call %s: arguments not parseable", call.CallID))
	}
	if result := schema.Validate(args); !result.IsValid() {
		return domain.NewDomainError("Validator.Validate", domain.ErrInvalidInput,
			fmt.Sprintf("call %s: %s", call.CallID, result.Error()))
	}
	return nil
}
