// Package validator checks gateway request bodies against embedded JSON
// schemas before they reach the agent.
package validator

import (
	"embed"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Kind names a request schema.
type Kind string

const (
	KindPrompt Kind = "prompt"
	KindSync   Kind = "sync"
)

// Options configures request limits.
type Options struct {
	// PromptMaxLength caps the prompt in runes. Zero disables the check.
	PromptMaxLength int
}

// Validator holds the compiled schemas.
type Validator struct {
	schemas         map[Kind]*gojsonschema.Schema
	promptMaxLength int
}

// Result reports the outcome of one validation.
type Result struct {
	Valid       bool      `json:"valid"`
	Errors      []string  `json:"errors,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// New compiles the embedded schemas.
func New(opts Options) (*Validator, error) {
	v := &Validator{
		schemas:         map[Kind]*gojsonschema.Schema{},
		promptMaxLength: opts.PromptMaxLength,
	}
	for _, kind := range []Kind{KindPrompt, KindSync} {
		data, err := schemaFS.ReadFile("schemas/" + string(kind) + ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to read %s schema: %w", kind, err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", kind, err)
		}
		v.schemas[kind] = schema
	}
	return v, nil
}

// Validate checks payload against the schema for kind.
func (v *Validator) Validate(kind Kind, payload []byte) Result {
	result := Result{Valid: true, GeneratedAt: time.Now().UTC()}

	schema, ok := v.schemas[kind]
	if !ok {
		return result.fail(fmt.Sprintf("unknown request kind %q", kind))
	}
	if len(payload) == 0 {
		return result.fail("request body is empty")
	}

	schemaResult, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return result.fail(fmt.Sprintf("schema validation error: %v", err))
	}
	for _, e := range schemaResult.Errors() {
		result.Valid = false
		result.Errors = append(result.Errors, e.String())
	}
	return result
}

// CheckPrompt applies the length limit that the schema cannot express per
// deployment.
func (v *Validator) CheckPrompt(prompt string) Result {
	result := Result{Valid: true, GeneratedAt: time.Now().UTC()}
	if v.promptMaxLength > 0 && utf8.RuneCountInString(prompt) > v.promptMaxLength {
		return result.fail(fmt.Sprintf("prompt exceeds %d characters", v.promptMaxLength))
	}
	return result
}

func (r Result) fail(msg string) Result {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
	return r
}
