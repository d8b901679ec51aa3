// Package runtime maps language identifiers to the interpreter command and
// file extension used to execute a staged code file.
package runtime

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupportedLanguage is returned by Registry.Get for unknown identifiers.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Runtime defines how to execute code for a specific language.
type Runtime interface {
	// Name returns the language identifier (e.g., "python", "javascript").
	Name() string

	// FileExtension returns the extension for staged code files (e.g., ".py").
	FileExtension() string

	// Command returns the argv to execute the code staged at codePath.
	Command(codePath string) []string
}

// Registry maps language identifiers to their Runtime implementations.
// It is populated at construction and never mutated afterwards.
type Registry struct {
	runtimes map[string]Runtime
}

// NewRegistry creates a registry with all supported runtimes.
func NewRegistry() *Registry {
	r := &Registry{
		runtimes: make(map[string]Runtime),
	}
	r.Register(&JavaScriptRuntime{})
	r.Register(&PythonRuntime{})
	return r
}

// Register adds a runtime to the registry.
func (r *Registry) Register(rt Runtime) {
	r.runtimes[rt.Name()] = rt
}

// Get returns the runtime for the given language.
func (r *Registry) Get(language string) (Runtime, error) {
	rt, ok := r.runtimes[language]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)",
			ErrUnsupportedLanguage, language, strings.Join(r.Languages(), ", "))
	}
	return rt, nil
}

// Supported reports whether the language identifier is registered.
func (r *Registry) Supported(language string) bool {
	_, ok := r.runtimes[language]
	return ok
}

// Languages returns all registered language identifiers, sorted.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.runtimes))
	for name := range r.runtimes {
		langs = append(langs, name)
	}
	sort.Strings(langs)
	return langs
}
