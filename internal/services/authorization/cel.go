package authorization

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// CELEngine compiles and evaluates scope predicate expressions. Predicates
// see two map variables: "resource" (attributes of the target resource) and
// "subject" (attributes of the principal, plus "id" and "roles").
//
// Programs are compiled once per distinct expression and reused; evaluation
// itself is side-effect free, which keeps permission checks deterministic.
type CELEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELEngine creates a new CEL engine with the predicate declarations.
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("resource", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("subject", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CELEngine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Validate checks that an expression compiles and returns a boolean.
// The policy store calls this at mutation time so that a bad predicate is a
// policy conflict, not an evaluation-time surprise.
func (e *CELEngine) Validate(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("invalid scope predicate: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("scope predicate must return boolean, got: %s", ast.OutputType())
	}
	return nil
}

// Evaluate evaluates a predicate against resource and subject attributes.
func (e *CELEngine) Evaluate(expression string, resource, subject map[string]interface{}) (bool, error) {
	program, err := e.program(expression)
	if err != nil {
		return false, err
	}

	if resource == nil {
		resource = map[string]interface{}{}
	}
	if subject == nil {
		subject = map[string]interface{}{}
	}

	result, _, err := program.Eval(map[string]interface{}{
		"resource": resource,
		"subject":  subject,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate scope predicate: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("scope predicate did not evaluate to boolean, got: %T", result.Value())
	}
	return boolResult, nil
}

// program returns the compiled program for an expression, compiling and
// caching it on first use.
func (e *CELEngine) program(expression string) (cel.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile scope predicate: %w", issues.Err())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create scope predicate program: %w", err)
	}

	e.mu.Lock()
	e.programs[expression] = program
	e.mu.Unlock()
	return program, nil
}
