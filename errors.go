package scriptloader

import (
	"errors"
	"fmt"

	"github.com/GoCodeAlone/scriptloader/sandbox"
)

// Loader errors
var (
	// Configuration errors
	ErrConfigNil               = errors.New("config is nil")
	ErrConfigValidationFailed  = errors.New("config validation failed")
	ErrUnsupportedConfigFormat = errors.New("unsupported config file format")

	// Resolution errors
	ErrEmptyTypeName       = errors.New("full type name is empty")
	ErrInvalidTypeName     = errors.New("full type name is not a valid namespace path")
	ErrInvalidManifestPath = errors.New("invalid manifest path")
	ErrNilDependency       = errors.New("dependency module is nil")
	ErrUnknownModule       = errors.New("module is not registered")

	// Registration errors
	ErrDuplicateLocation = errors.New("location is already claimed by another module")

	// Dependency errors
	ErrCircularDependency = errors.New("circular dependency detected")
	ErrDependencyFailed   = errors.New("dependency failed")

	// Usage-state errors
	ErrModuleFailed       = errors.New("is in an error state")
	ErrModuleNotRequested = errors.New("has not been requested to load")
	ErrModuleStillLoading = errors.New("is still loading")
	ErrModuleWaiting      = errors.New("is waiting on its dependencies")
	ErrModuleNotExecuted  = errors.New("has not been executed")

	// Execution errors
	ErrInvalidSource        = errors.New("has invalid source")
	ErrExecutionFailed      = errors.New("failed to execute")
	ErrRequiredModuleFailed = errors.New("required module failed")

	// Script errors, shared with the sandbox package
	ErrSyntax  = sandbox.ErrSyntax
	ErrRuntime = sandbox.ErrRuntime
)

// ScriptError describes a parse or runtime failure with its source position.
type ScriptError = sandbox.ScriptError

// ModuleError ties a failure to the module or manifest it concerns.
type ModuleError struct {
	Module string
	Err    error
	Cause  error
}

func (e *ModuleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("module '%s' %v: %v", e.Module, e.Err, e.Cause)
	}
	return fmt.Sprintf("module '%s' %v", e.Module, e.Err)
}

func (e *ModuleError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func moduleErr(name string, err, cause error) *ModuleError {
	return &ModuleError{Module: name, Err: err, Cause: cause}
}
