// Package feeders populates configuration structs from files, environment
// variables and default tags. Each source is a Feeder; callers apply them in
// order so later sources override earlier ones.
package feeders

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidStructure      = errors.New("expected pointer to struct")
	ErrUnsupportedExtension  = errors.New("unsupported config file extension")
	ErrFieldCannotBeSet      = errors.New("field cannot be set")
	ErrUnsupportedFieldType  = errors.New("unsupported field type")
	ErrCannotConvert         = errors.New("cannot convert value to field type")
	ErrExpectedArrayForSlice = errors.New("expected array for slice field")
	ErrDefaultValueParse     = errors.New("failed to parse default value")
)

// Feeder fills structure, a pointer to a struct, from one source.
type Feeder interface {
	Feed(structure any) error
}

// FeederFunc adapts a function to the Feeder interface.
type FeederFunc func(structure any) error

func (f FeederFunc) Feed(structure any) error {
	return f(structure)
}

// ForFile returns the feeder for path chosen by its extension:
// .yaml/.yml, .toml, .json or .hcl.
func ForFile(path string) (Feeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYamlFeeder(path), nil
	case ".toml":
		return NewTomlFeeder(path), nil
	case ".json":
		return NewJSONFeeder(path), nil
	case ".hcl":
		return NewHCLFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExtension, filepath.Ext(path))
	}
}

func wrapStructureError(got any) error {
	return fmt.Errorf("%w, got %T", ErrInvalidStructure, got)
}

func wrapConvertError(value any, fieldType, fieldPath string) error {
	return fmt.Errorf("%w %T to %s for field %s", ErrCannotConvert, value, fieldType, fieldPath)
}
