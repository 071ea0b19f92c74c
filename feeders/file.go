package feeders

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// YamlFeeder reads a YAML file using the struct's yaml tags.
type YamlFeeder struct {
	Path string
}

// NewYamlFeeder creates a YamlFeeder for filePath.
func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{Path: filePath}
}

func (y YamlFeeder) Feed(structure any) error {
	if err := checkStructure(structure); err != nil {
		return err
	}
	content, err := os.ReadFile(y.Path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file: %w", err)
	}
	if err := yaml.Unmarshal(content, structure); err != nil {
		return fmt.Errorf("failed to parse YAML file %s: %w", y.Path, err)
	}
	return nil
}

// TomlFeeder reads a TOML file using the struct's toml tags.
type TomlFeeder struct {
	Path string
}

// NewTomlFeeder creates a TomlFeeder for filePath.
func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{Path: filePath}
}

func (t TomlFeeder) Feed(structure any) error {
	if err := checkStructure(structure); err != nil {
		return err
	}
	if _, err := toml.DecodeFile(t.Path, structure); err != nil {
		return fmt.Errorf("failed to parse TOML file %s: %w", t.Path, err)
	}
	return nil
}

// JSONFeeder reads a JSON file using the struct's json tags. Durations may
// be written as strings such as "30s".
type JSONFeeder struct {
	Path string
}

// NewJSONFeeder creates a JSONFeeder for filePath.
func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{Path: filePath}
}

func (j JSONFeeder) Feed(structure any) error {
	if err := checkStructure(structure); err != nil {
		return err
	}
	content, err := os.ReadFile(j.Path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(content, &data); err != nil {
		return fmt.Errorf("failed to parse JSON file %s: %w", j.Path, err)
	}
	return fillFromMap(structure, data, "json")
}
