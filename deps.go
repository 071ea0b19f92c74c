package scriptloader

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// DependencyParser extracts the namespace names a manifest depends on and
// returns the script text to execute.
type DependencyParser interface {
	Parse(source string) (dependencies []string, script string, err error)
}

// DependencyParserFunc adapts a function to DependencyParser.
type DependencyParserFunc func(source string) ([]string, string, error)

func (f DependencyParserFunc) Parse(source string) ([]string, string, error) {
	return f(source)
}

var usingHeaderRe = regexp.MustCompile(`(?im)^[ \t]*(?://+|/\*+|\*+)?[ \t]*using[ \t]*:[ \t]*([^\r\n]*)`)

// UsingHeaderParser reads "using: A, B" declarations from line or block
// comments. The script is returned unchanged.
type UsingHeaderParser struct{}

func (UsingHeaderParser) Parse(source string) ([]string, string, error) {
	var deps []string
	seen := make(map[string]bool)
	for _, match := range usingHeaderRe.FindAllStringSubmatch(source, -1) {
		list := match[1]
		if i := strings.Index(list, "*/"); i >= 0 {
			list = list[:i]
		}
		for _, name := range strings.Split(list, ",") {
			name = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(name), ";"))
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			deps = append(deps, name)
		}
	}
	return deps, source, nil
}

// JSONManifest is the structured manifest format read by JSONManifestParser.
type JSONManifest struct {
	Using  []string `json:"using"`
	Script string   `json:"script"`
}

// JSONManifestParser reads {"using": [...], "script": "..."} manifests.
// Sources that are not JSON objects fall back to UsingHeaderParser.
type JSONManifestParser struct{}

func (JSONManifestParser) Parse(source string) ([]string, string, error) {
	trimmed := strings.TrimSpace(source)
	if !strings.HasPrefix(trimmed, "{") {
		return UsingHeaderParser{}.Parse(source)
	}
	var m JSONManifest
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		return nil, "", fmt.Errorf("parsing JSON manifest: %w", err)
	}
	deps := make([]string, 0, len(m.Using))
	for _, name := range m.Using {
		if name = strings.TrimSpace(name); name != "" {
			deps = append(deps, name)
		}
	}
	return deps, m.Script, nil
}
