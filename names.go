package scriptloader

import (
	"regexp"
	"strings"
)

// variantRe matches an inline {nonMinified|minified} naming token.
var variantRe = regexp.MustCompile(`\{([^{}|]*)\|([^{}|]*)\}`)

// TranslateModuleTypeName qualifies shorthand module names: ".Foo" and
// "<alias>.Foo" become "<root>.Foo". Other names pass through unchanged.
func (c *Config) TranslateModuleTypeName(name string) string {
	if strings.HasPrefix(name, ".") {
		return c.RootNamespace + name
	}
	for _, alias := range c.RootAliases {
		if name == alias {
			return c.RootNamespace
		}
		if strings.HasPrefix(name, alias+".") {
			return c.RootNamespace + name[len(alias):]
		}
	}
	return name
}

// NamespaceToFolder maps a namespace name to the folder holding its
// manifest: root prefixes are stripped and the leaf segment dropped, so
// "NS.Sub.Widget" becomes "NS/Sub". A single-segment name yields "".
func (c *Config) NamespaceToFolder(name string) string {
	name = strings.TrimSpace(name)
	for _, prefix := range append([]string{c.RootNamespace}, c.RootAliases...) {
		if name == prefix {
			return ""
		}
		if strings.HasPrefix(name, prefix+".") {
			name = name[len(prefix)+1:]
			break
		}
	}
	name = strings.TrimPrefix(name, ".")
	segments := strings.Split(name, ".")
	if len(segments) < 2 {
		return ""
	}
	return strings.Join(segments[:len(segments)-1], "/")
}

// splitVariants expands every naming token in s, returning the
// non-minified and minified renditions and whether any token was present.
func splitVariants(s string) (plain, minified string, ok bool) {
	if !variantRe.MatchString(s) {
		return s, s, false
	}
	plain = variantRe.ReplaceAllString(s, "$1")
	minified = variantRe.ReplaceAllString(s, "$2")
	return plain, minified, true
}

// joinURL prefixes p with base unless p is already absolute.
func joinURL(base, p string) string {
	if base == "" || strings.Contains(p, "://") {
		return p
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(p, "/")
}

// modulePaths computes the non-minified and minified locations of a module.
// An empty base uses ModulesBase; a base ending in "/" is a folder that
// receives the file name; any other base names the file itself.
func (c *Config) modulePaths(name, minName string, nameToken bool, base, minBase string, baseToken bool) (string, string) {
	ext := c.ScriptExtension
	if base == "" {
		base = strings.TrimRight(c.ModulesBase, "/")
		if base != "" {
			base += "/"
		}
		minBase = base
	}

	if base == "" || strings.HasSuffix(base, "/") {
		if !nameToken {
			minName = name + c.MinifiedSuffix
		}
		return joinURL(c.BaseURL, base+name+ext), joinURL(c.BaseURL, minBase+minName+ext)
	}

	plain := base
	if !strings.HasSuffix(plain, ext) {
		plain += ext
	}
	var minified string
	if baseToken {
		minified = minBase
		if !strings.HasSuffix(minified, ext) {
			minified += ext
		}
	} else {
		minified = strings.TrimSuffix(plain, ext) + c.MinifiedSuffix + ext
	}
	return joinURL(c.BaseURL, plain), joinURL(c.BaseURL, minified)
}
