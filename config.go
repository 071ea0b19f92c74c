package scriptloader

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/GoCodeAlone/scriptloader/feeders"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "SCRIPTLOADER"

var identPathRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)

// Config controls name translation, path computation, fetching and logging.
type Config struct {
	// RootNamespace qualifies relative module names and names the global root object.
	RootNamespace string `yaml:"rootNamespace" toml:"root_namespace" json:"rootNamespace" hcl:"root_namespace" env:"ROOT_NAMESPACE" default:"CoreXT"`
	// RootAliases are reserved names that translate to RootNamespace.
	RootAliases []string `yaml:"rootAliases" toml:"root_aliases" json:"rootAliases" hcl:"root_aliases" env:"ROOT_ALIASES" default:"[\"System\"]"`

	BaseURL         string `yaml:"baseURL" toml:"base_url" json:"baseURL" hcl:"base_url" env:"BASE_URL"`
	ModulesBase     string `yaml:"modulesBase" toml:"modules_base" json:"modulesBase" hcl:"modules_base" env:"MODULES_BASE" default:"scripts"`
	ManifestName    string `yaml:"manifestName" toml:"manifest_name" json:"manifestName" hcl:"manifest_name" env:"MANIFEST_NAME" default:"manifest"`
	ScriptExtension string `yaml:"scriptExtension" toml:"script_extension" json:"scriptExtension" hcl:"script_extension" env:"SCRIPT_EXTENSION" default:".js"`
	MinifiedSuffix  string `yaml:"minifiedSuffix" toml:"minified_suffix" json:"minifiedSuffix" hcl:"minified_suffix" env:"MINIFIED_SUFFIX" default:".min"`

	// Debug fetches non-minified sources.
	Debug bool `yaml:"debug" toml:"debug" json:"debug" hcl:"debug" env:"DEBUG"`
	// Wait disables the automatic app run while Debug is set; RunApp still works.
	Wait bool `yaml:"wait" toml:"wait" json:"wait" hcl:"wait" env:"WAIT"`

	FetchTimeout     time.Duration `yaml:"fetchTimeout" toml:"fetch_timeout" json:"fetchTimeout" hcl:"fetch_timeout" env:"FETCH_TIMEOUT" default:"30s"`
	MaxRetries       int           `yaml:"maxRetries" toml:"max_retries" json:"maxRetries" hcl:"max_retries" env:"MAX_RETRIES" default:"3"`
	RetryDelay       time.Duration `yaml:"retryDelay" toml:"retry_delay" json:"retryDelay" hcl:"retry_delay" env:"RETRY_DELAY" default:"200ms"`
	BreakerThreshold int           `yaml:"breakerThreshold" toml:"breaker_threshold" json:"breakerThreshold" hcl:"breaker_threshold" env:"BREAKER_THRESHOLD" default:"5"`

	LogLevel  string `yaml:"logLevel" toml:"log_level" json:"logLevel" hcl:"log_level" env:"LOG_LEVEL" default:"info"`
	LogFormat string `yaml:"logFormat" toml:"log_format" json:"logFormat" hcl:"log_format" env:"LOG_FORMAT" default:"text"`
}

// DefaultConfig returns a Config populated from its default tags.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := feeders.ApplyDefaults(cfg); err != nil {
		panic(fmt.Sprintf("scriptloader: invalid default tags: %v", err))
	}
	return cfg
}

// LoadConfig applies defaults, then the file at path (chosen by extension,
// skipped when path is empty), then SCRIPTLOADER_* environment variables,
// then any extra feeders, and validates the result.
func LoadConfig(path string, extra ...feeders.Feeder) (*Config, error) {
	cfg := DefaultConfig()

	chain := make([]feeders.Feeder, 0, len(extra)+2)
	if path != "" {
		f, err := feeders.ForFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedConfigFormat, path, err)
		}
		chain = append(chain, f)
	}
	chain = append(chain, feeders.NewAffixedEnvFeeder(EnvPrefix, ""))
	chain = append(chain, extra...)

	for _, f := range chain {
		if err := f.Feed(cfg); err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that names and extensions are usable.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	var problems []string
	if !identPathRe.MatchString(c.RootNamespace) {
		problems = append(problems, fmt.Sprintf("rootNamespace %q is not a valid identifier path", c.RootNamespace))
	}
	for _, alias := range c.RootAliases {
		if !identPathRe.MatchString(alias) {
			problems = append(problems, fmt.Sprintf("root alias %q is not a valid identifier path", alias))
		}
	}
	if !strings.HasPrefix(c.ScriptExtension, ".") || len(c.ScriptExtension) < 2 {
		problems = append(problems, fmt.Sprintf("scriptExtension %q must start with a dot", c.ScriptExtension))
	}
	if c.ManifestName == "" || strings.ContainsAny(c.ManifestName, `/\`) {
		problems = append(problems, fmt.Sprintf("manifestName %q must be a plain file name", c.ManifestName))
	}
	if c.MaxRetries < 0 {
		problems = append(problems, "maxRetries must not be negative")
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("logFormat %q must be text or json", c.LogFormat))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigValidationFailed, strings.Join(problems, "; "))
	}
	return nil
}
