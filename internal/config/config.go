// Loads and validates the client configuration file.

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// ErrBaseAddressMissing is returned when api.baseAddress is not an absolute
// http(s) URL.
var ErrBaseAddressMissing = errors.New("The 'Recrovit:RecroGridFramework:API:BaseAddress' configuration setting is missing or invalid.") //nolint:staticcheck // ST1005: message is shown verbatim to operators

// MinimumCoreVersion is the oldest server core this client supports.
var MinimumCoreVersion = semver.MustParse("8.13.0")

// Config is the client configuration.
type Config struct {
	// API configures the connection to the RecroGrid server.
	API API `yaml:"api" json:"api"`

	// AppRootPath is the root path of the hosting application. Always ends
	// with "/".
	AppRootPath string `yaml:"appRootPath,omitempty" json:"appRootPath,omitempty"`

	// AppRootURL is accepted in place of AppRootPath.
	AppRootURL string `yaml:"appRootUrl,omitempty" json:"appRootUrl,omitempty"`

	RecroDict RecroDict `yaml:"recroDict" json:"recroDict"`
	RecroSec  RecroSec  `yaml:"recroSec" json:"recroSec"`
	Auth      Auth      `yaml:"auth" json:"auth"`
}

// API configures the HTTP client.
type API struct {
	// BaseAddress is the absolute URL of the server. Required.
	BaseAddress string `yaml:"baseAddress" json:"baseAddress" jsonschema:"required"`

	// RateLimit is the maximum number of requests per second. 0 means
	// unlimited.
	RateLimit float64 `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`

	// Burst is the number of requests allowed above RateLimit.
	Burst int `yaml:"burst,omitempty" json:"burst,omitempty"`

	// Retries is the number of times a failed GET is repeated.
	Retries int `yaml:"retries" json:"retries"`

	// Timeout bounds each request. 0 means no timeout.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Headers are sent with every request.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// RecroDict configures the localization dictionary.
type RecroDict struct {
	// DefaultLanguage is the 3-letter language code used before the user
	// picks one. Lower-cased.
	DefaultLanguage string `yaml:"defaultLanguage" json:"defaultLanguage"`
}

// RecroSec configures authorization.
type RecroSec struct {
	// RoleClaimType is the JWT claim holding the user roles.
	RoleClaimType string `yaml:"roleClaimType" json:"roleClaimType"`
}

// Auth configures how the client obtains its access token. Either
// AccessToken or the client credentials are set, or none.
type Auth struct {
	AccessToken  string   `yaml:"accessToken,omitempty" json:"accessToken,omitempty"`
	TokenURL     string   `yaml:"tokenURL,omitempty" json:"tokenURL,omitempty"`
	ClientID     string   `yaml:"clientID,omitempty" json:"clientID,omitempty"`
	ClientSecret string   `yaml:"clientSecret,omitempty" json:"clientSecret,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`
}

// IsZero reports whether no authentication is configured.
func (a *Auth) IsZero() bool {
	return a.AccessToken == "" && a.TokenURL == ""
}

// Validate checks that at most one authentication method is configured.
func (a *Auth) Validate() error {
	if a.AccessToken != "" && a.TokenURL != "" {
		return errors.New("accessToken and tokenURL are mutually exclusive")
	}
	if a.TokenURL != "" {
		if _, err := url.ParseRequestURI(a.TokenURL); err != nil {
			return fmt.Errorf("invalid tokenURL: %w", err)
		}
		if a.ClientID == "" || a.ClientSecret == "" {
			return errors.New("clientID and clientSecret are required with tokenURL")
		}
	}
	return nil
}

// Default returns the configuration defaults. BaseAddress has none.
func Default() *Config {
	return &Config{
		API: API{
			Retries: 3,
			Timeout: 30 * time.Second,
		},
		AppRootPath: "/",
		RecroDict:   RecroDict{DefaultLanguage: "eng"},
		RecroSec:    RecroSec{RoleClaimType: "role"},
	}
}

// Load reads the YAML configuration at path, applies defaults and validates
// it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	cfg.AppRootPath = ""
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	root := c.AppRootPath
	if root == "" {
		root = c.AppRootURL
	}
	if root == "" {
		root = "/"
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	c.AppRootPath = root
	c.RecroDict.DefaultLanguage = strings.ToLower(strings.TrimSpace(c.RecroDict.DefaultLanguage))
	if c.RecroDict.DefaultLanguage == "" {
		c.RecroDict.DefaultLanguage = "eng"
	}
	if c.RecroSec.RoleClaimType == "" {
		c.RecroSec.RoleClaimType = "role"
	}
	c.API.BaseAddress = strings.TrimSpace(c.API.BaseAddress)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseAddress)
	if c.API.BaseAddress == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrBaseAddressMissing
	}
	if c.API.RateLimit < 0 {
		return errors.New("api.rateLimit must be non-negative")
	}
	if c.API.Burst < 0 {
		return errors.New("api.burst must be non-negative")
	}
	if c.API.Retries < 0 {
		return errors.New("api.retries must be non-negative")
	}
	if c.API.Timeout < 0 {
		return errors.New("api.timeout must be non-negative")
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}

// Schema returns the JSON schema of the configuration file.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	return r.Reflect(&Config{})
}
