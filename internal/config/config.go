// Package config loads and validates the blog.yaml configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Content ContentConfig `yaml:"content"`
	Output  OutputConfig  `yaml:"output"`
	Styles  StylesConfig  `yaml:"styles"`
	Dev     DevConfig     `yaml:"dev"`
	Deploy  DeployConfig  `yaml:"deploy"`
}

// SiteConfig describes the site identity used by templates and feeds.
type SiteConfig struct {
	Title       string `yaml:"title"`
	Author      string `yaml:"author,omitempty"`
	BaseURL     string `yaml:"base_url,omitempty"`
	Description string `yaml:"description,omitempty"`
	Language    string `yaml:"language,omitempty"`
}

// ContentConfig locates the source directories of the site.
type ContentConfig struct {
	Dir          string `yaml:"dir"`                     // posts and pages, defaults to "content"
	StaticDir    string `yaml:"static_dir,omitempty"`    // copied through verbatim
	TemplatesDir string `yaml:"templates_dir,omitempty"` // overrides the embedded theme when set
}

// OutputConfig represents output configuration
type OutputConfig struct {
	Directory string `yaml:"directory"`
	CacheDir  string `yaml:"cache_dir,omitempty"` // page hash cache location
}

// StylesConfig controls stylesheet compilation.
type StylesConfig struct {
	CustomCSS string `yaml:"custom_css,omitempty"` // user utility/override stylesheet, appended verbatim
	Purge     *bool  `yaml:"purge,omitempty"`      // drop unused utility rules, defaults to true
}

// DevConfig controls the live-reloading preview server.
type DevConfig struct {
	Port       int  `yaml:"port,omitempty"`
	DebounceMS int  `yaml:"debounce_ms,omitempty"`
	Metrics    bool `yaml:"metrics,omitempty"` // expose Prometheus /metrics on the dev server
}

// DeployConfig describes where the built site is published.
type DeployConfig struct {
	RemoteURL   string      `yaml:"remote_url,omitempty"`
	Branch      string      `yaml:"branch,omitempty"` // orphan publish branch
	Auth        *AuthConfig `yaml:"auth,omitempty"`
	CommitName  string      `yaml:"commit_name,omitempty"`
	CommitEmail string      `yaml:"commit_email,omitempty"`
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	Type     string `yaml:"type"` // "ssh", "token", "basic"
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Token    string `yaml:"token,omitempty"`
	KeyPath  string `yaml:"key_path,omitempty"`
}

// Debounce returns the dev-server rebuild debounce as a duration.
func (d DevConfig) Debounce() time.Duration {
	if d.DebounceMS <= 0 {
		return 300 * time.Millisecond
	}
	return time.Duration(d.DebounceMS) * time.Millisecond
}

// PurgeEnabled reports whether unused utility rules should be dropped.
func (s StylesConfig) PurgeEnabled() bool {
	return s.Purge == nil || *s.Purge
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	// Load .env if present; values already in the environment win.
	for _, envPath := range []string{".env", ".env.local"} {
		if err := godotenv.Load(envPath); err == nil {
			fmt.Fprintf(os.Stderr, "Loaded environment variables from %s\n", envPath)
			break
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Site.Title == "" {
		c.Site.Title = "My Blog"
	}
	if c.Site.Language == "" {
		c.Site.Language = "en"
	}
	if c.Content.Dir == "" {
		c.Content.Dir = "content"
	}
	if c.Content.StaticDir == "" {
		c.Content.StaticDir = "static"
	}
	if c.Output.Directory == "" {
		c.Output.Directory = "./public"
	}
	if c.Output.CacheDir == "" {
		c.Output.CacheDir = ".blogbuilder"
	}
	if c.Dev.Port == 0 {
		c.Dev.Port = 8080
	}
	if c.Deploy.Branch == "" {
		c.Deploy.Branch = "pages"
	}
	if c.Deploy.CommitName == "" {
		c.Deploy.CommitName = "blogbuilder"
	}
	if c.Deploy.CommitEmail == "" {
		c.Deploy.CommitEmail = "blogbuilder@localhost"
	}
}

// Validate checks invariants that would otherwise surface mid-build.
func (c *Config) Validate() error {
	if c.Dev.Port < 0 || c.Dev.Port > 65535 {
		return fmt.Errorf("invalid dev port: %d", c.Dev.Port)
	}
	if c.Deploy.Auth != nil {
		switch c.Deploy.Auth.Type {
		case "ssh", "token", "basic", "":
		default:
			return fmt.Errorf("unsupported deploy auth type: %s", c.Deploy.Auth.Type)
		}
	}
	return nil
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	exampleConfig := Config{
		Site: SiteConfig{
			Title:       "My Blog",
			Author:      "Your Name",
			BaseURL:     "https://example.com",
			Description: "Notes on software and whatever else",
			Language:    "en",
		},
		Content: ContentConfig{
			Dir:       "content",
			StaticDir: "static",
		},
		Output: OutputConfig{
			Directory: "./public",
		},
		Styles: StylesConfig{
			CustomCSS: "styles/custom.css",
		},
		Dev: DevConfig{
			Port: 8080,
		},
		Deploy: DeployConfig{
			RemoteURL: "https://example.com/you/blog-pages.git",
			Branch:    "pages",
			Auth: &AuthConfig{
				Type:  "token",
				Token: "${DEPLOY_TOKEN}",
			},
		},
	}

	data, err := yaml.Marshal(&exampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
