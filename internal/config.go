package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/inkwell/internal/gitsync"
	pkgconfig "github.com/starford/inkwell/pkg/config"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Notes  NotesConfig       `yaml:"notes"`
	Git    GitConfig         `yaml:"git"`
	Sync   SyncConfig        `yaml:"sync"`
	Search SearchConfig      `yaml:"search"`
	State  StateConfig       `yaml:"state"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.Notes, &c.Git, &c.Sync, &c.Search, &c.State, &c.Auth} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// NotesConfig points at the note directory. An empty Dir runs without one:
// loads are no-ops and mutations are rejected.
type NotesConfig struct {
	Dir string `yaml:"dir"`
}

// Validate validates the notes configuration.
func (c *NotesConfig) Validate() error {
	return nil
}

// GitConfig describes the repository mirroring the note directory.
type GitConfig struct {
	RemoteURL       string        `yaml:"remote_url"`
	RemoteName      string        `yaml:"remote_name"`
	Branch          string        `yaml:"branch"`
	UserName        string        `yaml:"user_name"`
	UserEmail       string        `yaml:"user_email"`
	Timeout         time.Duration `yaml:"timeout"`
	InsecureSkipTLS bool          `yaml:"insecure_skip_tls"`
	Binary          string        `yaml:"binary"` // git executable for merges
	Auth            GitAuthConfig `yaml:"auth"`
}

// Validate validates the git configuration.
func (c *GitConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.RemoteName, validation.Required),
		validation.Field(&c.Branch, validation.Required),
		validation.Field(&c.UserName, validation.Required),
		validation.Field(&c.UserEmail, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Binary, validation.Required),
	); err != nil {
		return fmt.Errorf("git: %w", err)
	}
	return c.Auth.Validate()
}

// Repo returns the gitsync configuration for dir.
func (c *GitConfig) Repo(dir string) gitsync.Config {
	return gitsync.Config{
		Dir:             dir,
		RemoteURL:       c.RemoteURL,
		RemoteName:      c.RemoteName,
		Branch:          c.Branch,
		UserName:        c.UserName,
		UserEmail:       c.UserEmail,
		InsecureSkipTLS: c.InsecureSkipTLS,
	}
}

// GitAuthConfig holds the remote credentials.
//
// Type selects the method:
//   - "none" (default): go-git defaults, ssh-agent for ssh URLs.
//   - "ssh": PrivateKey is a key file, Passphrase optional.
//   - "password": HTTP basic auth with Username and Password.
type GitAuthConfig struct {
	Type       string `yaml:"type"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	PrivateKey string `yaml:"private_key"`
	Passphrase string `yaml:"passphrase"`
}

// Validate validates the git auth configuration.
func (c *GitAuthConfig) Validate() error {
	if c.Type == "" {
		c.Type = string(gitsync.AuthNone)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Type, validation.In(string(gitsync.AuthNone), string(gitsync.AuthSSH), string(gitsync.AuthPassword))),
		validation.Field(&c.PrivateKey, validation.When(c.Type == string(gitsync.AuthSSH), validation.Required)),
		validation.Field(&c.Password, validation.When(c.Type == string(gitsync.AuthPassword), validation.Required)),
	)
}

// Credentials returns a provider serving the configured secrets.
func (c *GitAuthConfig) Credentials() gitsync.StaticCredentials {
	return gitsync.StaticCredentials{
		Type:       gitsync.AuthType(c.Type),
		Username:   c.Username,
		Password:   c.Password,
		PrivateKey: c.PrivateKey,
		Passphrase: c.Passphrase,
	}
}

// SyncConfig controls when sync runs on its own.
type SyncConfig struct {
	OnStart  bool          `yaml:"on_start"`
	OnExit   bool          `yaml:"on_exit"`
	Interval time.Duration `yaml:"interval"` // 0 disables periodic sync
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.Min(time.Duration(0))),
	)
}

// SearchConfig holds the full-text search database location.
type SearchConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// StateConfig holds the directory for sync history.
type StateConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the state configuration.
func (c *StateConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds API authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Notes: NotesConfig{
			Dir: "./notes",
		},
		Git: GitConfig{
			RemoteName: "origin",
			Branch:     "master",
			UserName:   "Inkwell",
			UserEmail:  "inkwell@localhost",
			Timeout:    60 * time.Second,
			Binary:     "git",
			Auth:       GitAuthConfig{Type: string(gitsync.AuthNone)},
		},
		Sync: SyncConfig{
			OnStart: true,
			OnExit:  true,
		},
		Search: SearchConfig{
			Path: "./inkwell.db",
		},
		State: StateConfig{
			Path: "./.inkwell-state",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

// LoadConfig reads path over the defaults. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if _, err := pkgconfig.LoadIfExists(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
