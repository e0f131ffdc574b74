package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	version string
}

func newApplication(opts ...Option) *application {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(a *application) {
		if v != "" {
			a.version = v
		}
	}
}
