// Package config loads authd settings from defaults, an optional config
// file, AUTHD_ prefixed environment variables and command line flags, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-auth-verify"
	"github.com/goliatone/go-auth-verify/repository"
	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

const (
	EnvPrefix      = "AUTHD"
	configName     = "authd"
	redactedSecret = "****"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

var _ auth.Config = (*Config)(nil)

type Config struct {
	App      AppConfig      `mapstructure:"app" json:"app"`
	Server   ServerConfig   `mapstructure:"server" json:"server"`
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	Auth     AuthConfig     `mapstructure:"auth" json:"auth"`
	SMTP     SMTPConfig     `mapstructure:"smtp" json:"smtp"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	Debug    bool   `mapstructure:"debug" json:"debug"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address" json:"address"`
	BasePath        string        `mapstructure:"base_path" json:"base_path"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver  string `mapstructure:"driver" json:"driver"`
	DSN     string `mapstructure:"dsn" json:"dsn"`
	Migrate bool   `mapstructure:"migrate" json:"migrate"`
}

type AuthConfig struct {
	SigningKey        string   `mapstructure:"signing_key" json:"signing_key"`
	LinkSigningKey    string   `mapstructure:"link_signing_key" json:"link_signing_key"`
	TokenExpiration   int      `mapstructure:"token_expiration" json:"token_expiration"`
	LinkExpiration    int      `mapstructure:"link_expiration" json:"link_expiration"`
	Issuer            string   `mapstructure:"issuer" json:"issuer"`
	Audience          []string `mapstructure:"audience" json:"audience"`
	Scheme            string   `mapstructure:"scheme" json:"scheme"`
	LinkBaseURL       string   `mapstructure:"link_base_url" json:"link_base_url"`
	VerifyRoute       string   `mapstructure:"verify_route" json:"verify_route"`
	PasswordAlgorithm string   `mapstructure:"password_algorithm" json:"password_algorithm"`
	DeterministicIDs  bool     `mapstructure:"deterministic_ids" json:"deterministic_ids"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	Username string `mapstructure:"username" json:"username"`
	Password string `mapstructure:"password" json:"password"`
	From     string `mapstructure:"from" json:"from"`
	Subject  string `mapstructure:"subject" json:"subject"`
}

// Enabled reports whether verification mail should be sent.
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

func setDefaults(vp *v.Viper) {
	vp.SetDefault("app.log_level", "info")
	vp.SetDefault("app.debug", false)

	vp.SetDefault("server.address", ":8080")
	vp.SetDefault("server.base_path", "/auth")
	vp.SetDefault("server.shutdown_timeout", 10*time.Second)

	vp.SetDefault("database.driver", repository.DriverSQLite)
	vp.SetDefault("database.dsn", "file:authd.db?cache=shared")
	vp.SetDefault("database.migrate", true)

	vp.SetDefault("auth.signing_key", "")
	vp.SetDefault("auth.link_signing_key", "")
	vp.SetDefault("auth.token_expiration", 60)
	vp.SetDefault("auth.link_expiration", 30)
	vp.SetDefault("auth.issuer", "authd")
	vp.SetDefault("auth.audience", []string{})
	vp.SetDefault("auth.scheme", "Bearer")
	vp.SetDefault("auth.link_base_url", "http://localhost:8080")
	vp.SetDefault("auth.verify_route", auth.DefaultVerifyRoute)
	vp.SetDefault("auth.password_algorithm", auth.PasswordAlgorithmBcrypt)
	vp.SetDefault("auth.deterministic_ids", false)

	vp.SetDefault("smtp.host", "")
	vp.SetDefault("smtp.port", 587)
	vp.SetDefault("smtp.username", "")
	vp.SetDefault("smtp.password", "")
	vp.SetDefault("smtp.from", "")
	vp.SetDefault("smtp.subject", "")
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to a TOML, YAML or JSON config file")
	fs.String("addr", "", "listen address")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.Bool("debug", false, "print the resolved configuration")
	fs.String("db-driver", "", "database driver (sqlite, postgres)")
	fs.String("db-dsn", "", "database connection string")
	fs.Bool("migrate", true, "apply database migrations on start")
	return fs
}

var flagKeys = map[string]string{
	"addr":      "server.address",
	"log-level": "app.log_level",
	"debug":     "app.debug",
	"db-driver": "database.driver",
	"db-dsn":    "database.dsn",
	"migrate":   "database.migrate",
}

// Load resolves the configuration from args (without the program name) and
// validates it.
func Load(args []string) (*Config, error) {
	vp := v.New()
	setDefaults(vp)

	fs := newFlagSet(configName)
	if err := fs.Parse(args); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid command line flags")
	}

	for flag, key := range flagKeys {
		f := fs.Lookup(flag)
		// unset flags must not shadow env or file values
		if f == nil || !f.Changed {
			continue
		}
		if err := vp.BindPFlag(key, f); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to bind flag "+flag)
		}
	}

	vp.SetEnvPrefix(EnvPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	if path, _ := fs.GetString("config"); path != "" {
		vp.SetConfigFile(path)
		if err := vp.ReadInConfig(); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, fmt.Sprintf("failed to read config file %s", path))
		}
	} else {
		vp.SetConfigName(configName)
		vp.AddConfigPath(".")
		if err := vp.ReadInConfig(); err != nil {
			var notFound v.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to read config file")
			}
		}
	}

	cfg := &Config{}
	if err := vp.Unmarshal(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to decode config")
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) normalize() {
	c.App.LogLevel = strings.ToLower(strings.TrimSpace(c.App.LogLevel))
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Auth.PasswordAlgorithm = strings.ToLower(strings.TrimSpace(c.Auth.PasswordAlgorithm))

	audience := c.Auth.Audience[:0]
	for _, a := range c.Auth.Audience {
		if a = strings.TrimSpace(a); a != "" {
			audience = append(audience, a)
		}
	}
	c.Auth.Audience = audience
}

// Validate checks every section and reports all offending keys at once.
func (c *Config) Validate() error {
	fields := map[string]string{}

	if !slices.Contains(validLogLevels, c.App.LogLevel) {
		fields["app.log_level"] = "must be one of " + strings.Join(validLogLevels, ", ")
	}

	if c.Server.Address == "" {
		fields["server.address"] = "cannot be blank"
	}
	if c.Server.ShutdownTimeout <= 0 {
		fields["server.shutdown_timeout"] = "must be positive"
	}

	switch c.Database.Driver {
	case repository.DriverSQLite, repository.DriverPostgres:
	default:
		fields["database.driver"] = "must be sqlite or postgres"
	}
	if c.Database.Driver == repository.DriverPostgres && c.Database.DSN == "" {
		fields["database.dsn"] = "is required for postgres"
	}

	if err := auth.ValidateConfig(c); err != nil {
		for k, msg := range auth.ValidationFields(err) {
			fields["auth."+k] = msg
		}
	}

	switch c.Auth.PasswordAlgorithm {
	case auth.PasswordAlgorithmBcrypt, auth.PasswordAlgorithmArgon2id:
	default:
		fields["auth.password_algorithm"] = "must be bcrypt or argon2id"
	}

	if err := validation.Validate(c.Auth.LinkBaseURL, validation.Required, is.URL); err != nil {
		fields["auth.link_base_url"] = err.Error()
	}

	if c.SMTP.Enabled() {
		if err := validation.Validate(c.SMTP.From, validation.Required, is.Email); err != nil {
			fields["smtp.from"] = err.Error()
		}
		if c.SMTP.Port <= 0 {
			fields["smtp.port"] = "must be positive"
		}
	}

	if len(fields) > 0 {
		return auth.NewValidationError(fields)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	out.Auth.Audience = slices.Clone(c.Auth.Audience)
	out.Auth.SigningKey = redact(c.Auth.SigningKey)
	out.Auth.LinkSigningKey = redact(c.Auth.LinkSigningKey)
	out.SMTP.Password = redact(c.SMTP.Password)
	if c.Database.Driver == repository.DriverPostgres {
		out.Database.DSN = redact(c.Database.DSN)
	}
	return out
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return redactedSecret
}

func (c *Config) GetSigningKey() string        { return c.Auth.SigningKey }
func (c *Config) GetLinkSigningKey() string    { return c.Auth.LinkSigningKey }
func (c *Config) GetTokenExpiration() int      { return c.Auth.TokenExpiration }
func (c *Config) GetLinkExpiration() int       { return c.Auth.LinkExpiration }
func (c *Config) GetIssuer() string            { return c.Auth.Issuer }
func (c *Config) GetAudience() []string        { return c.Auth.Audience }
func (c *Config) GetAuthScheme() string        { return c.Auth.Scheme }
func (c *Config) GetLinkBaseURL() string       { return c.Auth.LinkBaseURL }
func (c *Config) GetVerifyRoute() string       { return c.Auth.VerifyRoute }
func (c *Config) GetPasswordAlgorithm() string { return c.Auth.PasswordAlgorithm }
func (c *Config) GetDeterministicIDs() bool    { return c.Auth.DeterministicIDs }
