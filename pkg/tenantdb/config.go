package tenantdb

import (
	"fmt"
	"net/url"
	"time"
)

// Config describes the base database connection shared by all strategies
// plus the tenancy behavior knobs. Fields are populated from environment
// variables via github.com/caarlos0/env (see pkg/config).
type Config struct {
	Driver   string `env:"DB_DRIVER" envDefault:"postgres"` // Driver is the database driver; only postgres is supported.
	Host     string `env:"DB_HOST" envDefault:"localhost"`  // Host is the database server host.
	Port     int    `env:"DB_PORT" envDefault:"5432"`       // Port is the database server port.
	User     string `env:"DB_USER" envDefault:"postgres"`   // User is the database user name.
	Password string `env:"DB_PASSWORD"`                     // Password is the database user password.
	Name     string `env:"DB_NAME" envDefault:"postgres"`   // Name is the shared/base database name.

	Strategy     string `env:"TENANCY_STRATEGY" envDefault:"schema_per_tenant"` // Strategy is the default isolation strategy.
	AutoLoad     bool   `env:"TENANT_AUTO_LOAD" envDefault:"false"`            // AutoLoad enables lazy tenant loading in the registry.
	AutoValidate bool   `env:"TENANT_AUTO_VALIDATE" envDefault:"true"`         // AutoValidate rejects inactive tenants at identification time.

	MaxOpenConns      int32         `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`     // MaxOpenConns caps each per-target pool.
	MaxIdleConns      int32         `env:"DB_MAX_IDLE_CONNS" envDefault:"2"`      // MaxIdleConns is the minimum idle connections kept per pool.
	HealthCheckPeriod time.Duration `env:"DB_HEALTHCHECK_PERIOD" envDefault:"1m"` // HealthCheckPeriod is the pool health check cadence.
	MaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	MaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`

	RetryAttempts int           `env:"DB_RETRY_ATTEMPTS" envDefault:"3"` // RetryAttempts is the number of attempts to open a pool.
	RetryInterval time.Duration `env:"DB_RETRY_INTERVAL" envDefault:"5s"`
}

// URL builds the base connection string pointing at the shared database.
func (c Config) URL() (string, error) {
	return c.databaseURL(c.Name)
}

// databaseURL builds a connection string for an arbitrary database on the
// configured server, used to template per-tenant databases.
func (c Config) databaseURL(database string) (string, error) {
	if c.Driver != "postgres" && c.Driver != "postgresql" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDriver, c.Driver)
	}
	if c.Host == "" || database == "" {
		return "", ErrMissingTenantConfig
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + database,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	return u.String(), nil
}

// DefaultStrategy parses the configured default strategy.
func (c Config) DefaultStrategy() (Strategy, error) {
	return ParseStrategy(c.Strategy)
}
