package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	ModeDevelopment = "DEVELOPMENT"
	ModeProduction  = "PRODUCTION"
)

type Config struct {
	Port                    string        `env:"PORT,default=3000"`
	Mode                    string        `env:"NODE_ENV,default=PRODUCTION"`
	DatabaseDSN             string        `env:"DB_DSN"`
	DatabaseMaxConns        int           `env:"DB_MAX_CONNS,default=25"`
	RedisAddr               string        `env:"REDIS_ADDR,default=localhost:6379"`
	JWTSecret               string        `env:"JWT_SECRET"`
	TokenTTL                time.Duration `env:"TOKEN_TTL,default=360h"`
	AdminSecretKey          string        `env:"ADMIN_SECRET_KEY,default=adminsecret"`
	UploadDir               string        `env:"UPLOAD_DIR,default=./uploads"`
	PublicBaseURL           string        `env:"PUBLIC_BASE_URL,default=http://localhost:3000"`
	FirebaseCredentialsJSON string        `env:"FIREBASE_CREDENTIALS_JSON"`
	PushTimeout             time.Duration `env:"PUSH_TIMEOUT,default=10s"`
	StoreTimeout            time.Duration `env:"STORE_TIMEOUT,default=5s"`
	PushConcurrency         int           `env:"PUSH_CONCURRENCY,default=8"`
	ProfileCacheTTL         time.Duration `env:"PROFILE_CACHE_TTL,default=10m"`
	ClientOrigins           string        `env:"CLIENT_ORIGINS,default=http://localhost:5173 http://localhost:4173"`
	LogLevel                string        `env:"LOG_LEVEL,default=info"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Mode = strings.ToUpper(strings.TrimSpace(cfg.Mode))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("DB_DSN is not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.Mode != ModeDevelopment && c.Mode != ModeProduction {
		errs = append(errs, fmt.Errorf("NODE_ENV must be %s or %s, got %q", ModeDevelopment, ModeProduction, c.Mode))
	}
	if c.PushConcurrency < 1 {
		errs = append(errs, errors.New("PUSH_CONCURRENCY must be at least 1"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) Development() bool { return c.Mode == ModeDevelopment }

// Origins splits CLIENT_ORIGINS on commas or spaces (struct tag defaults
// cannot hold commas). A single "*" allows any origin.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.FieldsFunc(c.ClientOrigins, func(r rune) bool { return r == ',' || r == ' ' }) {
		out = append(out, strings.TrimRight(o, "/"))
	}
	return out
}

func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
