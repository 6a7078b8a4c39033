package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App       App       `yaml:"app"`
	DB        DB        `yaml:"db"`
	Log       Log       `yaml:"log"`
	Security  Security  `yaml:"security"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Redis     Redis     `yaml:"redis"`
	Storage   Storage   `yaml:"storage"`
	Mail      Mail      `yaml:"mail"`
	Invite    Invite    `yaml:"invite"`
	Session   Session   `yaml:"session"`
	Metrics   Metrics   `yaml:"metrics"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"starterkit"`
	Env     string `yaml:"env" env:"APP_ENV" env-default:"development"`
	Port    string `yaml:"port" env:"PORT" env-default:"8080"`
	BaseURL string `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:8080"`
	// Admin bootstrap; both must be set for the seed to run.
	AdminEmail    string `yaml:"admin_email" env:"ADMIN_EMAIL"`
	AdminPassword string `yaml:"admin_password" env:"ADMIN_PASSWORD"`
}

type DB struct {
	Driver string `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite"`
	DSN    string `yaml:"dsn" env:"DB_DSN" env-default:"starterkit.db"`
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
	File   string `yaml:"file" env:"LOG_FILE"`
}

type Security struct {
	CookieSecure   bool     `yaml:"cookie_secure" env:"COOKIE_SECURE" env-default:"false"`
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" env-separator:","`
	CSRFEnabled    bool     `yaml:"csrf_enabled" env:"CSRF_ENABLED" env-default:"true"`
	CSPReportURI   string   `yaml:"csp_report_uri" env:"CSP_REPORT_URI" env-default:"/api/v1/csp-report"`
	CSPReportOnly  bool     `yaml:"csp_report_only" env:"CSP_REPORT_ONLY" env-default:"false"`
	CSPNonce       bool     `yaml:"csp_nonce" env:"CSP_NONCE" env-default:"true"`
	// Extra sources appended to the default policy, e.g. "img-src=https://cdn.example.com".
	CSPExtra []string `yaml:"csp_extra" env:"CSP_EXTRA" env-separator:";"`
}

type RateLimit struct {
	Backend       string        `yaml:"backend" env:"RATE_LIMIT_BACKEND" env-default:"memory"`
	GlobalMax     int           `yaml:"global_max" env:"RATE_LIMIT_GLOBAL_MAX" env-default:"120"`
	GlobalWindow  time.Duration `yaml:"global_window" env:"RATE_LIMIT_GLOBAL_WINDOW" env-default:"1m"`
	LoginMax      int           `yaml:"login_max" env:"RATE_LIMIT_LOGIN_MAX" env-default:"5"`
	LoginWindow   time.Duration `yaml:"login_window" env:"RATE_LIMIT_LOGIN_WINDOW" env-default:"10m"`
	ContactMax    int           `yaml:"contact_max" env:"RATE_LIMIT_CONTACT_MAX" env-default:"3"`
	ContactWindow time.Duration `yaml:"contact_window" env:"RATE_LIMIT_CONTACT_WINDOW" env-default:"10m"`
	InviteMax     int           `yaml:"invite_max" env:"RATE_LIMIT_INVITE_MAX" env-default:"10"`
	InviteWindow  time.Duration `yaml:"invite_window" env:"RATE_LIMIT_INVITE_WINDOW" env-default:"15m"`
	UploadMax     int           `yaml:"upload_max" env:"RATE_LIMIT_UPLOAD_MAX" env-default:"20"`
	UploadWindow  time.Duration `yaml:"upload_window" env:"RATE_LIMIT_UPLOAD_WINDOW" env-default:"1h"`
	ReportMax     int           `yaml:"report_max" env:"RATE_LIMIT_REPORT_MAX" env-default:"30"`
	ReportWindow  time.Duration `yaml:"report_window" env:"RATE_LIMIT_REPORT_WINDOW" env-default:"1m"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Storage struct {
	Backend    string        `yaml:"backend" env:"STORAGE_BACKEND" env-default:"local"`
	MediaDir   string        `yaml:"media_dir" env:"MEDIA_DIR" env-default:"./media"`
	PublicPath string        `yaml:"public_path" env:"MEDIA_PUBLIC_PATH" env-default:"/media/"`
	MaxBytes   int64         `yaml:"max_bytes" env:"UPLOAD_MAX_BYTES" env-default:"5242880"`
	Bucket     string        `yaml:"bucket" env:"S3_BUCKET"`
	Region     string        `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	Endpoint   string        `yaml:"endpoint" env:"S3_ENDPOINT"`
	AccessKey  string        `yaml:"access_key" env:"S3_ACCESS_KEY"`
	SecretKey  string        `yaml:"secret_key" env:"S3_SECRET_KEY"`
	PathStyle  bool          `yaml:"path_style" env:"S3_PATH_STYLE" env-default:"true"`
	PresignTTL time.Duration `yaml:"presign_ttl" env:"S3_PRESIGN_TTL" env-default:"15m"`
}

type Mail struct {
	Backend       string  `yaml:"backend" env:"MAIL_BACKEND" env-default:"log"`
	Host          string  `yaml:"host" env:"SMTP_HOST"`
	Port          int     `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User          string  `yaml:"user" env:"SMTP_USER"`
	Password      string  `yaml:"password" env:"SMTP_PASSWORD"`
	From          string  `yaml:"from" env:"MAIL_FROM" env-default:"no-reply@localhost"`
	RatePerSecond float64 `yaml:"rate_per_second" env:"MAIL_RATE_PER_SECOND" env-default:"2"`
	ContactNotify string  `yaml:"contact_notify" env:"CONTACT_NOTIFY_EMAIL"`
}

type Invite struct {
	TTL           time.Duration `yaml:"ttl" env:"INVITE_TTL" env-default:"168h"`
	PurgeInterval time.Duration `yaml:"purge_interval" env:"INVITE_PURGE_INTERVAL" env-default:"1h"`
}

type Session struct {
	TTL time.Duration `yaml:"ttl" env:"SESSION_TTL" env-default:"336h"`
}

type Metrics struct {
	Enabled bool `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
}

// Load reads CONFIG_PATH (if set) and then the environment; env wins.
func Load() (Config, error) {
	var cfg Config
	var err error
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustLoad panics if config can not be read.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c Config) Validate() error {
	var errs []error
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q: want sqlite or postgres", c.DB.Driver))
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND %q: want memory or redis", c.RateLimit.Backend))
	}
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 storage backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND %q: want local or s3", c.Storage.Backend))
	}
	switch c.Mail.Backend {
	case "log":
	case "smtp":
		if c.Mail.Host == "" {
			errs = append(errs, errors.New("SMTP_HOST is required for the smtp mail backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("MAIL_BACKEND %q: want log or smtp", c.Mail.Backend))
	}
	if c.Storage.MaxBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_BYTES must be positive"))
	}
	if c.Invite.TTL <= 0 {
		errs = append(errs, errors.New("INVITE_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

// LogFields is the config as loggable key/values; the log package redacts the secret ones.
func (c Config) LogFields() map[string]any {
	return map[string]any{
		"env":             c.App.Env,
		"port":            c.App.Port,
		"base_url":        c.App.BaseURL,
		"db_driver":       c.DB.Driver,
		"db_dsn":          c.DB.DSN,
		"log_file":        c.Log.File,
		"rate_backend":    c.RateLimit.Backend,
		"storage_backend": c.Storage.Backend,
		"media_dir":       c.Storage.MediaDir,
		"mail_backend":    c.Mail.Backend,
		"smtp_password":   c.Mail.Password,
		"s3_secret_key":   c.Storage.SecretKey,
		"redis_password":  c.Redis.Password,
		"admin_password":  c.App.AdminPassword,
		"trusted_proxies": c.Security.TrustedProxies,
	}
}
