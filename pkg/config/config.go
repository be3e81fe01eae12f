package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`

	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`

	TLS struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`

	Database struct {
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`

	TenantDatabase TenantDatabase `mapstructure:"TENANT_DATABASE"`

	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`

	License struct {
		PrivateKeyPath string `mapstructure:"PRIVATE_KEY_PATH"`
		PublicKeyPath  string `mapstructure:"PUBLIC_KEY_PATH"`
	} `mapstructure:"LICENSE"`

	Auth struct {
		Secret             string        `mapstructure:"SECRET"`
		TokenTTL           time.Duration `mapstructure:"TOKEN_TTL"`
		MaxLoginAttempts   int           `mapstructure:"MAX_LOGIN_ATTEMPTS"`
		LoginLockoutWindow time.Duration `mapstructure:"LOGIN_LOCKOUT_WINDOW"`
	} `mapstructure:"AUTH"`

	Bootstrap struct {
		AdminEmail    string `mapstructure:"ADMIN_EMAIL"`
		AdminPassword string `mapstructure:"ADMIN_PASSWORD"`
		AdminName     string `mapstructure:"ADMIN_NAME"`
	} `mapstructure:"BOOTSTRAP"`

	Backup struct {
		Dir         string        `mapstructure:"DIR"`
		Interval    time.Duration `mapstructure:"INTERVAL"`
		DumpTimeout time.Duration `mapstructure:"DUMP_TIMEOUT"`
		Timezone    string        `mapstructure:"TIMEZONE"`
	} `mapstructure:"BACKUP"`

	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`

	LoginURL string `mapstructure:"LOGIN_URL"`
}

// TenantDatabase is the PostgreSQL cluster where per-tenant databases are
// created. The configured user must be allowed to CREATE ROLE and
// CREATE DATABASE.
type TenantDatabase struct {
	Host     string `mapstructure:"HOST"`
	Port     int    `mapstructure:"PORT"`
	User     string `mapstructure:"USER"`
	Password string `mapstructure:"PASSWORD"`
	Database string `mapstructure:"DBNAME"`
	SSLMode  string `mapstructure:"SSLMODE"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func LoadConfig(p Params) *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config file", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	applyDefaults(&cfg)

	if p.Vault != nil {
		client := p.Vault
		ctx := context.Background()

		zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
		secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
		if err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}

		get := func(key string) string {
			if val, ok := secret.Data.Data[key].(string); ok {
				return val
			}
			return ""
		}

		cfg.Database.User = get("postgres_user")
		cfg.Database.Password = get("postgres_password")
		cfg.TenantDatabase.User = get("tenant_postgres_user")
		cfg.TenantDatabase.Password = get("tenant_postgres_password")
		cfg.Redis.Password = get("redis_password")
		cfg.Auth.Secret = get("auth_secret")
	}

	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.License.PrivateKeyPath == "" {
		cfg.License.PrivateKeyPath = "keys/private_key.pem"
	}
	if cfg.License.PublicKeyPath == "" {
		cfg.License.PublicKeyPath = "keys/public_key.pem"
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 8 * time.Hour
	}
	if cfg.Auth.MaxLoginAttempts == 0 {
		cfg.Auth.MaxLoginAttempts = 5
	}
	if cfg.Auth.LoginLockoutWindow == 0 {
		cfg.Auth.LoginLockoutWindow = 15 * time.Minute
	}
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = "./backups"
	}
	if cfg.Backup.Interval == 0 {
		cfg.Backup.Interval = time.Minute
	}
	if cfg.Backup.DumpTimeout == 0 {
		cfg.Backup.DumpTimeout = 5 * time.Minute
	}
	if cfg.TenantDatabase.Port == 0 {
		cfg.TenantDatabase.Port = 5432
	}
	if cfg.TenantDatabase.Database == "" {
		cfg.TenantDatabase.Database = "postgres"
	}
}
