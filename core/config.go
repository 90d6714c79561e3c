package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName      string
		Build        string
		Env          string // DEV (local; default), TEST, QA, PROD
		Debug        bool
		TestMode     bool
		RollbarToken string

		Server     ServerConfig
		Database   DatabaseConfig
		Cache      CacheConfig
		Reconcile  ReconcileConfig
		Optimistic OptimisticConfig
	}

	ServerConfig struct {
		Host            string
		Addr            string
		DebugHost       string
		ShutdownTimeout time.Duration
		SecretKey       string
		// AllowedOrigins are the origins accepted by the live (websocket) endpoint.
		AllowedOrigins []string
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	CacheConfig struct {
		// BadgerPath is where the persistent local cache lives; empty means in-memory.
		BadgerPath string
		// TTLs overrides the default TTL per cache kind name, eg. "user_completions".
		TTLs map[string]time.Duration
	}

	ReconcileConfig struct {
		Debounce       time.Duration
		QuietWindow    time.Duration
		ReloadInterval time.Duration // min interval between two reloads of the same path; 0 disables
	}

	OptimisticConfig struct {
		Window    time.Duration
		ExitDelay time.Duration
	}
)

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
}

// NewConfig loads the configuration from env vars, optionally read from `config/.env.<env>`.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Engage")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.secretKey", "x8#2-kq)vn0$+tr=lw&pma9(d!c)#*f3(#zs4h^$bek7qmz")
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:5000"})

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "engage")
	v.SetDefault("database.user", "engage")
	v.SetDefault("database.password", "engage")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("cache.badgerPath", "")
	v.SetDefault("reconcile.debounce", 500*time.Millisecond)
	v.SetDefault("reconcile.quietWindow", 2*time.Second)
	v.SetDefault("reconcile.reloadInterval", time.Duration(0))
	v.SetDefault("optimistic.window", 30*time.Second)
	v.SetDefault("optimistic.exitDelay", 300*time.Millisecond)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	if wd, err := os.Getwd(); err == nil {
		dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:      v.GetString("appName"),
		Build:        v.GetString("build"),
		Env:          env,
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Addr:            v.GetString("server.addr"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			SecretKey:       v.GetString("server.secretKey"),
			AllowedOrigins:  v.GetStringSlice("server.allowedOrigins"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Cache: CacheConfig{
			BadgerPath: v.GetString("cache.badgerPath"),
			TTLs:       make(map[string]time.Duration),
		},
		Reconcile: ReconcileConfig{
			Debounce:       v.GetDuration("reconcile.debounce"),
			QuietWindow:    v.GetDuration("reconcile.quietWindow"),
			ReloadInterval: v.GetDuration("reconcile.reloadInterval"),
		},
		Optimistic: OptimisticConfig{
			Window:    v.GetDuration("optimistic.window"),
			ExitDelay: v.GetDuration("optimistic.exitDelay"),
		},
	}

	// cache.ttl.<kind>=10m
	for kind, val := range v.GetStringMapString("cache.ttl") {
		if d, err := time.ParseDuration(val); err == nil {
			conf.Cache.TTLs[kind] = d
		}
	}
	return conf
}
