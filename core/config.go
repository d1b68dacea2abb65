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
	ServerConfig struct {
		Address         string
		DebugAddress    string
		ShutdownTimeout time.Duration
		DisableReqLogs  bool
	}

	DatabaseConfig struct {
		Engine        string // memory | sqlite | postgres
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		DSN           string // sqlite only
	}

	GatewayConfig struct {
		BaseURL string
		Timeout time.Duration
	}

	PagingConfig struct {
		GradePageSize   int
		SubjectPageSize int
		VisiblePages    int
	}

	Config struct {
		Env            string
		Build          string
		AppName        string
		Debug          bool
		TestMode       bool
		RollbarToken   string
		SendgridAPIKey string
		FromEmail      string
		AdminEmails    []string

		Server   ServerConfig
		Database DatabaseConfig
		Gateway  GatewayConfig
		Paging   PagingConfig
	}
)

// Address returns the host:port of the database server.
func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
}

// NewConfig reads the configuration for the current ENV (DEV by default).
// Values come from, in order of precedence: environment variables prefixed with the ENV name
// (e.g. DEV_DATABASE_ENGINE), config/.env.<env> and the defaults below.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
		v.SetDefault("database.engine", "memory")
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:            env,
		Build:          v.GetString("build"),
		AppName:        v.GetString("appName"),
		Debug:          v.GetBool("debug"),
		TestMode:       v.GetBool("testMode"),
		RollbarToken:   v.GetString("rollbarToken"),
		SendgridAPIKey: v.GetString("sendgridApiKey"),
		FromEmail:      v.GetString("fromEmail"),
		AdminEmails:    v.GetStringSlice("adminEmails"),
		Server: ServerConfig{
			Address:         v.GetString("server.address"),
			DebugAddress:    v.GetString("server.debugAddress"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:  v.GetBool("server.disableReqLogs"),
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
			DSN:           v.GetString("database.dsn"),
		},
		Gateway: GatewayConfig{
			BaseURL: v.GetString("gateway.baseURL"),
			Timeout: v.GetDuration("gateway.timeout"),
		},
		Paging: PagingConfig{
			GradePageSize:   v.GetInt("paging.gradePageSize"),
			SubjectPageSize: v.GetInt("paging.subjectPageSize"),
			VisiblePages:    v.GetInt("paging.visiblePages"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "ExamAdmin")
	v.SetDefault("fromEmail", "noreply@localhost")
	v.SetDefault("adminEmails", []string{})

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)

	v.SetDefault("database.engine", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "examadmin")
	v.SetDefault("database.dsn", "examadmin.db")

	v.SetDefault("gateway.baseURL", "http://localhost:8000")
	v.SetDefault("gateway.timeout", 15*time.Second)

	v.SetDefault("paging.gradePageSize", 5)
	v.SetDefault("paging.subjectPageSize", 10)
	v.SetDefault("paging.visiblePages", 5)
}
