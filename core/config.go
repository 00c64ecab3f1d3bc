package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host            string
		Addr            string
		DebugHost       string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		DisableReqLogs  bool
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	BillingConfig struct {
		DueDay              int     // day of month installments fall due
		PenaltyRate         float64 // flat, one-time
		MonthlyInterestRate float64 // simple, prorated daily
		DaysPerMonth        int
		Currency            string
		SnowflakeNode       int64 // receipt id generator node
	}

	ReceiptsConfig struct {
		Schedule    string // cron spec
		BatchSize   int
		MaxAttempts int
		RetryDelay  time.Duration
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		RollbarToken     string
		SendgridApiKey   string
		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Billing  BillingConfig
		Receipts ReceiptsConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

// NewConfig loads the application configuration.
// values are read from (by priority): env vars prefixed with $ENV, `config/.env.<env>`, defaults.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Ecolage")
	v.SetDefault("build", "develop")
	v.SetDefault("defaultFromEmail", "Ecolage <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 5*time.Second)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "ecolage")
	v.SetDefault("database.user", "ecolage")
	v.SetDefault("database.password", "ecolage")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("billing.dueDay", 5)
	v.SetDefault("billing.penaltyRate", 0.02)
	v.SetDefault("billing.monthlyInterestRate", 0.01)
	v.SetDefault("billing.daysPerMonth", 30)
	v.SetDefault("billing.currency", "BRL")
	v.SetDefault("billing.snowflakeNode", int64(1))

	v.SetDefault("receipts.schedule", "@every 30s")
	v.SetDefault("receipts.batchSize", 50)
	v.SetDefault("receipts.maxAttempts", 8)
	v.SetDefault("receipts.retryDelay", time.Minute)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	confDir := os.Getenv("CONFIG_DIR")
	if confDir == "" {
		confDir = "config"
	}
	dotEnvPath := filepath.Join(confDir, ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Addr:            v.GetString("server.addr"),
			DebugHost:       v.GetString("server.debugHost"),
			ReadTimeout:     v.GetDuration("server.readTimeout"),
			WriteTimeout:    v.GetDuration("server.writeTimeout"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:  v.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Billing: BillingConfig{
			DueDay:              v.GetInt("billing.dueDay"),
			PenaltyRate:         v.GetFloat64("billing.penaltyRate"),
			MonthlyInterestRate: v.GetFloat64("billing.monthlyInterestRate"),
			DaysPerMonth:        v.GetInt("billing.daysPerMonth"),
			Currency:            v.GetString("billing.currency"),
			SnowflakeNode:       v.GetInt64("billing.snowflakeNode"),
		},
		Receipts: ReceiptsConfig{
			Schedule:    v.GetString("receipts.schedule"),
			BatchSize:   v.GetInt("receipts.batchSize"),
			MaxAttempts: v.GetInt("receipts.maxAttempts"),
			RetryDelay:  v.GetDuration("receipts.retryDelay"),
		},
	}
}
