/**
 * @description
 * This package handles the configuration management for the ido-service. It uses the
 * Viper library to read configuration from environment variables and an optional
 * .env file, then normalises the values the settlement engine depends on.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultRateLimitPrefix = "ido:rate_limit"
	defaultEventsExchange  = "ido_events"
	defaultSweepSchedule   = "@every 1m"
)

// Config holds all the configuration variables for the ido-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix    string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	EventsExchange          string `mapstructure:"EVENTS_EXCHANGE"`
	LedgerAPIBaseURL        string `mapstructure:"LEDGER_API_BASE_URL"`
	LedgerAPIKey            string `mapstructure:"LEDGER_API_KEY"`
	LedgerCurrencyAsset     string `mapstructure:"LEDGER_CURRENCY_ASSET"`
	JWKSURL                 string `mapstructure:"JWKS_URL"`
	JWTIssuer               string `mapstructure:"JWT_ISSUER"`
	JWTAudience             string `mapstructure:"JWT_AUDIENCE"`
	PlatformFeeAccount      string `mapstructure:"PLATFORM_FEE_ACCOUNT"`
	EscrowNamespace         string `mapstructure:"ESCROW_NAMESPACE"`
	ReserveOverheadBytes    uint64 `mapstructure:"RESERVE_OVERHEAD_BYTES"`
	ReserveByteRate         uint64 `mapstructure:"RESERVE_BYTE_RATE"`
	ReserveExemptionYears   uint64 `mapstructure:"RESERVE_EXEMPTION_YEARS"`
	SoftCapSweepSchedule    string `mapstructure:"SOFT_CAP_SWEEP_SCHEDULE"`
	JoinRateLimitPerMinute  int    `mapstructure:"JOIN_RATE_LIMIT_PER_MINUTE"`
	ClaimRateLimitPerMinute int    `mapstructure:"CLAIM_RATE_LIMIT_PER_MINUTE"`
	CORSAllowedOrigins      string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	OTLPEndpoint            string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure            bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("EVENTS_EXCHANGE", defaultEventsExchange)
	viper.SetDefault("LEDGER_CURRENCY_ASSET", "USDC")
	viper.SetDefault("RESERVE_OVERHEAD_BYTES", 128)
	viper.SetDefault("RESERVE_BYTE_RATE", 3480)
	viper.SetDefault("RESERVE_EXEMPTION_YEARS", 2)
	viper.SetDefault("SOFT_CAP_SWEEP_SCHEDULE", defaultSweepSchedule)
	viper.SetDefault("JOIN_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("CLAIM_RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "IDO_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("LEDGER_API_BASE_URL")
	_ = viper.BindEnv("LEDGER_API_KEY")
	_ = viper.BindEnv("LEDGER_CURRENCY_ASSET")
	_ = viper.BindEnv("JWKS_URL", "JWKS_URL", "CLERK_JWKS_URL")
	_ = viper.BindEnv("JWT_ISSUER")
	_ = viper.BindEnv("JWT_AUDIENCE")
	_ = viper.BindEnv("PLATFORM_FEE_ACCOUNT")
	_ = viper.BindEnv("ESCROW_NAMESPACE")
	_ = viper.BindEnv("RESERVE_OVERHEAD_BYTES")
	_ = viper.BindEnv("RESERVE_BYTE_RATE")
	_ = viper.BindEnv("RESERVE_EXEMPTION_YEARS")
	_ = viper.BindEnv("SOFT_CAP_SWEEP_SCHEDULE")
	_ = viper.BindEnv("JOIN_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("CLAIM_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = viper.BindEnv("OTEL_EXPORTER_OTLP_INSECURE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRateLimitPrefix
	}
	config.EventsExchange = strings.TrimSpace(config.EventsExchange)
	if config.EventsExchange == "" {
		config.EventsExchange = defaultEventsExchange
	}
	config.PlatformFeeAccount = strings.TrimSpace(config.PlatformFeeAccount)
	config.EscrowNamespace = strings.TrimSpace(config.EscrowNamespace)
	config.LedgerAPIBaseURL = strings.TrimSpace(config.LedgerAPIBaseURL)
	config.JWKSURL = strings.TrimSpace(config.JWKSURL)
	config.SoftCapSweepSchedule = strings.TrimSpace(config.SoftCapSweepSchedule)
	if config.SoftCapSweepSchedule == "" {
		config.SoftCapSweepSchedule = defaultSweepSchedule
	}

	if config.ReserveExemptionYears == 0 {
		log.Printf("level=warn component=config msg=\"reserve exemption years is zero; participation records will need no reserve\"")
	}
	if config.JoinRateLimitPerMinute <= 0 {
		config.JoinRateLimitPerMinute = 30
	}
	if config.ClaimRateLimitPerMinute <= 0 {
		config.ClaimRateLimitPerMinute = 60
	}

	return
}

// Validate reports the first required setting that is missing. The escrow
// namespace is secret: treasury authorities are derived from it.
func (c Config) Validate() error {
	required := []struct {
		env   string
		value string
	}{
		{env: "LEDGER_API_BASE_URL", value: c.LedgerAPIBaseURL},
		{env: "JWKS_URL", value: c.JWKSURL},
		{env: "PLATFORM_FEE_ACCOUNT", value: c.PlatformFeeAccount},
		{env: "ESCROW_NAMESPACE", value: c.EscrowNamespace},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s must be configured", r.env)
		}
	}
	return nil
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS into a list.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
