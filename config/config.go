package config

import (
	"flag"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/jayjaytrn/freshflow/logging"
)

type Config struct {
	RunAddress            string        `env:"RUN_ADDRESS"`
	DatabaseURI           string        `env:"DATABASE_URI"`
	StoreDir              string        `env:"STORE_DIR"`
	GatewayAddress        string        `env:"GATEWAY_ADDRESS"`
	GatewayAPIKey         string        `env:"PAGARME_API_KEY"`
	GatewayRequestTimeout time.Duration `env:"GATEWAY_REQUEST_TIMEOUT"`
	ChargeExpiration      time.Duration `env:"CHARGE_EXPIRATION"`
	WebhookSecret         string        `env:"WEBHOOK_SECRET"`
	JWTSecret             string        `env:"JWT_SECRET"`
	TokenTTL              time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	KafkaBrokers          string        `env:"KAFKA_BROKERS"`
	KafkaTopic            string        `env:"KAFKA_TOPIC" envDefault:"freshflow.orders"`
	LogFormat             string        `env:"LOG_FORMAT" envDefault:"console"`
	AdminUUIDs            string        `env:"ADMIN_UUIDS"`
}

func GetConfig() *Config {
	logger := logging.GetSugaredLogger()
	defer logger.Sync()

	config := &Config{}

	flag.StringVar(&config.RunAddress, "a", "localhost:8080", "RunAddress")
	flag.StringVar(&config.DatabaseURI, "d", "", "DatabaseURI")
	flag.StringVar(&config.StoreDir, "s", "", "StoreDir")
	flag.StringVar(&config.GatewayAddress, "g", "https://api.pagar.me", "GatewayAddress")
	flag.StringVar(&config.GatewayAPIKey, "k", "", "GatewayAPIKey")
	flag.DurationVar(&config.GatewayRequestTimeout, "t", 15*time.Second, "GatewayRequestTimeout")
	flag.DurationVar(&config.ChargeExpiration, "e", 30*time.Minute, "ChargeExpiration")
	flag.StringVar(&config.WebhookSecret, "w", "", "WebhookSecret")
	flag.StringVar(&config.JWTSecret, "j", "supersecretkey", "JWTSecret")
	flag.StringVar(&config.KafkaBrokers, "b", "", "KafkaBrokers")
	flag.StringVar(&config.AdminUUIDs, "admins", "", "AdminUUIDs")
	flag.Parse()

	err := env.Parse(config)
	if err != nil {
		logger.Debug("failed to parse environment variables:", err)
	}

	return config
}
