package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	ServerPort  int
	LogLevel    string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string

	JWTSecret    []byte
	CSRFEnabled  bool
	CookieSecure bool

	BackendURL string

	PayFast PayFast

	PaymentWaitTimeout time.Duration
	SweepInterval      time.Duration
	ConfirmationRoute  string
}

type PayFast struct {
	ProcessURL  string
	MerchantID  string
	MerchantKey string
	Passphrase  string
	ReturnURL   string
	CancelURL   string
	NotifyURL   string
}

// Load reads .env when present and then the process environment.
func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	backend := strings.TrimRight(EnvDefault("BACKEND_URL", "http://localhost:8000"), "/")

	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "storefront"),
		ServerPort:  EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),

		JWTSecret:    []byte(os.Getenv("JWT_SECRET")),
		CSRFEnabled:  EnvBoolDefault("CSRF_ENABLED", true),
		CookieSecure: EnvBoolDefault("COOKIE_SECURE", false),

		BackendURL: backend,

		PayFast: PayFast{
			ProcessURL:  EnvDefault("PAYFAST_PROCESS_URL", "https://sandbox.payfast.co.za/onsite/process"),
			MerchantID:  os.Getenv("PAYFAST_MERCHANT_ID"),
			MerchantKey: os.Getenv("PAYFAST_MERCHANT_KEY"),
			Passphrase:  os.Getenv("PAYFAST_PASSPHRASE"),
			ReturnURL:   os.Getenv("PAYFAST_RETURN_URL"),
			CancelURL:   EnvDefault("PAYFAST_CANCEL_URL", os.Getenv("PAYFAST_RETURN_URL")),
			NotifyURL:   EnvDefault("PAYFAST_NOTIFY_URL", backend+"/order/notify/"),
		},

		PaymentWaitTimeout: EnvDurationDefault("PAYMENT_WAIT_TIMEOUT", 15*time.Minute),
		SweepInterval:      EnvDurationDefault("PAYMENT_SWEEP_INTERVAL", 30*time.Second),
		ConfirmationRoute:  EnvDefault("CONFIRMATION_ROUTE", "/thank-you"),
	}
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func MustNonEmpty(value, envName string) {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
}

func MustNonEmptyBytes(value []byte, envName string) {
	if len(value) == 0 {
		log.Fatalf("missing required env %s", envName)
	}
}
