package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port             string
	GRPCPort         string
	DatabaseURL      string
	RedisURL         string
	KafkaBrokers     []string
	NatsURL          string
	JaegerEndpoint   string
	PaystackSecret   string
	PaystackBaseURL  string
	FrontendURL      string
	JWTSecret        string
	QRCodeDir        string
	NotificationSubj string

	BreakerFailureThreshold int
	BreakerTimeout          time.Duration
	GatewayTimeout          time.Duration
	PublishTimeout          time.Duration
	LockTTL                 time.Duration
	RateLimitRequests       int
	RateLimitWindow         time.Duration
}

func Load() *Config {
	return &Config{
		Port:             getenv("PORT", "8080"),
		GRPCPort:         getenv("GRPC_PORT", "9090"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		KafkaBrokers:     splitList(getenv("KAFKA_BROKERS", "localhost:9092")),
		NatsURL:          getenv("NATS_URL", "nats://127.0.0.1:4222"),
		JaegerEndpoint:   os.Getenv("JAEGER_ENDPOINT"),
		PaystackSecret:   os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackBaseURL:  getenv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		FrontendURL:      strings.TrimRight(getenv("FRONTEND_URL", "http://localhost:3000"), "/"),
		JWTSecret:        os.Getenv("JWT_SECRET_KEY"),
		QRCodeDir:        getenv("QR_CODE_DIR", "qr_codes"),
		NotificationSubj: getenv("NOTIFICATION_SUBJECT", "notification.ticket"),

		BreakerFailureThreshold: getenvInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerTimeout:          getenvSeconds("BREAKER_TIMEOUT_SECONDS", 60),
		GatewayTimeout:          getenvSeconds("GATEWAY_TIMEOUT_SECONDS", 10),
		PublishTimeout:          getenvSeconds("PUBLISH_TIMEOUT_SECONDS", 2),
		LockTTL:                 getenvSeconds("LOCK_TTL_SECONDS", 30),
		RateLimitRequests:       getenvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:         getenvSeconds("RATE_LIMIT_WINDOW_SECONDS", 60),
	}
}

// PaymentCallbackURL is where the provider sends the buyer after checkout.
func (c *Config) PaymentCallbackURL() string {
	return c.FrontendURL + "/payment/verify"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getenvInt falls back on missing, malformed or non-positive values.
func getenvInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getenvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getenvInt(key, fallback)) * time.Second
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
