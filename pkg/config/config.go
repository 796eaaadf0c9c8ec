package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	MetricsPort string `mapstructure:"METRICS_PORT"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	// PublicBaseURL is the externally reachable origin, used in confirmation
	// links and in media URLs handed to Instagram.
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`

	PostgresConnStr string `mapstructure:"POSTGRES_CONN_STR"`
	MongoURI        string `mapstructure:"MONGO_URI"`
	MongoDatabase   string `mapstructure:"MONGO_DATABASE"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	FirebaseCredentialsPath string `mapstructure:"FIREBASE_CREDENTIALS_PATH"`

	StorageBackend string `mapstructure:"STORAGE_BACKEND"` // local | s3
	MediaRoot      string `mapstructure:"MEDIA_ROOT"`
	MediaURLPrefix string `mapstructure:"MEDIA_URL_PREFIX"`
	S3Bucket       string `mapstructure:"S3_BUCKET"`
	S3Region       string `mapstructure:"S3_REGION"`
	S3PublicRead   bool   `mapstructure:"S3_PUBLIC_READ"`

	EventsBackend string   `mapstructure:"EVENTS_BACKEND"` // kafka | nats | empty
	KafkaBrokers  []string `mapstructure:"KAFKA_BROKERS"`
	NatsURL       string   `mapstructure:"NATS_URL"`

	BrevoAPIKey   string `mapstructure:"BREVO_API_KEY"`
	MailFromEmail string `mapstructure:"MAIL_FROM_EMAIL"`
	MailFromName  string `mapstructure:"MAIL_FROM_NAME"`

	GraphAPIBaseURL     string        `mapstructure:"GRAPH_API_BASE_URL"`
	LinkedInAPIBaseURL  string        `mapstructure:"LINKEDIN_API_BASE_URL"`
	LinkedInAuthBaseURL string        `mapstructure:"LINKEDIN_AUTH_BASE_URL"`
	LinkedInRedirectURL string        `mapstructure:"LINKEDIN_REDIRECT_URL"`
	SharingTimeout      time.Duration `mapstructure:"SHARING_TIMEOUT"`

	WSMessagesPerSecond int `mapstructure:"WS_MESSAGES_PER_SECOND"`
}

var defaults = map[string]any{
	"PORT":                      "8080",
	"ENV":                       "development",
	"METRICS_PORT":              "9090",
	"JWT_SECRET":                "supersecretjwtkey",
	"PUBLIC_BASE_URL":           "http://localhost:8080",
	"POSTGRES_CONN_STR":         "",
	"MONGO_URI":                 "",
	"MONGO_DATABASE":            "socialmedia",
	"REDIS_ADDR":                "",
	"REDIS_PASSWORD":            "",
	"REDIS_DB":                  0,
	"FIREBASE_CREDENTIALS_PATH": "",
	"STORAGE_BACKEND":           "local",
	"MEDIA_ROOT":                "./media",
	"MEDIA_URL_PREFIX":          "/media",
	"S3_BUCKET":                 "",
	"S3_REGION":                 "us-east-1",
	"S3_PUBLIC_READ":            false,
	"EVENTS_BACKEND":            "",
	"KAFKA_BROKERS":             "",
	"NATS_URL":                  "",
	"BREVO_API_KEY":             "",
	"MAIL_FROM_EMAIL":           "",
	"MAIL_FROM_NAME":            "Socio",
	"GRAPH_API_BASE_URL":        "https://graph.facebook.com",
	"LINKEDIN_API_BASE_URL":     "https://api.linkedin.com",
	"LINKEDIN_AUTH_BASE_URL":    "https://www.linkedin.com",
	"LINKEDIN_REDIRECT_URL":     "http://localhost:8080/api/v1/sharing/linkedin/callback",
	"SHARING_TIMEOUT":           "30s",
	"WS_MESSAGES_PER_SECOND":    5,
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, assuming environment variables are set.")
	}
	return FromViper(viper.New())
}

// FromViper binds every known key on v to the environment and decodes it.
func FromViper(v *viper.Viper) *Config {
	for key, value := range defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("Failed to decode configuration: %v", err)
	}
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)
	return &cfg
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "test"
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
