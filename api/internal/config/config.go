package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"repair-assistant/api/internal/apperr"
)

type Config struct {
	Port     string
	LogLevel string

	GeminiAPIKey string
	GeminiModel  string
	ImageModel   string
	MapsAPIKey   string
	SerperAPIKey string

	DatabaseURL string

	// LocationOverride is a literal "lat,lng" that wins over IP geolocation.
	LocationOverride string

	RadiusMeters int
	TopK         int
	RetryDelay   time.Duration
	OutputDir    string

	DiagnoseTimeout time.Duration
	ImageTimeout    time.Duration
	PlacesTimeout   time.Duration
	ShoppingTimeout time.Duration
	IPLookupTimeout time.Duration

	PlacesRPS     float64
	GeocodeCache  int
	VisualsEnable bool

	TelegramBotToken string
	WebhookURL       string

	Artifact ArtifactConfig
}

type ArtifactConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (a ArtifactConfig) Enabled() bool { return a.Endpoint != "" }

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	if v, err := strconv.Atoi(getEnv(k, "")); err == nil {
		return v
	}
	return def
}

func getFloat(k string, def float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(k, ""), 64); err == nil {
		return v
	}
	return def
}

func getBool(k string, def bool) bool {
	if v, err := strconv.ParseBool(getEnv(k, "")); err == nil {
		return v
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(k, "")); err == nil && v > 0 {
		return v
	}
	return def
}

// Load reads .env (if present) and the process environment. Missing API keys
// are reported as a validation error instead of silently disabling a stage.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		GeminiAPIKey: firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY")),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		ImageModel:   getEnv("GEMINI_IMAGE_MODEL", "gemini-2.0-flash-preview-image-generation"),
		MapsAPIKey:   strings.TrimSpace(os.Getenv("GOOGLE_MAPS_API_KEY")),
		SerperAPIKey: strings.TrimSpace(os.Getenv("SERPER_API_KEY")),

		DatabaseURL: resolveDSN(),

		LocationOverride: getEnv("LOCATION_OVERRIDE", ""),

		RadiusMeters: getInt("SEARCH_RADIUS_M", 8000),
		TopK:         getInt("PROS_TOP_K", 5),
		RetryDelay:   getDuration("DIAGNOSE_RETRY_DELAY", 2*time.Second),
		OutputDir:    getEnv("VISUALS_DIR", "step_visuals"),

		DiagnoseTimeout: getDuration("DIAGNOSE_TIMEOUT", 20*time.Second),
		ImageTimeout:    getDuration("IMAGE_TIMEOUT", 20*time.Second),
		PlacesTimeout:   getDuration("PLACES_TIMEOUT", 5*time.Second),
		ShoppingTimeout: getDuration("SHOPPING_TIMEOUT", 8*time.Second),
		IPLookupTimeout: getDuration("IP_LOOKUP_TIMEOUT", 3*time.Second),

		PlacesRPS:     getFloat("PLACES_RPS", 5),
		GeocodeCache:  getInt("GEOCODE_CACHE_SIZE", 256),
		VisualsEnable: getBool("VISUALS_ENABLED", true),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		Artifact: ArtifactConfig{
			Endpoint:  getEnv("ARTIFACT_S3_ENDPOINT", ""),
			Region:    getEnv("ARTIFACT_S3_REGION", "us-east-1"),
			AccessKey: getEnv("ARTIFACT_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("ARTIFACT_S3_SECRET_KEY", ""),
			Bucket:    getEnv("ARTIFACT_S3_BUCKET", "repair-visuals"),
			UseSSL:    getBool("ARTIFACT_S3_USE_SSL", true),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required secrets and sane tunables.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if strings.TrimSpace(c.MapsAPIKey) == "" {
		missing = append(missing, "GOOGLE_MAPS_API_KEY")
	}
	if strings.TrimSpace(c.SerperAPIKey) == "" {
		missing = append(missing, "SERPER_API_KEY")
	}
	if len(missing) > 0 {
		return apperr.Validationf("config", "missing required env %s", strings.Join(missing, ", "))
	}
	if c.RadiusMeters <= 0 || c.RadiusMeters > 50000 {
		return apperr.Validationf("config", "SEARCH_RADIUS_M must be in (0, 50000], got %d", c.RadiusMeters)
	}
	if c.TopK <= 0 {
		return apperr.Validationf("config", "PROS_TOP_K must be > 0, got %d", c.TopK)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// resolveDSN prefers DATABASE_URL, then builds one from POSTGRES_*/PG* vars.
func resolveDSN() string {
	if v := getEnv("DATABASE_URL", ""); v != "" {
		return v
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	if pass == "" && os.Getenv("PGHOST") == "" {
		return ""
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "repair"), pass),
		Host:     net.JoinHostPort(getEnv("PGHOST", "db"), getEnv("PGPORT", "5432")),
		Path:     "/" + getEnv("POSTGRES_DB", "repair"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// SafeDSNSummary renders a DSN without its password for logs.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	host, port := u.Host, ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return "host=" + host + " db=" + db + " user=" + u.User.Username()
	}
	return "host=" + host + " port=" + port + " db=" + db + " user=" + u.User.Username()
}
