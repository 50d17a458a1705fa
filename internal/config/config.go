package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultAPIBaseURL = "https://finalyearproject-backend-hpon.onrender.com/api"

type GeoSource string

const (
	GeoNone   GeoSource = "none"
	GeoStatic GeoSource = "static"
	GeoNATS   GeoSource = "nats"
)

type Config struct {
	APIBaseURL string
	APITimeout time.Duration
	StopID     string

	GeoSource         GeoSource
	PassengerLat      float64
	PassengerLng      float64
	PassengerAccuracy float64
	PassengerDeviceID string
	GeoTimeout        time.Duration
	GeoMaxAge         time.Duration
	AutoLocate        bool

	NATSURL         string
	LogNATSSubjects bool
	MetricsAddr     string
	HTTPAddr        string

	DatabaseURL   string
	City          string
	RedisAddr     string
	RedisPassword string
	StopsCacheTTL time.Duration
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	cfg.APIBaseURL = strings.TrimRight(getenvDefault("API_BASE_URL", DefaultAPIBaseURL), "/")
	if cfg.APITimeout, err = millis("API_TIMEOUT_MS", 8*time.Second); err != nil {
		return nil, err
	}
	cfg.StopID = strings.TrimSpace(os.Getenv("STOP_ID"))

	// Passenger geolocation
	if cfg.GeoTimeout, err = millis("GEO_TIMEOUT_MS", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.GeoMaxAge, err = millis("GEO_MAX_AGE_MS", 5*time.Second); err != nil {
		return nil, err
	}
	cfg.AutoLocate = parseBool(os.Getenv("AUTO_LOCATE"))
	cfg.PassengerDeviceID = os.Getenv("PASSENGER_DEVICE_ID")

	lat, lng := os.Getenv("PASSENGER_LAT"), os.Getenv("PASSENGER_LNG")
	src := strings.ToLower(strings.TrimSpace(os.Getenv("GEO_SOURCE")))
	if src == "" {
		switch {
		case lat != "" || lng != "":
			src = string(GeoStatic)
		case cfg.PassengerDeviceID != "":
			src = string(GeoNATS)
		default:
			src = string(GeoNone)
		}
	}
	cfg.GeoSource = GeoSource(src)
	switch cfg.GeoSource {
	case GeoNone:
	case GeoStatic:
		if cfg.PassengerLat, err = parseCoord("PASSENGER_LAT", lat, 90); err != nil {
			return nil, err
		}
		if cfg.PassengerLng, err = parseCoord("PASSENGER_LNG", lng, 180); err != nil {
			return nil, err
		}
		if v := os.Getenv("PASSENGER_ACCURACY_M"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 {
				return nil, fmt.Errorf("invalid PASSENGER_ACCURACY_M: %q", v)
			}
			cfg.PassengerAccuracy = f
		}
	case GeoNATS:
		if cfg.PassengerDeviceID == "" {
			return nil, errors.New("PASSENGER_DEVICE_ID must be set when GEO_SOURCE=nats")
		}
	default:
		return nil, fmt.Errorf("invalid GEO_SOURCE: %q (want none, static or nats)", src)
	}

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")

	// Debug logging for NATS publish subjects
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// View API listen address. Empty disables it.
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":8080")

	// Optional GTFS stop directory: prefer DATABASE_URL / PG_DSN, else build
	// from PG* vars when PGDATABASE is set.
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"))
	if cfg.DatabaseURL == "" {
		if db := os.Getenv("PGDATABASE"); db != "" {
			host := getenvDefault("PGHOST", "127.0.0.1")
			port := getenvDefault("PGPORT", "5432")
			user := getenvDefault("PGUSER", "postgres")
			pass := os.Getenv("PGPASSWORD")
			sslmode := getenvDefault("PGSSLMODE", "disable")
			if pass != "" {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
			} else {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
			}
		}
	}

	// With CITY set, the directory reads the latest imported feed for that city
	cfg.City = strings.TrimSpace(os.Getenv("CITY"))
	if cfg.City != "" && cfg.DatabaseURL == "" {
		return nil, errors.New("CITY requires DATABASE_URL, PG_DSN or PGDATABASE")
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if v := os.Getenv("STOPS_CACHE_TTL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid STOPS_CACHE_TTL_SEC: %q", v)
		}
		cfg.StopsCacheTTL = time.Duration(sec) * time.Second
	} else {
		cfg.StopsCacheTTL = 5 * time.Minute
	}

	return cfg, nil
}

func millis(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseCoord(key, v string, limit float64) (float64, error) {
	if v == "" {
		return 0, fmt.Errorf("%s must be set when GEO_SOURCE=static", key)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < -limit || f > limit {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
