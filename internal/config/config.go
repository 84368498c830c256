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

const prefix = "ADVISORY_"

// Backends a region can live on.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string
	Region   RegionConfig
	Service  ServiceConfig
	Auth     AuthConfig
	Rate     RateConfig
}

type RegionConfig struct {
	Backend      string
	Path         string
	DSN          string
	Name         string
	BucketPages  uint16
	// CommitEachWrite flushes the region at the end of every mutation.
	// When off, writes are flushed every SyncInterval.
	CommitEachWrite bool
	SyncInterval    time.Duration
}

type ServiceConfig struct {
	EnforceAuthorization bool
	ClosePolicy          string
}

type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

type RateConfig struct {
	Burst     int
	PerSecond int
}

// Load reads ADVISORY_* variables after loading an optional .env file.
// Variables already present in the environment win over the file.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var errs []error
	cfg := Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr: getEnv("GRPC_ADDR", ":9090"),
		Region: RegionConfig{
			Backend:         strings.ToLower(getEnv("REGION_BACKEND", BackendMemory)),
			Path:            getEnv("REGION_PATH", "advisory.region"),
			DSN:             getEnv("PG_DSN", ""),
			Name:            getEnv("REGION_NAME", "advisory"),
			BucketPages:     uint16(getEnvInt("BUCKET_PAGES", 128, &errs)),
			CommitEachWrite: getEnvBool("COMMIT_EACH_WRITE", true, &errs),
			SyncInterval:    getEnvDuration("SYNC_INTERVAL", time.Second, &errs),
		},
		Service: ServiceConfig{
			EnforceAuthorization: getEnvBool("ENFORCE_AUTHORIZATION", true, &errs),
			ClosePolicy:          getEnv("CLOSE_POLICY", "unchecked"),
		},
		Auth: AuthConfig{
			Secret:   getEnv("AUTH_SECRET", ""),
			TokenTTL: getEnvDuration("TOKEN_TTL", 15*time.Minute, &errs),
		},
		Rate: RateConfig{
			Burst:     getEnvInt("RATE_BURST", 20, &errs),
			PerSecond: getEnvInt("RATE_PER_SEC", 10, &errs),
		},
	}
	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Region.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Region.Path == "" {
			return errors.New("ADVISORY_REGION_PATH is required for the file backend")
		}
	case BackendPostgres:
		if c.Region.DSN == "" {
			return errors.New("ADVISORY_PG_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown region backend %q", c.Region.Backend)
	}
	if c.Region.BucketPages == 0 {
		return errors.New("ADVISORY_BUCKET_PAGES must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(prefix + key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int, errs *[]error) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 || v > 1<<16-1 {
		*errs = append(*errs, fmt.Errorf("%s%s: invalid number %q", prefix, key, raw))
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool, errs *[]error) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: invalid bool %q", prefix, key, raw))
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		*errs = append(*errs, fmt.Errorf("%s%s: invalid duration %q", prefix, key, raw))
		return fallback
	}
	return v
}
