package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Verification modes. ModeRolling compares against the last successfully
// verified capture when one exists, falling back to the bank reference.
// ModeDual compares against both fixed references and requires each to clear
// the threshold on its own.
const (
	ModeRolling = "rolling"
	ModeDual    = "dual"
)

// Default thresholds, expressed as fractions of a perfect score.
const (
	DefaultRollingThreshold = 0.65
	DefaultDualThreshold    = 0.8
)

// AppConfig is the centralized configuration for the service. It is populated
// from environment variables once in main and injected into the components
// that need it.
type AppConfig struct {
	Port          string
	Mode          string
	Threshold     float64
	ImageDir      string
	BankImage     string
	AadhaarImage  string
	SnapshotImage string
	ModelsDir     string
	DatabaseDSN   string
	RedisAddr     string
}

// Load reads configuration from environment variables. A .env file can be
// loaded beforehand with godotenv; real environment variables take precedence.
func Load() *AppConfig {
	mode := getEnv("VERIFY_MODE", ModeRolling)
	if mode != ModeDual {
		mode = ModeRolling
	}

	defaultThreshold := DefaultRollingThreshold
	if mode == ModeDual {
		defaultThreshold = DefaultDualThreshold
	}

	return &AppConfig{
		Port:          getEnv("PORT", "8080"),
		Mode:          mode,
		Threshold:     getEnvFloat("VERIFY_THRESHOLD", defaultThreshold),
		ImageDir:      getEnv("IMAGE_DIR", "stored_images"),
		BankImage:     getEnv("BANK_IMAGE", "user_bank.jpeg"),
		AadhaarImage:  getEnv("AADHAAR_IMAGE", "user_aadhaar.png"),
		SnapshotImage: getEnv("SNAPSHOT_IMAGE", "last_verified.jpg"),
		ModelsDir:     getEnv("MODELS_DIR", "models"),
		DatabaseDSN:   os.Getenv("DATABASE_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
	}
}

// BankPath returns the absolute-ish path of the bank reference image.
func (c *AppConfig) BankPath() string {
	return filepath.Join(c.ImageDir, c.BankImage)
}

// AadhaarPath returns the path of the Aadhaar reference image.
func (c *AppConfig) AadhaarPath() string {
	return filepath.Join(c.ImageDir, c.AadhaarImage)
}

// SnapshotPath returns the path of the rolling last-verified snapshot.
func (c *AppConfig) SnapshotPath() string {
	return filepath.Join(c.ImageDir, c.SnapshotImage)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil && f > 0 && f <= 1 {
			return f
		}
	}
	return def
}
