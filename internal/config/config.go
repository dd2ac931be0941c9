package config

import (
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode selects which liveness operation pair the server exposes.
type Mode int

const (
	// ModeLiveness runs a plain liveness check.
	ModeLiveness Mode = iota
	// ModeLivenessWithVerify runs a liveness check and matches the face against a reference image.
	ModeLivenessWithVerify
)

// String returns the Face API operation name for the mode.
func (m Mode) String() string {
	if m == ModeLivenessWithVerify {
		return "detectLivenessWithVerify"
	}
	return "detectLiveness"
}

// RequiresVerifyImage reports whether session creation needs a reference image.
func (m Mode) RequiresVerifyImage() bool {
	return m == ModeLivenessWithVerify
}

// StartToolName is the name of the operation that starts a session in this mode.
func (m Mode) StartToolName() string {
	if m == ModeLivenessWithVerify {
		return "startLivenessAuthenticationWithVerify"
	}
	return "startLivenessAuthentication"
}

// ResultToolName is the name of the operation that retrieves a session result in this mode.
func (m Mode) ResultToolName() string {
	if m == ModeLivenessWithVerify {
		return "getLivenessResultWithVerify"
	}
	return "getLivenessResult"
}

// Config holds process wide settings. It is built once by Load and never mutated.
type Config struct {
	Endpoint        string
	APIKey          string
	Website         string
	SessionImageDir string
	VerifyImagePath string
	Mode            Mode
	CorrelationID   string
	HTTPTimeout     time.Duration
	LogLevel        string

	HTTPAddr    string
	JWTSecret   string
	JWTAudience string
	RedisAddr   string
	DatabaseDSN string
}

// Load reads the environment and resolves the liveness mode.
func Load() Config {
	cfg := Config{
		Endpoint:        strings.TrimSpace(os.Getenv("FACEAPI_ENDPOINT")),
		APIKey:          strings.TrimSpace(os.Getenv("FACEAPI_KEY")),
		Website:         strings.TrimRight(strings.TrimSpace(os.Getenv("FACEAPI_WEBSITE")), "/"),
		SessionImageDir: getEnv("SESSION_IMAGE_DIR", "."),
		VerifyImagePath: strings.TrimSpace(os.Getenv("VERIFY_IMAGE_FILE_NAME")),
		CorrelationID:   uuid.NewString(),
		HTTPTimeout:     getDuration("FACEAPI_HTTP_TIMEOUT", 30*time.Second),
		LogLevel:        getEnv("LIVENESS_LOG_LEVEL", "info"),
		HTTPAddr:        os.Getenv("LIVENESS_HTTP_ADDR"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTAudience:     os.Getenv("JWT_AUDIENCE"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		DatabaseDSN:     os.Getenv("DATABASE_DSN"),
	}
	cfg.Mode = ResolveMode(cfg.VerifyImagePath)
	return cfg
}

// ResolveMode picks verify mode when a reference image is configured.
func ResolveMode(verifyImagePath string) Mode {
	if strings.TrimSpace(verifyImagePath) == "" {
		return ModeLiveness
	}
	return ModeLivenessWithVerify
}

// MissingAPISettings returns the names of the unset Face API variables.
func (c Config) MissingAPISettings() []string {
	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "FACEAPI_ENDPOINT")
	}
	if c.APIKey == "" {
		missing = append(missing, "FACEAPI_KEY")
	}
	if c.Website == "" {
		missing = append(missing, "FACEAPI_WEBSITE")
	}
	return missing
}

// FaceAPIBaseURL derives the Face API host from the endpoint. An endpoint that
// already carries a scheme is used as is.
func (c Config) FaceAPIBaseURL() string {
	if c.Endpoint == "" {
		return ""
	}
	if strings.HasPrefix(c.Endpoint, "https://") || strings.HasPrefix(c.Endpoint, "http://") {
		return strings.TrimRight(c.Endpoint, "/")
	}
	return "https://" + c.Endpoint + ".cognitiveservices.azure.com"
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
