package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Store backends accepted by ATTENDANCE_STORE_BACKEND.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Identity groups the identity service credentials.
type Identity struct {
	Endpoint      string
	ApplicationID int
	Password      string
	AppKey        string
	OperatorCUIL  string
	OperatorHash  string
	Timeout       time.Duration
}

// Config captures environment driven configuration values for the attendance service.
type Config struct {
	HTTPPort  int
	LogFormat string
	LogLevel  string

	StoreBackend string
	StorePath    string
	SQLiteDSN    string
	RedisURL     string
	StoreKey     string

	Location      *time.Location
	PublicBaseURL string
	RoomsFile     string
	ProposalTTL   time.Duration

	OperatorUser         string
	OperatorPasswordHash string

	Identity Identity
}

// Load parses configuration values from the current process environment.
//
// Optional values fall back to defaults. Missing required values and
// malformed values are reported together.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:      8080,
		LogFormat:     "json",
		LogLevel:      "info",
		StoreBackend:  BackendFile,
		StorePath:     "data",
		SQLiteDSN:     "data/attendance.db",
		StoreKey:      "inscribCordobaState",
		PublicBaseURL: "https://inscribcordoba.com",
		ProposalTTL:   5 * time.Minute,
		OperatorUser:  "operador",
		Identity: Identity{
			Endpoint:      "https://cuentacidi.test.cba.gov.ar/api/Usuario/Obtener_Usuario",
			ApplicationID: 704,
			Timeout:       20 * time.Second,
		},
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 2)

	if portValue := env("HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, key("HTTP_PORT"))
		} else {
			cfg.HTTPPort = port
		}
	}

	if format := env("LOG_FORMAT"); format != "" {
		switch strings.ToLower(format) {
		case "json", "text":
			cfg.LogFormat = strings.ToLower(format)
		default:
			invalid = append(invalid, key("LOG_FORMAT"))
		}
	}
	if level := env("LOG_LEVEL"); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}

	if backend := env("STORE_BACKEND"); backend != "" {
		switch strings.ToLower(backend) {
		case BackendFile, BackendSQLite, BackendRedis:
			cfg.StoreBackend = strings.ToLower(backend)
		default:
			invalid = append(invalid, key("STORE_BACKEND"))
		}
	}
	if path := env("STORE_PATH"); path != "" {
		cfg.StorePath = path
	}
	if dsn := env("SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	cfg.RedisURL = env("REDIS_URL")
	if cfg.StoreBackend == BackendRedis && cfg.RedisURL == "" {
		missing = append(missing, key("REDIS_URL"))
	}
	if storeKey := env("STORE_KEY"); storeKey != "" {
		cfg.StoreKey = storeKey
	}

	zone := env("TIMEZONE")
	if zone == "" {
		zone = "America/Argentina/Cordoba"
	}
	location, err := time.LoadLocation(zone)
	if err != nil {
		invalid = append(invalid, key("TIMEZONE"))
	} else {
		cfg.Location = location
	}

	if base := env("PUBLIC_BASE_URL"); base != "" {
		cfg.PublicBaseURL = strings.TrimRight(base, "/")
	}
	cfg.RoomsFile = env("ROOMS_FILE")

	if ttlValue := env("PROPOSAL_TTL"); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, key("PROPOSAL_TTL"))
		} else {
			cfg.ProposalTTL = ttl
		}
	}

	if user := env("OPERATOR_USER"); user != "" {
		cfg.OperatorUser = user
	}
	cfg.OperatorPasswordHash = env("OPERATOR_PASSWORD_HASH")

	if endpoint := env("IDENTITY_URL"); endpoint != "" {
		cfg.Identity.Endpoint = endpoint
	}
	if appID := env("IDENTITY_APP_ID"); appID != "" {
		id, err := strconv.Atoi(appID)
		if err != nil || id <= 0 {
			invalid = append(invalid, key("IDENTITY_APP_ID"))
		} else {
			cfg.Identity.ApplicationID = id
		}
	}
	if cfg.Identity.Password = env("IDENTITY_PASSWORD"); cfg.Identity.Password == "" {
		missing = append(missing, key("IDENTITY_PASSWORD"))
	}
	if cfg.Identity.AppKey = env("IDENTITY_APP_KEY"); cfg.Identity.AppKey == "" {
		missing = append(missing, key("IDENTITY_APP_KEY"))
	}
	cfg.Identity.OperatorCUIL = env("IDENTITY_OPERATOR_CUIL")
	cfg.Identity.OperatorHash = env("IDENTITY_OPERATOR_HASH")
	if timeoutValue := env("IDENTITY_TIMEOUT"); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, key("IDENTITY_TIMEOUT"))
		} else {
			cfg.Identity.Timeout = timeout
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("faltan variables de entorno obligatorias: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("valores inválidos en variables de entorno: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

const prefix = "ATTENDANCE_"

func key(name string) string { return prefix + name }

func env(name string) string {
	return strings.TrimSpace(os.Getenv(key(name)))
}
