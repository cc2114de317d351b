package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/adrg/xdg"
)

// Config holds daemon configuration resolved from the environment.
// Flags override these in main; persisted Settings override APIURL/APIToken
// once loaded.
type Config struct {
	APIURL     string
	APIToken   string
	Port       int
	DataDir    string
	Model      string
	OllamaHost string
	StaleSync  int // hours before the sync cache is considered stale
}

// Load resolves configuration from EVENTATLAS_* environment variables with
// sensible defaults.
func Load() *Config {
	return &Config{
		APIURL:     getEnv("EVENTATLAS_API_URL", ""),
		APIToken:   getEnv("EVENTATLAS_API_TOKEN", ""),
		Port:       getEnvInt("EVENTATLAS_PORT", 19292),
		DataDir:    getEnv("EVENTATLAS_DATA_DIR", defaultDataDir()),
		Model:      getEnv("EVENTATLAS_MODEL", "llama3.2"),
		OllamaHost: getEnv("OLLAMA_HOST", "http://localhost:11434"),
		StaleSync:  getEnvInt("EVENTATLAS_SYNC_STALE_HOURS", 24),
	}
}

func defaultDataDir() string {
	return filepath.Join(xdg.DataHome, "eventatlas-capture")
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
