package config

import (
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Port          int
	BindAddress   string
	DataDir       string
	JWTSecret     string
	EncryptionKey string
	APIKey        string
	DevMode       bool
}

func Load() *Config {
	cfg := &Config{
		Port:        8749,
		BindAddress: "127.0.0.1",
		DataDir:     resolveDataDir(),
		JWTSecret:   getEnv("MOSAIC_JWT_SECRET", ""),
		APIKey:      getEnv("GOOGLE_AI_API_KEY", ""),
		DevMode:     getEnv("MOSAIC_DEV", "false") == "true",
	}

	if p := getEnv("MOSAIC_PORT", ""); p != "" {
		if port, err := strconv.Atoi(p); err == nil {
			cfg.Port = port
		}
	}
	if b := getEnv("MOSAIC_BIND", ""); b != "" {
		cfg.BindAddress = b
	}
	if d := getEnv("MOSAIC_DATA_DIR", ""); d != "" {
		cfg.DataDir = d
	}
	if ek := getEnv("MOSAIC_ENCRYPTION_KEY", ""); ek != "" {
		cfg.EncryptionKey = ek
	}

	return cfg
}

func resolveDataDir() string {
	// Resolve data dir relative to the executable, not the CWD
	exe, err := os.Executable()
	if err != nil {
		return "./data"
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "./data"
	}
	return filepath.Join(filepath.Dir(exe), "data")
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
