package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds the daemon's startup parameters (SPEC_FULL.md §10.2):
// environment variables set the defaults, flags override them.
type Config struct {
	KeyFile  string
	StateDB  string
	StateKey string
	AuditDB  string
	HTTPAddr string
}

func loadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("haspkeyd: no .env file found, using process environment")
	}

	cfg := &Config{
		KeyFile:  os.Getenv("HASPKEYD_KEYFILE"),
		StateDB:  envOr("HASPKEYD_STATE_DB", "./haspkeyd.db"),
		StateKey: os.Getenv("HASPKEYD_STATE_KEY"),
		AuditDB:  envOr("HASPKEYD_AUDIT_DB", "./haspkeyd-audit.db"),
		HTTPAddr: envOr("HASPKEYD_HTTP_ADDR", "127.0.0.1:8420"),
	}

	flag.StringVar(&cfg.KeyFile, "keyfile", cfg.KeyFile, "token-definition JSON file to load")
	flag.StringVar(&cfg.StateDB, "state-db", cfg.StateDB, "EEPROM state database path")
	flag.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "status API listen address")
	flag.Parse()

	return cfg
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
