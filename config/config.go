package config

import (
	"os"
	"strconv"
	"strings"
)

var (
	TLS_DOMAINS  = ""             // e.g. "example.com,example2.com"
	MYSQL_DSN    = ""             // MySQL will be used if this is set
	SQLITE_FILE  = "artcache.db"  // SQLite will be used if MYSQL_DSN is not configured
	BIND_ADDRESS = "0.0.0.0:8080"
	TMP_DIR      = "/tmp" // Used for temporary local copies (in case of S3 bucket)
	CONTENT_DIR  = ""     // Used for creating the initial disk bucket
	SESSION_KEY  = ""     // Cookie signing key; a random one is generated when unset
	DEBUG_MODE   = true

	// External generator
	GENERATOR_URL            = "http://127.0.0.1:7860/generate"
	GENERATOR_API_KEY        = ""
	GENERATE_TIMEOUT_SECONDS = 120 // Upstream call timeout
	WAIT_TIMEOUT_SECONDS     = 30  // How long a caller waits on an in-flight generation

	// Artifact encoding
	JPEG_QUALITY    = 85
	THUMB_SIZE      = 320 // Bounding box for thumbnails, in pixels
	MAX_IMAGE_BYTES = 20 * 1024 * 1024

	// Cache policies
	SCENE_TTL_DAYS         = 7  // Scene cache entries expire after this
	RETENTION_DAYS         = 30 // Soft-deleted assets are purged after this
	SWEEP_INTERVAL_MINUTES = 60

	// Caller-side throttling, per client
	ASSET_RATE_PER_MINUTE = 6
	SCENE_RATE_PER_MINUTE = 20
	RATE_BURST            = 3
)

func init() {
	readEnvString("TLS_DOMAINS", &TLS_DOMAINS)
	readEnvString("MYSQL_DSN", &MYSQL_DSN)
	readEnvString("SQLITE_FILE", &SQLITE_FILE)
	readEnvString("BIND_ADDRESS", &BIND_ADDRESS)
	readEnvString("TMP_DIR", &TMP_DIR)
	readEnvString("CONTENT_DIR", &CONTENT_DIR)
	readEnvString("SESSION_KEY", &SESSION_KEY)
	readEnvBool("DEBUG_MODE", &DEBUG_MODE)
	readEnvString("GENERATOR_URL", &GENERATOR_URL)
	readEnvString("GENERATOR_API_KEY", &GENERATOR_API_KEY)
	readEnvInt("GENERATE_TIMEOUT_SECONDS", &GENERATE_TIMEOUT_SECONDS)
	readEnvInt("WAIT_TIMEOUT_SECONDS", &WAIT_TIMEOUT_SECONDS)
	readEnvInt("JPEG_QUALITY", &JPEG_QUALITY)
	readEnvInt("THUMB_SIZE", &THUMB_SIZE)
	readEnvInt("MAX_IMAGE_BYTES", &MAX_IMAGE_BYTES)
	readEnvInt("SCENE_TTL_DAYS", &SCENE_TTL_DAYS)
	readEnvInt("RETENTION_DAYS", &RETENTION_DAYS)
	readEnvInt("SWEEP_INTERVAL_MINUTES", &SWEEP_INTERVAL_MINUTES)
	readEnvInt("ASSET_RATE_PER_MINUTE", &ASSET_RATE_PER_MINUTE)
	readEnvInt("SCENE_RATE_PER_MINUTE", &SCENE_RATE_PER_MINUTE)
	readEnvInt("RATE_BURST", &RATE_BURST)
}

func readEnvString(name string, value *string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	*value = v
}

func readEnvBool(name string, value *bool) {
	v := strings.ToLower(os.Getenv(name))
	if v == "true" || v == "1" || v == "yes" || v == "on" {
		*value = true
	} else if v == "false" || v == "0" || v == "no" || v == "off" {
		*value = false
	}
}

func readEnvInt(name string, value *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	f, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*value = f
}
