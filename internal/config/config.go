package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL           = "https://overcast.fm"
	defaultListenAddr        = ":8140"
	defaultReloadDebounceMS  = 500
	defaultCacheSize         = 5
	defaultHTTPTimeoutSecond = 30
)

// ErrMissingCredentials is returned when the Overcast account is not configured.
var ErrMissingCredentials = errors.New("OVERCAST_USERNAME and OVERCAST_PASSWORD must be set")

// Credentials returns the Overcast account used for the web session.
func Credentials() (string, string, error) {
	username := strings.TrimSpace(os.Getenv("OVERCAST_USERNAME"))
	password := os.Getenv("OVERCAST_PASSWORD")
	if username == "" || password == "" {
		return "", "", ErrMissingCredentials
	}
	return username, password, nil
}

// BaseURL returns the Overcast site root.
func BaseURL() (string, error) {
	value := strings.TrimRight(strings.TrimSpace(os.Getenv("OVERCAST_BASE_URL")), "/")
	if value == "" {
		return defaultBaseURL, nil
	}
	u, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("parse OVERCAST_BASE_URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("OVERCAST_BASE_URL must be an absolute http(s) URL, got %q", value)
	}
	return value, nil
}

// ListenAddr returns the TCP address the HTTP server should bind to.
func ListenAddr() string {
	addr := strings.TrimSpace(os.Getenv("OVERCAST_LISTEN_ADDR"))
	if addr == "" {
		return defaultListenAddr
	}
	return addr
}

// ValidateListenAddr ensures addr is a host:port pair with a usable port.
func ValidateListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

// PublicURL returns the SOAP endpoint URL to register with the speakers.
// Without OVERCAST_PUBLIC_URL it is derived from the listen address.
func PublicURL(listenAddr string) string {
	if value := strings.TrimSpace(os.Getenv("OVERCAST_PUBLIC_URL")); value != "" {
		return value
	}

	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://localhost" + defaultListenAddr + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

// ResolveQuirksFile returns the absolute path to the quirk tables file when
// configured. The second return value is false when no file is configured.
func ResolveQuirksFile() (string, bool, error) {
	path := strings.TrimSpace(os.Getenv("OVERCAST_QUIRKS_FILE"))
	if path == "" {
		return "", false, nil
	}

	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false, err
	}
	return abs, true, nil
}

// ReloadDebounce returns the duration to wait before reloading the quirk
// tables after file-system change events.
func ReloadDebounce() time.Duration {
	ms := intFromEnv("OVERCAST_RELOAD_DEBOUNCE_MS", defaultReloadDebounceMS, 0)
	return time.Duration(ms) * time.Millisecond
}

// CacheSize returns the number of episode detail records kept in memory.
func CacheSize() int {
	return intFromEnv("OVERCAST_CACHE_SIZE", defaultCacheSize, 1)
}

// HTTPTimeout bounds each request made to Overcast and to audio hosts.
func HTTPTimeout() time.Duration {
	seconds := intFromEnv("OVERCAST_HTTP_TIMEOUT_SECONDS", defaultHTTPTimeoutSecond, 1)
	return time.Duration(seconds) * time.Second
}

// ProbeDuration reports whether audio headers may be downloaded to learn an
// episode length Overcast does not show.
func ProbeDuration() bool {
	return boolFromEnv("OVERCAST_PROBE_DURATION", true)
}

// Debug reports whether per-request debug logging is enabled.
func Debug() bool {
	return boolFromEnv("OVERCAST_DEBUG", false)
}

// intFromEnv falls back to def when the variable is unset, not a number, or
// below minimum.
func intFromEnv(name string, def, minimum int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < minimum {
		return def
	}
	return n
}

func boolFromEnv(name string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return def
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return b
}
