package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// EnvHome overrides the default setup-tool home directory (~/.setup-tool)
	EnvHome = "SETUP_TOOL_HOME"

	// EnvAPITimeout configures the release metadata request timeout
	EnvAPITimeout = "SETUP_TOOL_API_TIMEOUT"

	// EnvDownloadTimeout configures the release asset and source archive
	// download timeout
	EnvDownloadTimeout = "SETUP_TOOL_DOWNLOAD_TIMEOUT"

	// EnvMaxAttempts configures how many metadata requests a run may issue
	// while the API reports a rate limit
	EnvMaxAttempts = "SETUP_TOOL_MAX_ATTEMPTS"

	// EnvRunnerToolCache is set by the Actions runner to its shared tool cache
	EnvRunnerToolCache = "RUNNER_TOOL_CACHE"

	// DefaultAPITimeout is the default timeout for API requests (30 seconds)
	DefaultAPITimeout = 30 * time.Second

	// DefaultDownloadTimeout is the default timeout for a whole download (10 minutes)
	DefaultDownloadTimeout = 10 * time.Minute

	// DefaultMaxAttempts bounds metadata requests under rate limiting
	DefaultMaxAttempts = 3

	maxAttemptsCeiling = 10
)

// GetAPITimeout returns the configured API timeout from SETUP_TOOL_API_TIMEOUT.
// If not set or invalid, returns DefaultAPITimeout (30 seconds).
// Accepts duration strings like "30s", "1m", "2m30s".
func GetAPITimeout() time.Duration {
	envValue := os.Getenv(EnvAPITimeout)
	if envValue == "" {
		return DefaultAPITimeout
	}

	duration, err := time.ParseDuration(envValue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %v\n",
			EnvAPITimeout, envValue, DefaultAPITimeout)
		return DefaultAPITimeout
	}

	// 1 second to 10 minutes
	if duration < 1*time.Second {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%v), using minimum 1s\n",
			EnvAPITimeout, duration)
		return 1 * time.Second
	}
	if duration > 10*time.Minute {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%v), using maximum 10m\n",
			EnvAPITimeout, duration)
		return 10 * time.Minute
	}

	return duration
}

// GetDownloadTimeout returns the configured download timeout from
// SETUP_TOOL_DOWNLOAD_TIMEOUT, clamped to 10s..1h. Defaults to
// DefaultDownloadTimeout.
func GetDownloadTimeout() time.Duration {
	envValue := os.Getenv(EnvDownloadTimeout)
	if envValue == "" {
		return DefaultDownloadTimeout
	}

	duration, err := time.ParseDuration(envValue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %v\n",
			EnvDownloadTimeout, envValue, DefaultDownloadTimeout)
		return DefaultDownloadTimeout
	}
	if duration < 10*time.Second {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%v), using minimum 10s\n",
			EnvDownloadTimeout, duration)
		return 10 * time.Second
	}
	if duration > time.Hour {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%v), using maximum 1h\n",
			EnvDownloadTimeout, duration)
		return time.Hour
	}
	return duration
}

// GetMaxAttempts returns the metadata request bound from SETUP_TOOL_MAX_ATTEMPTS,
// clamped to 1..10. Defaults to DefaultMaxAttempts.
func GetMaxAttempts() int {
	envValue := os.Getenv(EnvMaxAttempts)
	if envValue == "" {
		return DefaultMaxAttempts
	}
	return parseMaxAttempts(EnvMaxAttempts, envValue)
}

func parseMaxAttempts(source, value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %d\n",
			source, value, DefaultMaxAttempts)
		return DefaultMaxAttempts
	}
	if n < 1 {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%d), using minimum 1\n", source, n)
		return 1
	}
	if n > maxAttemptsCeiling {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%d), using maximum %d\n",
			source, n, maxAttemptsCeiling)
		return maxAttemptsCeiling
	}
	return n
}

// Config holds the filesystem locations setup-tool uses outside the job's
// working directory.
type Config struct {
	HomeDir   string // $SETUP_TOOL_HOME
	CacheRoot string // tool cache root, see CacheRootFor
	WorkDir   string // directory the installed binary is placed in
}

// DefaultConfig returns the default configuration for the current process.
func DefaultConfig() (*Config, error) {
	home, err := HomeDir()
	if err != nil {
		return nil, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return &Config{
		HomeDir:   home,
		CacheRoot: CacheRootFor("", home),
		WorkDir:   wd,
	}, nil
}

// HomeDir returns $SETUP_TOOL_HOME or ~/.setup-tool.
func HomeDir() (string, error) {
	if h := os.Getenv(EnvHome); h != "" {
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".setup-tool"), nil
}

// CacheRootFor picks the tool cache root: an explicit directory wins, then
// the runner's shared tool cache, then home/tool-cache.
func CacheRootFor(explicit, home string) string {
	if explicit != "" {
		return explicit
	}
	if rc := os.Getenv(EnvRunnerToolCache); rc != "" {
		return rc
	}
	return filepath.Join(home, "tool-cache")
}
