package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Setting keys. These are the action input names and the CLI flag names.
const (
	KeyRepo         = "repo"
	KeyTool         = "tool"
	KeyBinaryName   = "binary-name"
	KeyToken        = "token"
	KeyAPIURL       = "api-url"
	KeyCacheDir     = "cache-dir"
	KeyMaxAttempts  = "max-attempts"
	KeySourceURL    = "source-url"
	KeyBuildCommand = "build-command"
	KeyBuildOutput  = "build-output"
	KeyVersionArg   = "version-arg"
	KeyCacheBuild   = "cache-build"
)

// Defaults for settings not provided by any source.
const (
	DefaultRepo         = "AnnikaCodes/ziglint"
	DefaultAPIURL       = "https://api.github.com/"
	DefaultBuildCommand = "zig build -Doptimize=ReleaseFast"
	DefaultVersionArg   = "--version"
)

// Source supplies raw setting values by key.
type Source interface {
	Lookup(key string) (string, bool)
}

// Values is a Source backed by a map, used for explicitly set CLI flags.
type Values map[string]string

// Lookup implements Source. Empty values count as unset.
func (v Values) Lookup(key string) (string, bool) {
	s, ok := v[key]
	return s, ok && s != ""
}

// LookupFunc adapts a function to Source.
type LookupFunc func(key string) (string, bool)

// Lookup implements Source.
func (f LookupFunc) Lookup(key string) (string, bool) { return f(key) }

// Settings is the resolved configuration for a single run. It is computed
// once by Resolve and passed by value.
type Settings struct {
	Owner        string
	Repo         string
	Tool         string
	BinaryName   string
	Token        string
	APIURL       string
	CacheDir     string
	MaxAttempts  int
	APITimeout   time.Duration
	SourceURL    string
	BuildCommand []string
	BuildOutput  string
	VersionArg   string
	CacheBuild   bool
}

// Resolve merges sources in precedence order (first source wins) over
// environment-backed and static defaults. goos selects the executable suffix
// for derived names.
func Resolve(goos string, sources ...Source) (Settings, error) {
	get := func(key string) string {
		for _, s := range sources {
			if s == nil {
				continue
			}
			if v, ok := s.Lookup(key); ok {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}
	orDefault := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}

	exe := ""
	if goos == "windows" {
		exe = ".exe"
	}

	var s Settings

	full := orDefault(get(KeyRepo), DefaultRepo)
	owner, name, ok := strings.Cut(full, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Settings{}, fmt.Errorf("invalid %s %q: expected owner/name", KeyRepo, full)
	}
	s.Owner, s.Repo = owner, name

	s.Tool = orDefault(get(KeyTool), name)
	s.BinaryName = orDefault(get(KeyBinaryName), s.Tool+exe)
	if strings.ContainsAny(s.BinaryName, `/\`) {
		return Settings{}, fmt.Errorf("invalid %s %q: must be a file name, not a path", KeyBinaryName, s.BinaryName)
	}
	s.Token = get(KeyToken)

	s.APIURL = orDefault(get(KeyAPIURL), DefaultAPIURL)
	u, err := url.Parse(s.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Settings{}, fmt.Errorf("invalid %s %q", KeyAPIURL, s.APIURL)
	}
	if !strings.HasSuffix(s.APIURL, "/") {
		s.APIURL += "/"
	}

	s.CacheDir = get(KeyCacheDir)

	if v := get(KeyMaxAttempts); v != "" {
		s.MaxAttempts = parseMaxAttempts(KeyMaxAttempts, v)
	} else {
		s.MaxAttempts = GetMaxAttempts()
	}
	s.APITimeout = GetAPITimeout()

	s.SourceURL = orDefault(get(KeySourceURL), "https://github.com/"+full+".git")
	s.BuildCommand = strings.Fields(orDefault(get(KeyBuildCommand), DefaultBuildCommand))
	if len(s.BuildCommand) == 0 {
		return Settings{}, fmt.Errorf("%s is empty", KeyBuildCommand)
	}
	s.BuildOutput = orDefault(get(KeyBuildOutput), "zig-out/bin/"+s.Tool+exe)
	s.VersionArg = orDefault(get(KeyVersionArg), DefaultVersionArg)

	if v := get(KeyCacheBuild); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid value for %s: must be true or false", KeyCacheBuild)
		}
		s.CacheBuild = b
	}

	return s, nil
}

// FullRepo returns owner/name.
func (s Settings) FullRepo() string {
	return s.Owner + "/" + s.Repo
}
