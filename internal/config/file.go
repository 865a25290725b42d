package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// DefaultFileName is looked up in the working directory when no --config
// flag is given.
const DefaultFileName = "setup-tool.toml"

// File is the optional setup-tool.toml. Keys mirror the action inputs.
// The token is deliberately not read from files.
type File struct {
	Repo         string `toml:"repo"`
	Tool         string `toml:"tool"`
	BinaryName   string `toml:"binary-name"`
	APIURL       string `toml:"api-url"`
	CacheDir     string `toml:"cache-dir"`
	MaxAttempts  int    `toml:"max-attempts"`
	SourceURL    string `toml:"source-url"`
	BuildCommand string `toml:"build-command"`
	BuildOutput  string `toml:"build-output"`
	VersionArg   string `toml:"version-arg"`
	CacheBuild   *bool  `toml:"cache-build"`
}

// LoadFile reads a TOML settings file. A missing file yields an empty File
// and no error; parse failures and unknown keys are errors.
func LoadFile(path string) (*File, error) {
	f := &File{}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	md, err := toml.Decode(string(data), f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in config file %s", undecoded[0].String(), path)
	}
	return f, nil
}

// Lookup implements Source.
func (f *File) Lookup(key string) (string, bool) {
	if f == nil {
		return "", false
	}
	var v string
	switch key {
	case KeyRepo:
		v = f.Repo
	case KeyTool:
		v = f.Tool
	case KeyBinaryName:
		v = f.BinaryName
	case KeyAPIURL:
		v = f.APIURL
	case KeyCacheDir:
		v = f.CacheDir
	case KeyMaxAttempts:
		if f.MaxAttempts != 0 {
			v = strconv.Itoa(f.MaxAttempts)
		}
	case KeySourceURL:
		v = f.SourceURL
	case KeyBuildCommand:
		v = f.BuildCommand
	case KeyBuildOutput:
		v = f.BuildOutput
	case KeyVersionArg:
		v = f.VersionArg
	case KeyCacheBuild:
		if f.CacheBuild != nil {
			v = strconv.FormatBool(*f.CacheBuild)
		}
	}
	return v, v != ""
}
