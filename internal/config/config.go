// Package config loads the optional user configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/pelletier/go-toml/v2"

	"github.com/thiagokokada/simplegit/internal/giterr"
)

const (
	appName  = "simplegit"
	fileName = "config.toml"
	// EnvPath overrides the config file location.
	EnvPath = "SIMPLEGIT_CONFIG"
)

const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"

	ThemeAuto  = "auto"
	ThemeLight = "light"
	ThemeDark  = "dark"
)

type Config struct {
	User    User    `toml:"user"`
	UI      UI      `toml:"ui"`
	Remote  Remote  `toml:"remote"`
	Storage Storage `toml:"storage"`
}

type User struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

type UI struct {
	Color         string `toml:"color"`
	Theme         string `toml:"theme"`
	RelativeDates bool   `toml:"relative_dates"`
}

type Remote struct {
	Default string `toml:"default"`
}

type Storage struct {
	// CacheSize bounds the number of flattened trees kept in memory.
	CacheSize int `toml:"cache_size"`
}

func Default() Config {
	return Config{
		UI:      UI{Color: ColorAuto, Theme: ThemeAuto},
		Remote:  Remote{Default: "origin"},
		Storage: Storage{CacheSize: 256},
	}
}

// Path returns the config file location, honouring EnvPath.
func Path() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return filepath.Join(xdg.ConfigHome, appName, fileName)
}

// Load reads path, or the default location when path is empty. A missing
// file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		if p := os.Getenv(EnvPath); p != "" {
			path = p
		} else if found, err := xdg.SearchConfigFile(filepath.Join(appName, fileName)); err == nil {
			path = found
		} else {
			slog.Debug("no config file found", slog.String("path", Path()))
			return Default(), nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, giterr.Join(giterr.ErrIO, err, "read config "+path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	slog.Debug("config loaded", slog.String("path", path))
	return cfg, nil
}

// Parse decodes TOML data on top of the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Config{}, giterr.Wrapf(giterr.ErrInvalidArgument, "parse config at %d:%d: %s", row, col, derr.Error())
		}
		return Config{}, giterr.Join(giterr.ErrInvalidArgument, err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.UI.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return giterr.Wrapf(giterr.ErrInvalidArgument, "ui.color %q: want auto, always or never", c.UI.Color)
	}
	switch c.UI.Theme {
	case ThemeAuto, ThemeLight, ThemeDark:
	default:
		return giterr.Wrapf(giterr.ErrInvalidArgument, "ui.theme %q: want auto, light or dark", c.UI.Theme)
	}
	if c.Storage.CacheSize < 0 {
		return giterr.Wrapf(giterr.ErrInvalidArgument, "storage.cache_size %d: must not be negative", c.Storage.CacheSize)
	}
	return nil
}

// Marshal encodes c as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

var loadGlobalGitConfig = func() (*gitconfig.Config, error) {
	return gitconfig.LoadConfig(gitconfig.GlobalScope)
}

// Identity resolves the commit author: this file first, then the
// repository's own config, then the user's global git config.
func (c Config) Identity(local *gitconfig.Config) (name, email string) {
	name, email = c.User.Name, c.User.Email
	fill := func(cfg *gitconfig.Config) {
		if cfg == nil {
			return
		}
		if name == "" {
			name = cfg.User.Name
		}
		if email == "" {
			email = cfg.User.Email
		}
	}
	fill(local)
	if name == "" || email == "" {
		global, err := loadGlobalGitConfig()
		if err != nil {
			slog.Debug("global git config unavailable", slog.Any("err", err))
		} else {
			fill(global)
		}
	}
	return name, email
}
