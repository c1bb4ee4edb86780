// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kkyr/fig"
)

const (
	configEnv         = "WAYBARLOCATION"
	DefaultTextTpl    = "{{.IconWithSpace}}{{.Message}}"
	DefaultTooltipTpl = "{{.Title}}\n{{.Message}}{{if .Prompt}}\n{{.Prompt}}{{end}}" +
		"{{if .HasCoordinates}}\n{{loc \"coordinates\"}}: {{floatFormat .Latitude 4}}, {{floatFormat .Longitude 4}}{{end}}" +
		"{{if not .UpdateTime.IsZero}}\n{{loc \"updated\"}}: {{naturalTime .UpdateTime}}{{end}}"
	DefaultAgentName = "org.freedesktop.GeoClue2.DemoAgent"
	DefaultDesktopID = "waybar-location"
)

var (
	LocationProviders = []string{"geoclue", "gpsd", "ichnaea", "geoip", "geoapi", "file", "cityname"}
	Accuracies        = []string{"low", "balanced", "high"}
	PermissionModes   = []string{"prompt", "geoclue", "granted", "denied"}
	GeocodeProviders  = []string{"nominatim", "opencage", "geocode-earth", "mapbox", "arcgis"}
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Location struct {
		// Allowed values: geoclue, gpsd, ichnaea, geoip, geoapi, file, cityname
		Provider string `fig:"provider" default:"geoclue"`
		// Allowed values: low, balanced, high
		Accuracy     string        `fig:"accuracy" default:"high"`
		File         string        `fig:"file"`
		CitynameFile string        `fig:"cityname_file"`
		GPSDAddress  string        `fig:"gpsd_address" default:"localhost:2947"`
		FixTimeout   time.Duration `fig:"fix_timeout" default:"30s"`
		DesktopID    string        `fig:"desktop_id"`
	} `fig:"location"`

	Permission struct {
		// Allowed values: prompt, geoclue, granted, denied
		Mode  string `fig:"mode" default:"prompt"`
		Agent string `fig:"agent"`
	} `fig:"permission"`

	GeoCoder struct {
		Provider string `fig:"provider" default:"nominatim"`
		APIKey   string `fig:"apikey"`
	} `fig:"geocoder"`

	Intervals struct {
		Output time.Duration `fig:"output" default:"30s"`
	} `fig:"intervals"`

	Templates struct {
		Text    string `fig:"text"`
		Tooltip string `fig:"tooltip"`
	} `fig:"templates"`

	Metrics struct {
		Listen string `fig:"listen"`
	} `fig:"metrics"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	c.Location.Provider = strings.ToLower(c.Location.Provider)
	c.Location.Accuracy = strings.ToLower(c.Location.Accuracy)
	c.Permission.Mode = strings.ToLower(c.Permission.Mode)
	c.GeoCoder.Provider = strings.ToLower(c.GeoCoder.Provider)

	if !slices.Contains(LocationProviders, c.Location.Provider) {
		return fmt.Errorf("invalid location provider: %s", c.Location.Provider)
	}
	if !slices.Contains(Accuracies, c.Location.Accuracy) {
		return fmt.Errorf("invalid location accuracy: %s", c.Location.Accuracy)
	}
	if !slices.Contains(PermissionModes, c.Permission.Mode) {
		return fmt.Errorf("invalid permission mode: %s", c.Permission.Mode)
	}
	if !slices.Contains(GeocodeProviders, c.GeoCoder.Provider) {
		return fmt.Errorf("invalid geocoder provider: %s", c.GeoCoder.Provider)
	}
	if c.Location.FixTimeout <= 0 {
		return fmt.Errorf("invalid location fix timeout: %s", c.Location.FixTimeout)
	}
	if c.Intervals.Output <= 0 {
		return fmt.Errorf("invalid output interval: %s", c.Intervals.Output)
	}

	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if c.Templates.Text == "" {
		c.Templates.Text = DefaultTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultTooltipTpl
	}
	if c.Permission.Agent == "" {
		c.Permission.Agent = DefaultAgentName
	}
	if c.Location.DesktopID == "" {
		c.Location.DesktopID = DefaultDesktopID
	}
	home, _ := os.UserHomeDir()
	if c.Location.File == "" {
		c.Location.File = filepath.Join(home, ".config", "waybar-location", "geolocation")
	}
	if c.Location.CitynameFile == "" {
		c.Location.CitynameFile = filepath.Join(home, ".config", "waybar-location", "cityname")
	}

	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
