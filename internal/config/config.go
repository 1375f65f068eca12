package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/skimmer/internal/rbn"
	"github.com/roach88/skimmer/internal/reactor"
	"github.com/roach88/skimmer/internal/spot"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SKIMMER"

// FileName is the config file looked up when no explicit path is given.
const FileName = "skimmer"

// Config is the complete runtime configuration.
type Config struct {
	Callsign     string              `mapstructure:"callsign"`
	Clusters     []string            `mapstructure:"clusters"`
	Catalog      map[string][]string `mapstructure:"catalog"`
	Timeouts     TimeoutsConfig      `mapstructure:"timeouts"`
	PollInterval time.Duration       `mapstructure:"poll_interval"`
	Store        StoreConfig         `mapstructure:"store"`
	Metrics      MetricsConfig       `mapstructure:"metrics"`
	Log          LogConfig           `mapstructure:"log"`
	Notify       NotifyConfig        `mapstructure:"notify"`
	Filter       FilterConfig        `mapstructure:"filter"`

	// File is the config file that was read, empty if none.
	File string `mapstructure:"-"`
}

// TimeoutsConfig holds the client's per-state deadlines.
type TimeoutsConfig struct {
	Connect      time.Duration `mapstructure:"connect"`
	Pause        time.Duration `mapstructure:"pause"`
	Prompt       time.Duration `mapstructure:"prompt"`
	Header       time.Duration `mapstructure:"header"`
	Inactivity   time.Duration `mapstructure:"inactivity"`
	NetworkRetry time.Duration `mapstructure:"network_retry"`
}

// StoreConfig selects the SQLite database. A zero Retention keeps
// everything.
type StoreConfig struct {
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

// MetricsConfig enables the Prometheus endpoint when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LogConfig sets the slog level (debug, info, warn, error) and handler
// format (text or json).
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NotifyConfig controls how often a callsign is printed.
type NotifyConfig struct {
	RenotifyDelay time.Duration `mapstructure:"renotify_delay"`
}

// FilterConfig limits accepted spots to the listed bands in meters. Empty
// means every band.
type FilterConfig struct {
	Bands []int `mapstructure:"bands"`
}

// DefaultRenotifyDelay is the quiet period between notifications for the
// same callsign.
const DefaultRenotifyDelay = 10 * time.Minute

// Options control where Load looks.
type Options struct {
	// File is an explicit config path. When set the file must exist.
	File string
	// SearchPaths replaces the default search directories (".",
	// "$HOME/.config/skimmer") used when File is empty.
	SearchPaths []string
	// IgnoreEnv skips SKIMMER_* overrides, leaving defaults and the file.
	IgnoreEnv bool
}

func setDefaults(v *viper.Viper) {
	t := rbn.DefaultTimeouts()
	v.SetDefault("callsign", "")
	v.SetDefault("clusters", []string{"RBN"})
	v.SetDefault("catalog", map[string][]string{})
	v.SetDefault("timeouts.connect", t.Connect)
	v.SetDefault("timeouts.pause", t.Pause)
	v.SetDefault("timeouts.prompt", t.Prompt)
	v.SetDefault("timeouts.header", t.Header)
	v.SetDefault("timeouts.inactivity", t.Inactivity)
	v.SetDefault("timeouts.network_retry", t.NetworkRetry)
	v.SetDefault("poll_interval", reactor.DefaultPollInterval)
	v.SetDefault("store.path", "")
	v.SetDefault("store.retention", time.Duration(0))
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("notify.renotify_delay", DefaultRenotifyDelay)
	v.SetDefault("filter.bands", []int{})
}

// Load reads defaults, the config file and the environment, in that
// order, and checks the result.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		paths := opts.SearchPaths
		if paths == nil {
			paths = []string{".", "$HOME/.config/skimmer"}
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}

	if !opts.IgnoreEnv {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{File: v.ConfigFileUsed()}
	if cfg.File != "" {
		if err := ValidateFile(cfg.File); err != nil {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize accepts clusters given as one comma or space separated string
// as well as a list.
func (c *Config) normalize() {
	c.Callsign = strings.ToUpper(strings.TrimSpace(c.Callsign))
	var names []string
	for _, entry := range c.Clusters {
		names = append(names, rbn.ParseClusterList(entry)...)
	}
	c.Clusters = names
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
}

// FieldError reports an invalid setting after all sources were merged.
type FieldError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

// IsFieldError returns true if err is, or wraps, a FieldError.
func IsFieldError(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe)
}

// Check validates the merged configuration. The callsign is not required
// here; commands that connect call RequireCallsign.
func (c *Config) Check() error {
	durations := []struct {
		field string
		d     time.Duration
	}{
		{"timeouts.connect", c.Timeouts.Connect},
		{"timeouts.pause", c.Timeouts.Pause},
		{"timeouts.prompt", c.Timeouts.Prompt},
		{"timeouts.header", c.Timeouts.Header},
		{"timeouts.inactivity", c.Timeouts.Inactivity},
		{"timeouts.network_retry", c.Timeouts.NetworkRetry},
		{"poll_interval", c.PollInterval},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return &FieldError{Field: d.field, Message: fmt.Sprintf("must be positive, got %s", d.d)}
		}
	}
	if c.Store.Retention < 0 {
		return &FieldError{Field: "store.retention", Message: "must not be negative"}
	}
	if c.Notify.RenotifyDelay < 0 {
		return &FieldError{Field: "notify.renotify_delay", Message: "must not be negative"}
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return &FieldError{Field: "log.format", Message: fmt.Sprintf("unknown format %q (text or json)", c.Log.Format)}
	}

	if _, err := c.BandFilter(); err != nil {
		return &FieldError{Field: "filter.bands", Message: err.Error()}
	}
	cat, err := c.Catalogue()
	if err != nil {
		return err
	}
	if _, err := cat.Resolve(c.Clusters); err != nil {
		return &FieldError{Field: "clusters", Message: err.Error()}
	}
	return nil
}

// RequireCallsign fails if no callsign was configured.
func (c *Config) RequireCallsign() error {
	if c.Callsign == "" {
		return &FieldError{Field: "callsign", Message: "required (set callsign in the config file or " + EnvPrefix + "_CALLSIGN)"}
	}
	return nil
}

// ClientTimeouts converts the timeouts section for the RBN client.
func (c *Config) ClientTimeouts() rbn.Timeouts {
	return rbn.Timeouts{
		Connect:      c.Timeouts.Connect,
		Pause:        c.Timeouts.Pause,
		Prompt:       c.Timeouts.Prompt,
		Header:       c.Timeouts.Header,
		Inactivity:   c.Timeouts.Inactivity,
		NetworkRetry: c.Timeouts.NetworkRetry,
	}
}

// Catalogue returns the built-in catalog merged with the configured extra
// clusters.
func (c *Config) Catalogue() (rbn.Catalog, error) {
	extra := make(rbn.Catalog, len(c.Catalog))
	for name, endpoints := range c.Catalog {
		cands := make([]rbn.Candidate, 0, len(endpoints))
		for _, ep := range endpoints {
			host, portStr, err := net.SplitHostPort(ep)
			if err != nil {
				return nil, &FieldError{Field: "catalog." + name, Message: err.Error()}
			}
			port, err := strconv.Atoi(portStr)
			if err != nil || port <= 0 || port > 65535 {
				return nil, &FieldError{Field: "catalog." + name, Message: fmt.Sprintf("bad port in %q", ep)}
			}
			cands = append(cands, rbn.Candidate{Host: host, Port: port})
		}
		extra[name] = cands
	}
	return rbn.DefaultCatalog().Merge(extra), nil
}

// ResolveClusters resolves the cluster selection against the catalog.
func (c *Config) ResolveClusters() ([]rbn.Cluster, error) {
	cat, err := c.Catalogue()
	if err != nil {
		return nil, err
	}
	return cat.Resolve(c.Clusters)
}

// BandFilter returns the configured bands; no bands means all bands.
func (c *Config) BandFilter() (spot.Bands, error) {
	return spot.NewBands(c.Filter.Bands)
}

// SlogLevel maps log.level to a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, &FieldError{Field: "log.level", Message: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
}
