package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"net/url"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"

	"github.com/matzehuels/metagate/pkg/errors"
	"github.com/matzehuels/metagate/pkg/executor"
	"github.com/matzehuels/metagate/pkg/metadata"
)

// Config is the complete gateway configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	Backend  BackendConfig  `toml:"backend"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Cache    CacheConfig    `toml:"cache"`
	Executor ExecutorConfig `toml:"executor"`
	Filters  FiltersConfig  `toml:"filters"`
	Sources  SourcesConfig  `toml:"sources"`
}

type ServerConfig struct {
	Listen       string   `toml:"listen"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// ParseLevel returns the configured log level.
func (c LogConfig) ParseLevel() (log.Level, error) {
	lvl, err := log.ParseLevel(c.Level)
	if err != nil {
		return log.InfoLevel, errors.Wrap(errors.ErrCodeInvalidInput, err, "log.level")
	}
	return lvl, nil
}

// BackendConfig points at the authoritative media server.
type BackendConfig struct {
	URL     string `toml:"url"`
	Token   string `toml:"token"`
	Address string `toml:"address"`
}

// CatalogConfig points at the discovery catalog.
type CatalogConfig struct {
	Enabled  bool   `toml:"enabled"`
	URL      string `toml:"url"`
	Token    string `toml:"token"`
	Fallback bool   `toml:"fallback"`
}

type CacheConfig struct {
	MatchLifetime        Duration `toml:"match_lifetime"`
	ItemLifetime         Duration `toml:"item_lifetime"`
	AccessResetsLifetime bool     `toml:"access_resets_lifetime"`
	SweepLimit           int      `toml:"sweep_limit"`
	MatchConcurrency     int      `toml:"match_concurrency"`
}

// ExecutorConfig is the default request policy plus per-domain overrides.
type ExecutorConfig struct {
	Policy
	Domains map[string]Policy `toml:"domains"`
}

// Policy overlays executor options. Nil fields are inherited.
type Policy struct {
	MaxRetries        *int             `toml:"max_retries"`
	DefaultRetryAfter *Duration        `toml:"default_retry_after"`
	MinimumDelay      *Duration        `toml:"minimum_delay"`
	PaddingDelay      *Duration        `toml:"padding_delay"`
	RandomDelayMax    *Duration        `toml:"random_delay_max"`
	BackoffMultiplier *Duration        `toml:"backoff_multiplier"`
	MaxParallel       *int             `toml:"max_parallel"`
	RateLimit         *float64         `toml:"rate_limit"`
	RateBurst         *int             `toml:"rate_burst"`
	OccasionalDelay   *OccasionalDelay `toml:"occasional_delay"`
}

type OccasionalDelay struct {
	Every          int      `toml:"every"`
	Duration       Duration `toml:"duration"`
	ResetAfterIdle Duration `toml:"reset_after_idle"`
}

// FiltersConfig declares the plugin order per extension point.
type FiltersConfig struct {
	Order map[string][]string `toml:"order"`
}

type SourcesConfig struct {
	Peer []PeerConfig `toml:"peer"`
}

// PeerConfig exposes another server instance as a metadata source.
type PeerConfig struct {
	Slug               string   `toml:"slug"`
	URL                string   `toml:"url"`
	Token              string   `toml:"token"`
	Hubs               []string `toml:"hubs"`
	IncludeUnmatched   bool     `toml:"include_unmatched"`
	QualifiedIDs       bool     `toml:"qualified_ids"`
	TransformMatchKeys bool     `toml:"transform_match_keys"`
}

// Options returns the provider defaults of the peer.
func (p PeerConfig) Options() metadata.GetOptions {
	return metadata.GetOptions{
		IncludeUnmatched:     p.IncludeUnmatched,
		TransformMatchKeys:   p.TransformMatchKeys,
		QualifiedMetadataIDs: p.QualifiedIDs,
	}
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:       ":8090",
			ReadTimeout:  Duration{15 * time.Second},
			WriteTimeout: Duration{time.Minute},
		},
		Log: LogConfig{Level: "info"},
		Cache: CacheConfig{
			MatchLifetime:    Duration{metadata.DefaultMatchLifetime},
			ItemLifetime:     Duration{metadata.DefaultItemLifetime},
			MatchConcurrency: metadata.DefaultMatchConcurrency,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return cfg, errors.Wrap(errors.ErrCodeNotFound, err, "config file %s", path)
		}
		return cfg, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, errors.New(errors.ErrCodeInvalidInput, "%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports every problem in the configuration.
func (c Config) Validate() error {
	var merr *multierror.Error
	add := func(format string, args ...any) {
		merr = multierror.Append(merr, fmt.Errorf(format, args...))
	}

	if c.Server.Listen == "" {
		add("server.listen is empty")
	}
	if c.Server.ReadTimeout.Duration < 0 || c.Server.WriteTimeout.Duration < 0 {
		add("server timeouts must not be negative")
	}
	if _, err := c.Log.ParseLevel(); err != nil {
		add("log.level %q is not a level", c.Log.Level)
	}

	if c.Backend.URL == "" {
		add("backend.url is required")
	} else if !validURL(c.Backend.URL) {
		add("backend.url %q is not an http(s) url", c.Backend.URL)
	}
	if c.Catalog.Enabled && !validURL(c.Catalog.URL) {
		add("catalog.url %q is not an http(s) url", c.Catalog.URL)
	}
	if c.Catalog.Fallback && !c.Catalog.Enabled {
		add("catalog.fallback requires catalog.enabled")
	}

	if c.Cache.MatchLifetime.Duration < 0 || c.Cache.ItemLifetime.Duration < 0 {
		add("cache lifetimes must not be negative")
	}
	if c.Cache.SweepLimit < 0 {
		add("cache.sweep_limit must not be negative")
	}
	if c.Cache.MatchConcurrency < 0 {
		add("cache.match_concurrency must not be negative")
	}

	for _, err := range c.Executor.Policy.validate("executor") {
		merr = multierror.Append(merr, err)
	}
	for _, domain := range sortedKeys(c.Executor.Domains) {
		for _, err := range c.Executor.Domains[domain].validate(fmt.Sprintf("executor.domains.%q", domain)) {
			merr = multierror.Append(merr, err)
		}
	}

	for _, point := range sortedKeys(c.Filters.Order) {
		order := c.Filters.Order[point]
		for i, plugin := range order {
			if slices.Index(order, plugin) != i {
				add("filters.order.%s lists %q twice", point, plugin)
			}
		}
	}

	slugs := map[string]bool{}
	for i, p := range c.Sources.Peer {
		if err := errors.ValidateSlug(p.Slug); err != nil {
			add("sources.peer[%d]: %s", i, errors.UserMessage(err))
		} else if slugs[p.Slug] {
			add("sources.peer[%d]: duplicate slug %q", i, p.Slug)
		}
		slugs[p.Slug] = true
		if !validURL(p.URL) {
			add("sources.peer[%d]: url %q is not an http(s) url", i, p.URL)
		}
	}

	if err := merr.ErrorOrNil(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid configuration")
	}
	return nil
}

func (p Policy) validate(section string) []error {
	var errs []error
	neg := func(name string, bad bool) {
		if bad {
			errs = append(errs, fmt.Errorf("%s.%s must not be negative", section, name))
		}
	}
	neg("max_retries", p.MaxRetries != nil && *p.MaxRetries < 0)
	neg("default_retry_after", p.DefaultRetryAfter != nil && p.DefaultRetryAfter.Duration < 0)
	neg("minimum_delay", p.MinimumDelay != nil && p.MinimumDelay.Duration < 0)
	neg("padding_delay", p.PaddingDelay != nil && p.PaddingDelay.Duration < 0)
	neg("random_delay_max", p.RandomDelayMax != nil && p.RandomDelayMax.Duration < 0)
	neg("backoff_multiplier", p.BackoffMultiplier != nil && p.BackoffMultiplier.Duration < 0)
	neg("max_parallel", p.MaxParallel != nil && *p.MaxParallel < 0)
	neg("rate_limit", p.RateLimit != nil && *p.RateLimit < 0)
	neg("rate_burst", p.RateBurst != nil && *p.RateBurst < 0)
	if d := p.OccasionalDelay; d != nil && (d.Every <= 0 || d.Duration.Duration <= 0) {
		errs = append(errs, fmt.Errorf("%s.occasional_delay needs a positive every and duration", section))
	}
	return errs
}

// Apply overlays p onto base.
func (p Policy) Apply(base executor.Options) executor.Options {
	o := base
	if p.MaxRetries != nil {
		o.MaxRetries = *p.MaxRetries
	}
	if p.DefaultRetryAfter != nil {
		o.DefaultRetryAfter = p.DefaultRetryAfter.Duration
	}
	if p.MinimumDelay != nil {
		o.MinimumDelay = p.MinimumDelay.Duration
	}
	if p.PaddingDelay != nil {
		o.PaddingDelay = p.PaddingDelay.Duration
	}
	if p.RandomDelayMax != nil {
		o.RandomDelayMax = p.RandomDelayMax.Duration
	}
	if p.BackoffMultiplier != nil {
		o.BackoffMultiplier = p.BackoffMultiplier.Duration
	}
	if p.MaxParallel != nil {
		o.MaxParallel = *p.MaxParallel
	}
	if p.RateLimit != nil {
		o.RateLimit = *p.RateLimit
	}
	if p.RateBurst != nil {
		o.RateBurst = *p.RateBurst
	}
	if d := p.OccasionalDelay; d != nil {
		o.OccasionalDelay = &executor.OccasionalDelay{
			Every:          d.Every,
			Duration:       d.Duration.Duration,
			ResetAfterIdle: d.ResetAfterIdle.Duration,
		}
	}
	return o
}

// Manager builds the executor manager described by the configuration.
func (c ExecutorConfig) Manager(logger *log.Logger) *executor.Manager {
	defaults := c.Policy.Apply(executor.DefaultOptions())
	defaults.Logger = logger
	overrides := make(map[string]executor.Options, len(c.Domains))
	for domain, p := range c.Domains {
		overrides[domain] = p.Apply(defaults)
	}
	return executor.NewManager(defaults, overrides)
}

func validURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
