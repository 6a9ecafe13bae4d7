package service

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"klaus/elevation/dtm-raster-functions/pkg/latitude"
	"klaus/elevation/dtm-raster-functions/pkg/vrm"
)

// spatial reference resolvers
const (
	ResolverGDAL    = "gdal"
	ResolverBuiltin = "builtin"
)

// Config defines program configuration.
type Config struct {
	ListenAddress         string `yaml:"ListenAddress"`
	ServerCertificate     string `yaml:"ServerCertificate"`
	ServerKey             string `yaml:"ServerKey"`
	ShutdownGracePeriod   int    `yaml:"ShutdownGracePeriod"` // seconds
	LogDirectory          string `yaml:"LogDirectory"`
	LogLevel              string `yaml:"LogLevel"`
	MaxParallelTiles      int    `yaml:"MaxParallelTiles"`
	MaxTilesPerRequest    int    `yaml:"MaxTilesPerRequest"`
	MaxTileCells          int    `yaml:"MaxTileCells"` // bands * rows * cols
	SessionCacheSize      int64  `yaml:"SessionCacheSize"`
	SessionTTL            int    `yaml:"SessionTTL"` // seconds
	ReprojectionCacheSize int64  `yaml:"ReprojectionCacheSize"`
	ReprojectionCacheTTL  int    `yaml:"ReprojectionCacheTTL"` // seconds
	Resolver              string `yaml:"Resolver"`
	LatitudeStrategy      string `yaml:"LatitudeStrategy"`
	VRMBoundary           string `yaml:"VRMBoundary"`
	VRMNoData             string `yaml:"VRMNoData"`
	VRMMaxSize            int    `yaml:"VRMMaxSize"`
	CatalogFile           string `yaml:"CatalogFile"`
}

/*
DefaultConfig returns the configuration used for unset fields.
*/
func DefaultConfig() Config {
	return Config{
		ListenAddress:         ":8443",
		ShutdownGracePeriod:   10,
		LogDirectory:          ".",
		LogLevel:              "info",
		MaxParallelTiles:      4,
		MaxTilesPerRequest:    64,
		MaxTileCells:          4096 * 4096,
		SessionCacheSize:      256,
		SessionTTL:            3600,
		ReprojectionCacheSize: 100000,
		ReprojectionCacheTTL:  3600,
		Resolver:              ResolverGDAL,
		LatitudeStrategy:      latitude.AnchorExtrapolation.String(),
		VRMBoundary:           vrm.BoundaryZero.String(),
		VRMNoData:             vrm.NoDataIgnore.String(),
		VRMMaxSize:            vrm.DefaultMaxSize,
		CatalogFile:           "functions.csv",
	}
}

/*
LoadConfig reads and verifies the YAML configuration file.
*/
func LoadConfig(filename string) (Config, error) {
	source, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("error [%w] at os.ReadFile()", err)
	}
	return ParseConfig(source)
}

/*
ParseConfig decodes YAML configuration data, applies defaults for unset
fields and verifies the result.
*/
func ParseConfig(source []byte) (Config, error) {
	config := DefaultConfig()
	err := yaml.Unmarshal(source, &config)
	if err != nil {
		return Config{}, fmt.Errorf("error [%w] at yaml.Unmarshal()", err)
	}

	// explicit zero values fall back to defaults
	defaults := DefaultConfig()
	if config.MaxParallelTiles == 0 {
		config.MaxParallelTiles = defaults.MaxParallelTiles
	}
	if config.MaxTilesPerRequest == 0 {
		config.MaxTilesPerRequest = defaults.MaxTilesPerRequest
	}
	if config.MaxTileCells == 0 {
		config.MaxTileCells = defaults.MaxTileCells
	}
	if config.VRMMaxSize == 0 {
		config.VRMMaxSize = defaults.VRMMaxSize
	}
	if config.SessionTTL == 0 {
		config.SessionTTL = defaults.SessionTTL
	}
	config.Resolver = strings.ToLower(config.Resolver)

	err = config.Verify()
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

/*
Verify checks the configuration values.
*/
func (c Config) Verify() error {
	var errs []error

	if c.Resolver != ResolverGDAL && c.Resolver != ResolverBuiltin {
		errs = append(errs, fmt.Errorf("unsupported Resolver [%s], expected '%s' or '%s'", c.Resolver, ResolverGDAL, ResolverBuiltin))
	}
	if _, err := latitude.ParseStrategy(c.LatitudeStrategy); err != nil {
		errs = append(errs, fmt.Errorf("LatitudeStrategy: %w", err))
	}
	if _, err := vrm.ParseBoundary(c.VRMBoundary); err != nil {
		errs = append(errs, fmt.Errorf("VRMBoundary: %w", err))
	}
	if _, err := vrm.ParseNoDataPolicy(c.VRMNoData); err != nil {
		errs = append(errs, fmt.Errorf("VRMNoData: %w", err))
	}
	if c.MaxParallelTiles < 1 {
		errs = append(errs, fmt.Errorf("MaxParallelTiles must be at least 1, got %d", c.MaxParallelTiles))
	}
	if c.MaxTilesPerRequest < 1 {
		errs = append(errs, fmt.Errorf("MaxTilesPerRequest must be at least 1, got %d", c.MaxTilesPerRequest))
	}
	if c.MaxTileCells < 1 {
		errs = append(errs, fmt.Errorf("MaxTileCells must be at least 1, got %d", c.MaxTileCells))
	}
	if c.VRMMaxSize < 1 {
		errs = append(errs, fmt.Errorf("VRMMaxSize must be at least 1, got %d", c.VRMMaxSize))
	}
	if c.SessionCacheSize < 1 {
		errs = append(errs, fmt.Errorf("SessionCacheSize must be at least 1, got %d", c.SessionCacheSize))
	}
	if c.SessionTTL < 1 {
		errs = append(errs, fmt.Errorf("SessionTTL must be at least 1 second, got %d", c.SessionTTL))
	}
	if c.ReprojectionCacheSize < 0 || c.ReprojectionCacheTTL < 0 {
		errs = append(errs, errors.New("ReprojectionCacheSize and ReprojectionCacheTTL must not be negative"))
	}
	if c.ShutdownGracePeriod < 0 {
		errs = append(errs, fmt.Errorf("ShutdownGracePeriod must not be negative, got %d", c.ShutdownGracePeriod))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// SessionLifetime is SessionTTL as duration.
func (c Config) SessionLifetime() time.Duration {
	return time.Duration(c.SessionTTL) * time.Second
}

// ReprojectionLifetime is ReprojectionCacheTTL as duration.
func (c Config) ReprojectionLifetime() time.Duration {
	return time.Duration(c.ReprojectionCacheTTL) * time.Second
}

// GracePeriod is ShutdownGracePeriod as duration.
func (c Config) GracePeriod() time.Duration {
	return time.Duration(c.ShutdownGracePeriod) * time.Second
}
