// Package config loads runtime configuration from defaults, an optional YAML
// file, a .env file and ROUTEOPS_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"routeops/internal/gateway"
	"routeops/internal/models"
)

// EnvPrefix is prepended to every environment override, e.g. ROUTEOPS_API_BASE_URL
const EnvPrefix = "ROUTEOPS"

// Config holds application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	API      APIConfig      `mapstructure:"api"`
	Sample   SampleConfig   `mapstructure:"sample"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
	History  HistoryConfig  `mapstructure:"history"`
}

// ServerConfig holds the local HTTP listener settings
type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// APIConfig points at the optimization service
type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url" validate:"omitempty,url"`
	HealthTimeout time.Duration `mapstructure:"health_timeout" validate:"gt=0"`
	SolveTimeout  time.Duration `mapstructure:"solve_timeout" validate:"gt=0"`
}

// SampleConfig controls generated demo stops
type SampleConfig struct {
	Count     int     `mapstructure:"count" validate:"gte=1,lte=1000"`
	RadiusKm  float64 `mapstructure:"radius_km" validate:"gt=0"`
	CenterLat float64 `mapstructure:"center_lat" validate:"gte=-90,lte=90"`
	CenterLng float64 `mapstructure:"center_lng" validate:"gte=-180,lte=180"`
}

// DefaultsConfig seeds the problem settings of a new session
type DefaultsConfig struct {
	Vehicles       int    `mapstructure:"vehicles" validate:"gte=1,lte=50"`
	Capacity       int    `mapstructure:"capacity" validate:"gte=1"`
	DistanceMetric string `mapstructure:"distance_metric" validate:"oneof=haversine osrm"`
	Objective      string `mapstructure:"objective" validate:"oneof=distance time"`
}

// HistoryConfig selects where solve attempts are logged
type HistoryConfig struct {
	DSN string `mapstructure:"dsn" validate:"required"`
}

// Settings converts the defaults into problem settings
func (d DefaultsConfig) Settings() models.ProblemSettings {
	return models.ProblemSettings{
		Vehicles:       d.Vehicles,
		Capacity:       d.Capacity,
		DistanceMetric: models.DistanceMetric(d.DistanceMetric),
		Objective:      models.Objective(d.Objective),
	}
}

// Center returns the sample center as coordinates
func (s SampleConfig) Center() models.Coordinates {
	return models.Coordinates{Lat: s.CenterLat, Lng: s.CenterLng}
}

// Gateway returns the client configuration for the optimization service
func (a APIConfig) Gateway() gateway.Config {
	return gateway.Config{
		BaseURL:       a.BaseURL,
		HealthTimeout: a.HealthTimeout,
		SolveTimeout:  a.SolveTimeout,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.health_timeout", gateway.DefaultHealthTimeout)
	v.SetDefault("api.solve_timeout", gateway.DefaultSolveTimeout)
	v.SetDefault("sample.count", 10)
	v.SetDefault("sample.radius_km", 8.0)
	v.SetDefault("sample.center_lat", 39.9334)
	v.SetDefault("sample.center_lng", 32.8597)
	v.SetDefault("defaults.vehicles", 3)
	v.SetDefault("defaults.capacity", 100)
	v.SetDefault("defaults.distance_metric", string(models.DistanceMetricHaversine))
	v.SetDefault("defaults.objective", string(models.ObjectiveDistance))
	v.SetDefault("history.dsn", ":memory:")
}

// Load reads .env, then the config file named by ROUTEOPS_CONFIG or
// ~/.routeops/config.yaml when present, then environment overrides.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("[CONFIG] No .env file found (using environment variables)")
	}

	configPath := os.Getenv(EnvPrefix + "_CONFIG")
	if configPath == "" {
		if p, err := GetConfigFilePath(); err == nil {
			configPath = p
		}
	}
	return LoadFile(configPath)
}

// LoadFile is Load without .env handling, reading the given YAML file if it exists
func LoadFile(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			log.Printf("[CONFIG] Loaded config file: path=%s", path)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.API.BaseURL = gateway.NormalizeBaseURL(c.API.BaseURL)

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	log.Printf("[CONFIG] Configuration ready: addr=%s base_url=%q solve_timeout=%v", c.Server.Addr, c.API.BaseURL, c.API.SolveTimeout)
	return c, nil
}

var validate = validator.New()

// Validate checks value ranges
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}
