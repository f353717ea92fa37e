package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLightTileURL         = "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png"
	DefaultLightTileAttribution = `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors, &copy; <a href="https://carto.com/attributions">CartoDB</a>`
	DefaultDarkTileURL          = "https://tile.jawg.io/jawg-dark/{z}/{x}/{y}{r}.png?access-token={accessToken}"
	DefaultDarkTileAttribution  = `<a href="https://jawg.io" title="Tiles Courtesy of Jawg Maps" target="_blank">&copy; <b>Jawg</b>Maps</a> &copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> Contributors`
)

type TileConfig struct {
	URL         string `yaml:"url" validate:"required"`
	Attribution string `yaml:"attribution"`
}

type MapConfig struct {
	CenterLat   float64    `yaml:"center_lat" validate:"gte=-90,lte=90"`
	CenterLon   float64    `yaml:"center_lon" validate:"gte=-180,lte=180"`
	DefaultZoom int        `yaml:"default_zoom" validate:"gte=0,lte=22"`
	LightTiles  TileConfig `yaml:"light_tiles"`
	DarkTiles   TileConfig `yaml:"dark_tiles"`
}

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string        `validate:"required"`
	ReadTimeout     time.Duration `validate:"gte=0"`
	WriteTimeout    time.Duration `validate:"gte=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	GTFSBaseURL         string `validate:"required,url"`
	GTFSStopsFile       string `validate:"required"`
	GTFSRoutesFile      string `validate:"required"`
	GTFSDir             string
	GTFSFetchTimeout    time.Duration `validate:"gte=0"`
	GTFSRefreshInterval time.Duration `validate:"gte=0"`

	Map MapConfig

	RedisEnabled   bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int           `validate:"gte=0"`
	CacheTTL       time.Duration `validate:"gte=0"`
	LocalCacheSize int           `validate:"gt=0"`

	RateLimitPerWindow int           `validate:"gt=0"`
	RateLimitWindow    time.Duration `validate:"gt=0"`
	RateLimitWhitelist []string

	CORSAllowedOrigins []string
	WSSendBuffer       int `validate:"gt=0"`
}

// Load reads .env files, the environment and the optional map overlay file,
// then validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	return load()
}

func load() (*Config, error) {
	addr := getEnv("HTTP_ADDR", ":8080")

	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        addr,
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		GTFSBaseURL:         getEnv("GTFS_BASE_URL", defaultGTFSBaseURL(addr)),
		GTFSStopsFile:       getEnv("GTFS_STOPS_FILE", "stops.txt"),
		GTFSRoutesFile:      getEnv("GTFS_ROUTES_FILE", "routes.txt"),
		GTFSDir:             getEnv("GTFS_DIR", "public/gtfs"),
		GTFSFetchTimeout:    getDurationEnv("GTFS_FETCH_TIMEOUT", 0),
		GTFSRefreshInterval: getDurationEnv("GTFS_REFRESH_INTERVAL", 0),

		Map: MapConfig{
			CenterLat:   getFloatEnv("MAP_CENTER_LAT", -23.5505),
			CenterLon:   getFloatEnv("MAP_CENTER_LON", -46.6333),
			DefaultZoom: getIntEnv("MAP_DEFAULT_ZOOM", 18),
			LightTiles: TileConfig{
				URL:         getEnv("TILE_LIGHT_URL", DefaultLightTileURL),
				Attribution: getEnv("TILE_LIGHT_ATTRIBUTION", DefaultLightTileAttribution),
			},
			DarkTiles: TileConfig{
				URL:         getEnv("TILE_DARK_URL", DefaultDarkTileURL),
				Attribution: getEnv("TILE_DARK_ATTRIBUTION", DefaultDarkTileAttribution),
			},
		},

		RedisEnabled:   getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getIntEnv("REDIS_DB", 0),
		CacheTTL:       getDurationEnv("CACHE_TTL", 24*time.Hour),
		LocalCacheSize: getIntEnv("LOCAL_CACHE_SIZE", 64),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),

		CORSAllowedOrigins: getCSVEnv("CORS_ALLOWED_ORIGINS"),
		WSSendBuffer:       getIntEnv("WS_SEND_BUFFER", 64),
	}

	if path := os.Getenv("MAP_CONFIG_FILE"); path != "" {
		if err := cfg.Map.overlay(path); err != nil {
			return nil, err
		}
	}

	cfg.Map.DarkTiles.URL = expandAccessToken(cfg.Map.DarkTiles.URL, os.Getenv("JAWG_ACCESS_TOKEN"))

	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// overlay replaces map settings with the ones present in a YAML file.
// Keys absent from the file keep their current values.
func (m *MapConfig) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read map config: %w", err)
	}

	var file struct {
		Map MapConfig `yaml:"map"`
	}
	file.Map = *m
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse map config %s: %w", path, err)
	}
	*m = file.Map
	return nil
}

func expandAccessToken(url, token string) string {
	return strings.ReplaceAll(url, "{accessToken}", token)
}

// defaultGTFSBaseURL points the loader at this server's own static /gtfs
// directory.
func defaultGTFSBaseURL(addr string) string {
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host + "/gtfs"
}

// ValidationErrors lists failing fields, or nil when err is not a
// validation error
func ValidationErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fe.Namespace()+" "+fe.Tag())
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
