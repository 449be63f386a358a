// Package config loads the trickplay service configuration from a YAML or
// JSON file, applies environment overrides and derives the values that depend
// on the host (database path, worker counts).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mantonx/trickplay/internal/utils"
	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Trickplay TrickplayConfig `yaml:"trickplay" json:"trickplay"`
	Jobs      JobsConfig      `yaml:"jobs" json:"jobs"`
	Watcher   WatcherConfig   `yaml:"watcher" json:"watcher"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg" json:"ffmpeg"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" env:"TRICKPLAY_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" json:"port" env:"TRICKPLAY_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"TRICKPLAY_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"TRICKPLAY_WRITE_TIMEOUT" default:"30s"`
}

// DatabaseConfig selects the job ledger backend
type DatabaseConfig struct {
	Type         string `yaml:"type" json:"type" env:"DATABASE_TYPE" default:"sqlite"`
	URL          string `yaml:"url" json:"url" env:"DATABASE_URL"`
	DataDir      string `yaml:"data_dir" json:"data_dir" env:"TRICKPLAY_DATA_DIR" default:"./trickplay-data"`
	DatabasePath string `yaml:"database_path" json:"database_path" env:"TRICKPLAY_DATABASE_PATH"`
	LogQueries   bool   `yaml:"log_queries" json:"log_queries" env:"DB_LOG_QUERIES" default:"false"`
}

// TrickplayConfig holds the defaults every generation run starts from.
// Per-run overrides are applied on top of these values.
type TrickplayConfig struct {
	SecondsBetweenFrames float64 `yaml:"seconds_between_frames" json:"seconds_between_frames" env:"TRICKPLAY_INTERVAL" default:"10"`
	FrameWidth           int     `yaml:"frame_width" json:"frame_width" env:"TRICKPLAY_FRAME_WIDTH" default:"320"`
	SheetColumns         int     `yaml:"sheet_columns" json:"sheet_columns" env:"TRICKPLAY_SHEET_COLUMNS" default:"10"`
	SheetRows            int     `yaml:"sheet_rows" json:"sheet_rows" env:"TRICKPLAY_SHEET_ROWS" default:"10"`
	FrameFileFormat      string  `yaml:"frame_file_format" json:"frame_file_format" env:"TRICKPLAY_FRAME_FORMAT" default:"jpg"`
	SheetFileFormat      string  `yaml:"sheet_file_format" json:"sheet_file_format" env:"TRICKPLAY_SHEET_FORMAT" default:"jpg"`
	Quality              int     `yaml:"quality" json:"quality" env:"TRICKPLAY_QUALITY" default:"90"`
	Background           string  `yaml:"background" json:"background" env:"TRICKPLAY_BACKGROUND" default:"#ffffff"`
	Concurrency          int     `yaml:"concurrency" json:"concurrency" env:"TRICKPLAY_CONCURRENCY" default:"0"`
	KeepFrames           bool    `yaml:"keep_frames" json:"keep_frames" env:"TRICKPLAY_KEEP_FRAMES" default:"true"`
	WriteManifest        bool    `yaml:"write_manifest" json:"write_manifest" env:"TRICKPLAY_WRITE_MANIFEST" default:"true"`
}

// JobsConfig controls the background job manager
type JobsConfig struct {
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs" json:"max_concurrent_jobs" env:"TRICKPLAY_MAX_JOBS" default:"2"`
	JobTimeout        time.Duration `yaml:"job_timeout" json:"job_timeout" env:"TRICKPLAY_JOB_TIMEOUT" default:"2h"`
}

// WatcherConfig controls the library watcher
type WatcherConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled" env:"TRICKPLAY_WATCH" default:"false"`
	Directories []string      `yaml:"directories" json:"directories" env:"TRICKPLAY_WATCH_DIRS"`
	SettleDelay time.Duration `yaml:"settle_delay" json:"settle_delay" env:"TRICKPLAY_WATCH_SETTLE" default:"5s"`
}

// FFmpegConfig locates the ffmpeg binaries
type FFmpegConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path" json:"ffmpeg_path" env:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath string `yaml:"ffprobe_path" json:"ffprobe_path" env:"FFPROBE_PATH" default:"ffprobe"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" json:"level" env:"TRICKPLAY_LOG_LEVEL" default:"info"`
	Format       string `yaml:"format" json:"format" env:"TRICKPLAY_LOG_FORMAT" default:"text"`
	Output       string `yaml:"output" json:"output" env:"TRICKPLAY_LOG_OUTPUT" default:"stderr"`
	FilePath     string `yaml:"file_path" json:"file_path" env:"TRICKPLAY_LOG_FILE"`
	EnableColors bool   `yaml:"enable_colors" json:"enable_colors" env:"TRICKPLAY_LOG_COLORS" default:"true"`
}

// ConfigManager manages application configuration
type ConfigManager struct {
	config     *Config
	configPath string
	mu         sync.RWMutex
}

var (
	globalConfigManager *ConfigManager
	configOnce          sync.Once
)

// GetConfigManager returns the global configuration manager instance
func GetConfigManager() *ConfigManager {
	configOnce.Do(func() {
		globalConfigManager = NewConfigManager()
	})
	return globalConfigManager
}

// NewConfigManager creates a configuration manager holding the defaults
func NewConfigManager() *ConfigManager {
	return &ConfigManager{config: DefaultConfig()}
}

// DefaultConfig returns the default application configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: "./trickplay-data",
		},
		Trickplay: TrickplayConfig{
			SecondsBetweenFrames: 10,
			FrameWidth:           320,
			SheetColumns:         10,
			SheetRows:            10,
			FrameFileFormat:      "jpg",
			SheetFileFormat:      "jpg",
			Quality:              90,
			Background:           "#ffffff",
			KeepFrames:           true,
			WriteManifest:        true,
		},
		Jobs: JobsConfig{
			MaxConcurrentJobs: 2,
			JobTimeout:        2 * time.Hour,
		},
		Watcher: WatcherConfig{
			SettleDelay: 5 * time.Second,
		},
		FFmpeg: FFmpegConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "text",
			Output:       "stderr",
			EnableColors: true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables.
// Precedence is defaults < file < environment.
func (cm *ConfigManager) LoadConfig(configPath string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	newConfig := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(configPath, newConfig); err != nil {
			return fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(newConfig).Elem()); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := Validate(newConfig); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDerivedConfig(newConfig)

	cm.config = newConfig
	cm.configPath = configPath
	return nil
}

// GetConfig returns a copy of the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	configCopy := *cm.config
	return &configCopy
}

// SaveConfig writes the current configuration back to the loaded path
func (cm *ConfigManager) SaveConfig() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.configPath == "" {
		return fmt.Errorf("no config path set")
	}
	return saveToFile(cm.configPath, cm.config)
}

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", filepath.Ext(path))
	}
}

func saveToFile(path string, config *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	case ".json":
		data, err = json.MarshalIndent(config, "", "  ")
	default:
		return fmt.Errorf("unsupported config file format: %s", filepath.Ext(path))
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// loadStructFromEnv walks the struct and overrides fields whose env tag is
// set in the environment. Defaults are already in place from DefaultConfig,
// so the default tag is documentation only.
func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue, ok := os.LookupEnv(envTag)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s from %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intVal)
		}
	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatVal)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %v", field.Type())
		}
		values := strings.Split(value, ",")
		for i, v := range values {
			values[i] = strings.TrimSpace(v)
		}
		field.Set(reflect.ValueOf(values))
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

// Validate checks the configuration for values the service cannot run with
func Validate(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Type != "sqlite" && config.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}

	tp := config.Trickplay
	if tp.SecondsBetweenFrames <= 0 {
		return fmt.Errorf("invalid seconds_between_frames: %v", tp.SecondsBetweenFrames)
	}
	if tp.FrameWidth <= 0 || tp.SheetColumns <= 0 || tp.SheetRows <= 0 {
		return fmt.Errorf("invalid grid: frame_width=%d sheet=%dx%d", tp.FrameWidth, tp.SheetColumns, tp.SheetRows)
	}
	if tp.Concurrency < 0 {
		return fmt.Errorf("invalid concurrency: %d", tp.Concurrency)
	}
	if tp.Quality < 1 || tp.Quality > 100 {
		return fmt.Errorf("invalid quality: %d", tp.Quality)
	}

	if config.Jobs.MaxConcurrentJobs < 1 {
		return fmt.Errorf("invalid max_concurrent_jobs: %d", config.Jobs.MaxConcurrentJobs)
	}

	return nil
}

func applyDerivedConfig(config *Config) {
	if config.Database.DatabasePath == "" && config.Database.Type == "sqlite" {
		config.Database.DatabasePath = filepath.Join(config.Database.DataDir, "trickplay.db")
	}

	if config.Trickplay.Concurrency == 0 {
		config.Trickplay.Concurrency = min(max(1, utils.CPUCount()), 16)
	}
}

// Get returns the current global configuration
func Get() *Config {
	return GetConfigManager().GetConfig()
}

// Load loads the global configuration from the specified path
func Load(configPath string) error {
	return GetConfigManager().LoadConfig(configPath)
}

// Save saves the global configuration
func Save() error {
	return GetConfigManager().SaveConfig()
}
