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

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Database configuration
	Database DatabaseFullConfig `yaml:"database" json:"database"`

	// SCORM package handling
	Content ContentConfig `yaml:"content" json:"content"`

	// Completion write-back
	Completion CompletionConfig `yaml:"completion" json:"completion"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host           string        `yaml:"host" json:"host" env:"SCORMBRIDGE_HOST" default:"0.0.0.0"`
	Port           int           `yaml:"port" json:"port" env:"SCORMBRIDGE_PORT" default:"8080"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout" env:"SCORMBRIDGE_READ_TIMEOUT" default:"30s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout" env:"SCORMBRIDGE_WRITE_TIMEOUT" default:"30s"`
	MaxHeaderBytes int           `yaml:"max_header_bytes" json:"max_header_bytes" env:"SCORMBRIDGE_MAX_HEADER_BYTES" default:"1048576"`
	EnableCORS     bool          `yaml:"enable_cors" json:"enable_cors" env:"SCORMBRIDGE_ENABLE_CORS" default:"true"`
	TrustedProxies []string      `yaml:"trusted_proxies" json:"trusted_proxies" env:"SCORMBRIDGE_TRUSTED_PROXIES"`
}

// DatabaseFullConfig holds database connection options
type DatabaseFullConfig struct {
	Type            string        `yaml:"type" json:"type" env:"DATABASE_TYPE" default:"sqlite"`
	URL             string        `yaml:"url" json:"url" env:"DATABASE_URL"`
	Host            string        `yaml:"host" json:"host" env:"POSTGRES_HOST" default:"localhost"`
	Port            int           `yaml:"port" json:"port" env:"POSTGRES_PORT" default:"5432"`
	Username        string        `yaml:"username" json:"username" env:"POSTGRES_USER" default:"scormbridge"`
	Password        string        `yaml:"password" json:"-" env:"POSTGRES_PASSWORD"`
	Database        string        `yaml:"database" json:"database" env:"POSTGRES_DB" default:"scormbridge"`
	DataDir         string        `yaml:"data_dir" json:"data_dir" env:"SCORMBRIDGE_DATA_DIR" default:"./data"`
	DatabasePath    string        `yaml:"database_path" json:"database_path" env:"SCORMBRIDGE_DATABASE_PATH"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" env:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" default:"2h"`
	LogQueries      bool          `yaml:"log_queries" json:"log_queries" env:"DB_LOG_QUERIES" default:"false"`
}

// ContentConfig controls package intake and the load pipeline
type ContentConfig struct {
	PackageDir     string        `yaml:"package_dir" json:"package_dir" env:"SCORMBRIDGE_PACKAGE_DIR"`
	WatchPackages  bool          `yaml:"watch_packages" json:"watch_packages" env:"SCORMBRIDGE_WATCH_PACKAGES" default:"false"`
	MaxPackageSize int64         `yaml:"max_package_size" json:"max_package_size" env:"SCORMBRIDGE_MAX_PACKAGE_SIZE" default:"524288000"`
	MaxEntrySize   int64         `yaml:"max_entry_size" json:"max_entry_size" env:"SCORMBRIDGE_MAX_ENTRY_SIZE" default:"104857600"`
	LoadTimeout    time.Duration `yaml:"load_timeout" json:"load_timeout" env:"SCORMBRIDGE_LOAD_TIMEOUT" default:"60s"`
}

// CompletionConfig controls the asynchronous completion writes
type CompletionConfig struct {
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"SCORMBRIDGE_COMPLETION_WRITE_TIMEOUT" default:"10s"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level" env:"SCORMBRIDGE_LOG_LEVEL" default:"info"`
	Format   string `yaml:"format" json:"format" env:"SCORMBRIDGE_LOG_FORMAT" default:"text"`
	Output   string `yaml:"output" json:"output" env:"SCORMBRIDGE_LOG_OUTPUT" default:"stdout"`
	FilePath string `yaml:"file_path" json:"file_path" env:"SCORMBRIDGE_LOG_FILE"`
}

// ConfigManager manages application configuration with reload support
type ConfigManager struct {
	config     *Config
	configPath string
	watchers   []ConfigWatcher
	mu         sync.RWMutex
}

// ConfigWatcher is called when configuration changes
type ConfigWatcher func(oldConfig, newConfig *Config)

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

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		config:   DefaultConfig(),
		watchers: make([]ConfigWatcher, 0),
	}
}

// DefaultConfig returns the default application configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxHeaderBytes: 1 << 20, // 1MB
			EnableCORS:     true,
			TrustedProxies: []string{},
		},
		Database: DatabaseFullConfig{
			Type:            "sqlite",
			Host:            "localhost",
			Port:            5432,
			Username:        "scormbridge",
			Database:        "scormbridge",
			DataDir:         "./data",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 2 * time.Hour,
		},
		Content: ContentConfig{
			WatchPackages:  false,
			MaxPackageSize: 500 * 1024 * 1024, // 500MB
			MaxEntrySize:   100 * 1024 * 1024, // 100MB
			LoadTimeout:    60 * time.Second,
		},
		Completion: CompletionConfig{
			WriteTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func (cm *ConfigManager) LoadConfig(configPath string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	oldConfig := *cm.config
	cm.configPath = configPath

	newConfig := DefaultConfig()

	if configPath != "" && fileExists(configPath) {
		if err := cm.loadFromFile(configPath, newConfig); err != nil {
			return fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Environment wins over the file
	if err := cm.loadFromEnv(newConfig); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := validateConfig(newConfig); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDerivedConfig(newConfig)

	cm.config = newConfig

	for _, watcher := range cm.watchers {
		go watcher(&oldConfig, newConfig)
	}

	return nil
}

// GetConfig returns the current configuration (thread-safe)
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	// Return a copy to prevent external modifications
	configCopy := *cm.config
	return &configCopy
}

// ConfigPath returns the path the configuration was last loaded from
func (cm *ConfigManager) ConfigPath() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.configPath
}

// AddWatcher adds a configuration change watcher
func (cm *ConfigManager) AddWatcher(watcher ConfigWatcher) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.watchers = append(cm.watchers, watcher)
}

// SaveConfig saves the current configuration to file
func (cm *ConfigManager) SaveConfig() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.configPath == "" {
		return fmt.Errorf("no config path set")
	}

	return saveToFile(cm.configPath, cm.config)
}

func (cm *ConfigManager) loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

func saveToFile(path string, config *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	var data []byte
	var err error

	switch ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	case ".json":
		data, err = json.MarshalIndent(config, "", "  ")
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (cm *ConfigManager) loadFromEnv(config *Config) error {
	return loadStructFromEnv(reflect.ValueOf(config).Elem())
}

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

		envValue := os.Getenv(envTag)
		if envValue == "" && field.IsZero() && field.Kind() != reflect.Bool {
			// The default only fills a gap; it never overrides the file.
			// A false bool is indistinguishable from unset.
			envValue = fieldType.Tag.Get("default")
		}

		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s: %w", fieldType.Name, err)
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
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			values := strings.Split(value, ",")
			for i, v := range values {
				values[i] = strings.TrimSpace(v)
			}
			field.Set(reflect.ValueOf(values))
		}
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

func validateConfig(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Type != "sqlite" && config.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}

	if config.Content.MaxPackageSize <= 0 {
		return fmt.Errorf("invalid max package size: %d", config.Content.MaxPackageSize)
	}

	if config.Content.MaxEntrySize <= 0 {
		return fmt.Errorf("invalid max entry size: %d", config.Content.MaxEntrySize)
	}

	if config.Completion.WriteTimeout <= 0 {
		return fmt.Errorf("invalid completion write timeout: %s", config.Completion.WriteTimeout)
	}

	switch strings.ToLower(config.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format: %s", config.Logging.Format)
	}

	return nil
}

func applyDerivedConfig(config *Config) {
	if config.Database.DatabasePath == "" && config.Database.Type == "sqlite" {
		config.Database.DatabasePath = filepath.Join(config.Database.DataDir, "scormbridge.db")
	}

	if config.Content.PackageDir == "" {
		config.Content.PackageDir = filepath.Join(config.Database.DataDir, "packages")
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Global convenience functions

// Get returns the current global configuration
func Get() *Config {
	return GetConfigManager().GetConfig()
}

// Load loads configuration from the specified path
func Load(configPath string) error {
	return GetConfigManager().LoadConfig(configPath)
}

// AddWatcher adds a global configuration watcher
func AddWatcher(watcher ConfigWatcher) {
	GetConfigManager().AddWatcher(watcher)
}

// Save saves the current configuration
func Save() error {
	return GetConfigManager().SaveConfig()
}
