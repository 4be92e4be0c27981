// Package agentconfig loads the device agent settings from an optional YAML
// file, FITTRACK_* environment variables and command-line flags.
package agentconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"example.com/fittrack/internal/offline/queue"
	"example.com/fittrack/pkg/workout"
)

// Keys shared by the YAML file, the environment and the flags.
const (
	KeyServerURL        = "server_url"
	KeyToken            = "token"
	KeyQueuePath        = "queue_path"
	KeyConnectivityFile = "connectivity_file"
	KeySyncInterval     = "sync_interval"
	KeyMaxBatchSize     = "max_batch_size"
	KeyRetention        = "retention"
	KeySweepInterval    = "sweep_interval"
	KeyRequestTimeout   = "request_timeout"
	KeyLogLevel         = "log_level"
	KeyLogFile          = "log_file"
	KeyLogJSON          = "log_json"
	KeyMetricsAddress   = "metrics_address"
)

const (
	envPrefix  = "FITTRACK"
	configName = "fittrack-agent"
)

// Config holds the agent runtime settings.
type Config struct {
	ServerURL        string
	Token            string
	QueuePath        string
	ConnectivityFile string
	SyncInterval     time.Duration
	MaxBatchSize     int
	Retention        time.Duration
	SweepInterval    time.Duration
	RequestTimeout   time.Duration
	LogLevel         string
	LogFile          string
	LogJSON          bool
	MetricsAddress   string
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyQueuePath, defaultQueuePath())
	v.SetDefault(KeySyncInterval, 30*time.Second)
	v.SetDefault(KeyMaxBatchSize, workout.MaxBatchSize)
	v.SetDefault(KeyRetention, queue.DefaultRetention)
	v.SetDefault(KeySweepInterval, time.Hour)
	v.SetDefault(KeyRequestTimeout, 15*time.Second)
	v.SetDefault(KeyLogLevel, "info")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile, or fittrack-agent.yaml from the working directory or
// the user config directory when configFile is empty, and decodes v.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "fittrack"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read agent config: %w", err)
		}
	}

	cfg := Config{
		ServerURL:        strings.TrimSpace(v.GetString(KeyServerURL)),
		Token:            v.GetString(KeyToken),
		QueuePath:        v.GetString(KeyQueuePath),
		ConnectivityFile: v.GetString(KeyConnectivityFile),
		SyncInterval:     v.GetDuration(KeySyncInterval),
		MaxBatchSize:     v.GetInt(KeyMaxBatchSize),
		Retention:        v.GetDuration(KeyRetention),
		SweepInterval:    v.GetDuration(KeySweepInterval),
		RequestTimeout:   v.GetDuration(KeyRequestTimeout),
		LogLevel:         v.GetString(KeyLogLevel),
		LogFile:          v.GetString(KeyLogFile),
		LogJSON:          v.GetBool(KeyLogJSON),
		MetricsAddress:   v.GetString(KeyMetricsAddress),
	}
	return cfg, cfg.validate()
}

// RequireServer reports an error when no usable server URL is configured.
func (c Config) RequireServer() error {
	if c.ServerURL == "" {
		return fmt.Errorf("%s is required", KeyServerURL)
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", KeyServerURL, c.ServerURL)
	}
	return nil
}

func (c Config) validate() error {
	if c.QueuePath == "" {
		return fmt.Errorf("%s is required", KeyQueuePath)
	}
	if c.MaxBatchSize <= 0 || c.MaxBatchSize > workout.MaxBatchSize {
		return fmt.Errorf("%s must be between 1 and %d", KeyMaxBatchSize, workout.MaxBatchSize)
	}
	for key, d := range map[string]time.Duration{
		KeySyncInterval:   c.SyncInterval,
		KeyRetention:      c.Retention,
		KeySweepInterval:  c.SweepInterval,
		KeyRequestTimeout: c.RequestTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func defaultQueuePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "fittrack-queue.db"
	}
	return filepath.Join(dir, "fittrack", "queue.db")
}
