package config

import (
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rapidaai/pkg/configs"
	"github.com/spf13/viper"
)

// Application config structure
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogPath  string `mapstructure:"log_path"`

	// RecordingDir is where partial and finished recordings are stored.
	RecordingDir string `mapstructure:"recording_dir" validate:"required"`

	// Reassembly engine tuning.
	ReorderCapacity      int           `mapstructure:"reorder_capacity" validate:"gt=0"`
	MaxSessions          int           `mapstructure:"max_sessions" validate:"gt=0"`
	StaleAfter           time.Duration `mapstructure:"stale_after" validate:"required"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval" validate:"required"`
	FallbackChunkSize    int           `mapstructure:"fallback_chunk_size" validate:"gt=0"`
	ReuseExistingOnStart bool          `mapstructure:"reuse_existing_on_start"`

	// Completion events go to Redis when a channel is configured; otherwise
	// they are logged only.
	CompletionChannel string              `mapstructure:"completion_channel"`
	RedisConfig       configs.RedisConfig `mapstructure:"redis"`
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	//
	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env varaibles.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// setting all default values
	// keeping watch on https://github.com/spf13/viper/issues/188

	v.SetDefault("SERVICE_NAME", "device-api")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 9090)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_PATH", "")

	v.SetDefault("RECORDING_DIR", "recordings")
	v.SetDefault("REORDER_CAPACITY", 256)
	v.SetDefault("MAX_SESSIONS", 512)
	v.SetDefault("STALE_AFTER", "2m")
	v.SetDefault("SWEEP_INTERVAL", "30s")
	v.SetDefault("FALLBACK_CHUNK_SIZE", 3200)
	v.SetDefault("REUSE_EXISTING_ON_START", false)

	v.SetDefault("COMPLETION_CHANNEL", "")
	v.SetDefault("REDIS__HOST", "localhost")
	v.SetDefault("REDIS__PORT", 6379)
	v.SetDefault("REDIS__PASSWORD", "")
	v.SetDefault("REDIS__DATABASE", 0)
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// valdating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
