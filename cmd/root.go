package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/bookclub-matcher/internal/cache"
	"github.com/spigell/bookclub-matcher/internal/logger"
)

const (
	app = "bookclub-matcher"
)

type Config struct {
	Roster   *RosterConfig   `mapstructure:"roster"`
	Matching *MatchingConfig `mapstructure:"matching"`
	AI       *AIConfig       `mapstructure:"ai"`
	Cache    *CacheConfig    `mapstructure:"cache"`
	Metrics  *MetricsConfig  `mapstructure:"metrics"`
	Schedule *ScheduleConfig `mapstructure:"schedule"`
}

type RosterConfig struct {
	Path string `mapstructure:"path"`
}

type MatchingConfig struct {
	Mode           string        `mapstructure:"mode"`
	ChunkSize      int           `mapstructure:"chunk-size"`
	ChunkDelay     time.Duration `mapstructure:"chunk-delay"`
	Output         string        `mapstructure:"output"`
	DisabledChecks []string      `mapstructure:"disabled-checks"`
}

type AIConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Gemini  *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type CacheConfig struct {
	Redis *cache.RedisConfig `mapstructure:"redis"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "bookclub-matcher pairs book club members into compatible reading partners",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// godotenv.Load does not override variables that are already set.
	_ = godotenv.Load()

	envs := map[string]string{
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
		"roster.path":            "BOOKCLUB_ROSTER",
		"cache.redis.address":    "BOOKCLUB_REDIS_ADDRESS",
		"cache.redis.password":   "BOOKCLUB_REDIS_PASSWORD",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("matching.mode", "similar")
	viper.SetDefault("matching.chunk-delay", "200ms")
	viper.SetDefault("schedule.cron", "0 9 * * *")

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is bookclub-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// The version command works without a config.
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
		viper.SetConfigType("yaml")
	}

	// An explicit config must parse. Without one the defaults and environment are enough.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func loggerFromFlags() (*zap.Logger, error) {
	return logger.New(viper.GetBool("json"), viper.GetBool("debug"), zap.String("app", app))
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config == nil {
		config = &Config{}
	}
	if config.Roster == nil {
		config.Roster = &RosterConfig{}
	}
	if config.Matching == nil {
		config.Matching = &MatchingConfig{}
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}
	if config.Cache == nil {
		config.Cache = &CacheConfig{}
	}
	if config.Metrics == nil {
		config.Metrics = &MetricsConfig{}
	}
	if config.Schedule == nil {
		config.Schedule = &ScheduleConfig{}
	}

	return config, nil
}
