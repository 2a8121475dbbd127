package util

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variable.
type Config struct {
	Environment       string   `mapstructure:"ENVIRONMENT"`
	AllowedOrigins    []string `mapstructure:"ALLOWED_ORIGINS"`
	DBSource          string   `mapstructure:"DB_SOURCE"`
	MigrationURL      string   `mapstructure:"MIGRATION_URL"`
	RedisAddress      string   `mapstructure:"REDIS_ADDRESS"`
	RedisPassword     string   `mapstructure:"REDIS_PASSWORD"`
	HTTPServerAddress string   `mapstructure:"HTTP_SERVER_ADDRESS"`

	// 高德地图配置
	AMapKey string `mapstructure:"AMAP_KEY"` // 高德 WebService API Key，空则禁用驾车ETA与IP定位

	// 调度参数
	DispatchSpeedKmh          float64       `mapstructure:"DISPATCH_SPEED_KMH"`            // 骑手平均速度，默认 18
	DispatchMaxDistanceMeters float64       `mapstructure:"DISPATCH_MAX_DISTANCE_METERS"`  // 候选单最大直线距离，默认 3000
	DispatchCapacityPerRider  int           `mapstructure:"DISPATCH_CAPACITY_PER_RIDER"`   // 全局派单单骑手容量，默认 3
	DispatchETALookupLimit    int           `mapstructure:"DISPATCH_ETA_LOOKUP_LIMIT"`     // 单骑手精确ETA查询上限，默认 50
	AMapETAQPS                float64       `mapstructure:"AMAP_ETA_QPS"`                  // 高德路径规划限速，默认 3
	GlobalDispatchCron        string        `mapstructure:"GLOBAL_DISPATCH_CRON"`          // 全局派单定时表达式，空则不启用
	HTTPRequestTimeout        time.Duration `mapstructure:"HTTP_REQUEST_TIMEOUT"`          // 请求级超时，默认 30s
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Normalize common quoted values from .env (e.g. REDIS_PASSWORD="...")
	config.RedisPassword = trimOptionalQuotes(config.RedisPassword)
	config.AMapKey = trimOptionalQuotes(config.AMapKey)

	applyDefaults(&config)
	return
}

func applyDefaults(config *Config) {
	if config.DispatchSpeedKmh <= 0 {
		config.DispatchSpeedKmh = 18
	}
	if config.DispatchMaxDistanceMeters <= 0 {
		config.DispatchMaxDistanceMeters = 3000
	}
	if config.DispatchCapacityPerRider <= 0 {
		config.DispatchCapacityPerRider = 3
	}
	if config.DispatchETALookupLimit <= 0 {
		config.DispatchETALookupLimit = 50
	}
	if config.AMapETAQPS <= 0 {
		config.AMapETAQPS = 3
	}
	if config.HTTPRequestTimeout <= 0 {
		config.HTTPRequestTimeout = 30 * time.Second
	}
}

func trimOptionalQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "\"")
	s = strings.TrimSuffix(s, "\"")
	s = strings.TrimPrefix(s, "'")
	s = strings.TrimSuffix(s, "'")
	return s
}
