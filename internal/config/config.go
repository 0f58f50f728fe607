package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the job master's fully resolved configuration, loaded through
// Viper with environment-variable overrides, mirroring the teacher's
// Load/setDefaults shape.
type Config struct {
	Server     ServerConfig
	JobMaster  JobMasterConfig
	Redis      RedisConfig
	Metrics    MetricsConfig
	Auth       AuthConfig
	DemoWorker DemoWorkerConfig
	LogLevel   string
}

// ServerConfig binds the HTTP transport (component N).
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimitRPS int
}

// JobMasterConfig binds the §6 parameters that govern the kernel's
// admission and liveness behavior.
type JobMasterConfig struct {
	JobCapacity            int
	FinishedJobRetention   time.Duration
	FinishedJobPurgeCount  int
	FinishedJobHistorySize int
	LostWorkerInterval     time.Duration
	WorkerTimeout          time.Duration
}

// RedisConfig binds the optional live-status feed's publisher (component
// O); unreachable Redis degrades the feed, never the kernel.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Channel      string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MetricsConfig toggles the /metrics Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// AuthConfig toggles the shared-secret API-key gate; the spec treats
// identity providers as external, so this stays a thin optional switch.
type AuthConfig struct {
	Enabled bool
	APIKeys []string
}

// DemoWorkerConfig binds the reference worker process's connection to the
// job master and its execution concurrency.
type DemoWorkerConfig struct {
	ServerURL         string
	APIKey            string
	Host              string
	RPCPort           int
	Concurrency       int
	HeartbeatInterval time.Duration
	TaskTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// Load reads job master configuration from (in order) defaults, an
// optional config file, then JOBMASTER_-prefixed environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/jobmaster")

	setDefaults()

	viper.SetEnvPrefix("JOBMASTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)
	viper.SetDefault("server.ratelimitrps", 0)

	viper.SetDefault("jobmaster.jobcapacity", 100)
	viper.SetDefault("jobmaster.finishedjobretention", 5*time.Minute)
	viper.SetDefault("jobmaster.finishedjobpurgecount", 10)
	viper.SetDefault("jobmaster.finishedjobhistorysize", 256)
	viper.SetDefault("jobmaster.lostworkerinterval", 10*time.Second)
	viper.SetDefault("jobmaster.workertimeout", 30*time.Second)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.channel", "jobmaster:events")
	viper.SetDefault("redis.dialtimeout", 5*time.Second)
	viper.SetDefault("redis.readtimeout", 3*time.Second)
	viper.SetDefault("redis.writetimeout", 3*time.Second)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.apikeys", []string{})

	viper.SetDefault("demoworker.serverurl", "http://localhost:8080")
	viper.SetDefault("demoworker.apikey", "")
	viper.SetDefault("demoworker.host", "localhost")
	viper.SetDefault("demoworker.rpcport", 9000)
	viper.SetDefault("demoworker.concurrency", 4)
	viper.SetDefault("demoworker.heartbeatinterval", 5*time.Second)
	viper.SetDefault("demoworker.tasktimeout", 30*time.Second)
	viper.SetDefault("demoworker.shutdowntimeout", 10*time.Second)

	viper.SetDefault("loglevel", "info")
}
