package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port        string `mapstructure:"port"`
		MetricsPort string `mapstructure:"metrics_port"`
		TempDir     string `mapstructure:"temp_dir"`
	} `mapstructure:"server"`
	Storage struct {
		Provider      string `mapstructure:"provider"` // "local" or "s3"
		LocalRoot     string `mapstructure:"local_root"`
		KeyID         string `mapstructure:"key_id"`
		AppKey        string `mapstructure:"app_key"`
		Endpoint      string `mapstructure:"endpoint"`
		Region        string `mapstructure:"region"`
		BucketArchive string `mapstructure:"bucket_archive"`
		BucketAssets  string `mapstructure:"bucket_assets"`
	} `mapstructure:"storage"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Ingest struct {
		Bitrate      string `mapstructure:"bitrate"`
		SampleRate   string `mapstructure:"sample_rate"`
		TempoCommand string `mapstructure:"tempo_command"`
		TempoRetryMS int    `mapstructure:"tempo_retry_ms"`
	} `mapstructure:"ingest"`
	Presence struct {
		TTLMS        int `mapstructure:"ttl_ms"`
		SweepSeconds int `mapstructure:"sweep_seconds"`
	} `mapstructure:"presence"`
	Player struct {
		PollSeconds            int     `mapstructure:"poll_seconds"`
		ResyncSeconds          int     `mapstructure:"resync_seconds"`
		HeartbeatSeconds       int     `mapstructure:"heartbeat_seconds"`
		DriftThresholdSeconds  float64 `mapstructure:"drift_threshold_seconds"`
		MetadataTimeoutSeconds int     `mapstructure:"metadata_timeout_seconds"`
	} `mapstructure:"player"`
}

func Load() *Config {
	viper.SetEnvPrefix("OFFLEY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Register keys
	viper.BindEnv("server.port")
	viper.BindEnv("server.metrics_port")
	viper.BindEnv("server.temp_dir")

	viper.BindEnv("storage.provider")
	viper.BindEnv("storage.local_root")
	viper.BindEnv("storage.key_id")
	viper.BindEnv("storage.app_key")
	viper.BindEnv("storage.endpoint")
	viper.BindEnv("storage.region")
	viper.BindEnv("storage.bucket_archive")
	viper.BindEnv("storage.bucket_assets")

	viper.BindEnv("database.path")

	viper.BindEnv("ingest.bitrate")
	viper.BindEnv("ingest.sample_rate")
	viper.BindEnv("ingest.tempo_command")
	viper.BindEnv("ingest.tempo_retry_ms")

	viper.BindEnv("presence.ttl_ms")
	viper.BindEnv("presence.sweep_seconds")

	viper.BindEnv("player.poll_seconds")
	viper.BindEnv("player.resync_seconds")
	viper.BindEnv("player.heartbeat_seconds")
	viper.BindEnv("player.drift_threshold_seconds")
	viper.BindEnv("player.metadata_timeout_seconds")

	// Defaults
	viper.SetDefault("server.port", ":8080")
	viper.SetDefault("server.metrics_port", ":9091")
	viper.SetDefault("server.temp_dir", "/tmp/")

	viper.SetDefault("storage.provider", "local")
	viper.SetDefault("storage.local_root", "./data")
	viper.SetDefault("storage.bucket_archive", "offley-archive")
	viper.SetDefault("storage.bucket_assets", "offley-assets")

	viper.SetDefault("database.path", "offley.db")

	// Transcoder contract: fixed bitrate, fixed sample rate, stereo.
	viper.SetDefault("ingest.bitrate", "128k")
	viper.SetDefault("ingest.sample_rate", "44100")
	viper.SetDefault("ingest.tempo_command", "estimate_bpm")
	viper.SetDefault("ingest.tempo_retry_ms", 1200)

	// 45s TTL with a 15s heartbeat tolerates two missed beats.
	viper.SetDefault("presence.ttl_ms", 45000)
	viper.SetDefault("presence.sweep_seconds", 10)

	viper.SetDefault("player.poll_seconds", 30)
	viper.SetDefault("player.resync_seconds", 30)
	viper.SetDefault("player.heartbeat_seconds", 15)
	viper.SetDefault("player.drift_threshold_seconds", 0.9)
	viper.SetDefault("player.metadata_timeout_seconds", 10)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: Config error: %s", err)
		} else {
			log.Println("Info: config.yaml not found, using Environment Variables only.")
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode config: %v", err)
	}

	if cfg.Storage.Provider == "s3" && cfg.Storage.KeyID == "" {
		log.Fatal("Critical: storage KeyID is missing (OFFLEY_STORAGE_KEY_ID)")
	}

	return &cfg
}
