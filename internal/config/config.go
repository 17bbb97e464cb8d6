package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Recording struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
	FPS    int `mapstructure:"fps"`
}

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	StaticPath   string        `mapstructure:"static_path"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	Secret       string        `mapstructure:"secret"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"`
	RoomCapacity int           `mapstructure:"room_capacity"`
	StunURLs     []string      `mapstructure:"stun_urls"`
	Recording    Recording     `mapstructure:"recording"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "huddle-dev-secret")
	v.SetDefault("call_timeout", "45s")
	// Full mesh: O(n^2) peer connections per room. Past 8 participants this
	// needs an SFU, which is a different architecture.
	v.SetDefault("room_capacity", 8)
	v.SetDefault("stun_urls", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("recording.width", 1280)
	v.SetDefault("recording.height", 720)
	v.SetDefault("recording.fps", 24)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Room cap: %d\n", cfg.Mode, cfg.Port, cfg.RoomCapacity)
	return &cfg, nil
}
