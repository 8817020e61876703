package config

import (
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Fallback sqlite path used when DATABASE_URL is empty.
	DatabasePath string `mapstructure:"DATABASE_PATH"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     string `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	MailFrom     string `mapstructure:"MAIL_FROM"`

	DiscordBotToken     string `mapstructure:"DISCORD_BOT_TOKEN"`
	DiscordOpsChannelID string `mapstructure:"DISCORD_OPS_CHANNEL_ID"`

	UploadDir  string `mapstructure:"UPLOAD_DIR"`
	EnableCORS bool   `mapstructure:"ENABLE_CORS"`
}

func LoadConfig() *Config {
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DATABASE_PATH", "immersup.db")
	viper.SetDefault("SMTP_PORT", "25")
	viper.SetDefault("MAIL_FROM", "no-reply@immersup.example")
	viper.SetDefault("UPLOAD_DIR", "uploads")

	viper.BindEnv("DATABASE_URL")
	viper.BindEnv("REDIS_ADDR")
	viper.BindEnv("REDIS_PASSWORD")
	viper.BindEnv("JWT_SECRET")
	viper.BindEnv("SMTP_HOST")
	viper.BindEnv("SMTP_USER")
	viper.BindEnv("SMTP_PASSWORD")
	viper.BindEnv("DISCORD_BOT_TOKEN")
	viper.BindEnv("DISCORD_OPS_CHANNEL_ID")
	viper.BindEnv("UPLOAD_DIR")
	viper.BindEnv("ENABLE_CORS")

	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	return &config
}
