package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Database DatabaseConfig `mapstructure:"database"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	Debug          bool   `mapstructure:"debug"`
}

// GameConfig collects the match tuning knobs. WinScore is the score
// threshold; WinByTwo additionally requires a two point lead.
type GameConfig struct {
	TickRate         int           `mapstructure:"tick_rate"`
	WinScore         int           `mapstructure:"win_score"`
	WinByTwo         bool          `mapstructure:"win_by_two"`
	CountdownSeconds int           `mapstructure:"countdown_seconds"`
	InviteTTL        time.Duration `mapstructure:"invite_ttl"`
	InviteCooldown   time.Duration `mapstructure:"invite_cooldown"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("server.http_address", ":8080")
	viper.SetDefault("server.metrics_address", ":9090")
	viper.SetDefault("server.rpc_address", ":8081")
	viper.SetDefault("game.tick_rate", 60)
	viper.SetDefault("game.win_score", 5)
	viper.SetDefault("game.win_by_two", false)
	viper.SetDefault("game.countdown_seconds", 3)
	viper.SetDefault("game.invite_ttl", time.Hour)
	viper.SetDefault("game.invite_cooldown", 30*time.Second)

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		// Defaults cover a missing file; anything else is fatal.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	err = viper.Unmarshal(&config)
	return
}
