package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var once sync.Once

var required = []string{
	"telegram_token",
	"allowed_user_id",
	"mexc_api_key",
	"mexc_secret_key",
}

func InitConfig() {
	once.Do(func() {
		// a missing .env is fine, the environment may already be populated
		_ = godotenv.Load()

		viper.AutomaticEnv()

		viper.BindEnv("telegram_token", "TELEGRAM_TOKEN")
		viper.BindEnv("allowed_user_id", "ALLOWED_USER_ID")
		viper.BindEnv("mexc_api_key", "MEXC_API_KEY")
		viper.BindEnv("mexc_secret_key", "MEXC_SECRET_KEY")
		viper.BindEnv("mexc_base_url", "MEXC_BASE_URL")
		viper.BindEnv("port", "PORT")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("lang", "BOT_LANG", "LANG")
		viper.BindEnv("data_file", "DATA_FILE")
		viper.BindEnv("db_path", "DB_PATH")
		viper.BindEnv("log_file", "LOG_FILE")
		viper.BindEnv("check_interval", "CHECK_INTERVAL")
		viper.BindEnv("symbols_refresh_interval", "SYMBOLS_REFRESH_INTERVAL")
		viper.BindEnv("http_timeout", "HTTP_TIMEOUT")

		viper.SetDefault("mexc_base_url", "https://contract.mexc.com")
		viper.SetDefault("port", 8080)
		viper.SetDefault("debug", false)
		viper.SetDefault("lang", "en")
		viper.SetDefault("data_file", "user_settings.json")
		viper.SetDefault("db_path", "bot.db")
		viper.SetDefault("log_file", "bot.log")
		viper.SetDefault("check_interval", 30*time.Second)
		viper.SetDefault("symbols_refresh_interval", time.Hour)
		viper.SetDefault("http_timeout", 10*time.Second)
	})
}

// BindFlags registers the command line overrides and binds them into viper.
// It must be called before flag parsing.
func BindFlags(fs *pflag.FlagSet, args []string) error {
	fs.String("data-file", "", "path of the alerts JSON file")
	fs.String("db-path", "", "path of the SQLite database")
	fs.Int("port", 0, "port of the health and metrics endpoint")
	fs.Bool("debug", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "could not parse flags")
	}

	for key, flag := range map[string]string{
		"data_file": "data-file",
		"db_path":   "db-path",
		"port":      "port",
		"debug":     "debug",
	} {
		if !fs.Changed(flag) {
			continue
		}
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return errors.Wrapf(err, "could not bind flag %s", flag)
		}
	}
	return nil
}

// minDurations are lower bounds for durations, catching values given
// without a unit such as CHECK_INTERVAL=30.
var minDurations = map[string]time.Duration{
	"check_interval":           time.Second,
	"http_timeout":             time.Second,
	"symbols_refresh_interval": time.Second,
}

// Validate reports every missing required setting at once, then any
// duration below its lower bound.
func Validate() error {
	InitConfig()

	var missing []string
	for _, key := range required {
		if strings.TrimSpace(viper.GetString(key)) == "" {
			missing = append(missing, strings.ToUpper(key))
		}
	}
	if len(missing) == 0 && viper.GetInt64("allowed_user_id") == 0 {
		missing = append(missing, "ALLOWED_USER_ID")
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	var tooShort []string
	for key, floor := range minDurations {
		if d := viper.GetDuration(key); d < floor {
			tooShort = append(tooShort, fmt.Sprintf("%s=%s (minimum %s)", strings.ToUpper(key), d, floor))
		}
	}
	if len(tooShort) > 0 {
		sort.Strings(tooShort)
		return errors.Errorf("durations too short, add a unit such as 30s: %s", strings.Join(tooShort, ", "))
	}
	return nil
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetInt64(key string) int64 {
	InitConfig()
	return viper.GetInt64(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}
