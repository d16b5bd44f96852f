package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

type Config struct {
	SlackBotToken string `yaml:"slack_bot_token"`
	SlackAppToken string `yaml:"slack_app_token"`
	SlashCommand  string `yaml:"slash_command"`

	// Store connection. Account is the host (optionally host:port) of the
	// remote store; User and Password are its credentials.
	StoreDriver   string `yaml:"store_driver"`
	DBPath        string `yaml:"db_path"`
	StoreAccount  string `yaml:"store_account"`
	StoreUser     string `yaml:"store_user"`
	StorePassword string `yaml:"store_password"`
	StoreDatabase string `yaml:"store_database"`
	StoreSSLMode  string `yaml:"store_sslmode"`
	FixturesPath  string `yaml:"fixtures_path"` // sqlite only

	CaseTable  string `yaml:"case_table"`
	StaffTable string `yaml:"staff_table"`
	NotesTable string `yaml:"notes_table"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	LLMModel        string `yaml:"llm_model"`

	FollowUpDigestSchedule string `yaml:"followup_digest_schedule"`
	DigestChannelID        string `yaml:"digest_channel_id"`

	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`
	Timezone                   string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// LoadConfig reads config.yaml (or CONFIG_PATH), applies env overrides and
// defaults, and exits on invalid Slack or runtime settings. Store settings
// are not checked here: a bad store configuration surfaces as a connection
// error when the store is opened.
func LoadConfig() Config {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.SlashCommand, "SLASH_COMMAND")
	envOverride(&cfg.StoreDriver, "STORE_DRIVER")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.StoreAccount, "STORE_ACCOUNT")
	envOverride(&cfg.StoreUser, "STORE_USER")
	envOverride(&cfg.StorePassword, "STORE_PASSWORD")
	envOverride(&cfg.StoreDatabase, "STORE_DATABASE")
	envOverride(&cfg.StoreSSLMode, "STORE_SSLMODE")
	envOverride(&cfg.FixturesPath, "FIXTURES_PATH")
	envOverride(&cfg.CaseTable, "CASE_TABLE")
	envOverride(&cfg.StaffTable, "STAFF_TABLE")
	envOverride(&cfg.NotesTable, "NOTES_TABLE")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverrideAllowEmpty(&cfg.FollowUpDigestSchedule, "FOLLOWUP_DIGEST_SCHEDULE")
	envOverride(&cfg.DigestChannelID, "DIGEST_CHANNEL_ID")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.Timezone, "TIMEZONE")

	if cfg.SlashCommand == "" {
		cfg.SlashCommand = "/csat"
	}
	if !strings.HasPrefix(cfg.SlashCommand, "/") {
		cfg.SlashCommand = "/" + cfg.SlashCommand
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreDriverSQLite
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if cfg.DBPath == "" {
		cfg.DBPath = "./csat.db"
	}
	if cfg.StoreSSLMode == "" {
		cfg.StoreSSLMode = "require"
	}
	if cfg.CaseTable == "" {
		cfg.CaseTable = "csat_cases"
	}
	if cfg.StaffTable == "" {
		cfg.StaffTable = "staff_users"
	}
	if cfg.NotesTable == "" {
		cfg.NotesTable = "csat_notes"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	required := map[string]string{
		"slack_bot_token": cfg.SlackBotToken,
		"slack_app_token": cfg.SlackAppToken,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		log.Fatalf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.FollowUpDigestSchedule != "" && cfg.DigestChannelID == "" {
		log.Printf("WARNING: followup_digest_schedule is set but digest_channel_id is not; follow-up digest disabled")
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

// DigestConfigured reports whether the follow-up digest has both a schedule
// and somewhere to post.
func (c Config) DigestConfigured() bool {
	return strings.TrimSpace(c.FollowUpDigestSchedule) != "" && c.DigestChannelID != ""
}

func (c Config) LLMConfigured() bool {
	return c.AnthropicAPIKey != ""
}
