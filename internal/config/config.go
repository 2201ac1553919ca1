package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type LeadChatServerConfig struct {
	HTTPAddr         string
	DBDSN            string
	LLMProvider      string
	LLMModel         string
	OpenAIBaseURL    string
	OpenAIAPIKey     string
	AnthropicBaseURL string
	AnthropicAPIKey  string
	AgentTimeout     time.Duration
	ChatHistoryLimit int
	IdleGrace        time.Duration
	IdleCountdown    int
	SessionTTL       time.Duration
	SweepInterval    time.Duration
	NotifyTimeout    time.Duration
	MailHost         string
	MailPort         int
	MailUsername     string
	MailPassword     string
	MailFromAddress  string
	MailFromName     string
	LeadAdminEmail   string
	MQTTBrokerURL    string
	MQTTClientID     string
	MQTTUsername     string
	MQTTPassword     string
	MQTTTopicPrefix  string
	ThemeCopyFile    string
	CORSAllowOrigin  string
}

// MailEnabled reports whether SMTP credentials were supplied.
func (c LeadChatServerConfig) MailEnabled() bool {
	return c.MailUsername != ""
}

type ConsoleConfig struct {
	APIBaseURL      string
	Theme           string
	MQTTBrokerURL   string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string
}

func LoadLeadChatServerConfig() (LeadChatServerConfig, error) {
	cfg := LeadChatServerConfig{
		HTTPAddr:         getenvDefault("LEADCHAT_HTTP_ADDR", ":9020"),
		DBDSN:            os.Getenv("DB_DSN"),
		LLMProvider:      getenvDefault("LLM_PROVIDER", "openai"),
		LLMModel:         getenvDefault("LLM_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:    getenvDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		AnthropicBaseURL: getenvDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		AgentTimeout:     time.Duration(getenvIntDefault("AGENT_TIMEOUT_SECONDS", 30)) * time.Second,
		ChatHistoryLimit: getenvIntDefault("CHAT_HISTORY_LIMIT", 20),
		IdleGrace:        time.Duration(getenvIntDefault("IDLE_GRACE_SECONDS", 10)) * time.Second,
		IdleCountdown:    getenvIntDefault("IDLE_COUNTDOWN_SECONDS", 10),
		SessionTTL:       time.Duration(getenvIntDefault("SESSION_TTL_MINUTES", 60)) * time.Minute,
		SweepInterval:    time.Duration(getenvIntDefault("SESSION_SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
		NotifyTimeout:    time.Duration(getenvIntDefault("NOTIFY_TIMEOUT_SECONDS", 15)) * time.Second,
		MailHost:         getenvDefault("MAIL_HOST", "smtp.hostinger.com"),
		MailPort:         getenvIntDefault("MAIL_PORT", 465),
		MailUsername:     os.Getenv("MAIL_USERNAME"),
		MailPassword:     os.Getenv("MAIL_PASSWORD"),
		MailFromAddress:  getenvDefault("MAIL_FROM_ADDRESS", "noreply@cuma.click"),
		MailFromName:     os.Getenv("MAIL_FROM_NAME"),
		LeadAdminEmail:   os.Getenv("LEAD_ADMIN_EMAIL"),
		MQTTBrokerURL:    os.Getenv("MQTT_BROKER_URL"),
		MQTTClientID:     getenvDefault("MQTT_CLIENT_ID", "leadchat-server"),
		MQTTUsername:     os.Getenv("MQTT_USERNAME"),
		MQTTPassword:     os.Getenv("MQTT_PASSWORD"),
		MQTTTopicPrefix:  strings.Trim(getenvDefault("MQTT_TOPIC_PREFIX", "leadchat"), "/"),
		ThemeCopyFile:    os.Getenv("THEME_COPY_FILE"),
		CORSAllowOrigin:  getenvDefault("CORS_ALLOW_ORIGIN", "*"),
	}

	if cfg.LLMProvider == "openai" && cfg.OpenAIAPIKey == "" {
		return LeadChatServerConfig{}, fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
	}
	if cfg.LLMProvider == "claude" && cfg.AnthropicAPIKey == "" {
		return LeadChatServerConfig{}, fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER=claude")
	}
	if cfg.MailEnabled() && cfg.LeadAdminEmail == "" {
		return LeadChatServerConfig{}, fmt.Errorf("LEAD_ADMIN_EMAIL is required when MAIL_USERNAME is set")
	}
	if cfg.IdleGrace <= 0 || cfg.IdleCountdown <= 0 {
		return LeadChatServerConfig{}, fmt.Errorf("IDLE_GRACE_SECONDS and IDLE_COUNTDOWN_SECONDS must be positive")
	}

	return cfg, nil
}

func LoadConsoleConfig() ConsoleConfig {
	return ConsoleConfig{
		APIBaseURL:      strings.TrimRight(getenvDefault("LEADCHAT_API_BASE_URL", "http://localhost:9020"), "/"),
		Theme:           getenvDefault("LEADCHAT_THEME", "logic"),
		MQTTBrokerURL:   os.Getenv("MQTT_BROKER_URL"),
		MQTTClientID:    getenvDefault("LEADCHAT_CONSOLE_MQTT_CLIENT_ID", "leadchat-console"),
		MQTTUsername:    os.Getenv("MQTT_USERNAME"),
		MQTTPassword:    os.Getenv("MQTT_PASSWORD"),
		MQTTTopicPrefix: strings.Trim(getenvDefault("MQTT_TOPIC_PREFIX", "leadchat"), "/"),
	}
}

// LoadEnvFiles copies KEY=VALUE lines from each readable file into the
// environment. Variables already set win over file values.
func LoadEnvFiles(paths ...string) {
	for _, p := range paths {
		path := p
		if !filepath.IsAbs(path) {
			if cwd, err := os.Getwd(); err == nil {
				path = filepath.Join(cwd, path)
			}
		}
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		for _, rawLine := range strings.Split(string(content), "\n") {
			line := strings.TrimSpace(rawLine)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			line = strings.TrimPrefix(line, "export ")
			key, val, ok := strings.Cut(line, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" || os.Getenv(key) != "" {
				continue
			}
			val = strings.TrimSpace(val)
			if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
				val = val[1 : len(val)-1]
			}
			_ = os.Setenv(key, val)
		}
	}
}

func getenvDefault(key, val string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return val
}

func getenvIntDefault(key string, val int) int {
	v := os.Getenv(key)
	if v == "" {
		return val
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return val
	}
	return n
}
