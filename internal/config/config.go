package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultModel   = "qwen-vl-max"
	DefaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

	DefaultMaxTokens = 200

	DefaultIntervalSeconds       = 5
	DefaultAlertThreshold        = 2
	DefaultNotifyCooldownSeconds = 3 * 60
	DefaultDailyLimitSeconds     = 20 * 60
	DefaultEncouragementOdds     = 0.15

	DefaultHost = "127.0.0.1"
	DefaultPort = 18890

	// WxPusher message-send endpoint; see wxpusher.zjiecode.com/docs.
	DefaultWxPusherEndpoint = "https://wxpusher.zjiecode.com/api/send/message"
)

type Config struct {
	Provider ProviderConfig `json:"provider"`
	Camera   CameraConfig   `json:"camera"`
	Monitor  MonitorConfig  `json:"monitor"`
	Notify   NotifyConfig   `json:"notify"`
	Audio    AudioConfig    `json:"audio"`
	WebUI    WebUIConfig    `json:"webui"`
}

type ProviderConfig struct {
	Type      string `json:"type,omitempty"` // "dashscope" (default) or "anthropic"
	APIKey    string `json:"apiKey"`
	BaseURL   string `json:"baseUrl,omitempty"`
	Model     string `json:"model"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

type CameraConfig struct {
	SnapshotURL string   `json:"snapshotUrl,omitempty"` // IP camera / phone-cam still endpoint
	Command     string   `json:"command,omitempty"`     // alternative: capture command writing JPEG to stdout
	Args        []string `json:"args,omitempty"`
}

type MonitorConfig struct {
	IntervalSeconds       int     `json:"intervalSeconds"`
	AlertThreshold        int     `json:"alertThreshold"`
	NotifyCooldownSeconds int     `json:"notifyCooldownSeconds"`
	DailyLimitSeconds     int     `json:"dailyLimitSeconds"`
	EncouragementOdds     float64 `json:"encouragementOdds"`
}

type NotifyConfig struct {
	Enabled  bool           `json:"enabled"`
	WxPusher WxPusherConfig `json:"wxpusher"`
	Telegram TelegramConfig `json:"telegram"`
}

type WxPusherConfig struct {
	AppToken string   `json:"appToken,omitempty"`
	UIDs     []string `json:"uids,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token,omitempty"`
	ChatID int64  `json:"chatId,omitempty"`
}

type AudioConfig struct {
	Enabled    bool     `json:"enabled"`
	TTSCommand string   `json:"ttsCommand,omitempty"` // e.g. "espeak-ng" or "say"; text is appended
	TTSArgs    []string `json:"ttsArgs,omitempty"`
	ClipPath   string   `json:"clipPath,omitempty"` // custom recorded reminder, used for distraction alerts
	Player     string   `json:"player,omitempty"`   // e.g. "mpv" or "aplay"; clip path is appended
}

type WebUIConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host,omitempty"`
	Port    int    `json:"port,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Model:     DefaultModel,
			BaseURL:   DefaultBaseURL,
			MaxTokens: DefaultMaxTokens,
		},
		Monitor: MonitorConfig{
			IntervalSeconds:       DefaultIntervalSeconds,
			AlertThreshold:        DefaultAlertThreshold,
			NotifyCooldownSeconds: DefaultNotifyCooldownSeconds,
			DailyLimitSeconds:     DefaultDailyLimitSeconds,
			EncouragementOdds:     DefaultEncouragementOdds,
		},
		Audio: AudioConfig{Enabled: true},
		WebUI: WebUIConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".focusguard")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// UsageStatePath is where the daily usage counter and entitlement flag live.
func UsageStatePath() string {
	return filepath.Join(ConfigDir(), "data", "usage.json")
}

// SchedulePath is where monitoring windows are persisted.
func SchedulePath() string {
	return filepath.Join(ConfigDir(), "data", "schedule.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("FOCUSGUARD_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("DASHSCOPE_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "anthropic"
		}
	}
	if url := os.Getenv("FOCUSGUARD_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if m := os.Getenv("FOCUSGUARD_MODEL"); m != "" {
		cfg.Provider.Model = m
	}
	if url := os.Getenv("FOCUSGUARD_SNAPSHOT_URL"); url != "" {
		cfg.Camera.SnapshotURL = url
	}
	if token := os.Getenv("FOCUSGUARD_WXPUSHER_TOKEN"); token != "" {
		cfg.Notify.WxPusher.AppToken = token
	}
	if uids := os.Getenv("FOCUSGUARD_WXPUSHER_UIDS"); uids != "" {
		cfg.Notify.WxPusher.UIDs = splitList(uids)
	}
	if token := os.Getenv("FOCUSGUARD_TELEGRAM_TOKEN"); token != "" {
		cfg.Notify.Telegram.Token = token
	}
	if chat := os.Getenv("FOCUSGUARD_TELEGRAM_CHAT"); chat != "" {
		if parsed, err := strconv.ParseInt(chat, 10, 64); err == nil {
			cfg.Notify.Telegram.ChatID = parsed
		}
	}
	if enabled := os.Getenv("FOCUSGUARD_NOTIFY_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.Notify.Enabled = parsed
		}
	}

	if cfg.Monitor.IntervalSeconds <= 0 {
		cfg.Monitor.IntervalSeconds = DefaultIntervalSeconds
	}
	if cfg.Monitor.AlertThreshold <= 0 {
		cfg.Monitor.AlertThreshold = DefaultAlertThreshold
	}
	if cfg.Monitor.NotifyCooldownSeconds <= 0 {
		cfg.Monitor.NotifyCooldownSeconds = DefaultNotifyCooldownSeconds
	}
	if cfg.Monitor.DailyLimitSeconds <= 0 {
		cfg.Monitor.DailyLimitSeconds = DefaultDailyLimitSeconds
	}
	if cfg.Monitor.EncouragementOdds <= 0 || cfg.Monitor.EncouragementOdds > 1 {
		cfg.Monitor.EncouragementOdds = DefaultEncouragementOdds
	}
	if cfg.WebUI.Host == "" {
		cfg.WebUI.Host = DefaultHost
	}
	if cfg.WebUI.Port == 0 {
		cfg.WebUI.Port = DefaultPort
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
