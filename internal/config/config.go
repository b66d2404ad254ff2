// Package config loads the gateway's dotenv-style configuration and keeps
// it hot-reloadable while the process runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	"github.com/Davincible/claude-proxy/internal/router"
)

const (
	AppName           = "claude-proxy"
	DefaultConfigDirName = ".claude-proxy"
	EnvFilename       = ".env"
	PidFilename       = "proxy.pid"
	LogFilename       = "proxy.log"
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 17870
)

// Config is the ambient + per-provider configuration read from .env.
type Config struct {
	Host string
	Port int

	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterReferer string
	OpenRouterTitle   string
	GeminiAPIKey      string
	GeminiBaseURL     string
	GLMUpstreamURL    string
	ZAIAPIKey         string
	AnthropicUpstreamURL string
	AnthropicAPIKey      string
	AnthropicVersion     string
	VisionModel          string
	CodexReasoningEffort string

	// RouterAliases maps a user-friendly short name to a "provider:model"
	// (or passthrough "glm-*"/"claude-*") target string, read from
	// ROUTER_ALIASES as a comma-separated "name=target" list.
	RouterAliases      map[string]string
	RouterDefault      string
	RouterLongContext  string
	RouterBackground   string
}

// RouterConfig converts the configured alias/default/long-context/background
// strings into a router.Config, skipping any entry that doesn't parse as a
// known provider target.
func (c *Config) RouterConfig() router.Config {
	rc := router.Config{Aliases: map[string]router.Selection{}}

	for name, target := range c.RouterAliases {
		if sel, ok := router.ParseSelection(target); ok {
			rc.Aliases[strings.ToLower(name)] = sel
		}
	}

	if sel, ok := router.ParseSelection(c.RouterDefault); ok {
		rc.Default = sel
	}
	if sel, ok := router.ParseSelection(c.RouterLongContext); ok {
		rc.LongContext = sel
	}
	if sel, ok := router.ParseSelection(c.RouterBackground); ok {
		rc.Background = sel
	}

	return rc
}

// Manager owns the on-disk .env file, the in-memory atomic snapshot of it,
// and the fsnotify watcher that keeps the snapshot fresh.
type Manager struct {
	baseDir string
	envPath string
	value   atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		baseDir: baseDir,
		envPath: filepath.Join(baseDir, EnvFilename),
	}
}

func (m *Manager) BaseDir() string { return m.baseDir }
func (m *Manager) EnvPath() string { return m.envPath }

func (m *Manager) Exists() bool {
	_, err := os.Stat(m.envPath)
	return err == nil
}

// Load reads the .env file (if present) and overlays it with process
// environment variables, which always win — matching the godotenv idiom
// used across the pack (Howard-nolan-llmrouter, taipm-go-deep-agent).
func (m *Manager) Load() (*Config, error) {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	env, err := godotenv.Read(m.envPath)
	if err != nil {
		env = map[string]string{}
	}

	get := func(key string) string {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v
		}
		return env[key]
	}

	cfg := &Config{
		Host:                 DefaultHost,
		Port:                 DefaultPort,
		OpenAIAPIKey:         get("OPENAI_API_KEY"),
		OpenAIBaseURL:        get("OPENAI_BASE_URL"),
		OpenRouterAPIKey:     get("OPENROUTER_API_KEY"),
		OpenRouterBaseURL:    get("OPENROUTER_BASE_URL"),
		OpenRouterReferer:    get("OPENROUTER_REFERER"),
		OpenRouterTitle:      get("OPENROUTER_TITLE"),
		GeminiAPIKey:         get("GEMINI_API_KEY"),
		GeminiBaseURL:        get("GEMINI_BASE_URL"),
		GLMUpstreamURL:       get("GLM_UPSTREAM_URL"),
		ZAIAPIKey:            firstNonEmpty(get("ZAI_API_KEY"), get("GLM_API_KEY")),
		AnthropicUpstreamURL: get("ANTHROPIC_UPSTREAM_URL"),
		AnthropicAPIKey:      get("ANTHROPIC_API_KEY"),
		AnthropicVersion:     get("ANTHROPIC_VERSION"),
		VisionModel:          get("VISION_MODEL"),
		CodexReasoningEffort: get("CODEX_REASONING_EFFORT"),
		RouterAliases:        parseAliases(get("ROUTER_ALIASES")),
		RouterDefault:        get("ROUTER_DEFAULT"),
		RouterLongContext:    get("ROUTER_LONG_CONTEXT"),
		RouterBackground:     get("ROUTER_BACKGROUND"),
	}

	if portStr := get("CLAUDE_PROXY_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = p
		}
	}

	if cfg.AnthropicVersion == "" {
		cfg.AnthropicVersion = "2023-06-01"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = "qwen/qwen2.5-vl-32b-instruct"
	}
	if cfg.CodexReasoningEffort == "" {
		cfg.CodexReasoningEffort = "high"
	}

	m.value.Store(cfg)

	return cfg, nil
}

func (m *Manager) Get() *Config {
	if v := m.value.Load(); v != nil {
		return v.(*Config)
	}
	cfg, err := m.Load()
	if err != nil {
		return &Config{Host: DefaultHost, Port: DefaultPort}
	}
	return cfg
}

// Watch reloads the config on every write to the .env file.
func (m *Manager) Watch(onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("init config watcher: %w", err)
	}

	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		watcher.Close()
		return fmt.Errorf("create config dir: %w", err)
	}

	if err := watcher.Add(m.baseDir); err != nil {
		watcher.Close()
		return fmt.Errorf("add config watcher: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != m.envPath {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if cfg, err := m.Load(); err == nil && onReload != nil {
						onReload(cfg)
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return nil
}

// Set writes a single key into the .env file, preserving the rest.
func (m *Manager) Set(key, value string) error {
	env, _ := godotenv.Read(m.envPath)
	if env == nil {
		env = map[string]string{}
	}
	env[key] = value

	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	return godotenv.Write(env, m.envPath)
}

// parseAliases parses ROUTER_ALIASES's "name1=target1,name2=target2" form.
func parseAliases(raw string) map[string]string {
	if raw == "" {
		return nil
	}

	aliases := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		aliases[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return aliases
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
