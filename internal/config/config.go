// Package config carries the two configuration layers: process options
// read once from the environment, and the mutable JSON settings file
// shared with the web UI.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Options struct {
	HTTPAddr       string
	AgentBaseURL   string
	AgentPort      int
	AgentBin       string
	ProxyTimeout   time.Duration
	DataDir        string
	ProjectsRoot   string
	JournalPath    string
	DeepgramAPIKey string
	DeepgramModel  string
	VoiceLanguage  string
}

// Load reads process options from the environment with development
// defaults matching the agent's stock port.
func Load() Options {
	home, _ := os.UserHomeDir()
	dataDir := envPath("CODEBRIDGE_DATA_DIR", filepath.Join(home, ".codebridge"))
	agentPort := envInt("OPENCODE_PORT", 2380)
	return Options{
		HTTPAddr:       env("CODEBRIDGE_HTTP_ADDR", ":8686"),
		AgentBaseURL:   env("OPENCODE_BASE_URL", "http://localhost:"+strconv.Itoa(agentPort)),
		AgentPort:      agentPort,
		AgentBin:       env("OPENCODE_PATH", ""),
		ProxyTimeout:   time.Duration(envInt("CODEBRIDGE_API_TIMEOUT_SECONDS", 300)) * time.Second,
		DataDir:        dataDir,
		ProjectsRoot:   envPath("CODEBRIDGE_PROJECTS_ROOT", filepath.Join(home, "Desktop", "game")),
		JournalPath:    env("CODEBRIDGE_JOURNAL_PATH", filepath.Join(dataDir, "journal.db")),
		DeepgramAPIKey: env("DEEPGRAM_API_KEY", ""),
		DeepgramModel:  env("CODEBRIDGE_VOICE_MODEL", "nova-2"),
		VoiceLanguage:  env("CODEBRIDGE_VOICE_LANGUAGE", "zh"),
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envPath(k, def string) string {
	v := env(k, def)
	if v == "" || filepath.IsAbs(v) {
		return v
	}
	if abs, err := filepath.Abs(v); err == nil {
		return abs
	}
	return v
}
