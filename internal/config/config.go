// Package config resolves Intent-Engine's two scopes: the per-user data
// directory (for cross-project state such as logs) and the per-project
// scope (the nearest enclosing .intent-engine directory), plus the
// environment variables and optional project config file that tune both.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// dataDirOverride lets tests redirect DataDir without touching $HOME.
var dataDirOverride string

// DataDir returns ~/.local/share/intent-engine, creating it if needed. It
// holds cross-project state: the ambient log file and nothing else, since
// every project's tasks live in that project's own .intent-engine directory.
func DataDir() (string, error) {
	if dataDirOverride != "" {
		if err := os.MkdirAll(dataDirOverride, 0o700); err != nil {
			return "", err
		}
		return dataDirOverride, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "share", "intent-engine")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

const projectDirName = ".intent-engine"

// FindProjectRoot walks upward from start (or cwd, if start is "") looking
// for a .intent-engine directory, the way ProjectContext::load does in the
// original implementation. It returns the directory *containing*
// .intent-engine, not .intent-engine itself.
func FindProjectRoot(start string) (string, bool) {
	dir := start
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return "", false
		}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(dir, projectDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// InitProject creates a fresh .intent-engine directory at dir (the CLI's
// `ie init`), returning its path. It is a no-op (success) if it already
// exists.
func InitProject(dir string) (string, error) {
	path := filepath.Join(dir, projectDirName)
	if err := os.MkdirAll(path, 0o700); err != nil {
		return "", err
	}
	return path, nil
}

// Backend selects which Store implementation a project uses.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// Env is the fully resolved environment-derived configuration: everything
// spec.md's "External Interfaces" env var table names, read by the ie CLI in
// main.go (the tool server receives the session id from it through
// toolserver.Services).
type Env struct {
	SessionID    string
	Backend      Backend
	Neo4jURI     string
	Neo4jUser    string
	Neo4jPass    string
	Neo4jProject string
	LLMEndpoint  string
	LLMAPIKey    string
	LLMModel     string
}

// LoadEnv reads the env vars spec.md defines, applying the documented
// defaults (IE_SESSION_ID defaults to "-1"; backend defaults to local
// unless NEO4J_URI is set — though only the local backend is implemented,
// see DESIGN.md).
func LoadEnv() Env {
	e := Env{
		SessionID:    strings.TrimSpace(os.Getenv("IE_SESSION_ID")),
		Neo4jURI:     os.Getenv("NEO4J_URI"),
		Neo4jUser:    os.Getenv("NEO4J_USER"),
		Neo4jPass:    os.Getenv("NEO4J_PASSWORD"),
		Neo4jProject: os.Getenv("NEO4J_PROJECT_ID"),
		LLMEndpoint:  os.Getenv("IE_LLM_ENDPOINT"),
		LLMAPIKey:    os.Getenv("IE_LLM_API_KEY"),
		LLMModel:     os.Getenv("IE_LLM_MODEL"),
	}
	if e.SessionID == "" {
		e.SessionID = "-1"
	}
	e.Backend = BackendLocal
	if e.Neo4jURI != "" {
		e.Backend = BackendRemote
	}
	return e
}

// ProjectConfig is the optional .intent-engine/config.yaml override layer,
// read on top of Env (env vars still win if both are set — see Merge).
type ProjectConfig struct {
	LLMEndpoint    string `yaml:"llm_endpoint"`
	LLMModel       string `yaml:"llm_model"`
	DashboardPort  int    `yaml:"dashboard_port"`
	SessionMaxAge  string `yaml:"session_max_age"`  // duration string, e.g. "24h"
	MaxSessions    int    `yaml:"max_sessions"`
}

// LoadProjectConfig reads <projectDir>/.intent-engine/config.yaml. A
// missing file is not an error; it yields a zero-value ProjectConfig.
func LoadProjectConfig(projectDir string) (ProjectConfig, error) {
	path := filepath.Join(projectDir, projectDirName, "config.yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ProjectConfig{}, nil
	}
	if err != nil {
		return ProjectConfig{}, err
	}
	var pc ProjectConfig
	if err := yaml.Unmarshal(data, &pc); err != nil {
		return ProjectConfig{}, err
	}
	return pc, nil
}

// Merge layers env over the project file: env vars always win, matching the
// precedence `config.go`'s LoadProviderAPIKey used for provider keys.
func (e Env) Merge(pc ProjectConfig) Env {
	if e.LLMEndpoint == "" {
		e.LLMEndpoint = pc.LLMEndpoint
	}
	if e.LLMModel == "" {
		e.LLMModel = pc.LLMModel
	}
	return e
}

// DashboardPortOr resolves the project config's dashboard_port, returning def
// if it is unset or not positive.
func (pc ProjectConfig) DashboardPortOr(def int) int {
	if pc.DashboardPort > 0 {
		return pc.DashboardPort
	}
	return def
}

// MaxSessionsOr resolves max_sessions, defaulting if unset.
func (pc ProjectConfig) MaxSessionsOr(def int) int {
	if pc.MaxSessions > 0 {
		return pc.MaxSessions
	}
	return def
}

// parseIntOr is a small helper kept for config values that may arrive as
// either an int or a numeric string in legacy config files.
func parseIntOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
