package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindProjectRoot_found(t *testing.T) {
	base := t.TempDir()
	nested := filepath.Join(base, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, projectDirName), 0o755))

	root, ok := FindProjectRoot(nested)
	require.True(t, ok)
	require.Equal(t, base, root)
}

func TestFindProjectRoot_notFound(t *testing.T) {
	_, ok := FindProjectRoot(t.TempDir())
	require.False(t, ok)
}

func TestInitProject(t *testing.T) {
	dir := t.TempDir()
	path, err := InitProject(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, projectDirName), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	// calling twice is a no-op
	_, err = InitProject(dir)
	require.NoError(t, err)
}

func TestLoadEnv_defaults(t *testing.T) {
	t.Setenv("IE_SESSION_ID", "")
	t.Setenv("NEO4J_URI", "")
	e := LoadEnv()
	require.Equal(t, "-1", e.SessionID)
	require.Equal(t, BackendLocal, e.Backend)
}

func TestLoadEnv_remoteBackendWhenNeo4jConfigured(t *testing.T) {
	t.Setenv("NEO4J_URI", "bolt://localhost:7687")
	e := LoadEnv()
	require.Equal(t, BackendRemote, e.Backend)
}

func TestLoadEnv_sessionIDFromEnv(t *testing.T) {
	t.Setenv("IE_SESSION_ID", "my-session")
	e := LoadEnv()
	require.Equal(t, "my-session", e.SessionID)
}

func TestLoadProjectConfig_missingFileYieldsZeroValue(t *testing.T) {
	pc, err := LoadProjectConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, ProjectConfig{}, pc)
}

func TestLoadProjectConfig_parsesYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, projectDirName), 0o755))
	cfgPath := filepath.Join(dir, projectDirName, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("llm_endpoint: http://localhost:11434\nllm_model: qwen\ndashboard_port: 4200\nmax_sessions: 5\n"), 0o644))

	pc, err := LoadProjectConfig(dir)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:11434", pc.LLMEndpoint)
	require.Equal(t, "qwen", pc.LLMModel)
	require.Equal(t, 4200, pc.DashboardPort)
	require.Equal(t, 5, pc.MaxSessions)
}

func TestEnvMerge_envWins(t *testing.T) {
	e := Env{LLMEndpoint: "http://env"}
	merged := e.Merge(ProjectConfig{LLMEndpoint: "http://file"})
	require.Equal(t, "http://env", merged.LLMEndpoint)
}

func TestEnvMerge_fallsBackToProjectConfig(t *testing.T) {
	e := Env{}
	merged := e.Merge(ProjectConfig{LLMEndpoint: "http://file", LLMModel: "qwen"})
	require.Equal(t, "http://file", merged.LLMEndpoint)
	require.Equal(t, "qwen", merged.LLMModel)
}

func TestProjectConfig_DashboardPortOr(t *testing.T) {
	require.Equal(t, 4173, ProjectConfig{}.DashboardPortOr(4173))
	require.Equal(t, 9000, ProjectConfig{DashboardPort: 9000}.DashboardPortOr(4173))
}

func TestProjectConfig_MaxSessionsOr(t *testing.T) {
	require.Equal(t, 10, ProjectConfig{}.MaxSessionsOr(10))
	require.Equal(t, 3, ProjectConfig{MaxSessions: 3}.MaxSessionsOr(10))
}

func TestDataDir_override(t *testing.T) {
	dir := t.TempDir()
	orig := dataDirOverride
	dataDirOverride = filepath.Join(dir, "data")
	t.Cleanup(func() { dataDirOverride = orig })

	got, err := DataDir()
	require.NoError(t, err)
	require.Equal(t, dataDirOverride, got)

	info, err := os.Stat(got)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
