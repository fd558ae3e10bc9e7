package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/mindgate/pkg/registry"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY", "DEEPSEEK_API_KEY", "GITHUB_TOKEN", "GH_TOKEN"} {
		t.Setenv(k, "")
	}
	prev := configFile
	t.Cleanup(func() { configFile = prev })
}

func TestReadTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- user_context: alice
  prompts: ["write a sort function in go"]
  hint: coding
- prompts: ["hi"]
`), 0644))

	tasks, err := readTasks(path)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "alice", tasks[0].UserContext)
	assert.Equal(t, "coding", tasks[0].Hint)
	assert.Equal(t, []string{"write a sort function in go"}, tasks[0].Prompts)
	assert.Equal(t, "default", tasks[1].UserContext)

	_, err = readTasks(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	isolate(t)
	configFile = filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("memory:\n  backend: memory\nlog:\n  level: error\n"), 0644))

	cmd := validateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Configuration is valid.")
	assert.Contains(t, out.String(), "anthropic → openai → google → deepseek")
	assert.Contains(t, out.String(), "no provider credentials found")
}

func TestValidateCommandRejectsBadConfig(t *testing.T) {
	isolate(t)
	configFile = filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("loop:\n  confidence_threshold: 2\n"), 0644))

	cmd := validateCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(nil)
	assert.Error(t, cmd.Execute())
}

func TestRememberAndRecallCommands(t *testing.T) {
	isolate(t)
	configFile = filepath.Join(t.TempDir(), "config.yaml")
	db := filepath.Join(t.TempDir(), "memory.db")
	require.NoError(t, os.WriteFile(configFile, []byte(
		"memory:\n  backend: sqlite\n  sqlite_path: "+db+"\nembedding:\n  provider: hash\nlog:\n  level: error\n"), 0644))

	remember := rememberCmd()
	var id bytes.Buffer
	remember.SetOut(&id)
	remember.SetArgs([]string{"--user-context", "alice", "prefers tabs over spaces"})
	require.NoError(t, remember.Execute())
	assert.NotEmpty(t, id.String())

	recall := recallCmd()
	var out bytes.Buffer
	recall.SetOut(&out)
	recall.SetArgs([]string{"--user-context", "alice", "tabs or spaces"})
	require.NoError(t, recall.Execute())
	assert.Contains(t, out.String(), "prefers tabs over spaces")

	other := recallCmd()
	var none bytes.Buffer
	other.SetOut(&none)
	other.SetArgs([]string{"--user-context", "bob", "tabs or spaces"})
	require.NoError(t, other.Execute())
	assert.NotContains(t, none.String(), "prefers tabs")
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "anthropic → google", formatProviders([]registry.Provider{registry.ProviderAnthropic, registry.ProviderGoogle}))
	assert.Equal(t, "a b c", oneLine("a\n b\tc", 10))
	assert.Equal(t, "abcdefg...", oneLine("abcdefghijklmnop", 10))
}
