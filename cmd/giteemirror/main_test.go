package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/giteemirror/internal/adapter/driven/gitee"
	"github.com/ericfisherdev/giteemirror/internal/config"
	"github.com/ericfisherdev/giteemirror/internal/domain/model"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "migrate")
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mirror.db")
	envFile := filepath.Join(t.TempDir(), "missing.env")

	for range 2 {
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs([]string{"migrate", "--db", dbPath, "--env-file", envFile})

		require.NoError(t, root.Execute())
		assert.Contains(t, out.String(), "schema version 1 (dirty=false)")
	}
}

func TestServeRequiresSecretKey(t *testing.T) {
	t.Setenv("GITEEMIRROR_SECRET_KEY", "")

	root := newRootCmd()
	root.SetArgs([]string{"serve", "--env-file", filepath.Join(t.TempDir(), "missing.env")})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SECRET_KEY")
}

func TestNewHostsEnterpriseGitHub(t *testing.T) {
	hosts, err := newHosts(&config.Config{
		GitHubAPIURL: "https://ghe.example.com/api/v3/",
		GiteeAPIURL:  gitee.DefaultBaseURL,
	})
	require.NoError(t, err)

	gh, err := hosts.Get(model.PlatformGitHub)
	require.NoError(t, err)
	assert.Equal(t, "ghe.example.com", gh.WebHost())
	assert.Equal(t, "https://ghe.example.com/octo/hello.git", gh.CloneURL("octo", "hello"))

	_, err = newHosts(&config.Config{GitHubAPIURL: "ghe.example.com", GiteeAPIURL: gitee.DefaultBaseURL})
	require.Error(t, err)
}
