// File: cmd/main_test.go
package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/service"
)

// resetForTest provides the single source of truth for resetting test state.
func resetForTest(t *testing.T) {
	t.Helper()

	// 1. Reset package-level variables from root.go and the subcommands.
	cfgFile = ""
	envFile = ""
	componentFactory = service.NewComponentFactory
	openDataStore = service.InitializeDataStore

	// 2. Reset the logger to a silent state. Later InitializeLogger calls
	// from PersistentPreRunE are no-ops.
	observability.ResetForTest()
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})

	// 3. Re-initialize the root command so no flag state leaks between tests.
	rootCmd = newRootCmd()
	t.Cleanup(func() { rootCmd = newRootCmd() })
}

// writeCSVBatch writes a CSV record source with the given site URLs and a
// config file pointing at it. It returns the config path and directory.
func writeCSVBatch(t *testing.T, urls ...string) (string, string) {
	t.Helper()
	dir := t.TempDir()

	content := "website\n"
	for _, u := range urls {
		content += u + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "urls.csv"), []byte(content), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "details.csv"), []byte("Name,Email\nAsha Rao,asha@example.com\n"), 0o600))

	cfg := "source:\n" +
		"  backend: csv\n" +
		"  csv:\n" +
		"    urls_path: " + filepath.Join(dir, "urls.csv") + "\n" +
		"    details_path: " + filepath.Join(dir, "details.csv") + "\n" +
		"    status_path: " + filepath.Join(dir, "status.csv") + "\n" +
		"orchestrator:\n" +
		"  concurrency: 2\n" +
		"  group_pause: 1ms\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path, dir
}
