// File: cmd/check_test.go
package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

func TestCheckCmd_PrintsPlan(t *testing.T) {
	resetForTest(t)
	cfgPath, _ := writeCSVBatch(t, "a.example", "b.example", "c.example")

	out, err := execute(t, "--config", cfgPath, "check")

	require.NoError(t, err)
	assert.Contains(t, out, "Records: 3\n")
	assert.Contains(t, out, "Groups: 2 [2 1]\n")
	assert.Regexp(t, `ROW\s+FIELDS\s+URL`, out)
	assert.Regexp(t, `0\s+2\s+a\.example`, out)
	assert.Regexp(t, `2\s+2\s+c\.example`, out)
}

func TestCheckCmd_ConcurrencyFlag(t *testing.T) {
	resetForTest(t)
	cfgPath, _ := writeCSVBatch(t, "a.example", "b.example", "c.example")

	out, err := execute(t, "--config", cfgPath, "check", "--concurrency", "1")

	require.NoError(t, err)
	assert.Contains(t, out, "Groups: 3 [1 1 1]\n")
}

func TestCheckCmd_Empty(t *testing.T) {
	resetForTest(t)
	cfgPath, _ := writeCSVBatch(t)

	out, err := execute(t, "--config", cfgPath, "check")

	require.NoError(t, err)
	assert.Contains(t, out, "Records: 0\n")
	assert.NotContains(t, out, "ROW")
}

func TestCheckCmd_LoadError(t *testing.T) {
	resetForTest(t)
	cfgPath, dir := writeCSVBatch(t, "a.example")
	require.NoError(t, os.Remove(filepath.Join(dir, "urls.csv")))

	_, err := execute(t, "--config", cfgPath, "check")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load records")
}

func TestCheckCmd_OpenError(t *testing.T) {
	resetForTest(t)
	cfgPath, _ := writeCSVBatch(t, "a.example")
	openDataStore = func(context.Context, config.SourceConfig, *zap.Logger) (schemas.DataStore, error) {
		return nil, errors.New("sheets unavailable")
	}

	_, err := execute(t, "--config", cfgPath, "check")

	assert.EqualError(t, err, "sheets unavailable")
}
