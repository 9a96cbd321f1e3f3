package e2e

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmokeFlow(t *testing.T) {
	home := t.TempDir()
	binaryPath := buildBinary(t)

	_, stderr, err := runOpool(t, binaryPath, home, "account", "register", "acc-1", "--name", "Primary")
	require.NoError(t, err, "stderr: %s", stderr)

	_, stderr, err = runOpool(t, binaryPath, home, "account", "credential", "set", "acc-1", "--value", "tok-123")
	require.NoError(t, err, "stderr: %s", stderr)

	stdout, stderr, err := runOpool(t, binaryPath, home, "account", "status", "--account", "acc-1")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stdout, "Primary (acc-1)")

	stdout, stderr, err = runOpool(t, binaryPath, home, "campaign", "create", "--id", "c-1", "--capability", "invite", "--target", "alice@chan-1")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stdout, "created c-1")

	stdout, stderr, err = runOpool(t, binaryPath, home, "campaign", "status", "c-1")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stdout, "pending: 1")
}

func buildBinary(t *testing.T) string {
	t.Helper()

	binaryPath := filepath.Join(t.TempDir(), "opool-e2e")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/opool")
	cmd.Dir = repoRoot(t)

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "build opool binary: %s", string(output))
	return binaryPath
}

func runOpool(t *testing.T, binaryPath, home string, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(os.Environ(), "OPOOL_HOME="+home, "OPOOL_LOG_LEVEL=error")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func repoRoot(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}
