package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/afk-farmer/internal/adapters/admin"
	"github.com/bnema/afk-farmer/internal/application"
	"github.com/bnema/afk-farmer/internal/domain"
)

type stubService struct {
	sessions []application.Snapshot
	added    []application.AddCommand
	removed  []string
}

func (s *stubService) Add(_ context.Context, cmd application.AddCommand) (application.AddResult, error) {
	s.added = append(s.added, cmd)
	return application.AddResult{Key: "0000000011112222", TenantID: "T1"}, nil
}

func (s *stubService) Remove(_ context.Context, ref string) (domain.SessionKey, error) {
	if ref != "11112222" {
		return "", domain.ErrSessionNotFound
	}
	s.removed = append(s.removed, ref)
	return "0000000011112222", nil
}

func (s *stubService) Restart(_ context.Context, ref string) error {
	if ref != "11112222" {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *stubService) Stop(_ context.Context, ref string) error {
	return s.Restart(context.Background(), ref)
}

func (s *stubService) List(context.Context) []application.Snapshot {
	return s.sessions
}

func (s *stubService) Get(_ context.Context, ref string) (application.Snapshot, error) {
	for _, snap := range s.sessions {
		if snap.Tail == ref {
			return snap, nil
		}
	}
	return application.Snapshot{}, domain.ErrSessionNotFound
}

func startAdmin(t *testing.T, svc admin.SessionService) string {
	t.Helper()
	srv := httptest.NewServer(admin.NewServer(svc, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func sampleSessions() []application.Snapshot {
	return []application.Snapshot{
		{
			Key:          "0000000011112222",
			Tail:         "11112222",
			TenantID:     "T1",
			Running:      true,
			Status:       domain.StatusFarming,
			Uptime:       "00:05:00",
			HeartbeatsOK: 10,
			SuccessRate:  100,
			Logs: []domain.LogEntry{
				{At: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), Severity: domain.SeveritySuccess, Message: "farming cycle 1"},
			},
		},
	}
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}

func TestConfigShowDefaults(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "[farm]")
	assert.Contains(t, stdout, "heartbeat_interval = '30s'")
	assert.Contains(t, stdout, "log_capacity = 200")
	assert.Contains(t, stdout, filepath.Join(home, ".afk", "afk.db"))
}

func TestConfigShowMasksWebhook(t *testing.T) {
	t.Setenv("AFK_NOTIFY_WEBHOOK_URL", "https://discord.example/api/webhooks/1/secret")

	stdout, _, err := executeCLI(t, t.TempDir(), "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "secret")
	assert.Contains(t, stdout, maskedValue)
}

func TestConfigFileFlag(t *testing.T) {
	home := t.TempDir()
	file := filepath.Join(home, "custom.toml")
	require.NoError(t, os.WriteFile(file, []byte("[admin]\nlisten = '0.0.0.0:9999'\n"), 0o600))

	stdout, _, err := executeCLI(t, home, "--config", file, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "0.0.0.0:9999")
}

func TestSessionList(t *testing.T) {
	url := startAdmin(t, &stubService{sessions: sampleSessions()})

	stdout, _, err := executeCLI(t, t.TempDir(), "session", "list", "--url", url, "--logs", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "sessions: 1  running: 1")
	assert.Contains(t, stdout, "[11112222] tenant T1")
	assert.Contains(t, stdout, "farming cycle 1")
}

func TestSessionListRunningOnly(t *testing.T) {
	sessions := sampleSessions()
	stopped := sessions[0]
	stopped.Key = "zzzzzzzz99998888"
	stopped.Tail = "99998888"
	stopped.Running = false
	stopped.Status = domain.StatusStopped
	url := startAdmin(t, &stubService{sessions: append(sessions, stopped)})

	stdout, _, err := executeCLI(t, t.TempDir(), "session", "list", "--url", url, "--running")
	require.NoError(t, err)
	assert.Contains(t, stdout, "sessions: 2  running: 1")
	assert.Contains(t, stdout, "[11112222]")
	assert.NotContains(t, stdout, "[99998888]")
}

func TestSessionListJSON(t *testing.T) {
	url := startAdmin(t, &stubService{sessions: sampleSessions()})
	t.Setenv("AFK_ADMIN_URL", url)

	stdout, _, err := executeCLI(t, t.TempDir(), "session", "list", "--json")
	require.NoError(t, err)

	var decoded []application.Snapshot
	require.NoError(t, json.Unmarshal([]byte(stdout), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, domain.StatusFarming, decoded[0].Status)
	assert.Contains(t, stdout, `"tenant_id": "T1"`)
}

func TestSessionShow(t *testing.T) {
	url := startAdmin(t, &stubService{sessions: sampleSessions()})

	stdout, _, err := executeCLI(t, t.TempDir(), "session", "show", "11112222", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, stdout, "+ farming cycle 1")

	_, _, err = executeCLI(t, t.TempDir(), "session", "show", "nope", "--url", url)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionAdd(t *testing.T) {
	svc := &stubService{}
	url := startAdmin(t, svc)

	stdout, _, err := executeCLI(t, t.TempDir(), "session", "add", "secret-token", "--actor", "ops", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, stdout, "added 11112222 (tenant T1)")
	require.Len(t, svc.added, 1)
	assert.Equal(t, application.AddCommand{Credential: "secret-token", Actor: "ops"}, svc.added[0])
}

func TestSessionRemoveRestartStop(t *testing.T) {
	svc := &stubService{}
	url := startAdmin(t, svc)

	stdout, _, err := executeCLI(t, t.TempDir(), "session", "remove", "11112222", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, stdout, "removed 11112222")
	assert.Equal(t, []string{"11112222"}, svc.removed)

	stdout, _, err = executeCLI(t, t.TempDir(), "session", "restart", "11112222", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, stdout, "restarting 11112222")

	stdout, _, err = executeCLI(t, t.TempDir(), "session", "stop", "11112222", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, stdout, "stopped 11112222")

	_, _, err = executeCLI(t, t.TempDir(), "session", "remove", "unknown", "--url", url)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestBuildRuntimeWithTOMLStore(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("AFK_STORAGE_DRIVER", "toml")

	a := &app{}
	require.NoError(t, a.load(""))

	rt, err := a.buildRuntime(zerolog.Nop())
	require.NoError(t, err)
	defer func() { require.NoError(t, rt.closeStore()) }()

	loaded, err := rt.supervisor.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, loaded)
	require.NoError(t, rt.supervisor.Shutdown(context.Background()))
}

func TestBuildRuntimeWithSQLiteStore(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	a := &app{}
	require.NoError(t, a.load(""))

	rt, err := a.buildRuntime(zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, rt.supervisor.List(context.Background()))
	require.NoError(t, rt.supervisor.Shutdown(context.Background()))
	require.NoError(t, rt.closeStore())
	assert.FileExists(t, filepath.Join(home, ".afk", "afk.db"))
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}
