package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radumarias/rencfs-desktop/api"
	"github.com/radumarias/rencfs-desktop/secret"
	"github.com/radumarias/rencfs-desktop/storage"
	"github.com/radumarias/rencfs-desktop/storage/memory"
	"github.com/radumarias/rencfs-desktop/vault"
)

type stubProcess struct {
	pid  int
	once sync.Once
	done chan struct{}
}

func (p *stubProcess) Pid() int                      { return p.pid }
func (p *stubProcess) Done() <-chan struct{}         { return p.done }
func (p *stubProcess) Kill() error                   { p.once.Do(func() { close(p.done) }); return nil }
func (p *stubProcess) Terminate(time.Duration) error { return p.Kill() }

type stubLauncher struct {
	mu      sync.Mutex
	err     error
	started []vault.Command
	nextPid int
}

func (l *stubLauncher) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

func (l *stubLauncher) starts() []vault.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]vault.Command(nil), l.started...)
}

func (l *stubLauncher) Start(cmd vault.Command) (vault.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.started = append(l.started, cmd)
	l.nextPid++
	return &stubProcess{pid: 1000 + l.nextPid, done: make(chan struct{})}, nil
}

type stubHealth struct{ state vault.ProcessState }

func (h stubHealth) Check(context.Context, int) (vault.ProcessState, error) { return h.state, nil }

type testServer struct {
	*httptest.Server
	repo     storage.Repository
	launcher *stubLauncher
}

func setupServer(t *testing.T, opts ...api.Option) *testServer {
	t.Helper()
	t.Setenv("API_TEST_PASSWORD", "pw")
	repo := memory.NewRepository()
	launcher := &stubLauncher{}
	registry := vault.NewRegistry(func(id int64) *vault.Handler {
		return vault.NewHandler(id, repo,
			vault.WithLauncher(launcher),
			vault.WithHealthCheckers(stubHealth{vault.StateRunning}, nil),
			vault.WithUnmounter(nil),
			vault.WithCredentials(secret.Env{Var: "API_TEST_PASSWORD"}),
			vault.WithLogsDir(t.TempDir()),
			vault.WithGracePeriod(0),
		)
	})
	a := api.New(registry, opts...)
	t.Cleanup(a.Close)

	r := chi.NewRouter()
	r.Mount("/api/v1", a.Router())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, repo: repo, launcher: launcher}
}

func (s *testServer) seed(t *testing.T, name string) *storage.Vault {
	t.Helper()
	id, err := s.repo.Insert(t.Context(), storage.NewVault{
		Name:       name,
		MountPoint: "/mnt/" + name,
		DataDir:    "/data/" + name,
	})
	require.NoError(t, err)
	v, err := s.repo.Get(t.Context(), id)
	require.NoError(t, err)
	return v
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, &reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func vaultURL(s *testServer, id int64, op string) string {
	return s.URL + "/api/v1/vaults/" + strconv.FormatInt(id, 10) + "/" + op
}

func TestUnlockThenLock(t *testing.T) {
	srv := setupServer(t)
	v := srv.seed(t, "personal")

	resp := doJSON(t, http.MethodPost, vaultURL(srv, v.ID, "unlock"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := srv.repo.Get(t.Context(), v.ID)
	require.NoError(t, err)
	assert.False(t, got.Locked)

	status := decode[api.StatusResponse](t, doJSON(t, http.MethodGet, vaultURL(srv, v.ID, "status"), nil))
	assert.Equal(t, api.StatusResponse{ID: v.ID, Unlocked: true, MountPoint: "/mnt/personal"}, status)

	starts := srv.launcher.starts()
	require.Len(t, starts, 1)
	assert.Contains(t, starts[0].Env, "RENCFS_PASSWORD=pw")

	resp = doJSON(t, http.MethodPost, vaultURL(srv, v.ID, "lock"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err = srv.repo.Get(t.Context(), v.ID)
	require.NoError(t, err)
	assert.True(t, got.Locked)

	status = decode[api.StatusResponse](t, doJSON(t, http.MethodGet, vaultURL(srv, v.ID, "status"), nil))
	assert.False(t, status.Unlocked)
}

func TestUnlockFailureCarriesKind(t *testing.T) {
	srv := setupServer(t)
	v := srv.seed(t, "broken")
	srv.launcher.fail(errors.New("exec format error"))

	resp := doJSON(t, http.MethodPost, vaultURL(srv, v.ID, "unlock"), nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	se, err := api.DecodeServiceError(resp.Header.Get(api.ServiceErrorHeader))
	require.NoError(t, err)
	assert.Equal(t, api.KindCannotUnlockVault, se.Kind)
	assert.ErrorIs(t, se, vault.ErrCannotUnlockVault)
	assert.Contains(t, se.Message, "exec format error")

	body := decode[api.ErrorResponse](t, resp)
	assert.NotEmpty(t, body.Error)
}

func TestUnlockUnknownVault(t *testing.T) {
	srv := setupServer(t)
	resp := doJSON(t, http.MethodPost, vaultURL(srv, 42, "unlock"), nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	se, err := api.DecodeServiceError(resp.Header.Get(api.ServiceErrorHeader))
	require.NoError(t, err)
	assert.Equal(t, api.KindCannotUnlockVault, se.Kind)
}

func TestLockUnknownVault(t *testing.T) {
	srv := setupServer(t)
	resp := doJSON(t, http.MethodPost, vaultURL(srv, 42, "lock"), nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	se, err := api.DecodeServiceError(resp.Header.Get(api.ServiceErrorHeader))
	require.NoError(t, err)
	assert.Equal(t, api.KindCannotLockVault, se.Kind)
}

func TestInvalidVaultID(t *testing.T) {
	srv := setupServer(t)
	for _, op := range []string{"lock", "unlock"} {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/vaults/abc/"+op, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, op)
		assert.Empty(t, resp.Header.Get(api.ServiceErrorHeader))
	}
}

func TestChangeMountPointRestarts(t *testing.T) {
	srv := setupServer(t)
	v := srv.seed(t, "work")

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, vaultURL(srv, v.ID, "unlock"), nil).StatusCode)

	err := srv.repo.Update(t.Context(), v.ID, storage.SetMountPoint("/mnt/elsewhere"))
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, vaultURL(srv, v.ID, "mount-point"), api.StringRequest{Value: "/mnt/work"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	starts := srv.launcher.starts()
	require.Len(t, starts, 2)
	assert.Contains(t, starts[1].Args, "/mnt/elsewhere")

	status := decode[api.StatusResponse](t, doJSON(t, http.MethodGet, vaultURL(srv, v.ID, "status"), nil))
	assert.Equal(t, "/mnt/elsewhere", status.MountPoint)
}

func TestChangeWhileLockedIsNoop(t *testing.T) {
	srv := setupServer(t)
	v := srv.seed(t, "idle")

	for _, op := range []string{"mount-point", "data-dir"} {
		resp := doJSON(t, http.MethodPost, vaultURL(srv, v.ID, op), api.StringRequest{Value: "/old"})
		assert.Equal(t, http.StatusOK, resp.StatusCode, op)
	}
	assert.Empty(t, srv.launcher.starts())
}

func TestChangeDataDirFailureKind(t *testing.T) {
	srv := setupServer(t)
	v := srv.seed(t, "moving")
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, vaultURL(srv, v.ID, "unlock"), nil).StatusCode)

	srv.launcher.fail(errors.New("no such binary"))

	resp := doJSON(t, http.MethodPost, vaultURL(srv, v.ID, "data-dir"), api.StringRequest{Value: "/data/moving"})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	se, err := api.DecodeServiceError(resp.Header.Get(api.ServiceErrorHeader))
	require.NoError(t, err)
	assert.Equal(t, api.KindCannotUnlockVault, se.Kind, "the restart failed on the way up")
}

func TestRelocateRequiresValue(t *testing.T) {
	srv := setupServer(t)
	v := srv.seed(t, "strict")

	resp := doJSON(t, http.MethodPost, vaultURL(srv, v.ID, "mount-point"), api.StringRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, vaultURL(srv, v.ID, "data-dir"), "not an object")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHello(t *testing.T) {
	srv := setupServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/hello", api.HelloRequest{Name: "desktop"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello desktop!", decode[api.HelloResponse](t, resp).Message)
}

func TestOpenAPIServed(t *testing.T) {
	srv := setupServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/yaml", resp.Header.Get("Content-Type"))
}

func TestFailureAlert(t *testing.T) {
	var mu sync.Mutex
	var alerts []api.AlertEvent
	srv := setupServer(t, api.WithAlertFunc(func(evt api.AlertEvent) {
		mu.Lock()
		alerts = append(alerts, evt)
		mu.Unlock()
	}))
	srv.launcher.fail(errors.New("boom"))
	v := srv.seed(t, "flaky")

	for range 5 {
		doJSON(t, http.MethodPost, vaultURL(srv, v.ID, "unlock"), nil)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, alerts, 1)
	assert.Equal(t, api.AlertUnlockFailureSpike, alerts[0].Type)
	assert.Equal(t, 5, alerts[0].Count)
}
