package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/bde-portal/internal/apitest"
	"github.com/noah-isme/bde-portal/internal/models"
	appErrors "github.com/noah-isme/bde-portal/pkg/errors"
	"github.com/noah-isme/bde-portal/pkg/config"
)

type harness struct {
	t   *testing.T
	srv *apitest.Server
	cfg *config.Config
	dir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := apitest.New(apitest.Options{})
	t.Cleanup(srv.Close)
	dir := t.TempDir()
	cfg := &config.Config{
		Env:     config.EnvDevelopment,
		API:     config.APIConfig{BaseURL: srv.URL()},
		List:    config.ListConfig{PageSize: 6},
		Storage: config.StorageConfig{Driver: config.StorageFile, FilePath: filepath.Join(dir, "state.yaml")},
	}
	return &harness{t: t, srv: srv, cfg: cfg, dir: dir}
}

// exec runs one CLI invocation; every call is a fresh process over the same state file.
func (h *harness) exec(args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), h.cfg, zap.NewNop(), args, &out, &errOut)
	return out.String(), err
}

func (h *harness) mustExec(args ...string) string {
	h.t.Helper()
	out, err := h.exec(args...)
	require.NoError(h.t, err, out)
	return out
}

func (h *harness) signIn(role models.Role) {
	h.t.Helper()
	h.srv.AddUser(models.User{Email: "ada@bde.fr", FirstName: "Ada", LastName: "Lovelace", Role: role}, "lovelace1815")
	h.mustExec("login", "-email", "ada@bde.fr", "-password", "lovelace1815")
}

func TestUsage(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec()
	assert.ErrorIs(t, err, errUsage)

	_, err = h.exec("frobnicate")
	assert.ErrorIs(t, err, errUsage)

	_, err = h.exec("list", "-resource", "polls")
	assert.ErrorIs(t, err, errUsage)

	_, err = h.exec("help")
	assert.NoError(t, err)
}

func TestLoginPersistsAcrossInvocations(t *testing.T) {
	h := newHarness(t)

	out := h.mustExec("whoami")
	assert.Equal(t, "not signed in\n", out)

	h.srv.AddUser(models.User{Email: "ada@bde.fr", FirstName: "Ada", LastName: "Lovelace", Role: models.RoleBDE}, "lovelace1815")
	_, err := h.exec("login", "-email", "ada@bde.fr", "-password", "nope")
	require.Error(t, err)
	assert.Equal(t, "No active account found with the given credentials", appErrors.UserMessage(err, ""))

	out = h.mustExec("login", "-email", "ada@bde.fr", "-password", "lovelace1815")
	assert.Contains(t, out, "signed in as Ada Lovelace (BDE)")
	assert.Contains(t, out, "/dashboard-member")

	out = h.mustExec("whoami")
	assert.Contains(t, out, "Ada Lovelace <ada@bde.fr>")
	assert.Contains(t, out, "role: BDE")

	assert.Equal(t, "redirect -> /dashboard-member\n", h.mustExec("route", "-path", "/login"))
	assert.Equal(t, "allow\n", h.mustExec("route", "-path", "/dashboard-member"))
	assert.Equal(t, "redirect -> /dashboard-member\n", h.mustExec("route", "-path", "/dashboard-admin"))

	h.mustExec("logout")
	assert.Equal(t, "not signed in\n", h.mustExec("whoami"))
	assert.Equal(t, "redirect -> /login\n", h.mustExec("route", "-path", "/dashboard-member"))
}

func TestUnreadableStateStartsSignedOut(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.cfg.Storage.FilePath, []byte("values: [\n"), 0o600))

	assert.Equal(t, "not signed in\n", h.mustExec("whoami"))
	assert.Equal(t, "/login\n", h.mustExec("route"))
	assert.Equal(t, "/dashboard-admin\n", h.mustExec("route", "-role", "admin"))
}

func TestRouteForRole(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "/dashboard-admin\n", h.mustExec("route", "-role", "admin"))

	_, err := h.exec("route", "-role", "janitor")
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
	assert.Equal(t, "Select a valid role.", appErrors.UserMessage(err, ""))
}

func TestMuteSurvivesLogout(t *testing.T) {
	h := newHarness(t)
	h.signIn(models.RoleStudent)

	h.mustExec("mute")
	assert.Contains(t, h.mustExec("whoami"), "muted: true")

	h.mustExec("logout")
	assert.Contains(t, h.mustExec("whoami", "-json"), `"muted": true`)

	h.mustExec("unmute")
	assert.Contains(t, h.mustExec("whoami", "-json"), `"muted": false`)
}

func TestSignupDoesNotSignIn(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec("signup", "-email", "grace@bde.fr", "-password", "short", "-confirm-password", "short",
		"-first-name", "Grace", "-last-name", "Hopper")
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
	assert.Zero(t, h.srv.Calls(http.MethodPost, "/auth/register/"))

	out := h.mustExec("signup", "-email", "grace@bde.fr", "-password", "hopper1906", "-confirm-password", "hopper1906",
		"-first-name", "Grace", "-last-name", "Hopper", "-year", "2")
	assert.Contains(t, out, "account created for grace@bde.fr")
	assert.Equal(t, "not signed in\n", h.mustExec("whoami"))

	h.mustExec("login", "-email", "grace@bde.fr", "-password", "hopper1906")
	assert.Contains(t, h.mustExec("whoami"), "role: STUDENT")
}

func TestListCommandsRequireSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec("list")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
	assert.Zero(t, h.srv.Calls(http.MethodGet, "/announcements/"))
}

func TestAnnouncementLifecycle(t *testing.T) {
	h := newHarness(t)
	h.signIn(models.RoleBDE)

	_, err := h.exec("create-announcement", "-title", "Gala", "-content", "Friday", "-type", "party")
	require.Error(t, err)
	assert.Equal(t, "Select a valid announcement type.", appErrors.UserMessage(err, ""))
	assert.Zero(t, h.srv.Calls(http.MethodPost, "/announcements/"))

	out := h.mustExec("create-announcement", "-title", "Winter Gala", "-content", "Friday night", "-type", "event")
	require.True(t, strings.HasPrefix(out, "created announcement "))
	id := strings.TrimSpace(strings.TrimPrefix(out, "created announcement "))

	out = h.mustExec("list")
	assert.Contains(t, out, "Announcements")
	assert.Contains(t, out, "Winter Gala")
	assert.Contains(t, out, "page 1 of 1, 1 total")

	out = h.mustExec("update", "-id", id, "-set", "title=Spring Gala")
	assert.Contains(t, out, "Spring Gala")

	out = h.mustExec("pin", "-id", id)
	assert.Regexp(t, `pinned:\s+true`, out)

	out = h.mustExec("list", "-json")
	assert.Contains(t, out, `"is_pinned": true`)
	assert.Contains(t, out, `"total_count": 1`)

	h.mustExec("delete", "-id", id)
	assert.Zero(t, h.srv.Count("announcements"))

	_, err = h.exec("delete", "-id", id)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStudentCannotPostAnnouncements(t *testing.T) {
	h := newHarness(t)
	h.signIn(models.RoleStudent)

	_, err := h.exec("create-announcement", "-title", "Hi", "-content", "x")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestBulkDeleteAndPaging(t *testing.T) {
	h := newHarness(t)
	h.signIn(models.RoleAdmin)
	for _, id := range []string{"e1", "e2", "e3", "e4", "e5", "e6", "e7"} {
		h.srv.Seed("events", models.Event{ID: id, Title: "Event " + id, Location: "Hall"})
	}

	out := h.mustExec("list", "-resource", "events", "-page", "2")
	assert.Contains(t, out, "page 2 of 2, 7 total")

	_, err := h.exec("bulk-delete", "-resource", "events")
	assert.ErrorIs(t, err, errUsage)

	out = h.mustExec("bulk-delete", "-resource", "events", "-ids", "e1,e2", "e3")
	assert.Equal(t, "deleted 3 items\n", out)
	assert.Equal(t, 4, h.srv.Count("events"))
}

func TestExportCSV(t *testing.T) {
	h := newHarness(t)
	h.signIn(models.RoleStudent)
	h.srv.Seed("forum/topics", models.ForumTopic{ID: "t1", Title: "Study group", Category: "STUDY", RepliesCount: 3})

	path := filepath.Join(h.dir, "topics.csv")
	out := h.mustExec("export", "-resource", "topics", "-out", path)
	assert.Contains(t, out, "wrote 1 rows")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,title,category,replies,pinned,created_at", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "t1,Study group,STUDY,3,false,"))

	_, err = h.exec("export", "-format", "xlsx")
	assert.ErrorIs(t, err, errUsage)
}

func TestDashboardLoadsEveryList(t *testing.T) {
	h := newHarness(t)
	h.signIn(models.RoleBDE)
	h.srv.Seed("announcements", models.Announcement{Title: "Welcome week", Type: models.AnnouncementGeneral})
	h.srv.Seed("events", models.Event{Title: "Pub quiz"})

	out := h.mustExec("dashboard")
	assert.Contains(t, out, "Welcome, Ada Lovelace")
	assert.Contains(t, out, "Welcome week")
	assert.Contains(t, out, "Forum topics\n  (nothing here yet)")
	assert.Contains(t, out, "Pub quiz")

	h.srv.Fail(http.MethodGet, "/events/", http.StatusInternalServerError, "boom")
	_, err := h.exec("dashboard")
	require.Error(t, err)
}

func TestOpenStoreDrivers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, driver := range []string{config.StorageMemory, config.StorageFile, config.StorageSQLite} {
		cfg := &config.Config{Storage: config.StorageConfig{
			Driver:     driver,
			FilePath:   filepath.Join(dir, "state.yaml"),
			SQLitePath: filepath.Join(dir, "state.db"),
			Table:      "client_state",
		}}
		store, closeFn, err := openStore(ctx, cfg)
		require.NoError(t, err, driver)
		require.NoError(t, store.Set(ctx, "muted", "true"), driver)
		v, err := store.Get(ctx, "muted")
		require.NoError(t, err, driver)
		assert.Equal(t, "true", v, driver)
		require.NoError(t, closeFn(), driver)
	}

	_, _, err := openStore(ctx, &config.Config{Storage: config.StorageConfig{Driver: "etcd"}})
	assert.Error(t, err)
}
