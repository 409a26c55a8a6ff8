package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bde-portal/internal/dto"
	"github.com/noah-isme/bde-portal/internal/metrics"
	"github.com/noah-isme/bde-portal/internal/models"
	appErrors "github.com/noah-isme/bde-portal/pkg/errors"
	"github.com/noah-isme/bde-portal/pkg/middleware/requestid"
)

type recorded struct {
	Method  string
	Path    string
	Query   string
	Auth    string
	ReqID   string
	Payload map[string]interface{}
}

type recorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *recorder) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		rec := recorded{
			Method: req.Method,
			Path:   req.URL.Path,
			Query:  req.URL.RawQuery,
			Auth:   req.Header.Get("Authorization"),
			ReqID:  req.Header.Get(requestid.HeaderKey),
		}
		body, _ := io.ReadAll(req.Body)
		if len(body) > 0 {
			_ = json.Unmarshal(body, &rec.Payload)
		}
		r.mu.Lock()
		r.calls = append(r.calls, rec)
		r.mu.Unlock()
		h(w, req)
	}
}

func (r *recorder) last(t *testing.T) recorded {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.calls)
	return r.calls[len(r.calls)-1]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(rec.wrap(h))
	t.Cleanup(srv.Close)

	client, err := New(Config{BaseURL: srv.URL + "/api/"}, opts...)
	require.NoError(t, err)
	return client, rec
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "ftp://example.com"})
	assert.Error(t, err)

	c, err := New(Config{BaseURL: "http://localhost:8000/api/"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/api", c.BaseURL())
}

func TestLoginSendsCredentialsWithoutBearer(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"user":   map[string]interface{}{"id": "u1", "email": "a@b.fr", "role": "ADMIN"},
			"tokens": map[string]string{"access": "acc", "refresh": "ref"},
		})
	}, WithTokenSource(TokenFunc(func() string { return "stale" })))

	res, err := client.Auth().Login(context.Background(), dto.LoginRequest{Email: "a@b.fr", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "u1", res.User.ID)
	assert.Equal(t, models.RoleAdmin, res.User.Role)
	assert.Equal(t, models.Tokens{Access: "acc", Refresh: "ref"}, res.Tokens)

	call := rec.last(t)
	assert.Equal(t, http.MethodPost, call.Method)
	assert.Equal(t, "/api/auth/login/", call.Path)
	assert.Empty(t, call.Auth)
	assert.NotEmpty(t, call.ReqID)
	assert.Equal(t, "a@b.fr", call.Payload["email"])
}

func TestLogoutUsesGivenTokens(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.Auth().Logout(context.Background(), models.Tokens{Access: "acc", Refresh: "ref"})
	require.NoError(t, err)

	call := rec.last(t)
	assert.Equal(t, "/api/auth/logout/", call.Path)
	assert.Equal(t, "Bearer acc", call.Auth)
	assert.Equal(t, "ref", call.Payload["refresh_token"])
}

func TestErrorDecoding(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    string
		message string
		fields  map[string]string
	}{
		{
			name:    "detail",
			status:  http.StatusUnauthorized,
			body:    `{"detail":"No active account found with the given credentials"}`,
			code:    appErrors.ErrUnauthorized.Code,
			message: "No active account found with the given credentials",
		},
		{
			name:    "error key",
			status:  http.StatusForbidden,
			body:    `{"error":"Only BDE members can post"}`,
			code:    appErrors.ErrForbidden.Code,
			message: "Only BDE members can post",
		},
		{
			name:    "non field errors",
			status:  http.StatusBadRequest,
			body:    `{"non_field_errors":["Unable to log in."]}`,
			code:    appErrors.ErrValidation.Code,
			message: "Unable to log in.",
		},
		{
			name:    "field errors only",
			status:  http.StatusBadRequest,
			body:    `{"title":["This field is required."],"content":["Too short."]}`,
			code:    appErrors.ErrValidation.Code,
			message: "Too short.",
			fields:  map[string]string{"title": "This field is required.", "content": "Too short."},
		},
		{
			name:    "nested errors",
			status:  http.StatusConflict,
			body:    `{"detail":"duplicate","code":"CONFLICT","errors":{"email":"already used"}}`,
			code:    appErrors.ErrConflict.Code,
			message: "duplicate",
			fields:  map[string]string{"email": "already used"},
		},
		{
			name:    "not json",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			code:    appErrors.ErrInternal.Code,
			message: appErrors.ErrInternal.Message,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decodeError(tt.status, []byte(tt.body))
			require.NotNil(t, err)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.status, err.Status)
			assert.Equal(t, tt.message, err.Message)
			if tt.fields != nil {
				assert.Equal(t, tt.fields, err.Fields)
			}
		})
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	m := metrics.New()
	client, err := New(Config{BaseURL: base}, WithMetrics(m))
	require.NoError(t, err)

	_, err = client.Auth().Login(context.Background(), dto.LoginRequest{Email: "a@b.fr", Password: "x"})
	require.Error(t, err)
	assert.True(t, appErrors.IsTransport(err))
}

func TestResourceList(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"results": []map[string]interface{}{{"id": "a1", "title": "Gala"}},
			"count":   13,
		})
	}, WithTokenSource(TokenFunc(func() string { return "acc" })))

	res, err := Announcements(client).List(context.Background(), models.ListParams{Page: 2, Search: "gala", Type: "EVENT"}, 6)
	require.NoError(t, err)
	assert.Equal(t, 13, res.Count)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Gala", res.Results[0].Title)

	call := rec.last(t)
	assert.Equal(t, "/api/announcements/", call.Path)
	assert.Equal(t, "limit=6&page=2&search=gala&type=EVENT", call.Query)
	assert.Equal(t, "Bearer acc", call.Auth)
}

func TestResourceListEmptyResults(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"count": 0})
	})

	res, err := Events(client).List(context.Background(), models.ListParams{}, 0)
	require.NoError(t, err)
	assert.NotNil(t, res.Results)
	assert.Empty(t, res.Results)
}

func TestResourceMutations(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPost:
			if r.URL.Path == "/api/forum/topics/bulk-delete/" {
				writeJSON(w, http.StatusOK, map[string]int{"deleted": 2})
				return
			}
			writeJSON(w, http.StatusCreated, map[string]interface{}{"id": "t9", "title": "New"})
		default:
			writeJSON(w, http.StatusOK, map[string]interface{}{"id": "t1", "title": "Edited", "is_pinned": true})
		}
	})
	topics := ForumTopics(client)
	ctx := context.Background()

	created, err := topics.Create(ctx, map[string]string{"title": "New"})
	require.NoError(t, err)
	assert.Equal(t, "t9", created.ID)
	assert.Equal(t, "/api/forum/topics/", rec.last(t).Path)

	pinned, err := topics.Pin(ctx, "t1", true)
	require.NoError(t, err)
	assert.True(t, pinned.IsPinned)
	call := rec.last(t)
	assert.Equal(t, http.MethodPatch, call.Method)
	assert.Equal(t, "/api/forum/topics/t1/", call.Path)
	assert.Equal(t, true, call.Payload["is_pinned"])

	require.NoError(t, topics.Delete(ctx, "t1"))
	assert.Equal(t, http.MethodDelete, rec.last(t).Method)

	require.NoError(t, topics.BulkDelete(ctx, []string{"t1", "t2"}))
	call = rec.last(t)
	assert.Equal(t, "/api/forum/topics/bulk-delete/", call.Path)
	assert.Equal(t, []interface{}{"t1", "t2"}, call.Payload["ids"])
}

func TestEmptyMutationReplyIsAnError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	announcements := Announcements(client)
	ctx := context.Background()

	created, err := announcements.Create(ctx, dto.AnnouncementInput{Title: "Gala"})
	require.Error(t, err)
	assert.Nil(t, created)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Equal(t, "empty response from server", appErrors.UserMessage(err, ""))

	_, err = announcements.Update(ctx, "a2", map[string]string{"title": "x"})
	assert.ErrorIs(t, err, appErrors.ErrInternal)

	_, err = announcements.Pin(ctx, "a2", true)
	assert.ErrorIs(t, err, appErrors.ErrInternal)

	_, err = client.Auth().Login(ctx, dto.LoginRequest{Email: "a@b.fr", Password: "pw"})
	assert.ErrorIs(t, err, appErrors.ErrInternal)

	require.NoError(t, announcements.Delete(ctx, "a2"))
	require.NoError(t, announcements.BulkDelete(ctx, []string{"a1"}))
}

func TestRequestMetricsUseRouteLabel(t *testing.T) {
	m := metrics.New()
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
	}, WithMetrics(m))

	err := Events(client).Delete(context.Background(), "e42")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Equal(t, "Not found.", appErrors.UserMessage(err, "fallback"))

	assert.Equal(t, uint64(1), m.Snapshot().RequestFailures)
	expected := `
# HELP client_requests_total Total number of outbound API requests
# TYPE client_requests_total counter
client_requests_total{endpoint="/events/:id/",method="DELETE",status="404"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "client_requests_total"))
}
