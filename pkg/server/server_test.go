package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/harrisonrobin/clarity/pkg/auth"
	"github.com/harrisonrobin/clarity/pkg/google"
	"github.com/harrisonrobin/clarity/pkg/model"
	"github.com/harrisonrobin/clarity/pkg/nlp"
	"github.com/harrisonrobin/clarity/pkg/reminder"
	"github.com/harrisonrobin/clarity/pkg/store"
	"github.com/harrisonrobin/clarity/pkg/tasks"
)

type nopReminders struct{}

func (nopReminders) MaybeSchedule(context.Context, *model.Task, string) reminder.Outcome {
	return reminder.Outcome{Scheduled: true}
}

type nopCalendar struct{}

func (nopCalendar) SyncEvent(context.Context, string, string, *string, time.Time, time.Time, ...google.SyncOption) google.SyncOutcome {
	return google.SyncOutcome{Reason: google.NoCredential}
}

type stubNormalizer struct {
	cmd *model.CreateCommand
	err error
}

func (s *stubNormalizer) Normalize(context.Context, string) (*model.CreateCommand, error) {
	return s.cmd, s.err
}

type env struct {
	srv    *Server
	db     *store.DB
	owners *store.OwnerStore
	tasks  *store.TaskStore
	issuer *auth.Issuer
	alice  *model.Owner
	bob    *model.Owner
	norm   *stubNormalizer
}

func setup(t *testing.T, oauthCfg *oauth2.Config) *env {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.Config{Path: filepath.Join(t.TempDir(), "clarity.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	owners := store.NewOwnerStore(db)
	taskStore := store.NewTaskStore(db)
	alice, err := owners.Create(ctx, "alice@example.com")
	require.NoError(t, err)
	bob, err := owners.Create(ctx, "bob@example.com")
	require.NoError(t, err)

	issuer, err := auth.NewIssuer("0123456789abcdef0123456789abcdef", "clarity", time.Hour, 10*time.Minute)
	require.NoError(t, err)

	norm := &stubNormalizer{}
	orch := tasks.NewOrchestrator(taskStore, owners, nopReminders{}, nopCalendar{},
		tasks.WithNormalizer(norm))

	srv := New(Deps{
		Orchestrator: orch,
		Tasks:        taskStore,
		Owners:       owners,
		Issuer:       issuer,
		OAuth:        oauthCfg,
	})
	return &env{srv: srv, db: db, owners: owners, tasks: taskStore, issuer: issuer, alice: alice, bob: bob, norm: norm}
}

func (e *env) do(t *testing.T, owner *model.Owner, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if owner != nil {
		tok, err := e.issuer.IssueToken(owner.ID, owner.Email)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func createdID(t *testing.T, rec *httptest.ResponseRecorder) int64 {
	t.Helper()
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 1)
	return int64(body["id"].(float64))
}

func TestTaskRoutes(t *testing.T) {
	t.Run("Should_require_bearer_token", func(t *testing.T) {
		e := setup(t, nil)
		rec := e.do(t, nil, http.MethodGet, "/api/tasks", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec = httptest.NewRecorder()
		e.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Should_create_and_return_only_the_id", func(t *testing.T) {
		e := setup(t, nil)
		due := time.Now().UTC().Add(45 * time.Minute).Format(time.RFC3339)
		rec := e.do(t, e.alice, http.MethodPost, "/api/tasks", `{"title":"Call mom","notes":"flowers","dueDate":"`+due+`"}`)
		id := createdID(t, rec)
		assert.Equal(t, "/api/tasks/"+itoa(id), rec.Header().Get("Location"))

		rec = e.do(t, e.alice, http.MethodGet, "/api/tasks/"+itoa(id), "")
		require.Equal(t, http.StatusOK, rec.Code)
		var task model.Task
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
		assert.Equal(t, "Call mom", task.Title)
		require.NotNil(t, task.Notes)
		assert.Equal(t, "flowers", *task.Notes)
		assert.False(t, task.IsCompleted)
		assert.Nil(t, task.UpdatedAt)
	})

	t.Run("Should_reject_invalid_task", func(t *testing.T) {
		e := setup(t, nil)
		rec := e.do(t, e.alice, http.MethodPost, "/api/tasks", `{"title":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = e.do(t, e.alice, http.MethodPost, "/api/tasks", `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Should_hide_other_owners_tasks", func(t *testing.T) {
		e := setup(t, nil)
		id := createdID(t, e.do(t, e.alice, http.MethodPost, "/api/tasks", `{"title":"secret"}`))

		assert.Equal(t, http.StatusNotFound, e.do(t, e.bob, http.MethodGet, "/api/tasks/"+itoa(id), "").Code)
		assert.Equal(t, http.StatusNotFound, e.do(t, e.bob, http.MethodDelete, "/api/tasks/"+itoa(id), "").Code)
		assert.Equal(t, http.StatusNotFound, e.do(t, e.bob, http.MethodPut, "/api/tasks/"+itoa(id), `{"title":"mine"}`).Code)

		rec := e.do(t, e.bob, http.MethodGet, "/api/tasks", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("Should_list_in_insertion_order", func(t *testing.T) {
		e := setup(t, nil)
		createdID(t, e.do(t, e.alice, http.MethodPost, "/api/tasks", `{"title":"first"}`))
		createdID(t, e.do(t, e.alice, http.MethodPost, "/api/tasks", `{"title":"second"}`))

		rec := e.do(t, e.alice, http.MethodGet, "/api/tasks", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var list []model.Task
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		require.Len(t, list, 2)
		assert.Equal(t, "first", list[0].Title)
		assert.Equal(t, "second", list[1].Title)
	})

	t.Run("Should_update_with_matching_id_only", func(t *testing.T) {
		e := setup(t, nil)
		id := createdID(t, e.do(t, e.alice, http.MethodPost, "/api/tasks", `{"title":"draft"}`))
		path := "/api/tasks/" + itoa(id)

		rec := e.do(t, e.alice, http.MethodPut, path, `{"id":`+itoa(id+100)+`,"title":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = e.do(t, e.alice, http.MethodPut, path, `{"id":`+itoa(id)+`,"title":"final","isCompleted":true}`)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		task, err := e.tasks.Find(context.Background(), id, e.alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "final", task.Title)
		assert.True(t, task.IsCompleted)
		assert.NotNil(t, task.UpdatedAt)

		assert.Equal(t, http.StatusNotFound, e.do(t, e.alice, http.MethodPut, "/api/tasks/9999", `{"title":"x"}`).Code)
	})

	t.Run("Should_delete_task", func(t *testing.T) {
		e := setup(t, nil)
		id := createdID(t, e.do(t, e.alice, http.MethodPost, "/api/tasks", `{"title":"temp"}`))
		assert.Equal(t, http.StatusNoContent, e.do(t, e.alice, http.MethodDelete, "/api/tasks/"+itoa(id), "").Code)
		assert.Equal(t, http.StatusNotFound, e.do(t, e.alice, http.MethodDelete, "/api/tasks/"+itoa(id), "").Code)
	})

	t.Run("Should_toggle_completion", func(t *testing.T) {
		e := setup(t, nil)
		id := createdID(t, e.do(t, e.alice, http.MethodPost, "/api/tasks", `{"title":"toggle me"}`))
		path := "/api/tasks/" + itoa(id) + "/complete"

		rec := e.do(t, e.alice, http.MethodPatch, path, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var task model.Task
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
		assert.True(t, task.IsCompleted)

		rec = e.do(t, e.alice, http.MethodPatch, path, "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
		assert.False(t, task.IsCompleted)
	})
}

func TestTaskRouteDueDates(t *testing.T) {
	t.Run("Should_accept_due_date_without_offset", func(t *testing.T) {
		e := setup(t, nil)
		id := createdID(t, e.do(t, e.alice, http.MethodPost, "/api/tasks", `{"title":"Call mom","dueDate":"2030-01-02T17:00:00"}`))

		task, err := e.tasks.Find(context.Background(), id, e.alice.ID)
		require.NoError(t, err)
		require.NotNil(t, task.DueDate)
		assert.True(t, time.Date(2030, 1, 2, 17, 0, 0, 0, time.UTC).Equal(*task.DueDate))

		rec := e.do(t, e.alice, http.MethodPut, "/api/tasks/"+itoa(id), `{"title":"Call mom","dueDate":"2030-01-03 09:30"}`)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		task, err = e.tasks.Find(context.Background(), id, e.alice.ID)
		require.NoError(t, err)
		assert.True(t, time.Date(2030, 1, 3, 9, 30, 0, 0, time.UTC).Equal(*task.DueDate))
	})

	t.Run("Should_reject_unreadable_due_date", func(t *testing.T) {
		e := setup(t, nil)
		rec := e.do(t, e.alice, http.MethodPost, "/api/tasks", `{"title":"Call mom","dueDate":"tomorrow"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestInternalErrors(t *testing.T) {
	t.Run("Should_not_leak_store_errors", func(t *testing.T) {
		e := setup(t, nil)
		require.NoError(t, e.db.Close())

		rec := e.do(t, e.alice, http.MethodGet, "/api/tasks", "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, map[string]any{"error": "An internal error occurred while processing the request."}, body)
		assert.NotContains(t, rec.Body.String(), "sql")
	})
}

func TestParseRoute(t *testing.T) {
	t.Run("Should_reject_blank_text", func(t *testing.T) {
		e := setup(t, nil)
		rec := e.do(t, e.alice, http.MethodPost, "/api/tasks/parse", `{"text":"   "}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Request text cannot be empty.")
	})

	t.Run("Should_explain_uninterpretable_text", func(t *testing.T) {
		e := setup(t, nil)
		e.norm.err = nlp.ErrMalformedReply
		rec := e.do(t, e.alice, http.MethodPost, "/api/tasks/parse", `{"text":"asdf qwer"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "asdf qwer", body["text"])
		assert.NotEmpty(t, body["error"])
		assert.NotEmpty(t, body["suggestion"])

		list, err := e.tasks.List(context.Background(), e.alice.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("Should_create_task_from_text", func(t *testing.T) {
		e := setup(t, nil)
		e.norm.cmd = &model.CreateCommand{Title: "Call mom"}
		id := createdID(t, e.do(t, e.alice, http.MethodPost, "/api/tasks/parse", `{"text":"call mom"}`))

		task, err := e.tasks.Find(context.Background(), id, e.alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "Call mom", task.Title)
	})
}

func TestGoogleRoutes(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt-123","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	oauthCfg := auth.OAuthConfig(auth.GoogleSettings{ClientID: "cid", ClientSecret: "secret", RedirectURL: "http://localhost/cb"})
	oauthCfg.Endpoint = oauth2.Endpoint{
		AuthURL:   "https://accounts.example.com/auth",
		TokenURL:  tokenSrv.URL,
		AuthStyle: oauth2.AuthStyleInParams,
	}

	t.Run("Should_redirect_to_consent_with_signed_state", func(t *testing.T) {
		e := setup(t, oauthCfg)
		rec := e.do(t, e.alice, http.MethodGet, "/api/auth/google/connect", "")
		require.Equal(t, http.StatusFound, rec.Code)

		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "accounts.example.com", loc.Host)
		assert.Equal(t, "offline", loc.Query().Get("access_type"))
		owner, err := e.issuer.ParseState(loc.Query().Get("state"))
		require.NoError(t, err)
		assert.Equal(t, e.alice.ID, owner)
	})

	t.Run("Should_store_refresh_token_on_callback", func(t *testing.T) {
		e := setup(t, oauthCfg)
		state, err := e.issuer.IssueState(e.alice.ID)
		require.NoError(t, err)

		rec := e.do(t, nil, http.MethodGet, "/api/auth/google/callback?code=good-code&state="+url.QueryEscape(state), "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		owner, err := e.owners.FindOwnerByID(context.Background(), e.alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "rt-123", owner.GoogleRefreshToken)
	})

	t.Run("Should_reject_forged_state", func(t *testing.T) {
		e := setup(t, oauthCfg)
		rec := e.do(t, nil, http.MethodGet, "/api/auth/google/callback?code=good-code&state="+e.alice.ID, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Should_fail_on_bad_code", func(t *testing.T) {
		e := setup(t, oauthCfg)
		state, err := e.issuer.IssueState(e.alice.ID)
		require.NoError(t, err)
		rec := e.do(t, nil, http.MethodGet, "/api/auth/google/callback?code=bad&state="+url.QueryEscape(state), "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		owner, err := e.owners.FindOwnerByID(context.Background(), e.alice.ID)
		require.NoError(t, err)
		assert.False(t, owner.HasCalendarCredential())
	})

	t.Run("Should_report_unconfigured_google", func(t *testing.T) {
		e := setup(t, nil)
		rec := e.do(t, e.alice, http.MethodGet, "/api/auth/google/connect", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
