package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/netip"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"dayboard/internal/auth"
	"dayboard/internal/model"
	"dayboard/internal/planner"
	"dayboard/internal/storage"
	logx "dayboard/pkg/logx"
)

type testEnv struct {
	srv  *httptest.Server
	db   *storage.DB
	path string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api.db")
	db, err := storage.Open(storage.Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p, err := planner.New(db, planner.Options{Clock: planner.FixedDay(model.MustDate("2024-06-10")), Location: time.UTC})
	require.NoError(t, err)
	as := auth.NewService(db, auth.Config{AllowRegistration: true, BcryptCost: bcrypt.MinCost}, logx.Nop())

	srv := httptest.NewServer(NewHandler(Deps{Store: db, Planner: p, Auth: as, Logger: logx.Nop()}))
	t.Cleanup(srv.Close)
	return testEnv{srv: srv, db: db, path: path}
}

type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func (e testEnv) client(t *testing.T) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: e.srv.URL, http: &http.Client{Jar: jar}}
}

// signup registers and logs in a fresh user.
func (e testEnv) signup(t *testing.T, name string) *client {
	t.Helper()
	c := e.client(t)
	c.expect(http.MethodPost, "/api/auth/register", map[string]string{"username": name, "password": "secret1"}, http.StatusCreated, nil)
	c.expect(http.MethodPost, "/api/auth/login", map[string]string{"username": name, "password": "secret1"}, http.StatusOK, nil)
	return c
}

func (c *client) do(method, path string, body any) (*http.Response, []byte) {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, raw
}

// expect performs a request, checks the status and decodes into out when set.
func (c *client) expect(method, path string, body any, status int, out any) *http.Response {
	c.t.Helper()
	resp, raw := c.do(method, path, body)
	require.Equal(c.t, status, resp.StatusCode, "%s %s: %s", method, path, raw)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(raw, out), string(raw))
	}
	return resp
}

func titles(vs []planner.TaskView) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Title
	}
	return out
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	c.expect(http.MethodGet, "/api/auth/me", nil, http.StatusUnauthorized, nil)
	c.expect(http.MethodPost, "/api/auth/register", map[string]string{"username": "alice", "password": "secret1"}, http.StatusCreated, nil)
	c.expect(http.MethodPost, "/api/auth/register", map[string]string{"username": "Alice", "password": "secret1"}, http.StatusConflict, nil)
	c.expect(http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "nope123"}, http.StatusUnauthorized, nil)
	c.expect(http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "secret1"}, http.StatusOK, nil)

	var me model.User
	c.expect(http.MethodGet, "/api/auth/me", nil, http.StatusOK, &me)
	assert.Equal(t, "alice", me.Username)

	c.expect(http.MethodPut, "/api/me/telegram", map[string]int64{"chat_id": 42}, http.StatusOK, &me)
	assert.Equal(t, int64(42), me.TelegramChatID)

	c.expect(http.MethodPost, "/api/auth/logout", nil, http.StatusNoContent, nil)
	c.expect(http.MethodGet, "/api/auth/me", nil, http.StatusUnauthorized, nil)
}

func TestDashboardPromotesOnce(t *testing.T) {
	env := newTestEnv(t)
	c := env.signup(t, "alice")

	c.expect(http.MethodPost, "/api/calendar/tasks", map[string]string{"title": "Dentist", "date": "2024-06-10", "category": "health"}, http.StatusCreated, nil)
	c.expect(http.MethodPost, "/api/calendar/tasks", map[string]string{"title": "Dentist", "date": "2024-06-10", "category": "health"}, http.StatusOK, nil)
	c.expect(http.MethodPost, "/api/recurring", map[string]any{"title": "Stretch", "frequency": "Daily", "interval_value": 1}, http.StatusCreated, nil)
	c.expect(http.MethodPost, "/api/recurring", map[string]any{"title": "Review", "frequency": "weekly", "start_date": "2024-06-03"}, http.StatusCreated, nil)

	for range 2 {
		var d planner.Dashboard
		c.expect(http.MethodGet, "/api/dashboard", nil, http.StatusOK, &d)
		assert.Equal(t, "2024-06-10", d.Day.String())
		// Review lands in This Week due on Monday, so it is also due today.
		assert.ElementsMatch(t, []string{"Dentist", "Stretch", "Review"}, titles(d.Today.Incomplete))
		assert.Equal(t, []string{"Stretch"}, titles(d.Tomorrow.Incomplete))
		assert.Equal(t, []string{"Review"}, titles(d.Week.Incomplete))
		assert.Empty(t, d.Month.Incomplete)
	}

	var res struct {
		Inserted int              `json:"inserted"`
		Calendar planner.OpResult `json:"calendar"`
	}
	c.expect(http.MethodPost, "/api/promote", nil, http.StatusOK, &res)
	assert.True(t, res.Calendar.Skipped)
	assert.Zero(t, res.Inserted)

	c.expect(http.MethodPost, "/api/promote", map[string]bool{"force": true}, http.StatusOK, &res)
	assert.False(t, res.Calendar.Skipped)
	assert.Zero(t, res.Inserted)
}

func TestListsAndTasks(t *testing.T) {
	env := newTestEnv(t)
	c := env.signup(t, "alice")

	c.expect(http.MethodPost, "/api/lists", map[string]string{"name": "Errands", "color": "#ff0000"}, http.StatusCreated, nil)
	c.expect(http.MethodPost, "/api/lists", map[string]string{"name": "Errands"}, http.StatusConflict, nil)
	c.expect(http.MethodPost, "/api/lists", map[string]string{"name": "Today"}, http.StatusConflict, nil)

	var milk model.Task
	c.expect(http.MethodPost, "/api/lists/Errands/tasks", map[string]any{"title": "Milk", "estimated_time": 5}, http.StatusCreated, &milk)
	c.expect(http.MethodPost, "/api/lists/Errands/tasks", map[string]any{"title": "  "}, http.StatusBadRequest, nil)

	var patched model.Task
	c.expect(http.MethodPatch, "/api/tasks/"+itoa(milk.ID), map[string]any{"completed": true}, http.StatusOK, &patched)
	assert.True(t, patched.Completed)

	var lv listView
	c.expect(http.MethodGet, "/api/lists/Errands", nil, http.StatusOK, &lv)
	assert.Equal(t, "#ff0000", lv.Color)
	assert.Len(t, lv.Incomplete, 1) // seeded Default Task
	assert.Len(t, lv.Completed, 1)

	var overview []listView
	c.expect(http.MethodGet, "/api/lists", nil, http.StatusOK, &overview)
	require.Len(t, overview, 1)
	assert.Equal(t, "Errands", overview[0].Name)

	c.expect(http.MethodPost, "/api/lists/Errands/archive", nil, http.StatusNoContent, nil)
	c.expect(http.MethodGet, "/api/lists", nil, http.StatusOK, &overview)
	assert.Empty(t, overview)
	var archived []storage.ListSummary
	c.expect(http.MethodGet, "/api/lists/archived", nil, http.StatusOK, &archived)
	require.Len(t, archived, 1)
	c.expect(http.MethodPost, "/api/lists/Errands/restore", nil, http.StatusNoContent, nil)
	c.expect(http.MethodPut, "/api/lists/Errands/color", map[string]string{"color": "#00ff00"}, http.StatusNoContent, nil)

	var quick model.Task
	c.expect(http.MethodPost, "/api/special/this-month", map[string]string{"title": "Taxes"}, http.StatusCreated, &quick)
	assert.Equal(t, model.ListThisMonth, quick.ListName)
	assert.Equal(t, "2024-06-30", quick.DueDate.String())
	c.expect(http.MethodPost, "/api/special/this-week", map[string]string{"title": "Laundry"}, http.StatusCreated, &quick)
	assert.Equal(t, "2024-06-16", quick.DueDate.String())
	c.expect(http.MethodPost, "/api/special/someday", map[string]string{"title": "x"}, http.StatusNotFound, nil)

	c.expect(http.MethodPut, "/api/tasks/order", map[string][]int64{"ids": {milk.ID}}, http.StatusNoContent, nil)
	c.expect(http.MethodDelete, "/api/tasks/"+itoa(milk.ID), nil, http.StatusNoContent, nil)
	c.expect(http.MethodDelete, "/api/tasks/"+itoa(milk.ID), nil, http.StatusNotFound, nil)
	c.expect(http.MethodDelete, "/api/tasks/abc", nil, http.StatusBadRequest, nil)
}

func TestUpdatePromotedTaskConflict(t *testing.T) {
	env := newTestEnv(t)
	c := env.signup(t, "alice")

	c.expect(http.MethodPost, "/api/recurring", map[string]any{"title": "Stretch", "frequency": "daily"}, http.StatusCreated, nil)
	c.expect(http.MethodPost, "/api/recurring", map[string]any{"title": "Read", "frequency": "daily"}, http.StatusCreated, nil)

	var d planner.Dashboard
	c.expect(http.MethodGet, "/api/dashboard", nil, http.StatusOK, &d)
	ids := map[string]int64{}
	for _, v := range d.Today.Incomplete {
		ids[v.Title] = v.ID
	}
	require.Contains(t, ids, "Stretch")
	require.Contains(t, ids, "Read")

	// Next Day already holds Stretch for 2024-06-11.
	c.expect(http.MethodPatch, "/api/tasks/"+itoa(ids["Stretch"]), map[string]string{"due_date": "2024-06-11"}, http.StatusConflict, nil)
	c.expect(http.MethodPatch, "/api/tasks/"+itoa(ids["Read"]), map[string]string{"title": "Stretch"}, http.StatusConflict, nil)

	var patched model.Task
	c.expect(http.MethodPatch, "/api/tasks/"+itoa(ids["Read"]), map[string]string{"title": "Read more"}, http.StatusOK, &patched)
	assert.Equal(t, "Read more", patched.Title)
}

func TestOwnershipIsolation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")

	var task model.Task
	alice.expect(http.MethodPost, "/api/special/today", map[string]string{"title": "Private"}, http.StatusCreated, &task)

	bob.expect(http.MethodPatch, "/api/tasks/"+itoa(task.ID), map[string]any{"title": "Hijacked"}, http.StatusNotFound, nil)
	bob.expect(http.MethodDelete, "/api/tasks/"+itoa(task.ID), nil, http.StatusNotFound, nil)

	var d planner.Dashboard
	bob.expect(http.MethodGet, "/api/dashboard", nil, http.StatusOK, &d)
	assert.Empty(t, d.Today.Incomplete)
	alice.expect(http.MethodGet, "/api/dashboard", nil, http.StatusOK, &d)
	assert.Equal(t, []string{"Private"}, titles(d.Today.Incomplete))
}

func TestCalendarMonthAndICS(t *testing.T) {
	env := newTestEnv(t)
	c := env.signup(t, "alice")

	c.expect(http.MethodPost, "/api/calendar/tasks", map[string]string{"title": "Trip, day 1", "date": "2024-06-20"}, http.StatusCreated, nil)
	c.expect(http.MethodPost, "/api/recurring", map[string]any{"title": "Gym", "frequency": "custom_weeks", "start_date": "2024-06-03", "interval_value": 2}, http.StatusCreated, nil)

	var v planner.MonthView
	c.expect(http.MethodGet, "/api/calendar/2024/6", nil, http.StatusOK, &v)
	assert.Len(t, v.Weeks, 5)
	var got []string
	for _, e := range v.Entries {
		got = append(got, e.Date.String()+" "+e.Title)
	}
	assert.Equal(t, []string{"2024-06-03 Gym", "2024-06-17 Gym", "2024-06-20 Trip, day 1"}, got)

	resp, raw := c.do(http.MethodGet, "/api/calendar/2024/6.ics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar"))
	body := string(raw)
	assert.Equal(t, 3, strings.Count(body, "BEGIN:VEVENT"))
	assert.Contains(t, body, `SUMMARY:Trip\, day 1`)
	assert.Contains(t, body, "DTSTART;VALUE=DATE:20240620")

	c.expect(http.MethodGet, "/api/calendar/2024/13", nil, http.StatusBadRequest, nil)
	c.expect(http.MethodGet, "/api/calendar/x/6", nil, http.StatusBadRequest, nil)
	c.expect(http.MethodPost, "/api/recurring", map[string]any{"title": "Y", "frequency": "yearly"}, http.StatusBadRequest, nil)
}

func TestTimeline(t *testing.T) {
	env := newTestEnv(t)
	c := env.signup(t, "alice")

	var g model.Goal
	c.expect(http.MethodPost, "/api/timeline/goals", map[string]string{"title": "Marathon", "start_date": "2024-06-01", "due_date": "2024-06-21"}, http.StatusCreated, &g)
	var m model.Milestone
	c.expect(http.MethodPost, "/api/timeline/milestones", map[string]any{"goal_id": g.ID, "title": "10k", "due_date": "2024-06-11"}, http.StatusCreated, &m)
	var mt model.MilestoneTask
	c.expect(http.MethodPost, "/api/timeline/milestone-tasks", map[string]any{"milestone_id": m.ID, "title": "Run"}, http.StatusCreated, &mt)
	c.expect(http.MethodPatch, "/api/timeline/milestone-tasks/"+itoa(mt.ID), map[string]bool{"completed": true}, http.StatusNoContent, nil)
	c.expect(http.MethodPatch, "/api/timeline/milestones/"+itoa(m.ID), map[string]bool{"completed": true}, http.StatusNoContent, nil)

	var goals []planner.GoalView
	c.expect(http.MethodGet, "/api/timeline", nil, http.StatusOK, &goals)
	require.Len(t, goals, 1)
	require.Len(t, goals[0].Milestones, 1)
	assert.Equal(t, 100, goals[0].Milestones[0].Progress)
	assert.Equal(t, 50, goals[0].Milestones[0].Percentage)

	other := env.signup(t, "bob")
	other.expect(http.MethodPost, "/api/timeline/milestones", map[string]any{"goal_id": g.ID, "title": "steal"}, http.StatusNotFound, nil)
}

func TestHabits(t *testing.T) {
	env := newTestEnv(t)
	c := env.signup(t, "alice")

	var hs []model.HabitDay
	c.expect(http.MethodGet, "/api/habits", nil, http.StatusOK, &hs)
	require.Len(t, hs, 1)
	assert.Equal(t, "2024-06-10", hs[0].Date.String())

	c.expect(http.MethodPut, "/api/habits/2024-06-10", map[string]int{"sport": 2}, http.StatusOK, nil)
	c.expect(http.MethodPut, "/api/habits/bad", map[string]int{"sport": 2}, http.StatusBadRequest, nil)
	c.expect(http.MethodGet, "/api/habits", nil, http.StatusOK, &hs)
	require.Len(t, hs, 1)
	assert.Equal(t, 2, hs[0].Sport)
}

func TestSecretLists(t *testing.T) {
	env := newTestEnv(t)
	c := env.signup(t, "alice")

	c.expect(http.MethodPost, "/api/secret", map[string]string{"name": "Diary", "password": "hunter2"}, http.StatusCreated, nil)
	c.expect(http.MethodPost, "/api/lists/Diary/tasks", map[string]string{"title": "Entry"}, http.StatusCreated, nil)

	resp, raw := c.do(http.MethodGet, "/api/secret", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(raw), "hash")
	assert.NotContains(t, string(raw), "$2a$")

	c.expect(http.MethodPost, "/api/secret/Diary/unlock", map[string]string{"password": "wrong"}, http.StatusForbidden, nil)
	c.expect(http.MethodGet, "/api/lists/Diary", nil, http.StatusForbidden, nil)

	var overview []listView
	c.expect(http.MethodGet, "/api/lists", nil, http.StatusOK, &overview)
	assert.Empty(t, overview)

	var unlocked struct {
		Name       string       `json:"name"`
		Incomplete []model.Task `json:"incomplete"`
	}
	c.expect(http.MethodPost, "/api/secret/Diary/unlock", map[string]string{"password": "hunter2"}, http.StatusOK, &unlocked)
	require.Len(t, unlocked.Incomplete, 1)
	assert.Equal(t, "Entry", unlocked.Incomplete[0].Title)
	c.expect(http.MethodPost, "/api/secret/Nope/unlock", map[string]string{"password": "x"}, http.StatusNotFound, nil)
}

func TestLoginLimitIgnoresSpoofedForwarding(t *testing.T) {
	db, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "limit.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	p, err := planner.New(db, planner.Options{Clock: planner.FixedDay(model.MustDate("2024-06-10")), Location: time.UTC})
	require.NoError(t, err)
	as := auth.NewService(db, auth.Config{LoginRatePerMin: 1, LoginBurst: 1, BcryptCost: bcrypt.MinCost}, logx.Nop())
	h := NewHandler(Deps{
		Store: db, Planner: p, Auth: as, Logger: logx.Nop(),
		TrustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.1/32")},
	})

	login := func(remote, xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"ghost","password":"nope123"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remote
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	var codes []int
	for i := range 5 {
		codes = append(codes, login("203.0.113.5:4000", "198.51.100."+strconv.Itoa(i+1)))
	}
	assert.Equal(t, []int{401, 429, 429, 429, 429}, codes)

	// Behind the trusted proxy each forwarded client has its own budget.
	assert.Equal(t, http.StatusUnauthorized, login("10.0.0.1:5000", "192.0.2.1"))
	assert.Equal(t, http.StatusUnauthorized, login("10.0.0.1:5000", "192.0.2.2"))
	assert.Equal(t, http.StatusTooManyRequests, login("10.0.0.1:5000", "192.0.2.1"))
}

func TestClientResolverIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "::1", " "})
	require.NoError(t, err)
	c := clientResolver{trusted: trusted}

	tests := []struct {
		name   string
		remote string
		xff    string
		xrip   string
		want   string
	}{
		{name: "direct", remote: "203.0.113.5:4000", want: "203.0.113.5"},
		{name: "untrusted peer ignores headers", remote: "203.0.113.5:4000", xff: "1.2.3.4", xrip: "5.6.7.8", want: "203.0.113.5"},
		{name: "trusted peer", remote: "10.1.2.3:80", xff: "1.2.3.4", want: "1.2.3.4"},
		{name: "rightmost untrusted hop", remote: "10.1.2.3:80", xff: "6.6.6.6, 1.2.3.4, 10.9.9.9", want: "1.2.3.4"},
		{name: "real ip fallback", remote: "[::1]:80", xrip: "5.6.7.8", want: "5.6.7.8"},
		{name: "all hops trusted", remote: "10.1.2.3:80", xff: "10.2.2.2", want: "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xrip != "" {
				r.Header.Set("X-Real-Ip", tt.xrip)
			}
			assert.Equal(t, tt.want, c.IP(r))
		})
	}

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestListDetailSecretLookupFailure(t *testing.T) {
	env := newTestEnv(t)
	c := env.signup(t, "alice")
	c.expect(http.MethodPost, "/api/lists", map[string]string{"name": "Errands"}, http.StatusCreated, nil)

	raw, err := sql.Open("sqlite", env.path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec(`DROP TABLE secret_lists`)
	require.NoError(t, err)

	c.expect(http.MethodGet, "/api/lists/Errands", nil, http.StatusInternalServerError, nil)
}

func TestHealthzAndRequestID(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	resp := c.expect(http.MethodGet, "/healthz", nil, http.StatusOK, nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "abc")
	r2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = r2.Body.Close()
	assert.Equal(t, "abc", r2.Header.Get("X-Request-Id"))
}

func TestRecoverMiddleware(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), withRequestID, withRecover(logx.Nop()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestServerStartStop(t *testing.T) {
	s := NewServer(Config{Addr: "127.0.0.1:0"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), logx.Nop())
	require.NoError(t, s.Start(context.Background()))
	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	s.Stop(context.Background())
	assert.Empty(t, s.Addr())
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
