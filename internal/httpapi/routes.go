// Package httpapi exposes the planner, lists and account operations as a
// JSON API behind cookie sessions.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"dayboard/internal/auth"
	"dayboard/internal/planner"
	"dayboard/internal/storage"
	logx "dayboard/pkg/logx"
)

var errForbidden = errors.New("forbidden")

// Deps are the collaborators the handlers need.
type Deps struct {
	Store   *storage.DB
	Planner *planner.Planner
	Auth    *auth.Service
	Logger  logx.Logger
	// Health adds extra detail to /healthz. Optional.
	Health func() any
	// TrustedProxies may set X-Forwarded-For. Empty means the direct peer
	// is always the client.
	TrustedProxies []netip.Prefix
}

type api struct {
	store   *storage.DB
	planner *planner.Planner
	auth    *auth.Service
	log     logx.Logger
	health  func() any
	clients clientResolver
}

// NewHandler builds the routed, middleware-wrapped API handler.
func NewHandler(d Deps) http.Handler {
	if d.Logger.IsZero() {
		d.Logger = logx.Nop()
	}
	a := &api{store: d.Store, planner: d.Planner, auth: d.Auth, log: d.Logger, health: d.Health,
		clients: clientResolver{trusted: d.TrustedProxies}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.healthz)

	mux.HandleFunc("POST /api/auth/register", a.register)
	mux.HandleFunc("POST /api/auth/login", a.login)
	mux.HandleFunc("POST /api/auth/logout", a.logout)

	private := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, a.auth.RequireAPI(h))
	}
	private("GET /api/auth/me", a.me)
	private("PUT /api/me/telegram", a.linkTelegram)

	private("GET /api/dashboard", a.dashboard)
	private("POST /api/promote", a.promote)

	private("GET /api/lists", a.listOverview)
	private("GET /api/lists/archived", a.archivedLists)
	private("GET /api/lists/{name}", a.listDetail)
	private("POST /api/lists", a.createList)
	private("POST /api/lists/{name}/tasks", a.addTask)
	private("POST /api/lists/{name}/archive", a.archiveList(true))
	private("POST /api/lists/{name}/restore", a.archiveList(false))
	private("PUT /api/lists/{name}/color", a.listColor)
	private("POST /api/special/{bucket}", a.quickAdd)

	private("PATCH /api/tasks/{id}", a.updateTask)
	private("DELETE /api/tasks/{id}", a.deleteTask)
	private("PUT /api/tasks/order", a.reorderTasks)

	private("GET /api/calendar/{year}/{month}", a.calendarMonth)
	private("POST /api/calendar/tasks", a.addCalendarTask)
	private("PATCH /api/calendar/tasks/{id}", a.moveCalendarTask)
	private("GET /api/recurring", a.recurringTemplates)
	private("POST /api/recurring", a.addRecurring)

	private("GET /api/timeline", a.timeline)
	private("POST /api/timeline/goals", a.addGoal)
	private("POST /api/timeline/milestones", a.addMilestone)
	private("POST /api/timeline/milestone-tasks", a.addMilestoneTask)
	private("PATCH /api/timeline/milestones/{id}", a.toggleMilestone)
	private("PATCH /api/timeline/milestone-tasks/{id}", a.toggleMilestoneTask)

	private("GET /api/habits", a.habits)
	private("PUT /api/habits/{date}", a.putHabit)

	private("GET /api/secret", a.secretLists)
	private("POST /api/secret", a.addSecretList)
	private("POST /api/secret/{name}/unlock", a.unlockSecretList)

	return Chain(mux, withRequestID, withRecover(a.log), withAccessLog(a.log, a.clients))
}

func owner(r *http.Request) int64 {
	u, _ := auth.UserFromContext(r.Context())
	return u.ID
}

// audit records a state-changing action. Failures are logged only.
func (a *api) audit(r *http.Request, action, target string, started time.Time, err error) {
	e := storage.AuditEntry{
		At:      time.Now().UTC(),
		ActorID: owner(r),
		Action:  action,
		Target:  target,
		OK:      err == nil,
		TookMS:  time.Since(started).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := a.store.AppendAudit(context.WithoutCancel(r.Context()), e); aerr != nil {
		a.log.Warn("audit append failed", logx.String("action", action), logx.Err(aerr))
	}
}

func (a *api) healthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if err := a.store.Ping(r.Context()); err != nil {
		body["status"] = "degraded"
		body["storage"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	if a.health != nil {
		body["runtime"] = a.health()
	}
	writeJSON(w, http.StatusOK, body)
}
