package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tippslottet/internal/core"
	"tippslottet/internal/scheduler"
	"tippslottet/internal/types"
)

type fakeAdminDB struct {
	listed        []types.User
	created       []*types.User
	updated       []*types.User
	deactivated   []string
	statusChanges []string
	results       map[string][2]int
	events        []types.AuditEvent
	createErr     error
	auditErr      error
}

func (f *fakeAdminDB) List(_ context.Context) ([]types.User, error) { return f.listed, nil }

func (f *fakeAdminDB) Create(_ context.Context, u *types.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, u)
	return nil
}

func (f *fakeAdminDB) Update(_ context.Context, u *types.User) error {
	f.updated = append(f.updated, u)
	return nil
}

func (f *fakeAdminDB) Deactivate(_ context.Context, id string) error {
	f.deactivated = append(f.deactivated, id)
	return nil
}

func (f *fakeAdminDB) SetRoundStatus(_ context.Context, id string, status types.RoundStatus, _ time.Time) error {
	f.statusChanges = append(f.statusChanges, id+":"+string(status))
	return nil
}

func (f *fakeAdminDB) RecordResult(_ context.Context, matchID string, homeScore, awayScore int) error {
	if f.results == nil {
		f.results = map[string][2]int{}
	}
	f.results[matchID] = [2]int{homeScore, awayScore}
	return nil
}

func (f *fakeAdminDB) Log(_ context.Context, event types.AuditEvent) error {
	if f.auditErr != nil {
		return f.auditErr
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAdminDB) List2(_ context.Context, _ int) ([]types.AuditEvent, error) {
	return f.events, nil
}

// adminAuditAdapter separates the two List methods that would otherwise
// collide on the fake.
type adminAuditAdapter struct{ db *fakeAdminDB }

func (a adminAuditAdapter) Log(ctx context.Context, event types.AuditEvent) error {
	return a.db.Log(ctx, event)
}

func (a adminAuditAdapter) List(ctx context.Context, limit int) ([]types.AuditEvent, error) {
	return a.db.List2(ctx, limit)
}

type fakeJobRunner struct {
	payloads []scheduler.JobPayload
	result   scheduler.JobResult
	err      error
}

func (f *fakeJobRunner) Run(_ context.Context, payload scheduler.JobPayload) (scheduler.JobResult, error) {
	f.payloads = append(f.payloads, payload)
	return f.result, f.err
}

func adminRouter(db *fakeAdminDB, jobs *fakeJobRunner) http.Handler {
	h := NewAdminHandler(db, db, adminAuditAdapter{db}, jobs, core.NewValidator(), testLogger(), nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestCreateUser(t *testing.T) {
	db := &fakeAdminDB{}
	router := adminRouter(db, &fakeJobRunner{})

	req := authedRequest(http.MethodPost, "/users",
		`{"email":"ny@example.com","display_name":"Ny Bruker","is_admin":false}`, "styret@tippslottet.no")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, db.created, 1)
	assert.Equal(t, "ny@example.com", db.created[0].Email)
	assert.True(t, db.created[0].Active, "new whitelist entries start active")

	require.Len(t, db.events, 1, "mutation leaves an audit trail")
	assert.Equal(t, "whitelist_user_added", db.events[0].Action)
	assert.Equal(t, "styret@tippslottet.no", db.events[0].ActorEmail)
}

func TestCreateUserInvalidEmail(t *testing.T) {
	db := &fakeAdminDB{}
	router := adminRouter(db, &fakeJobRunner{})

	req := authedRequest(http.MethodPost, "/users",
		`{"email":"ikke-epost","display_name":"X"}`, "styret@tippslottet.no")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, db.created)
	assert.Empty(t, db.events, "failed mutations are not audited")
}

func TestCreateUserDuplicate(t *testing.T) {
	db := &fakeAdminDB{
		createErr: types.NewAppError(types.ErrCodeConflictDuplicateEntry, "email already whitelisted", nil),
	}
	router := adminRouter(db, &fakeJobRunner{})

	req := authedRequest(http.MethodPost, "/users",
		`{"email":"finnes@example.com","display_name":"Finnes"}`, "styret@tippslottet.no")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateUserAuditFailureDoesNotFailRequest(t *testing.T) {
	db := &fakeAdminDB{auditErr: errors.New("audit table gone")}
	router := adminRouter(db, &fakeJobRunner{})

	req := authedRequest(http.MethodPost, "/users",
		`{"email":"ny@example.com","display_name":"Ny"}`, "styret@tippslottet.no")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code, "broken audit sink never rolls back the action")
	require.Len(t, db.created, 1)
}

func TestUpdateUser(t *testing.T) {
	db := &fakeAdminDB{}
	router := adminRouter(db, &fakeJobRunner{})

	req := authedRequest(http.MethodPut, "/users/user_9",
		`{"display_name":"Oppdatert","is_admin":true,"active":false}`, "styret@tippslottet.no")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, db.updated, 1)
	assert.Equal(t, "user_9", db.updated[0].ID)
	assert.True(t, db.updated[0].IsAdmin)
	assert.False(t, db.updated[0].Active)
	require.Len(t, db.events, 1)
	assert.Equal(t, "whitelist_user_updated", db.events[0].Action)
}

func TestDeactivateUser(t *testing.T) {
	db := &fakeAdminDB{}
	router := adminRouter(db, &fakeJobRunner{})

	req := authedRequest(http.MethodDelete, "/users/user_3", "", "styret@tippslottet.no")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"user_3"}, db.deactivated)
	require.Len(t, db.events, 1)
	assert.Equal(t, "whitelist_user_removed", db.events[0].Action)
}

func TestSetRoundStatus(t *testing.T) {
	db := &fakeAdminDB{}
	router := adminRouter(db, &fakeJobRunner{})

	req := authedRequest(http.MethodPut, "/rounds/round_4/status",
		`{"status":"finalized"}`, "styret@tippslottet.no")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"round_4:finalized"}, db.statusChanges)
	require.Len(t, db.events, 1)
	assert.Equal(t, "round_status_changed", db.events[0].Action)
	assert.Equal(t, "round_4", db.events[0].TargetID)
}

func TestSetRoundStatusRejectsUnknownStatus(t *testing.T) {
	db := &fakeAdminDB{}
	router := adminRouter(db, &fakeJobRunner{})

	req := authedRequest(http.MethodPut, "/rounds/round_4/status",
		`{"status":"avlyst"}`, "styret@tippslottet.no")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, db.statusChanges)
	assert.Empty(t, db.events)
}

func TestRecordResult(t *testing.T) {
	db := &fakeAdminDB{}
	router := adminRouter(db, &fakeJobRunner{})

	req := authedRequest(http.MethodPost, "/matches/m1/result",
		`{"home_score":2,"away_score":1}`, "styret@tippslottet.no")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, [2]int{2, 1}, db.results["m1"])
	require.Len(t, db.events, 1)
	assert.Equal(t, "match_result_recorded", db.events[0].Action)
}

func TestRecordResultRejectsNegativeScore(t *testing.T) {
	db := &fakeAdminDB{}
	router := adminRouter(db, &fakeJobRunner{})

	req := authedRequest(http.MethodPost, "/matches/m1/result",
		`{"home_score":-1,"away_score":0}`, "styret@tippslottet.no")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, db.results)
}

func TestListAuditRejectsBadLimit(t *testing.T) {
	router := adminRouter(&fakeAdminDB{}, &fakeJobRunner{})

	req := authedRequest(http.MethodGet, "/audit?limit=mange", "", "styret@tippslottet.no")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecalculate(t *testing.T) {
	db := &fakeAdminDB{}
	jobs := &fakeJobRunner{result: scheduler.JobResult{Task: scheduler.TaskRecalculateRoundPoints, Items: 6}}
	router := adminRouter(db, jobs)

	req := authedRequest(http.MethodPost, "/recalculate",
		`{"round_id":"round_4"}`, "styret@tippslottet.no")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, jobs.payloads, 1)
	assert.Equal(t, scheduler.TaskRecalculateRoundPoints, jobs.payloads[0].Task)
	assert.Equal(t, "round_4", jobs.payloads[0].RoundID)
	require.Len(t, db.events, 1)
	assert.Equal(t, "points_recalculated", db.events[0].Action)
}
