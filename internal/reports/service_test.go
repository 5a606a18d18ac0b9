package reports

import (
	"context"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tempora-hq/tempora/internal/authz"
	"github.com/tempora-hq/tempora/internal/platform/httpx"
	"github.com/tempora-hq/tempora/internal/shared"
)

type fakeRepo struct {
	reports   map[int64]MonthlyReport
	subjects  map[int64]authz.Subject
	entryRows map[string][]EntryRow // "userID|YYYY-MM"
	loads     int
	nextID    int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		reports:   map[int64]MonthlyReport{},
		subjects:  map[int64]authz.Subject{},
		entryRows: map[string][]EntryRow{},
		nextID:    1,
	}
}

func key(userID int64, m shared.Month) string {
	return m.String() + "|" + strconv.FormatInt(userID, 10)
}

func (f *fakeRepo) addReport(r MonthlyReport) MonthlyReport {
	if r.ID == 0 {
		r.ID = f.nextID
		f.nextID++
	}
	if r.Status == "" {
		r.Status = StatusDraft
	}
	f.reports[r.ID] = r
	return r
}

func (f *fakeRepo) total(userID int64, m shared.Month) float64 {
	var total float64
	for _, row := range f.entryRows[key(userID, m)] {
		total += row.Days
	}
	return total
}

func (f *fakeRepo) List(_ context.Context, scope authz.Scope, actorID int64) ([]MonthlyReport, error) {
	var out []MonthlyReport
	for _, r := range f.reports {
		switch scope {
		case authz.ScopeAll:
			out = append(out, r)
		case authz.ScopeSubordinates:
			owner := f.subjects[r.UserID]
			if owner.ManagerID != nil && *owner.ManagerID == actorID {
				out = append(out, r)
			}
		case authz.ScopeSelf:
			if r.UserID == actorID {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (MonthlyReport, error) {
	r, ok := f.reports[id]
	if !ok {
		return MonthlyReport{}, httpx.ErrNotFound
	}
	return r, nil
}

func (f *fakeRepo) Create(_ context.Context, userID int64, month shared.Month) (MonthlyReport, error) {
	for _, r := range f.reports {
		if r.UserID == userID && r.Month == month {
			return MonthlyReport{}, ErrDuplicateReport
		}
	}
	return f.addReport(MonthlyReport{
		UserID:    userID,
		Month:     month,
		TotalDays: f.total(userID, month),
		Status:    StatusDraft,
	}), nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id int64, status Status) (MonthlyReport, error) {
	r, ok := f.reports[id]
	if !ok {
		return MonthlyReport{}, httpx.ErrNotFound
	}
	r.Status = status
	r.TotalDays = f.total(r.UserID, r.Month)
	f.reports[id] = r
	return r, nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	if _, ok := f.reports[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(f.reports, id)
	return nil
}

func (f *fakeRepo) OwnerSubject(_ context.Context, userID int64) (authz.Subject, error) {
	s, ok := f.subjects[userID]
	if !ok {
		return authz.Subject{}, httpx.ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) EntryRows(_ context.Context, userID int64, month shared.Month) ([]EntryRow, error) {
	f.loads++
	return f.entryRows[key(userID, month)], nil
}

func (f *fakeRepo) ListDrafts(_ context.Context) ([]MonthlyReport, error) {
	var out []MonthlyReport
	for _, r := range f.reports {
		if r.Status == StatusDraft {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) RecomputeTotal(_ context.Context, id int64) (float64, error) {
	r, ok := f.reports[id]
	if !ok || r.Status != StatusDraft {
		return 0, httpx.ErrNotFound
	}
	r.TotalDays = f.total(r.UserID, r.Month)
	f.reports[id] = r
	return r.TotalDays, nil
}

type fakeRenderer struct {
	calls int
}

func (f *fakeRenderer) RenderHTML(_ context.Context, html string) ([]byte, error) {
	f.calls++
	return []byte("%PDF " + html[:20]), nil
}

func feb() shared.Month { return shared.Month{Year: 2025, Month: time.February} }

func testSetup(t *testing.T) (*fakeRepo, *Cache, *Service) {
	t.Helper()
	repo := newFakeRepo()
	managerID := int64(10)
	repo.subjects[10] = authz.Subject{ID: 10, Username: "bob", Role: authz.RoleManager}
	repo.subjects[1] = authz.Subject{ID: 1, Username: "carol", Role: authz.RoleUser, ManagerID: &managerID}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)

	svc := NewService(slog.Default(), repo, cache, &fakeRenderer{}, nil)
	return repo, cache, svc
}

func carol() authz.Actor {
	managerID := int64(10)
	return authz.Actor{ID: 1, Username: "carol", Role: authz.RoleUser, ManagerID: &managerID}
}

func TestCreateComputesTotal(t *testing.T) {
	repo, _, svc := testSetup(t)
	repo.entryRows[key(1, feb())] = []EntryRow{
		{ProjectID: 1, ProjectName: "Atlas", Date: date("2025-02-05"), Days: 0.5},
		{ProjectID: 1, ProjectName: "Atlas", Date: date("2025-02-06"), Days: 0.5},
	}

	created, err := svc.Create(context.Background(), carol(), CreateInput{Month: feb()})
	require.NoError(t, err)
	require.Equal(t, 1.0, created.TotalDays)
	require.Equal(t, StatusDraft, created.Status)

	_, err = svc.Create(context.Background(), carol(), CreateInput{Month: feb()})
	require.ErrorIs(t, err, ErrDuplicateReport)
}

func TestFinalReportImmutable(t *testing.T) {
	repo, _, svc := testSetup(t)
	r := repo.addReport(MonthlyReport{UserID: 1, Month: feb(), Status: StatusFinal})

	_, err := svc.Update(context.Background(), carol(), r.ID, UpdateInput{Status: StatusDraft})
	require.ErrorIs(t, err, ErrFinal)
	require.ErrorIs(t, err, httpx.ErrConflict)

	err = svc.Delete(context.Background(), carol(), r.ID)
	require.ErrorIs(t, err, ErrFinal)
}

func TestFinalizeRefreshesTotal(t *testing.T) {
	repo, _, svc := testSetup(t)
	r := repo.addReport(MonthlyReport{UserID: 1, Month: feb(), Status: StatusDraft, TotalDays: 0})
	repo.entryRows[key(1, feb())] = []EntryRow{
		{ProjectID: 1, ProjectName: "Atlas", Date: date("2025-02-05"), Days: 0.75},
	}

	updated, err := svc.Update(context.Background(), carol(), r.ID, UpdateInput{Status: StatusFinal})
	require.NoError(t, err)
	require.Equal(t, StatusFinal, updated.Status)
	require.Equal(t, 0.75, updated.TotalDays)
}

func TestAccessRules(t *testing.T) {
	repo, _, svc := testSetup(t)
	repo.subjects[2] = authz.Subject{ID: 2, Username: "dave", Role: authz.RoleUser}
	r := repo.addReport(MonthlyReport{UserID: 1, Month: feb(), Status: StatusDraft})

	// Owner, their direct manager and admins may read; a stranger may not.
	_, err := svc.Get(context.Background(), carol(), r.ID)
	require.NoError(t, err)

	manager := authz.Actor{ID: 10, Username: "bob", Role: authz.RoleManager}
	_, err = svc.Get(context.Background(), manager, r.ID)
	require.NoError(t, err)

	dave := authz.Actor{ID: 2, Username: "dave", Role: authz.RoleUser}
	_, err = svc.Get(context.Background(), dave, r.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestManagerListSeesSubordinatesOnly(t *testing.T) {
	repo, _, svc := testSetup(t)
	repo.addReport(MonthlyReport{UserID: 1, Month: feb()})  // subordinate
	repo.addReport(MonthlyReport{UserID: 10, Month: feb()}) // the manager's own

	manager := authz.Actor{ID: 10, Username: "bob", Role: authz.RoleManager}
	reports, err := svc.List(context.Background(), manager)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, int64(1), reports[0].UserID)
}

func TestAggregateCaching(t *testing.T) {
	repo, cache, svc := testSetup(t)
	repo.entryRows[key(1, feb())] = []EntryRow{
		{ProjectID: 1, ProjectName: "Atlas", Date: date("2025-02-05"), Days: 0.5},
	}

	agg, err := svc.Aggregate(context.Background(), carol(), 1, feb())
	require.NoError(t, err)
	require.Equal(t, 0.5, agg.TotalDays)
	require.Equal(t, 1, repo.loads)

	// Second read is served from the cache.
	agg, err = svc.Aggregate(context.Background(), carol(), 1, feb())
	require.NoError(t, err)
	require.Equal(t, 0.5, agg.TotalDays)
	require.Equal(t, 1, repo.loads)

	// A version bump addresses a fresh key, so the loader runs again and
	// sees the new entry state.
	repo.entryRows[key(1, feb())] = append(repo.entryRows[key(1, feb())],
		EntryRow{ProjectID: 1, ProjectName: "Atlas", Date: date("2025-02-06"), Days: 0.25})
	require.NoError(t, cache.Invalidate(context.Background(), 1, feb()))

	agg, err = svc.Aggregate(context.Background(), carol(), 1, feb())
	require.NoError(t, err)
	require.Equal(t, 0.75, agg.TotalDays)
	require.Equal(t, 2, repo.loads)
}

func TestRenderPDF(t *testing.T) {
	repo, _, svc := testSetup(t)
	repo.entryRows[key(1, feb())] = []EntryRow{
		{ProjectID: 1, ProjectName: "Atlas", Date: date("2025-02-05"), Days: 0.5},
	}

	pdf, err := svc.RenderPDF(context.Background(), carol(), 1, feb())
	require.NoError(t, err)
	require.NotEmpty(t, pdf)

	// A stranger cannot export someone else's report.
	repo.subjects[2] = authz.Subject{ID: 2, Username: "dave", Role: authz.RoleUser}
	dave := authz.Actor{ID: 2, Username: "dave", Role: authz.RoleUser}
	_, err = svc.RenderPDF(context.Background(), dave, 1, feb())
	require.ErrorIs(t, err, httpx.ErrForbidden)
}
