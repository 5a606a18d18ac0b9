package timesheet

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tempora-hq/tempora/internal/authz"
	"github.com/tempora-hq/tempora/internal/platform/httpx"
	"github.com/tempora-hq/tempora/internal/shared"
)

type fakeRepo struct {
	mu          sync.Mutex
	entries     map[int64]TimeEntry
	subjects    map[int64]authz.Subject
	projects    map[int64]int64 // project id -> manager id
	finalMonths map[string]bool // "userID|YYYY-MM"
	recomputed  []string
	nextID      int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		entries:     map[int64]TimeEntry{},
		subjects:    map[int64]authz.Subject{},
		projects:    map[int64]int64{},
		finalMonths: map[string]bool{},
		nextID:      1,
	}
}

func (f *fakeRepo) key(userID int64, m shared.Month) string {
	return m.String() + "|" + strconv.FormatInt(userID, 10)
}

func (f *fakeRepo) addEntry(e TimeEntry) TimeEntry {
	if e.ID == 0 {
		e.ID = f.nextID
		f.nextID++
	} else if e.ID >= f.nextID {
		f.nextID = e.ID + 1
	}
	f.entries[e.ID] = e
	return e
}

func (f *fakeRepo) List(_ context.Context, scope authz.Scope, actorID int64) ([]TimeEntry, error) {
	var out []TimeEntry
	for _, e := range f.entries {
		switch scope {
		case authz.ScopeAll:
			out = append(out, e)
		case authz.ScopeTeam:
			owner := f.subjects[e.UserID]
			if e.UserID == actorID || (owner.ManagerID != nil && *owner.ManagerID == actorID) {
				out = append(out, e)
			}
		case authz.ScopeSelf:
			if e.UserID == actorID {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) ListForUserMonth(_ context.Context, userID int64, month shared.Month) ([]TimeEntry, error) {
	var out []TimeEntry
	for _, e := range f.entries {
		if e.UserID == userID && month.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (TimeEntry, error) {
	e, ok := f.entries[id]
	if !ok {
		return TimeEntry{}, httpx.ErrNotFound
	}
	return e, nil
}

func (f *fakeRepo) OwnerSubject(_ context.Context, userID int64) (authz.Subject, error) {
	s, ok := f.subjects[userID]
	if !ok {
		return authz.Subject{}, httpx.ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) ProjectManager(_ context.Context, projectID int64) (int64, error) {
	mgr, ok := f.projects[projectID]
	if !ok {
		return 0, httpx.ErrNotFound
	}
	return mgr, nil
}

func (f *fakeRepo) MonthFinal(_ context.Context, userID int64, month shared.Month) (bool, error) {
	return f.finalMonths[f.key(userID, month)], nil
}

// Mutate serializes writers the way the advisory lock does in Postgres.
func (f *fakeRepo) Mutate(_ context.Context, fn func(TxOps) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(fakeTx{repo: f})
}

type fakeTx struct {
	repo *fakeRepo
}

func (t fakeTx) DayTotalForUpdate(_ context.Context, userID int64, date time.Time, excludeID int64) (float64, error) {
	var total float64
	for _, e := range t.repo.entries {
		if e.UserID == userID && e.Date.Equal(date) && e.ID != excludeID {
			total += e.Days
		}
	}
	return total, nil
}

func (t fakeTx) Insert(_ context.Context, e TimeEntry) (TimeEntry, error) {
	for _, existing := range t.repo.entries {
		if existing.UserID == e.UserID && existing.ProjectID == e.ProjectID && existing.Date.Equal(e.Date) {
			return TimeEntry{}, ErrDuplicateEntry
		}
	}
	return t.repo.addEntry(e), nil
}

func (t fakeTx) Update(_ context.Context, e TimeEntry) (TimeEntry, error) {
	if _, ok := t.repo.entries[e.ID]; !ok {
		return TimeEntry{}, httpx.ErrNotFound
	}
	t.repo.entries[e.ID] = e
	return e, nil
}

func (t fakeTx) Delete(_ context.Context, id int64) error {
	if _, ok := t.repo.entries[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(t.repo.entries, id)
	return nil
}

func (t fakeTx) RecomputeReportTotal(_ context.Context, userID int64, month shared.Month) error {
	t.repo.recomputed = append(t.repo.recomputed, month.String())
	return nil
}

type fakeInvalidator struct {
	bumps []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, userID int64, month shared.Month) error {
	f.bumps = append(f.bumps, month.String())
	return nil
}

func testSetup() (*fakeRepo, *fakeInvalidator, *Service) {
	repo := newFakeRepo()
	managerID := int64(10)
	repo.subjects[10] = authz.Subject{ID: 10, Username: "bob", Role: authz.RoleManager}
	repo.subjects[1] = authz.Subject{ID: 1, Username: "carol", Role: authz.RoleUser, ManagerID: &managerID}
	repo.projects[100] = managerID
	inv := &fakeInvalidator{}
	svc := NewService(slog.Default(), repo, inv, nil)
	return repo, inv, svc
}

func carol() authz.Actor {
	managerID := int64(10)
	return authz.Actor{ID: 1, Username: "carol", Role: authz.RoleUser, ManagerID: &managerID}
}

func TestCreateEntry(t *testing.T) {
	repo, inv, svc := testSetup()

	created, err := svc.Create(context.Background(), carol(), CreateInput{
		ProjectID: 100, Date: date("2025-02-17"), Days: 0.5,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), created.UserID)
	require.Equal(t, []string{"2025-02"}, repo.recomputed)
	require.Equal(t, []string{"2025-02"}, inv.bumps)
}

func TestCreateCeilingAcrossProjects(t *testing.T) {
	repo, _, svc := testSetup()
	repo.projects[101] = 10

	// Two projects on the same day may together fill exactly one day.
	_, err := svc.Create(context.Background(), carol(), CreateInput{
		ProjectID: 100, Date: date("2025-02-17"), Days: 0.5,
	})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), carol(), CreateInput{
		ProjectID: 101, Date: date("2025-02-17"), Days: 0.5,
	})
	require.NoError(t, err)
}

func TestCreateConcurrentWritersCannotExceedCeiling(t *testing.T) {
	repo, _, svc := testSetup()
	repo.projects[101] = 10

	// Two writers race to fill an empty day with 0.6 each; whichever enters
	// the critical section second must see the first's row and be rejected.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, projectID := range []int64{100, 101} {
		wg.Add(1)
		go func(i int, projectID int64) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), carol(), CreateInput{
				ProjectID: projectID, Date: date("2025-02-17"), Days: 0.6,
			})
		}(i, projectID)
	}
	wg.Wait()

	var rejected int
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrDailyLimit)
			rejected++
		}
	}
	require.Equal(t, 1, rejected)

	var total float64
	for _, e := range repo.entries {
		total += e.Days
	}
	require.InDelta(t, 0.6, total, 1e-9)
}

func TestCreateRejectsOverCeiling(t *testing.T) {
	repo, _, svc := testSetup()
	repo.addEntry(TimeEntry{UserID: 1, ProjectID: 100, Date: date("2025-02-17"), Days: 0.5})

	repo.projects[101] = 10
	_, err := svc.Create(context.Background(), carol(), CreateInput{
		ProjectID: 101, Date: date("2025-02-17"), Days: 0.6,
	})
	require.ErrorIs(t, err, ErrDailyLimit)
	require.Contains(t, err.Error(), "2025-02-17")
}

func TestCreateDuplicate(t *testing.T) {
	_, _, svc := testSetup()

	_, err := svc.Create(context.Background(), carol(), CreateInput{
		ProjectID: 100, Date: date("2025-02-17"), Days: 0.25,
	})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), carol(), CreateInput{
		ProjectID: 100, Date: date("2025-02-17"), Days: 0.25,
	})
	require.ErrorIs(t, err, ErrDuplicateEntry)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestCreateProjectNotAccessible(t *testing.T) {
	repo, _, svc := testSetup()
	repo.projects[200] = 77 // some other manager's project

	_, err := svc.Create(context.Background(), carol(), CreateInput{
		ProjectID: 200, Date: date("2025-02-17"), Days: 0.5,
	})
	require.ErrorIs(t, err, ErrProjectNotAccessible)
}

func TestCreateCrossBoundaryDenied(t *testing.T) {
	repo, _, svc := testSetup()
	repo.subjects[2] = authz.Subject{ID: 2, Username: "dave", Role: authz.RoleUser}

	// Carol writing for Dave, who is nobody's subordinate of hers.
	_, err := svc.Create(context.Background(), carol(), CreateInput{
		UserID: 2, ProjectID: 100, Date: date("2025-02-17"), Days: 0.5,
	})
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestManagerWritesForSubordinate(t *testing.T) {
	repo, _, svc := testSetup()
	manager := authz.Actor{ID: 10, Username: "bob", Role: authz.RoleManager}

	created, err := svc.Create(context.Background(), manager, CreateInput{
		UserID: 1, ProjectID: 100, Date: date("2025-02-17"), Days: 0.5,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), created.UserID)
	require.Len(t, repo.entries, 1)
}

func TestCreateInFinalMonth(t *testing.T) {
	repo, _, svc := testSetup()
	m := shared.Month{Year: 2025, Month: time.February}
	repo.finalMonths[repo.key(1, m)] = true

	_, err := svc.Create(context.Background(), carol(), CreateInput{
		ProjectID: 100, Date: date("2025-02-17"), Days: 0.5,
	})
	require.ErrorIs(t, err, ErrMonthFinal)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestUpdateAcrossMonthsRecomputesBoth(t *testing.T) {
	repo, inv, svc := testSetup()
	e := repo.addEntry(TimeEntry{UserID: 1, ProjectID: 100, Date: date("2025-02-17"), Days: 0.5})

	newDate := date("2025-03-03")
	_, err := svc.Update(context.Background(), carol(), e.ID, UpdateInput{Date: &newDate})
	require.NoError(t, err)
	require.Equal(t, []string{"2025-02", "2025-03"}, repo.recomputed)
	require.Equal(t, []string{"2025-02", "2025-03"}, inv.bumps)
}

func TestUpdateExcludesSelfFromCeiling(t *testing.T) {
	repo, _, svc := testSetup()
	e := repo.addEntry(TimeEntry{UserID: 1, ProjectID: 100, Date: date("2025-02-17"), Days: 0.8})

	// Rewriting the same entry to 1.0 is fine: its old value does not count
	// against itself.
	days := 1.0
	updated, err := svc.Update(context.Background(), carol(), e.ID, UpdateInput{Days: &days})
	require.NoError(t, err)
	require.Equal(t, 1.0, updated.Days)
}

func TestDeleteRecomputesMonth(t *testing.T) {
	repo, inv, svc := testSetup()
	e := repo.addEntry(TimeEntry{UserID: 1, ProjectID: 100, Date: date("2025-02-17"), Days: 0.5})

	require.NoError(t, svc.Delete(context.Background(), carol(), e.ID))
	require.Empty(t, repo.entries)
	require.Equal(t, []string{"2025-02"}, repo.recomputed)
	require.Equal(t, []string{"2025-02"}, inv.bumps)
}

func TestDeleteInFinalMonth(t *testing.T) {
	repo, _, svc := testSetup()
	e := repo.addEntry(TimeEntry{UserID: 1, ProjectID: 100, Date: date("2025-02-17"), Days: 0.5})
	m := shared.Month{Year: 2025, Month: time.February}
	repo.finalMonths[repo.key(1, m)] = true

	err := svc.Delete(context.Background(), carol(), e.ID)
	require.ErrorIs(t, err, ErrMonthFinal)
	require.Len(t, repo.entries, 1)
}

func TestMonthlyVisibility(t *testing.T) {
	repo, _, svc := testSetup()
	repo.subjects[2] = authz.Subject{ID: 2, Username: "dave", Role: authz.RoleUser}
	repo.addEntry(TimeEntry{UserID: 1, ProjectID: 100, Date: date("2025-02-17"), Days: 0.5})
	m := shared.Month{Year: 2025, Month: time.February}

	entries, err := svc.Monthly(context.Background(), carol(), 1, m)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	manager := authz.Actor{ID: 10, Username: "bob", Role: authz.RoleManager}
	_, err = svc.Monthly(context.Background(), manager, 1, m)
	require.NoError(t, err)

	dave := authz.Actor{ID: 2, Username: "dave", Role: authz.RoleUser}
	_, err = svc.Monthly(context.Background(), dave, 1, m)
	require.ErrorIs(t, err, httpx.ErrForbidden)
}
