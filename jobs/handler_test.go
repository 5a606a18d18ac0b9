package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/tempora-hq/tempora/internal/authz"
	"github.com/tempora-hq/tempora/internal/shared"
)

type stubEnqueuer struct {
	calls int
}

func (s *stubEnqueuer) EnqueueReportReconcile(_ context.Context) (*asynq.TaskInfo, error) {
	s.calls++
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func actorMiddleware(actor *authz.Actor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor != nil {
				r = r.WithContext(shared.ContextWithActor(r.Context(), *actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func reconcileRequest(t *testing.T, router http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/reconcile", nil)
	router.ServeHTTP(rec, req)
	return rec
}

func newJobsRouter(enqueuer ReconcileEnqueuer, actor *authz.Actor) http.Handler {
	handler := NewHandler(nil, enqueuer, slog.Default())
	r := chi.NewRouter()
	r.Route("/jobs", func(r chi.Router) {
		handler.MountRoutes(r, actorMiddleware(actor))
	})
	return r
}

func TestReconcileEnqueuedByAdmin(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	admin := authz.Actor{ID: 1, Username: "root", Role: authz.RoleAdmin}

	rec := reconcileRequest(t, newJobsRouter(enqueuer, &admin))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, enqueuer.calls)
	require.Contains(t, rec.Body.String(), "task-1")
}

func TestReconcileForbiddenForNonAdmins(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	user := authz.Actor{ID: 2, Username: "carol", Role: authz.RoleUser}

	rec := reconcileRequest(t, newJobsRouter(enqueuer, &user))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Zero(t, enqueuer.calls)
}

func TestReconcileRequiresActor(t *testing.T) {
	enqueuer := &stubEnqueuer{}

	rec := reconcileRequest(t, newJobsRouter(enqueuer, nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, enqueuer.calls)
}

func TestHealthWithoutInspector(t *testing.T) {
	router := newJobsRouter(nil, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"queue":"default"`)
}
