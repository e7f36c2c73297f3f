package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/nexushq/nexus/internal/audit"
	"github.com/nexushq/nexus/internal/authz"
)

type stubEnqueuer struct {
	windowHours int
	calls       int
}

func (s *stubEnqueuer) EnqueueAuditDigest(ctx context.Context, windowHours int) (*asynq.TaskInfo, error) {
	s.windowHours = windowHours
	s.calls++
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

type fixedDirectory struct {
	ident authz.Identity
}

func (d fixedDirectory) GetIdentity(ctx context.Context, userID int64) (authz.Identity, error) {
	return d.ident, nil
}

func (d fixedDirectory) UpdateRole(ctx context.Context, userID int64, role string) (string, error) {
	return d.ident.Role, nil
}

type noGrants struct{}

func (noGrants) ListGrants(ctx context.Context, userID int64, tenantID *int64) ([]authz.Grant, error) {
	return nil, nil
}

func (noGrants) InsertGrant(ctx context.Context, grant authz.Grant) (int64, error) {
	return 0, nil
}

func (noGrants) DeleteGrant(ctx context.Context, userID int64, permission string, tenantID *int64) (int64, error) {
	return 0, nil
}

type discardSink struct{}

func (discardSink) Append(ctx context.Context, entry audit.Entry) error { return nil }

func jobsRouter(t *testing.T, enqueuer DigestEnqueuer, actor authz.Identity) http.Handler {
	t.Helper()
	catalog, err := authz.DefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	resolver := authz.NewResolver(catalog, fixedDirectory{ident: actor}, noGrants{})
	guard := authz.Middleware{Resolver: resolver, Sink: discardSink{}, Logger: slog.Default()}
	handler := NewHandler(nil, enqueuer, guard, slog.Default())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(authz.ContextWithIdentity(req.Context(), actor)))
		})
	})
	r.Route("/jobs", handler.MountRoutes)
	return r
}

func TestEnqueueDigest(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	admin := authz.Identity{UserID: 1, Role: "super_admin", Active: true}
	router := jobsRouter(t, enqueuer, admin)

	res := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/digest", strings.NewReader(`{"window_hours":48}`))
	router.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if enqueuer.windowHours != 48 {
		t.Fatalf("expected 48h window, got %d", enqueuer.windowHours)
	}
	var body struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.TaskID != "task-1" {
		t.Fatalf("unexpected task id %q", body.TaskID)
	}
}

func TestEnqueueDigestDefaultsWindow(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	admin := authz.Identity{UserID: 1, Role: "super_admin", Active: true}
	router := jobsRouter(t, enqueuer, admin)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/jobs/digest", nil))

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if enqueuer.windowHours != 24 {
		t.Fatalf("expected default 24h window, got %d", enqueuer.windowHours)
	}
}

func TestEnqueueDigestRequiresSystemAdmin(t *testing.T) {
	tenant := int64(1)
	enqueuer := &stubEnqueuer{}
	user := authz.Identity{UserID: 2, Role: "user", TenantID: &tenant, Active: true}
	router := jobsRouter(t, enqueuer, user)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/jobs/digest", nil))

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
	if enqueuer.calls != 0 {
		t.Fatalf("denied request must not enqueue")
	}
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	admin := authz.Identity{UserID: 1, Role: "super_admin", Active: true}
	router := jobsRouter(t, &stubEnqueuer{}, admin)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `"queue":"default"`) {
		t.Fatalf("unexpected body: %s", res.Body.String())
	}
}
