package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fieldtask/internal/domain"
	"fieldtask/internal/repository"
	"fieldtask/internal/service"
)

// brokenTemplatesRepo fails the scan itself (store outage).
type brokenTemplatesRepo struct {
	*repository.MemoryTemplatesRepo
}

func (r *brokenTemplatesRepo) ScanDue(context.Context, time.Time) ([]*domain.Template, error) {
	return nil, fmt.Errorf("pq: the database system is starting up")
}

func newTestRunner(templates repository.TemplatesRepository, lock *service.SweepLock) *service.SweepRunner {
	gen := service.NewGenerationService(templates, repository.NewMemoryTasksRepo(), zap.NewNop())
	return service.NewSweepRunner(gen, lock, nil, zap.NewNop())
}

func addDueTemplate(t *testing.T, repo *repository.MemoryTemplatesRepo, name string) {
	t.Helper()
	_, err := repo.CreateTemplate(context.Background(), &domain.Template{
		Name:             name,
		IsActive:         true,
		RecurrenceRule:   &domain.RecurrenceRule{Frequency: domain.FrequencyDaily},
		NextGenerationAt: sql.NullTime{Time: time.Now().Add(-time.Hour), Valid: true},
		RotationIndex:    -1,
	})
	require.NoError(t, err)
}

func decodeSweepResult(t *testing.T, rec *httptest.ResponseRecorder) Result[domain.SweepReport] {
	t.Helper()
	var out Result[domain.SweepReport]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	h := NewGenerationHandler(newTestRunner(repository.NewMemoryTemplatesRepo(), nil), "", "development", zap.NewNop())

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/tasks/api/v1/generation/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRunSweep_DevWithoutTokenSkipsAuth(t *testing.T) {
	templates := repository.NewMemoryTemplatesRepo()
	addDueTemplate(t, templates, "Daily check")
	h := NewGenerationHandler(newTestRunner(templates, nil), "", "development", zap.NewNop())

	rec := httptest.NewRecorder()
	h.RunSweep(rec, httptest.NewRequest(http.MethodPost, "/tasks/api/v1/generation/run", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeSweepResult(t, rec)
	assert.Equal(t, ResultSuccess, out.Code)
	assert.Equal(t, 1, out.Result.Succeeded)
	assert.Equal(t, 0, out.Result.Failed)
	require.Len(t, out.Result.Results, 1)
	assert.NotEmpty(t, out.Result.Results[0].TaskID)
}

func TestRunSweep_TokenEnforced(t *testing.T) {
	templates := repository.NewMemoryTemplatesRepo()
	h := NewGenerationHandler(newTestRunner(templates, nil), "s3cret", "development", zap.NewNop())

	// Missing header.
	rec := httptest.NewRecorder()
	h.RunSweep(rec, httptest.NewRequest(http.MethodPost, "/tasks/api/v1/generation/run", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong token.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks/api/v1/generation/run", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	h.RunSweep(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Correct token.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/tasks/api/v1/generation/run", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	h.RunSweep(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunSweep_ProductionRequiresConfiguredToken(t *testing.T) {
	h := NewGenerationHandler(newTestRunner(repository.NewMemoryTemplatesRepo(), nil), "", "production", zap.NewNop())

	rec := httptest.NewRecorder()
	h.RunSweep(rec, httptest.NewRequest(http.MethodPost, "/tasks/api/v1/generation/run", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRunSweep_HeldLeaseReturnsConflict(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	lock := service.NewSweepLock(client, time.Minute)

	release, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	h := NewGenerationHandler(newTestRunner(repository.NewMemoryTemplatesRepo(), lock), "", "development", zap.NewNop())

	rec := httptest.NewRecorder()
	h.RunSweep(rec, httptest.NewRequest(http.MethodPost, "/tasks/api/v1/generation/run", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunSweep_ScanOutageIsWholeSweepFailure(t *testing.T) {
	broken := &brokenTemplatesRepo{repository.NewMemoryTemplatesRepo()}
	h := NewGenerationHandler(newTestRunner(broken, nil), "", "development", zap.NewNop())

	rec := httptest.NewRecorder()
	h.RunSweep(rec, httptest.NewRequest(http.MethodPost, "/tasks/api/v1/generation/run", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to scan due templates")
}

func TestRouter_MethodGuards(t *testing.T) {
	router := NewRouter(zap.NewNop())
	h := NewGenerationHandler(newTestRunner(repository.NewMemoryTemplatesRepo(), nil), "", "development", zap.NewNop())
	router.RegisterGenerationRoutes(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/api/v1/generation/run", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks/api/v1/generation/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
