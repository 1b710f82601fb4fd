package sync

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(kind *fakeKind, client *fakeClient) SyncService {
	return NewSyncService(NewRegistry([]Kind{kind}), testExecutor(&fakeFactory{client: client}, &fakeAudit{}))
}

func TestListUnsyncedPaging(t *testing.T) {
	kind := newFakeKind(
		SyncableRecord{ID: "1"}, SyncableRecord{ID: "2"}, SyncableRecord{ID: "3", Status: StatusSynced, ExternalID: "9"},
		SyncableRecord{ID: "4"},
	)
	svc := testService(kind, newFakeClient())

	page, err := svc.ListUnsynced(context.Background(), "bank", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
	assert.True(t, page.HasMore)

	page, err = svc.ListUnsynced(context.Background(), "bank", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Count)
	assert.False(t, page.HasMore)

	_, err = svc.ListUnsynced(context.Background(), "bank", 101, 0)
	assert.Error(t, err)
	_, err = svc.ListUnsynced(context.Background(), "bank", 10, -1)
	assert.Error(t, err)
	_, err = svc.ListUnsynced(context.Background(), "ghost", 10, 0)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestAnalyze(t *testing.T) {
	kind := newFakeKind(
		SyncableRecord{ID: "1", Status: StatusSynced, ExternalID: "8"},
		SyncableRecord{ID: "2", Status: StatusSynced},
		SyncableRecord{ID: "3", Status: StatusNotSynced},
		SyncableRecord{ID: "4", Status: StatusNotSynced},
	)
	svc := testService(kind, newFakeClient())

	a, err := svc.Analyze(context.Background(), "bank")
	require.NoError(t, err)
	assert.Equal(t, int64(4), a.Counts.Total)
	assert.Equal(t, int64(1), a.Counts.Inconsistent)
	assert.Equal(t, 50.0, a.SyncPercentage)
	assert.Contains(t, a.Recommendation, "without an external id")
}

func TestControllerStatusCodes(t *testing.T) {
	kind := newFakeKind(SyncableRecord{ID: "1"})
	app := fiber.New()
	ctrl := NewSyncController(testService(kind, newFakeClient()))
	app.Post("/api/sync/:kind/:id", ctrl.SyncOne)
	app.Post("/api/sync/:kind/batch", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusAccepted) })

	resp, err := app.Test(httptest.NewRequest("POST", "/api/sync/bank/1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "CREATED", body["action_taken"])
	assert.Equal(t, true, body["success"])

	resp, err = app.Test(httptest.NewRequest("POST", "/api/sync/bank/1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/api/sync/loans/1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/api/sync/bank/batch", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
}
