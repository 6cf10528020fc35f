package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pipkin-app/pipkin/internal/catalog"
	"github.com/pipkin-app/pipkin/internal/clockwork"
	"github.com/pipkin-app/pipkin/internal/engine"
	"github.com/pipkin-app/pipkin/internal/models"
	"github.com/pipkin-app/pipkin/internal/store"
)

// fixedClock pins the engine to a weekday morning so slot math is stable.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	cal := clockwork.NewCalendar(time.UTC)
	eng := engine.New(engine.Deps{
		Store:    st,
		Calendar: cal,
		Clock:    fixedClock{now: time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)},
		Catalog:  catalog.New(st),
	})
	t.Cleanup(eng.Close)
	return NewServer(eng), st
}

func createJSONRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, path, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func assertJSONStatus(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rr.Body.String(), err)
	}
	if resp.Status != want {
		t.Errorf("response status = %q, want %q (message: %q)", resp.Status, want, resp.Message)
	}
}

func TestTasksHandler_ListsToday(t *testing.T) {
	server, st := newTestServer(t)
	now := time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC)
	if err := st.SaveTask(models.UserTask{
		ID: "t1", Title: "Go for a walk", Category: models.CategoryOutdoor,
		ScheduledDate: now, Status: models.TaskStatusPending,
	}); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	rr := httptest.NewRecorder()
	server.tasksHandler(rr, createJSONRequest(t, "GET", "/tasks", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	assertJSONStatus(t, rr, "ok")

	var resp struct {
		Result []models.UserTask `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Result) != 1 || resp.Result[0].ID != "t1" {
		t.Errorf("unexpected task list: %+v", resp.Result)
	}
}

func TestTasksHandler_MethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	server.tasksHandler(rr, createJSONRequest(t, "POST", "/tasks", "{}"))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func TestTaskStartHandler_Success(t *testing.T) {
	server, st := newTestServer(t)
	if err := st.SaveTask(models.UserTask{
		ID: "t1", Title: "Go for a walk", Category: models.CategoryOutdoor,
		ScheduledDate: time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC),
		Status:        models.TaskStatusPending,
	}); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	rr := httptest.NewRecorder()
	server.taskStartHandler(rr, createJSONRequest(t, "POST", "/tasks/start", `{"id":"t1"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	assertJSONStatus(t, rr, "ok")

	task, err := st.GetTask("t1")
	if err != nil || task == nil {
		t.Fatalf("GetTask: %v %v", task, err)
	}
	if task.Status != models.TaskStatusStarted {
		t.Errorf("status = %s, want started", task.Status)
	}
}

func TestTaskStartHandler_BadRequest(t *testing.T) {
	server, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	server.taskStartHandler(rr, createJSONRequest(t, "POST", "/tasks/start", `{"id":""}`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing ID: expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	server.taskStartHandler(rr, createJSONRequest(t, "POST", "/tasks/start", `not json`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: expected 400, got %d", rr.Code)
	}
	assertJSONStatus(t, rr, "error")
}

func TestTaskCompleteHandler_ReadyTask(t *testing.T) {
	server, st := newTestServer(t)
	if err := st.SaveTask(models.UserTask{
		ID: "t1", Title: "Water the plants", Category: models.CategoryPetCare,
		EnergyReward:  10,
		ScheduledDate: time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC),
		Status:        models.TaskStatusReady,
	}); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	rr := httptest.NewRecorder()
	server.taskCompleteHandler(rr, createJSONRequest(t, "POST", "/tasks/complete", `{"id":"t1"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Result *engine.CompleteResult `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result == nil || resp.Result.EnergyGranted != 10 {
		t.Errorf("unexpected completion result: %+v", resp.Result)
	}
}

func TestTaskCompleteHandler_NotCompletable(t *testing.T) {
	server, st := newTestServer(t)
	if err := st.SaveTask(models.UserTask{
		ID: "t1", Title: "Go for a walk", Category: models.CategoryOutdoor,
		ScheduledDate: time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC),
		Status:        models.TaskStatusPending,
	}); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	rr := httptest.NewRecorder()
	server.taskCompleteHandler(rr, createJSONRequest(t, "POST", "/tasks/complete", `{"id":"t1"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result != nil {
		t.Errorf("premature completion returned a result: %+v", resp.Result)
	}
}

func TestSlotHandler_ReportsEligibility(t *testing.T) {
	server, st := newTestServer(t)
	done := time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC)
	if err := st.SaveTask(models.UserTask{
		ID: "t1", Title: "Go for a walk", Category: models.CategoryOutdoor,
		ScheduledDate: done, Status: models.TaskStatusCompleted, CompletedAt: &done,
	}); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	rr := httptest.NewRecorder()
	server.slotHandler(rr, createJSONRequest(t, "GET", "/slot", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Result slotView `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result.Slot != models.SlotMorning {
		t.Errorf("slot = %s, want morning", resp.Result.Slot)
	}
	if !resp.Result.CanRefresh {
		t.Errorf("all-completed slot should be refreshable")
	}
}

func TestRefreshHandler_Conflict(t *testing.T) {
	server, st := newTestServer(t)
	if err := st.SaveTask(models.UserTask{
		ID: "t1", Title: "Go for a walk", Category: models.CategoryOutdoor,
		ScheduledDate: time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC),
		Status:        models.TaskStatusPending,
	}); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	rr := httptest.NewRecorder()
	server.refreshHandler(rr, createJSONRequest(t, "POST", "/slot/refresh", `{}`))
	if rr.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
	assertJSONStatus(t, rr, "error")
}

func TestPettingHandler_Success(t *testing.T) {
	server, st := newTestServer(t)

	rr := httptest.NewRecorder()
	server.pettingHandler(rr, createJSONRequest(t, "POST", "/pet/petting", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	pet, err := st.GetPet()
	if err != nil {
		t.Fatalf("GetPet: %v", err)
	}
	if pet.BondingScore != 51 {
		t.Errorf("BondingScore = %d, want 51", pet.BondingScore)
	}
}

func TestPurchaseHandler_RejectsOverspend(t *testing.T) {
	server, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	server.purchaseHandler(rr, createJSONRequest(t, "POST", "/pet/decorations", `{"name":"velvet rug","cost":500}`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
	assertJSONStatus(t, rr, "error")
}

func TestRegionHandler_Validation(t *testing.T) {
	server, st := newTestServer(t)

	rr := httptest.NewRecorder()
	server.regionHandler(rr, createJSONRequest(t, "POST", "/region", `{"region":"Asia/Tokyo"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	stats, err := st.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Region != "Asia/Tokyo" {
		t.Errorf("Region = %q, want Asia/Tokyo", stats.Region)
	}

	rr = httptest.NewRecorder()
	server.regionHandler(rr, createJSONRequest(t, "POST", "/region", `{"region":"Nowhere/Nowhere"}`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown region: expected 400, got %d", rr.Code)
	}
}

func TestHistoryHandler_LimitValidation(t *testing.T) {
	server, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	server.historyHandler(rr, createJSONRequest(t, "GET", "/history?limit=abc", ""))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	server.historyHandler(rr, createJSONRequest(t, "GET", "/history?limit=5", ""))
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	server, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	server.healthHandler(rr, createJSONRequest(t, "GET", "/health", ""))
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	assertJSONStatus(t, rr, "ok")
}
