package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	electionengine "electsys/contexts/enrollment/election-engine"
	"electsys/contexts/enrollment/election-engine/adapters/memory"
	"electsys/contexts/enrollment/election-engine/domain/entities"
	"electsys/internal/platform/phase"
)

func newTestServer() (*Server, electionengine.Module) {
	module := electionengine.NewInMemoryModule(nil, nil)
	module.Store.SetCourse(entities.Course{
		CourseID: "crs-1", Name: "Algorithms", Credit: 4, Capacity: 1,
		Slots: []entities.TimeSlot{{Day: 1, Period: 2}},
	})
	module.Store.SetStudent(entities.Student{StudentID: "stu-1", CreditLimit: 25})
	module.Locks.Provision("stu-1")
	server := New(module, phase.NewGate(true), nil, ":0")
	return server, module
}

func enrollBody(t *testing.T, courseID string, wp int) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]any{"course_id": courseID, "willingpoint": wp})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(body)
}

func TestEnrollRequiresUserHeader(t *testing.T) {
	server, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/elections", enrollBody(t, "crs-1", 10))
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestEnrollCreatesPendingElection(t *testing.T) {
	server, module := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/elections", enrollBody(t, "crs-1", 10))
	req.Header.Set("X-User-Id", "stu-1")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	election, found, _ := module.Store.GetElectionByPair(req.Context(), "stu-1", "crs-1")
	if !found || election.Status != entities.ElectionStatusPending {
		t.Fatalf("expected pending election, found=%v status=%q", found, election.Status)
	}
}

func TestEnrollDuplicateReturnsConflict(t *testing.T) {
	server, _ := newTestServer()

	first := httptest.NewRequest(http.MethodPost, "/v1/elections", enrollBody(t, "crs-1", 10))
	first.Header.Set("X-User-Id", "stu-1")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, first)
	if rr.Code != http.StatusCreated {
		t.Fatalf("first enroll: expected 201, got %d", rr.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/v1/elections", enrollBody(t, "crs-1", 5))
	second.Header.Set("X-User-Id", "stu-1")
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, second)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestEnrollUnknownCourseReturnsNotFound(t *testing.T) {
	server, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/elections", enrollBody(t, "missing", 10))
	req.Header.Set("X-User-Id", "stu-1")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestEnrollOverWillingpointBudgetReturnsBadRequest(t *testing.T) {
	server, module := newTestServer()
	module.Store.SetCourse(entities.Course{CourseID: "crs-2", Name: "Networks", Credit: 3, Capacity: 10})

	first := httptest.NewRequest(http.MethodPost, "/v1/elections", enrollBody(t, "crs-1", 60))
	first.Header.Set("X-User-Id", "stu-1")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, first)
	if rr.Code != http.StatusCreated {
		t.Fatalf("first enroll: expected 201, got %d", rr.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/v1/elections", enrollBody(t, "crs-2", 40))
	second.Header.Set("X-User-Id", "stu-1")
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, second)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMutationsRejectedWhenPhaseClosed(t *testing.T) {
	module := electionengine.NewInMemoryModule(nil, nil)
	module.Store.SetCourse(entities.Course{CourseID: "crs-1", Credit: 4, Capacity: 1})
	module.Store.SetStudent(entities.Student{StudentID: "stu-1", CreditLimit: 25})
	module.Locks.Provision("stu-1")
	server := New(module, phase.NewGate(false), nil, ":0")

	req := httptest.NewRequest(http.MethodPost, "/v1/elections", enrollBody(t, "crs-1", 10))
	req.Header.Set("X-User-Id", "stu-1")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with the phase closed, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestBallotRunClosesPhaseAndResolves(t *testing.T) {
	server, module := newTestServer()

	enroll := httptest.NewRequest(http.MethodPost, "/v1/elections", enrollBody(t, "crs-1", 10))
	enroll.Header.Set("X-User-Id", "stu-1")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, enroll)
	if rr.Code != http.StatusCreated {
		t.Fatalf("enroll: expected 201, got %d", rr.Code)
	}

	run := httptest.NewRequest(http.MethodPost, "/v1/ballot/run", nil)
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, run)
	if rr.Code != http.StatusOK {
		t.Fatalf("ballot run: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	election, _, _ := module.Store.GetElectionByPair(run.Context(), "stu-1", "crs-1")
	if election.Status != entities.ElectionStatusElected {
		t.Fatalf("expected seat elected after ballot, got %q", election.Status)
	}

	// Interactive mutations are fenced once the ballot has run.
	withdraw := httptest.NewRequest(http.MethodPost, "/v1/elections/crs-1/withdraw", nil)
	withdraw.Header.Set("X-User-Id", "stu-1")
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, withdraw)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 after ballot, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestScheduleEndpointReturnsEntries(t *testing.T) {
	server, _ := newTestServer()

	enroll := httptest.NewRequest(http.MethodPost, "/v1/elections", enrollBody(t, "crs-1", 10))
	enroll.Header.Set("X-User-Id", "stu-1")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, enroll)
	if rr.Code != http.StatusCreated {
		t.Fatalf("enroll: expected 201, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/students/stu-1/schedule", nil)
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		StudentID string `json:"student_id"`
		CurCredit int    `json:"cur_credit"`
		Courses   []struct {
			CourseID     string `json:"course_id"`
			PendingCount int    `json:"pending_count"`
		} `json:"courses"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode schedule: %v", err)
	}
	if resp.StudentID != "stu-1" || resp.CurCredit != 4 {
		t.Fatalf("unexpected schedule header %+v", resp)
	}
	if len(resp.Courses) != 1 || resp.Courses[0].CourseID != "crs-1" || resp.Courses[0].PendingCount != 1 {
		t.Fatalf("unexpected schedule entries %+v", resp.Courses)
	}
}

func TestCourseDemandEndpoint(t *testing.T) {
	server, _ := newTestServer()

	enroll := httptest.NewRequest(http.MethodPost, "/v1/elections", enrollBody(t, "crs-1", 10))
	enroll.Header.Set("X-User-Id", "stu-1")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, enroll)
	if rr.Code != http.StatusCreated {
		t.Fatalf("enroll: expected 201, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/courses/crs-1/demand", nil)
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Capacity     int `json:"capacity"`
		PendingCount int `json:"pending_count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode demand: %v", err)
	}
	if resp.Capacity != 1 || resp.PendingCount != 1 {
		t.Fatalf("unexpected demand %+v", resp)
	}
}

func TestMessagesEndpointAfterBallot(t *testing.T) {
	server, module := newTestServer()
	module.Store.SetStudent(entities.Student{StudentID: "stu-2", CreditLimit: 25})
	module.Locks.Provision("stu-2")

	for _, studentID := range []string{"stu-1", "stu-2"} {
		enroll := httptest.NewRequest(http.MethodPost, "/v1/elections", enrollBody(t, "crs-1", 10))
		enroll.Header.Set("X-User-Id", studentID)
		rr := httptest.NewRecorder()
		server.mux.ServeHTTP(rr, enroll)
		if rr.Code != http.StatusCreated {
			t.Fatalf("enroll %s: expected 201, got %d", studentID, rr.Code)
		}
	}

	run := httptest.NewRequest(http.MethodPost, "/v1/ballot/run", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, run)
	if rr.Code != http.StatusOK {
		t.Fatalf("ballot run: expected 200, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/students/stu-2/messages", nil)
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		UnreadCount int `json:"unread_count"`
		Messages    []struct {
			Title string `json:"title"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if resp.UnreadCount != 1 || len(resp.Messages) != 1 || resp.Messages[0].Title != "Ballot result" {
		t.Fatalf("unexpected message box %+v", resp)
	}
}

func TestPhaseCloseThroughSharedGateFencesMutations(t *testing.T) {
	module := electionengine.NewInMemoryModule(nil, nil)
	module.Store.SetCourse(entities.Course{CourseID: "crs-1", Name: "Algorithms", Credit: 4, Capacity: 1})
	module.Store.SetStudent(entities.Student{StudentID: "stu-1", CreditLimit: 25})
	module.Locks.Provision("stu-1")
	// The store stands in for the shared database row: the server and the
	// ballot worker both consult the same gate instance.
	server := New(module, module.Store, nil, ":0")

	enroll := httptest.NewRequest(http.MethodPost, "/v1/elections", enrollBody(t, "crs-1", 10))
	enroll.Header.Set("X-User-Id", "stu-1")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, enroll)
	if rr.Code != http.StatusCreated {
		t.Fatalf("enroll: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	// The worker side closes the gate out of band.
	if err := module.Store.ClosePhase(context.Background()); err != nil {
		t.Fatalf("close phase: %v", err)
	}

	withdraw := httptest.NewRequest(http.MethodPost, "/v1/elections/crs-1/withdraw", nil)
	withdraw.Header.Set("X-User-Id", "stu-1")
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, withdraw)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 after worker-side close, got %d body=%s", rr.Code, rr.Body.String())
	}
}

// ctxGuardedCatalog refuses course listing once the supplied context is
// canceled, the way a driver would after a client disconnect.
type ctxGuardedCatalog struct {
	*memory.Store
}

func (c ctxGuardedCatalog) ListCourses(ctx context.Context) ([]entities.Course, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Store.ListCourses(ctx)
}

func TestBallotRunSurvivesClientDisconnect(t *testing.T) {
	store := memory.NewStore(nil)
	store.SetCourse(entities.Course{CourseID: "crs-1", Name: "Algorithms", Credit: 4, Capacity: 1})
	store.SetStudent(entities.Student{StudentID: "stu-1", CreditLimit: 25})
	locks := memory.NewLockRegistry()
	locks.Provision("stu-1")

	module := electionengine.NewModule(electionengine.Dependencies{
		Elections: store,
		Courses:   ctxGuardedCatalog{store},
		Students:  store,
		Messages:  store,
		Locks:     locks,
		Outbox:    store,
		Clock:     store,
		IDGen:     store,
	})
	module.Store = store
	server := New(module, phase.NewGate(true), nil, ":0")

	enroll := httptest.NewRequest(http.MethodPost, "/v1/elections", enrollBody(t, "crs-1", 10))
	enroll.Header.Set("X-User-Id", "stu-1")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, enroll)
	if rr.Code != http.StatusCreated {
		t.Fatalf("enroll: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run := httptest.NewRequest(http.MethodPost, "/v1/ballot/run", nil).WithContext(ctx)
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, run)
	if rr.Code != http.StatusOK {
		t.Fatalf("ballot run: expected 200 despite disconnect, got %d body=%s", rr.Code, rr.Body.String())
	}

	election, _, _ := store.GetElectionByPair(context.Background(), "stu-1", "crs-1")
	if election.Status != entities.ElectionStatusElected {
		t.Fatalf("expected seat elected after ballot, got %q", election.Status)
	}
}

func TestWithdrawUnknownElectionReturnsNotFound(t *testing.T) {
	server, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/elections/crs-1/withdraw", nil)
	req.Header.Set("X-User-Id", "stu-1")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestEditWillingpointEndpoint(t *testing.T) {
	server, module := newTestServer()

	enroll := httptest.NewRequest(http.MethodPost, "/v1/elections", enrollBody(t, "crs-1", 10))
	enroll.Header.Set("X-User-Id", "stu-1")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, enroll)
	if rr.Code != http.StatusCreated {
		t.Fatalf("enroll: expected 201, got %d", rr.Code)
	}

	body, _ := json.Marshal(map[string]any{"willingpoint": 55})
	edit := httptest.NewRequest(http.MethodPatch, "/v1/elections/crs-1", bytes.NewReader(body))
	edit.Header.Set("X-User-Id", "stu-1")
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, edit)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	election, _, _ := module.Store.GetElectionByPair(edit.Context(), "stu-1", "crs-1")
	if election.Willingpoint != 55 {
		t.Fatalf("expected willingpoint 55, got %d", election.Willingpoint)
	}
}
