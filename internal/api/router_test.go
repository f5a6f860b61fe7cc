package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/employee"
	"github.com/hackgods/clinic-scheduling/internal/patient"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/testutil"
)

var (
	now = time.Date(2025, 3, 9, 18, 0, 0, 0, time.UTC)
	brt = time.FixedZone("BRT", -3*60*60)
)

type harness struct {
	srv   *httptest.Server
	store *testutil.MemStore
	admin employee.Employee
	staff employee.Employee
	pat   patient.Patient
	rec   patient.ClinicalRecord
	token string
}

func newHarness(t *testing.T, burst int) *harness {
	t.Helper()
	return newHarnessWithLocker(t, burst, redisclient.NopLocker{})
}

func newHarnessWithLocker(t *testing.T, burst int, locker redisclient.Locker) *harness {
	t.Helper()

	store := testutil.NewMemStore()
	store.Now = func() time.Time { return now }

	hash, err := auth.HashPassword("fisio123")
	if err != nil {
		t.Fatal(err)
	}
	admin := store.SeedEmployee(true, hash)
	staff := store.SeedEmployee(false, hash)
	pat, rec := store.SeedPatient()

	logger := zerolog.Nop()
	tokens := auth.NewIssuer("test-secret", time.Hour)
	handler := api.NewRouter(api.RouterConfig{
		Appointments: appointment.NewService(store.Appointments(), locker,
			calendar.Fixed(now), config.Config{MaxSessions: 100}, logger),
		Employees:      employee.NewService(store.Employees(), locker, logger),
		Patients:       patient.NewService(store.Patients(), logger),
		Tokens:         tokens,
		Postgres:       api.PingFunc(func(context.Context) error { return nil }),
		Env:            "dev",
		Version:        "test",
		Location:       brt,
		Logger:         logger,
		LoginRateRPS:   0.001,
		LoginRateBurst: burst,
	})

	token, _, err := tokens.MakeToken(admin.ID)
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &harness{srv: srv, store: store, admin: admin, staff: staff, pat: pat, rec: rec, token: token}
}

func (h *harness) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func (h *harness) course(days ...int) api.CreateAppointmentRequest {
	return api.CreateAppointmentRequest{
		PatientID:        h.pat.ID.String(),
		EmployeeID:       h.staff.ID.String(),
		ClinicalRecordID: h.rec.ID.String(),
		AppointmentDate:  "2025-03-10T06:00", // 09:00 UTC
		Duration:         60,
		TotalSessions:    3,
		DaysOfWeek:       days,
	}
}

func TestCreateAndFetchCourse(t *testing.T) {
	h := newHarness(t, 5)

	resp := h.do(t, http.MethodPost, "/appointments", h.course(1, 4))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	created := decode[api.CourseCreatedResponse](t, resp)
	if len(created.SessionIDs) != 3 {
		t.Fatalf("session ids = %v", created.SessionIDs)
	}

	resp = h.do(t, http.MethodGet, "/appointments/"+created.AppointmentID.String(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	got := decode[api.AppointmentResponse](t, resp)

	want := []time.Time{
		time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 13, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC),
	}
	if len(got.Sessions) != len(want) {
		t.Fatalf("sessions = %d", len(got.Sessions))
	}
	for i, s := range got.Sessions {
		if !s.AppointmentDate.Equal(want[i]) || s.SessionNumber != i+1 || s.Status != "SOLICITADO" {
			t.Errorf("[%d] = %+v", i, s)
		}
		if _, off := s.AppointmentDate.Zone(); off != -3*60*60 {
			t.Errorf("[%d] rendered with offset %d, want display zone", i, off)
		}
	}
	if got.Patient == nil || got.Patient.ID != h.pat.ID || got.Employee == nil || got.ClinicalRecord == nil {
		t.Errorf("participants missing: %+v", got)
	}
}

func TestCreateConflictReturns409(t *testing.T) {
	h := newHarness(t, 5)

	if resp := h.do(t, http.MethodPost, "/appointments", h.course(1, 4)); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first booking: %d", resp.StatusCode)
	}

	req := h.course(1)
	req.AppointmentDate = "2025-03-10T09:30:00Z"
	req.TotalSessions = 1
	resp := h.do(t, http.MethodPost, "/appointments", req)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	body := decode[api.ConflictResponse](t, resp)
	if body.Error != "scheduling_conflict" || body.EmployeeID != h.staff.ID {
		t.Errorf("conflict body = %+v", body)
	}
	if !body.At.Equal(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("conflict at = %s", body.At)
	}
}

func TestCreateValidationErrors(t *testing.T) {
	h := newHarness(t, 5)

	tests := []struct {
		name   string
		mutate func(*api.CreateAppointmentRequest)
		code   string
	}{
		{"bad patient id", func(r *api.CreateAppointmentRequest) { r.PatientID = "nope" }, "validation_error"},
		{"bad date", func(r *api.CreateAppointmentRequest) { r.AppointmentDate = "tomorrow" }, "validation_error"},
		{"bad weekday", func(r *api.CreateAppointmentRequest) { r.DaysOfWeek = []int{7} }, "validation_error"},
		{"duration not on grid", func(r *api.CreateAppointmentRequest) { r.Duration = 45 }, "validation_error"},
		{"past start", func(r *api.CreateAppointmentRequest) { r.AppointmentDate = "2025-03-08T09:00:00Z" }, "invalid_schedule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := h.course(1, 4)
			tt.mutate(&req)
			resp := h.do(t, http.MethodPost, "/appointments", req)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			if body := decode[api.ErrorResponse](t, resp); body.Error != tt.code {
				t.Errorf("error = %q, want %q", body.Error, tt.code)
			}
		})
	}

	resp := h.do(t, http.MethodPost, "/appointments", "not an object")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: %d", resp.StatusCode)
	}
	if h.store.AppointmentCount() != 0 {
		t.Error("nothing may be stored for rejected requests")
	}
}

func TestSessionPatchFlow(t *testing.T) {
	h := newHarness(t, 5)

	created := decode[api.CourseCreatedResponse](t, h.do(t, http.MethodPost, "/appointments", h.course(1, 4)))
	first := created.SessionIDs[0].String()

	confirmed := "CONFIRMADO"
	resp := h.do(t, http.MethodPatch, "/sessions/"+first, api.UpdateSessionRequest{Status: &confirmed})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: %d", resp.StatusCode)
	}
	if s := decode[api.SessionResponse](t, resp); s.Status != "CONFIRMADO" {
		t.Errorf("status = %s", s.Status)
	}

	cancelled := "CANCELADO"
	if resp := h.do(t, http.MethodPatch, "/sessions/"+first, api.UpdateSessionRequest{Status: &cancelled}); resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: %d", resp.StatusCode)
	}
	resp = h.do(t, http.MethodPatch, "/sessions/"+first, api.UpdateSessionRequest{Status: &confirmed})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("reopen cancelled: %d", resp.StatusCode)
	}
	if body := decode[api.ErrorResponse](t, resp); body.Error != "invalid_state" {
		t.Errorf("error = %q", body.Error)
	}

	bogus := "DONE"
	if resp := h.do(t, http.MethodPatch, "/sessions/"+first, api.UpdateSessionRequest{Status: &bogus}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown status: %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodGet, "/sessions/not-a-uuid", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id: %d", resp.StatusCode)
	}
}

func TestListAppointmentsWindow(t *testing.T) {
	h := newHarness(t, 5)
	h.do(t, http.MethodPost, "/appointments", h.course(1, 4))

	tests := []struct {
		query string
		want  int
	}{
		{"?filter=week", 1},
		{"?filter=today", 0},
		{"?startDate=2025-03-17&endDate=2025-03-17", 1},
		{"?startDate=2025-03-18&endDate=2025-03-31", 0},
		{"?employeeId=" + h.admin.ID.String(), 0},
	}
	for _, tt := range tests {
		resp := h.do(t, http.MethodGet, "/appointments"+tt.query, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d", tt.query, resp.StatusCode)
		}
		if got := decode[[]api.AppointmentResponse](t, resp); len(got) != tt.want {
			t.Errorf("%s: %d courses, want %d", tt.query, len(got), tt.want)
		}
	}

	for _, q := range []string{"?filter=year", "?startDate=2025-03-20&endDate=2025-03-10", "?startDate=soon"} {
		if resp := h.do(t, http.MethodGet, "/appointments"+q, nil); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestRepeatAndDeleteCourse(t *testing.T) {
	h := newHarness(t, 5)
	created := decode[api.CourseCreatedResponse](t, h.do(t, http.MethodPost, "/appointments", h.course(1, 4)))
	path := "/appointments/" + created.AppointmentID.String()

	repeat := api.RepeatAppointmentRequest{TotalSessions: 2, DaysOfWeek: []int{2}}
	if resp := h.do(t, http.MethodPost, path+"/repeat", repeat); resp.StatusCode != http.StatusConflict {
		t.Fatalf("repeat of open course: %d", resp.StatusCode)
	}

	finalized := "FINALIZADO"
	for _, id := range created.SessionIDs {
		if resp := h.do(t, http.MethodPatch, "/sessions/"+id.String(), api.UpdateSessionRequest{Status: &finalized}); resp.StatusCode != http.StatusOK {
			t.Fatalf("finalize %s: %d", id, resp.StatusCode)
		}
	}
	resp := h.do(t, http.MethodPost, path+"/repeat", repeat)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("repeat: %d", resp.StatusCode)
	}
	if got := decode[api.CourseCreatedResponse](t, resp); len(got.SessionIDs) != 2 {
		t.Errorf("repeated sessions = %d", len(got.SessionIDs))
	}

	if resp := h.do(t, http.MethodDelete, path, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodGet, path, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted course: %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t, 5)
	h.token = ""

	resp := h.do(t, http.MethodGet, "/appointments", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: %d", resp.StatusCode)
	}

	h.token = "garbage"
	if resp := h.do(t, http.MethodGet, "/me", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token: %d", resp.StatusCode)
	}

	h.token = ""
	if resp := h.do(t, http.MethodGet, "/health/live", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("health must stay public: %d", resp.StatusCode)
	}
}

func TestLoginCookieAndMe(t *testing.T) {
	h := newHarness(t, 5)
	h.token = ""

	resp := h.do(t, http.MethodPost, "/login", api.LoginRequest{Email: h.staff.Email, Password: "fisio123"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("login: %d", resp.StatusCode)
	}
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == api.AuthCookie {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly || cookie.Value == "" {
		t.Fatalf("auth cookie = %+v", cookie)
	}
	if tok := decode[api.TokenResponse](t, resp); tok.Token != cookie.Value {
		t.Error("body token and cookie differ")
	}

	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/me", nil)
	req.AddCookie(cookie)
	me, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer me.Body.Close()
	if me.StatusCode != http.StatusOK {
		t.Fatalf("me: %d", me.StatusCode)
	}
	if got := decode[api.EmployeeResponse](t, me); got.ID != h.staff.ID {
		t.Errorf("me = %+v", got)
	}

	if resp := h.do(t, http.MethodPost, "/login", api.LoginRequest{Email: h.staff.Email, Password: "nope"}); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password: %d", resp.StatusCode)
	}
}

func TestLoginRateLimited(t *testing.T) {
	h := newHarness(t, 1)
	h.token = ""

	body := api.LoginRequest{Email: h.staff.Email, Password: "fisio123"}
	if resp := h.do(t, http.MethodPost, "/login", body); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first login: %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodPost, "/login", body); resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second login: %d, want 429", resp.StatusCode)
	}
}

func TestEmployeeAdminRoutes(t *testing.T) {
	h := newHarness(t, 5)

	resp := h.do(t, http.MethodPost, "/employees", api.CreateEmployeeRequest{Name: "Ana", Email: "ana@clinic.test", Password: "secret1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d", resp.StatusCode)
	}
	created := decode[api.EmployeeResponse](t, resp)

	if resp := h.do(t, http.MethodPost, "/employees", api.CreateEmployeeRequest{Name: "Ana", Email: "ana@clinic.test", Password: "secret1"}); resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate email: %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodDelete, "/employees/"+h.admin.ID.String(), nil); resp.StatusCode != http.StatusForbidden {
		t.Errorf("delete self: %d", resp.StatusCode)
	}

	resp = h.do(t, http.MethodPost, "/employees/"+h.staff.ID.String()+"/reassign", api.ReassignRequest{ToEmployeeID: created.ID.String()})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reassign: %d", resp.StatusCode)
	}

	if resp := h.do(t, http.MethodDelete, "/employees/"+created.ID.String(), nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: %d", resp.StatusCode)
	}

	staffToken, _, _ := auth.NewIssuer("test-secret", time.Hour).MakeToken(h.staff.ID)
	h.token = staffToken
	if resp := h.do(t, http.MethodPost, "/employees", api.CreateEmployeeRequest{Name: "Bo", Email: "bo@clinic.test", Password: "secret1"}); resp.StatusCode != http.StatusForbidden {
		t.Errorf("non-admin create: %d", resp.StatusCode)
	}
}

type heldLocker struct{}

func (heldLocker) WithEmployeeLock(context.Context, uuid.UUID, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestHeldCalendarLockReturns409(t *testing.T) {
	h := newHarnessWithLocker(t, 5, heldLocker{})
	other := h.store.SeedEmployee(false, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"create course", http.MethodPost, "/appointments", h.course(1, 4)},
		{"reassign", http.MethodPost, "/employees/" + h.staff.ID.String() + "/reassign", api.ReassignRequest{ToEmployeeID: other.ID.String()}},
		{"delete employee", http.MethodDelete, "/employees/" + h.staff.ID.String(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != http.StatusConflict {
				t.Fatalf("status = %d, want 409", resp.StatusCode)
			}
			if body := decode[api.ErrorResponse](t, resp); body.Error != "employee_busy" {
				t.Errorf("error = %q", body.Error)
			}
		})
	}

	if _, err := h.store.Employees().GetByID(context.Background(), h.staff.ID); err != nil {
		t.Errorf("employee removed despite held lock: %v", err)
	}
}

func TestPatientRoutes(t *testing.T) {
	h := newHarness(t, 5)

	dob := "1990-04-02"
	resp := h.do(t, http.MethodPost, "/patients", api.PatientRequest{Name: "Maria Lima", CPF: "98765432100", DateOfBirth: &dob})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d", resp.StatusCode)
	}
	p := decode[api.PatientResponse](t, resp)
	if p.DateOfBirth == nil || *p.DateOfBirth != dob {
		t.Errorf("dateOfBirth = %v", p.DateOfBirth)
	}

	path := "/patients/" + p.ID.String()
	resp = h.do(t, http.MethodPost, path+"/records", api.ClinicalRecordRequest{CID: "M75.1", Allegation: "shoulder pain", Diagnosis: "rotator cuff"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add record: %d", resp.StatusCode)
	}

	detail := decode[api.PatientResponse](t, h.do(t, http.MethodGet, path, nil))
	if len(detail.Records) != 1 || detail.Records[0].CID != "M75.1" {
		t.Errorf("records = %+v", detail.Records)
	}

	if resp := h.do(t, http.MethodPost, "/patients", api.PatientRequest{Name: "Other", CPF: "98765432100"}); resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate cpf: %d", resp.StatusCode)
	}

	list := decode[[]api.PatientResponse](t, h.do(t, http.MethodGet, "/patients?search=987654321", nil))
	if len(list) != 1 {
		t.Errorf("search = %d", len(list))
	}

	if resp := h.do(t, http.MethodDelete, path, nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: %d", resp.StatusCode)
	}
	resp = h.do(t, http.MethodGet, path, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted patient: %d", resp.StatusCode)
	}
	if body := decode[api.ErrorResponse](t, resp); body.Error != "patient_not_found" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestReadiness(t *testing.T) {
	down := api.PingFunc(func(context.Context) error { return errors.New("refused") })
	up := api.PingFunc(func(context.Context) error { return nil })

	tests := []struct {
		name   string
		pg, rd api.Pinger
		code   int
		status string
	}{
		{"all up", up, up, http.StatusOK, "ok"},
		{"redis down", up, down, http.StatusOK, "degraded"},
		{"postgres down", down, up, http.StatusServiceUnavailable, "error"},
		{"redis disabled", up, nil, http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := api.NewHealthHandler(tt.pg, tt.rd, "test", "v0")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rec.Code != tt.code {
				t.Fatalf("code = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), `"status":"`+tt.status+`"`) {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
}
