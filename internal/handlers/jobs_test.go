package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/agentfleet/task-planner/internal/auth"
	"github.com/agentfleet/task-planner/internal/handlers"
	"github.com/agentfleet/task-planner/internal/service"
	"github.com/agentfleet/task-planner/internal/store"
	"github.com/agentfleet/task-planner/internal/store/model"
)

var _ = Describe("job routes", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		jobSrv *service.JobService
	)

	caller := auth.User{Subject: "subject-1", TenantID: "tenant-a", Role: model.RoleDoctor}
	stranger := auth.User{Subject: "subject-2", TenantID: "tenant-b", Role: model.RoleDoctor}

	BeforeAll(func() {
		s, gormdb = newTestStore()
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		jobSrv = service.NewJobService(s, &fakeEnqueuer{}, &fakeResolver{}, nil, "runner", "runner")
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM jobs;")
	})

	serve := func(user auth.User, req *http.Request) *httptest.ResponseRecorder {
		router := newRouter(asUser(user), handlers.NewJobHandler(jobSrv).Routes)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	submit := func(user auth.User) uuid.UUID {
		body := bytes.NewBufferString(`{"query": "https://example.com"}`)
		rec := serve(user, httptest.NewRequest(http.MethodPost, "/jobs", body))
		Expect(rec.Code).To(Equal(http.StatusAccepted))

		var resp map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(BeNil())
		return uuid.MustParse(resp["job_id"].(string))
	}

	It("accepts a submission with 202 and a pending job", func() {
		body := bytes.NewBufferString(`{"query": "https://example.com"}`)
		rec := serve(caller, httptest.NewRequest(http.MethodPost, "/jobs", body))
		Expect(rec.Code).To(Equal(http.StatusAccepted))

		var resp map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(BeNil())
		Expect(resp["status"]).To(Equal("pending"))
		Expect(resp["submitted_by"]).To(Equal("subject-1"))
	})

	It("rejects a malformed body with 400", func() {
		rec := serve(caller, httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString("{not json")))
		Expect(rec.Code).To(Equal(http.StatusBadRequest))

		var resp map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(BeNil())
		Expect(resp["error"]).NotTo(BeEmpty())
	})

	It("rejects an empty query with 400", func() {
		rec := serve(caller, httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{}`)))
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("answers 404 for an unknown job", func() {
		rec := serve(caller, httptest.NewRequest(http.MethodGet, "/jobs/"+uuid.New().String(), nil))
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("answers 400 for a job id that is not a uuid", func() {
		rec := serve(caller, httptest.NewRequest(http.MethodGet, "/jobs/not-a-uuid", nil))
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("answers 403 when another tenant reads the job", func() {
		id := submit(caller)
		rec := serve(stranger, httptest.NewRequest(http.MethodGet, "/jobs/"+id.String(), nil))
		Expect(rec.Code).To(Equal(http.StatusForbidden))
	})

	It("answers 409 with the current state when logs are requested before a runner exists", func() {
		id := submit(caller)
		rec := serve(caller, httptest.NewRequest(http.MethodGet, "/jobs/"+id.String()+"/logs", nil))
		Expect(rec.Code).To(Equal(http.StatusConflict))

		var resp map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(BeNil())
		Expect(resp["state"]).To(Equal("pending"))
	})

	It("lists only the caller's jobs", func() {
		submit(caller)
		submit(stranger)

		rec := serve(caller, httptest.NewRequest(http.MethodGet, "/jobs", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))

		var resp struct {
			Jobs []map[string]any `json:"jobs"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(BeNil())
		Expect(resp.Jobs).To(HaveLen(1))
		Expect(resp.Jobs[0]["submitted_by"]).To(Equal("subject-1"))
	})

	It("rejects a negative limit with 400", func() {
		rec := serve(caller, httptest.NewRequest(http.MethodGet, "/jobs?limit=-3", nil))
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})
})

var _ = Describe("runner routes", Ordered, func() {
	var (
		s         store.Store
		gormdb    *gorm.DB
		uploader  *fakeUploader
		runnerSrv *service.RunnerService
	)

	BeforeAll(func() {
		s, gormdb = newTestStore()
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		uploader = newFakeUploader()
		runnerSrv = service.NewRunnerService(s, uploader, nil, "runner", "runner")
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM jobs;")
		gormdb.Exec("DELETE FROM log_events;")
	})

	newRunningJob := func() (*model.Job, auth.RunnerClaims) {
		now := time.Now().UTC()
		handle := "container-1"
		job, err := s.Job().Create(context.TODO(), model.Job{
			ID: uuid.New(), TenantID: "tenant-a", SubmittedBy: "subject-1",
			Query: "https://example.com", Status: model.JobStatusRunning, RunnerHandle: &handle,
			CreatedAt: now, UpdatedAt: now, ExpiresAt: now.Add(time.Hour),
		})
		Expect(err).To(BeNil())
		return job, auth.RunnerClaims{JobID: job.ID.String(), TenantID: job.TenantID}
	}

	serve := func(claims auth.RunnerClaims, req *http.Request) *httptest.ResponseRecorder {
		router := newRouter(asRunner(claims), handlers.NewRunnerHandler(runnerSrv).Routes)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("refuses a token scoped to a different job with 403", func() {
		job, claims := newRunningJob()
		otherPath := "/jobs/" + uuid.New().String() + "/status"
		body := bytes.NewBufferString(`{"status": "completed"}`)
		rec := serve(claims, httptest.NewRequest(http.MethodPut, otherPath, body))
		Expect(rec.Code).To(Equal(http.StatusForbidden))

		after, err := s.Job().Get(context.TODO(), job.ID)
		Expect(err).To(BeNil())
		Expect(after.Status).To(Equal(model.JobStatusRunning))
	})

	It("applies a legal status report", func() {
		job, claims := newRunningJob()
		body := bytes.NewBufferString(`{"status": "completed"}`)
		rec := serve(claims, httptest.NewRequest(http.MethodPut, "/jobs/"+job.ID.String()+"/status", body))
		Expect(rec.Code).To(Equal(http.StatusOK))

		var resp map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(BeNil())
		Expect(resp["status"]).To(Equal("completed"))
	})

	It("answers 409 for an illegal edge", func() {
		job, claims := newRunningJob()
		body := bytes.NewBufferString(`{"status": "running"}`)
		rec := serve(claims, httptest.NewRequest(http.MethodPut, "/jobs/"+job.ID.String()+"/status", body))
		Expect(rec.Code).To(Equal(http.StatusConflict))
	})

	It("stores an uploaded artifact", func() {
		job, claims := newRunningJob()
		req := httptest.NewRequest(http.MethodPut, "/jobs/"+job.ID.String()+"/artifacts/capture.html",
			bytes.NewBufferString("<html/>"))
		req.Header.Set("Content-Type", "text/html")
		rec := serve(claims, req)
		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(uploader.objects).To(HaveKey(job.ID.String() + "/capture.html"))
	})

	It("rejects an unknown artifact name with 400", func() {
		job, claims := newRunningJob()
		req := httptest.NewRequest(http.MethodPut, "/jobs/"+job.ID.String()+"/artifacts/notes.txt",
			bytes.NewBufferString("x"))
		rec := serve(claims, req)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("accepts log lines and serves them back through the job API", func() {
		job, claims := newRunningJob()
		body := bytes.NewBufferString(`{"lines": [{"message": "hello"}]}`)
		rec := serve(claims, httptest.NewRequest(http.MethodPost, "/jobs/"+job.ID.String()+"/logs", body))
		Expect(rec.Code).To(Equal(http.StatusNoContent))

		page, err := s.LogEvent().Page(context.TODO(), "runner/runner/container-1", 0, 10)
		Expect(err).To(BeNil())
		Expect(page).To(HaveLen(1))
		Expect(page[0].Message).To(Equal("hello"))
	})
})

var _ = Describe("tenant routes", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		srv    *service.MembershipService
	)

	admin := auth.User{Subject: "admin-1", Email: "admin@clinic.example", TenantID: "", Role: model.RoleUnregistered}

	BeforeAll(func() {
		s, gormdb = newTestStore()
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		srv = service.NewMembershipService(s)
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM memberships;")
	})

	serve := func(user auth.User, req *http.Request) *httptest.ResponseRecorder {
		router := newRouter(asUser(user), handlers.NewTenantHandler(srv).Routes)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	register := func(user auth.User) auth.User {
		rec := serve(user, httptest.NewRequest(http.MethodPost, "/tenants/register", nil))
		Expect(rec.Code).To(Equal(http.StatusCreated))

		var resp map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(BeNil())
		user.TenantID = resp["tenant_id"].(string)
		user.Role = model.RoleAdmin
		return user
	}

	It("creates a tenant on first registration and is idempotent after", func() {
		registered := register(admin)
		Expect(registered.TenantID).NotTo(BeEmpty())

		rec := serve(registered, httptest.NewRequest(http.MethodPost, "/tenants/register", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))

		var resp map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(BeNil())
		Expect(resp["tenant_id"]).To(Equal(registered.TenantID))
	})

	It("rejects an invite with an unknown role", func() {
		registered := register(admin)
		body := bytes.NewBufferString(`{"email": "new@clinic.example", "role": "SUPERUSER"}`)
		rec := serve(registered, httptest.NewRequest(http.MethodPost, "/tenants/users", body))
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("invites a member and lists it", func() {
		registered := register(admin)
		body := bytes.NewBufferString(`{"email": "new@clinic.example", "role": "DOCTOR"}`)
		rec := serve(registered, httptest.NewRequest(http.MethodPost, "/tenants/users", body))
		Expect(rec.Code).To(Equal(http.StatusCreated))

		rec = serve(registered, httptest.NewRequest(http.MethodGet, "/tenants/users", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))

		var resp struct {
			Members []map[string]any `json:"members"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(BeNil())
		Expect(resp.Members).To(HaveLen(2))
	})

	It("removes a member with 200 and refuses self-removal with 409", func() {
		registered := register(admin)
		body := bytes.NewBufferString(`{"email": "new@clinic.example", "role": "DOCTOR"}`)
		rec := serve(registered, httptest.NewRequest(http.MethodPost, "/tenants/users", body))
		Expect(rec.Code).To(Equal(http.StatusCreated))

		var invited map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &invited)).To(BeNil())

		rec = serve(registered, httptest.NewRequest(http.MethodDelete, "/tenants/users/"+invited["id"].(string), nil))
		Expect(rec.Code).To(Equal(http.StatusOK))

		var removed map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &removed)).To(BeNil())
		Expect(removed["id"]).To(Equal(invited["id"]))
		Expect(removed["removed"]).To(BeTrue())

		rec = serve(registered, httptest.NewRequest(http.MethodDelete, "/tenants/users/"+registered.Subject, nil))
		Expect(rec.Code).To(Equal(http.StatusConflict))
	})
})
