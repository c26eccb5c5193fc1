package runner_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/agentfleet/task-planner/internal/runner"
)

type fakePlane struct {
	statuses  []string
	details   []*string
	artifacts map[string][]byte
	logs      []runner.LogLine

	statusErr error
}

func newFakePlane() *fakePlane {
	return &fakePlane{artifacts: make(map[string][]byte)}
}

func (f *fakePlane) UpdateStatus(ctx context.Context, status string, errorDetail *string) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statuses = append(f.statuses, status)
	f.details = append(f.details, errorDetail)
	return nil
}

func (f *fakePlane) Heartbeat(ctx context.Context) error {
	return nil
}

func (f *fakePlane) AppendLogs(ctx context.Context, lines []runner.LogLine) error {
	f.logs = append(f.logs, lines...)
	return nil
}

func (f *fakePlane) UploadArtifact(ctx context.Context, name string, data []byte, contentType string) error {
	f.artifacts[name] = data
	return nil
}

type fakeFetcher struct {
	result *runner.FetchResult
	err    error
}

func (f *fakeFetcher) Fetch(ctx context.Context, query string) (*runner.FetchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

var _ = Describe("executor", func() {
	var (
		cfg   *runner.Config
		plane *fakePlane
	)

	BeforeEach(func() {
		cfg = &runner.Config{
			JobID: "job-1", Query: "https://example.com",
			HeartbeatIntervalSeconds: 3600,
		}
		plane = newFakePlane()
	})

	It("reports running then completed and ships the capture and the log", func() {
		fetcher := &fakeFetcher{result: &runner.FetchResult{
			Capture:     []byte("<html>ok</html>"),
			ContentType: "text/html",
			Log:         []string{"received 15 bytes"},
		}}

		err := runner.NewExecutor(cfg, plane, fetcher).Run(context.TODO())
		Expect(err).To(BeNil())

		Expect(plane.statuses).To(Equal([]string{"running", "completed"}))
		Expect(plane.artifacts).To(HaveKey("capture.html"))
		Expect(plane.artifacts).To(HaveKey("execution.log"))
		Expect(plane.artifacts).NotTo(HaveKey("error.json"))
		Expect(string(plane.artifacts["execution.log"])).To(ContainSubstring("received 15 bytes"))
		Expect(plane.logs).NotTo(BeEmpty())
	})

	It("reports running then failed with detail when the fetch fails", func() {
		fetcher := &fakeFetcher{err: errors.New("connection refused")}

		err := runner.NewExecutor(cfg, plane, fetcher).Run(context.TODO())
		Expect(err).NotTo(BeNil())

		Expect(plane.statuses).To(Equal([]string{"running", "failed"}))
		Expect(plane.details[1]).NotTo(BeNil())
		Expect(*plane.details[1]).To(ContainSubstring("connection refused"))
		Expect(plane.artifacts).To(HaveKey("error.json"))
		Expect(plane.artifacts).NotTo(HaveKey("capture.html"))
	})

	It("gives up without fetching when the running report fails", func() {
		plane.statusErr = errors.New("api unreachable")
		fetcher := &fakeFetcher{result: &runner.FetchResult{Capture: []byte("x")}}

		err := runner.NewExecutor(cfg, plane, fetcher).Run(context.TODO())
		Expect(err).NotTo(BeNil())
		Expect(plane.statuses).To(BeEmpty())
		Expect(plane.artifacts).To(BeEmpty())
	})
})

var _ = Describe("http fetcher", func() {
	It("downloads the page and records the content type", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html>hello</html>"))
		}))
		defer srv.Close()

		result, err := runner.NewHTTPFetcher(0).Fetch(context.TODO(), srv.URL)
		Expect(err).To(BeNil())
		Expect(string(result.Capture)).To(Equal("<html>hello</html>"))
		Expect(result.ContentType).To(Equal("text/html; charset=utf-8"))
		Expect(result.Log).NotTo(BeEmpty())
	})

	It("rejects a query that is not a fetchable url", func() {
		_, err := runner.NewHTTPFetcher(0).Fetch(context.TODO(), "ftp://example.com/file")
		Expect(err).NotTo(BeNil())
	})

	It("surfaces an upstream error status", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := runner.NewHTTPFetcher(0).Fetch(context.TODO(), srv.URL)
		Expect(err).NotTo(BeNil())
	})
})
