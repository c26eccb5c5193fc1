package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Executor drives one job from running to exactly one terminal state.
// Reporting failures are logged but never produce a second terminal
// report: once completed or failed is sent, the executor is done.
type Executor struct {
	cfg     *Config
	plane   ControlPlane
	fetcher Fetcher

	log []LogLine
}

func NewExecutor(cfg *Config, plane ControlPlane, fetcher Fetcher) *Executor {
	return &Executor{cfg: cfg, plane: plane, fetcher: fetcher}
}

func (e *Executor) Run(ctx context.Context) error {
	logger := zap.S().Named("executor")

	if err := e.plane.UpdateStatus(ctx, "running", nil); err != nil {
		// cannot even report running, so nothing downstream can see us
		return fmt.Errorf("failed to report running: %w", err)
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go e.heartbeatLoop(heartbeatCtx)

	e.logf("executing query for job %s", e.cfg.JobID)

	result, err := e.fetcher.Fetch(ctx, e.cfg.Query)
	if err != nil {
		e.logf("execution failed: %s", err)
		e.finishFailed(ctx, err)
		return err
	}

	if err := e.plane.UploadArtifact(ctx, "capture.html", result.Capture, result.ContentType); err != nil {
		e.logf("capture upload failed: %s", err)
		e.finishFailed(ctx, err)
		return err
	}

	for _, line := range result.Log {
		e.logf("%s", line)
	}
	e.logf("execution finished")
	e.flush(ctx)

	if err := e.plane.UpdateStatus(ctx, "completed", nil); err != nil {
		logger.Errorw("failed to report completion", "error", err)
		return err
	}

	logger.Infow("job completed", "job", e.cfg.JobID)
	return nil
}

// finishFailed uploads the error artifact and reports the failed state.
// Best effort throughout: a runner that dies before reporting leaves the
// job in its last recorded state, where operators can see it stuck.
func (e *Executor) finishFailed(ctx context.Context, cause error) {
	logger := zap.S().Named("executor")

	detail := cause.Error()
	errJSON, err := json.Marshal(map[string]string{
		"job_id": e.cfg.JobID,
		"error":  detail,
		"at":     time.Now().UTC().Format(time.RFC3339),
	})
	if err == nil {
		if err := e.plane.UploadArtifact(ctx, "error.json", errJSON, "application/json"); err != nil {
			logger.Warnw("failed to upload error artifact", "error", err)
		}
	}

	e.flush(ctx)

	if err := e.plane.UpdateStatus(ctx, "failed", &detail); err != nil {
		logger.Errorw("failed to report failure", "error", err)
	}
}

func (e *Executor) heartbeatLoop(ctx context.Context) {
	interval := time.Duration(e.cfg.HeartbeatIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.plane.Heartbeat(ctx); err != nil {
				zap.S().Named("executor").Warnw("heartbeat failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *Executor) logf(format string, args ...any) {
	e.log = append(e.log, LogLine{
		Timestamp: time.Now().UTC(),
		Message:   fmt.Sprintf(format, args...),
	})
}

// flush ships buffered log lines and the execution log artifact.
func (e *Executor) flush(ctx context.Context) {
	logger := zap.S().Named("executor")

	if len(e.log) == 0 {
		return
	}
	if err := e.plane.AppendLogs(ctx, e.log); err != nil {
		logger.Warnw("failed to append logs", "error", err)
	}

	var execLog []byte
	for _, line := range e.log {
		execLog = append(execLog, fmt.Sprintf("%s %s\n", line.Timestamp.Format(time.RFC3339), line.Message)...)
	}
	if err := e.plane.UploadArtifact(ctx, "execution.log", execLog, "text/plain"); err != nil {
		logger.Warnw("failed to upload execution log", "error", err)
	}
}
