package provisioner

import (
	"context"
)

// StartOptions carries everything a runner container needs: the query to
// execute and the job-scoped token it reports back with. The token is the
// runner's only credential.
type StartOptions struct {
	JobID    string
	TenantID string
	Query    string
	Token    string
}

// Provisioner turns a queued job into a running executor and returns an
// opaque handle identifying the compute instance. A failed start is final
// for this attempt; retries come from queue redelivery, never from here.
type Provisioner interface {
	Start(ctx context.Context, opts StartOptions) (handle string, err error)
}
