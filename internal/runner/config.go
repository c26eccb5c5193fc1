package runner

import (
	"github.com/kelseyhightower/envconfig"
)

// Config is injected into the runner container's environment by the
// provisioner. The token is the runner's only credential and is scoped
// to the single job named here.
type Config struct {
	APIURL   string `envconfig:"TASK_RUNNER_API_URL" required:"true"`
	Token    string `envconfig:"TASK_RUNNER_TOKEN" required:"true"`
	JobID    string `envconfig:"TASK_RUNNER_JOB_ID" required:"true"`
	TenantID string `envconfig:"TASK_RUNNER_TENANT_ID" default:""`
	Query    string `envconfig:"TASK_RUNNER_QUERY" required:"true"`
	LogLevel string `envconfig:"TASK_RUNNER_LOG_LEVEL" default:"info"`

	HeartbeatIntervalSeconds int `envconfig:"TASK_RUNNER_HEARTBEAT_INTERVAL" default:"30"`
	FetchTimeoutSeconds      int `envconfig:"TASK_RUNNER_FETCH_TIMEOUT" default:"120"`
}

func NewConfig() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
