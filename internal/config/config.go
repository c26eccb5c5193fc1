package config

import (
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"taskplanner"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address               string `envconfig:"TASK_PLANNER_ADDRESS" default:":3443"`
	RunnerEndpointAddress string `envconfig:"TASK_PLANNER_RUNNER_ENDPOINT_ADDRESS" default:":7443"`
	MetricsAddress        string `envconfig:"TASK_PLANNER_METRICS_ADDRESS" default:":8080"`
	BaseRunnerEndpointUrl string `envconfig:"TASK_PLANNER_BASE_RUNNER_ENDPOINT_URL" default:"https://localhost:7443"`
	LogLevel              string `envconfig:"TASK_PLANNER_LOG_LEVEL" default:"info"`
	PermissionsFile       string `envconfig:"TASK_PLANNER_PERMISSIONS_FILE" default:""`
	JobTTL                int    `envconfig:"TASK_PLANNER_JOB_TTL_HOURS" default:"168"`
	Auth                  Auth
	Artifacts             Artifacts
	Runner                Runner
}

type Auth struct {
	AuthenticationType string `envconfig:"TASK_PLANNER_AUTH" default:""`
	JwkCertURL         string `envconfig:"TASK_PLANNER_JWK_URL" default:""`
	Issuer             string `envconfig:"TASK_PLANNER_JWT_ISSUER" default:""`
	Audience           string `envconfig:"TASK_PLANNER_JWT_AUDIENCE" default:""`
}

type Artifacts struct {
	Endpoint      string `envconfig:"TASK_PLANNER_ARTIFACTS_ENDPOINT" default:"localhost:9000"`
	Bucket        string `envconfig:"TASK_PLANNER_ARTIFACTS_BUCKET" default:"task-outputs"`
	AccessKey     string `envconfig:"TASK_PLANNER_ARTIFACTS_ACCESS_KEY" default:""`
	SecretKey     string `envconfig:"TASK_PLANNER_ARTIFACTS_SECRET_KEY" default:""`
	UseSSL        bool   `envconfig:"TASK_PLANNER_ARTIFACTS_USE_SSL" default:"false"`
	PresignExpiry int    `envconfig:"TASK_PLANNER_ARTIFACTS_PRESIGN_EXPIRY" default:"3600"`
}

type Runner struct {
	Image           string `envconfig:"TASK_PLANNER_RUNNER_IMAGE" default:"quay.io/agentfleet/task-runner:latest"`
	Network         string `envconfig:"TASK_PLANNER_RUNNER_NETWORK" default:""`
	ContainerName   string `envconfig:"TASK_PLANNER_RUNNER_CONTAINER_NAME" default:"runner"`
	LogStreamPrefix string `envconfig:"TASK_PLANNER_RUNNER_LOG_STREAM_PREFIX" default:"runner"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a fresh, non-singleton config, used by tests that
// need to override individual fields without touching process state.
func NewDefault() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
