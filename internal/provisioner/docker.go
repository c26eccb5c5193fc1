package provisioner

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/agentfleet/task-planner/internal/config"
)

// DockerProvisioner launches one runner container per job through the
// Docker API. The container id is the job's compute handle.
type DockerProvisioner struct {
	client *client.Client
	cfg    config.Runner
	apiURL string
}

var _ Provisioner = (*DockerProvisioner)(nil)

// NewDockerProvisioner initializes the client from the standard
// environment (DOCKER_HOST, etc.).
func NewDockerProvisioner(cfg config.Runner, runnerAPIURL string) (*DockerProvisioner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerProvisioner{client: cli, cfg: cfg, apiURL: runnerAPIURL}, nil
}

func (d *DockerProvisioner) Start(ctx context.Context, opts StartOptions) (string, error) {
	if _, err := d.client.ImageInspect(ctx, d.cfg.Image); err != nil {
		reader, err := d.client.ImagePull(ctx, d.cfg.Image, image.PullOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to pull image %s: %w", d.cfg.Image, err)
		}
		defer reader.Close()
		_, _ = io.Copy(io.Discard, reader)
	}

	containerConfig := &container.Config{
		Image: d.cfg.Image,
		Env: []string{
			fmt.Sprintf("TASK_RUNNER_JOB_ID=%s", opts.JobID),
			fmt.Sprintf("TASK_RUNNER_TENANT_ID=%s", opts.TenantID),
			fmt.Sprintf("TASK_RUNNER_QUERY=%s", opts.Query),
			fmt.Sprintf("TASK_RUNNER_TOKEN=%s", opts.Token),
			fmt.Sprintf("TASK_RUNNER_API_URL=%s", d.apiURL),
		},
		Labels: map[string]string{
			"agentfleet.job-id":    opts.JobID,
			"agentfleet.tenant-id": opts.TenantID,
		},
	}

	var hostConfig *container.HostConfig
	if d.cfg.Network != "" {
		hostConfig = &container.HostConfig{NetworkMode: container.NetworkMode(d.cfg.Network)}
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to create runner container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start runner container: %w", err)
	}

	zap.S().Named("provisioner").Infow("runner container started",
		"job", opts.JobID, "container", resp.ID)

	return resp.ID, nil
}
