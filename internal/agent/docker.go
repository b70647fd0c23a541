package agent

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"biketrack/internal/job"
)

// DockerRuntime runs jobs as one-shot containers on the local daemon.
// Devices that package their tooling as images use this instead of the
// exec runtime.
type DockerRuntime struct {
	client   *client.Client
	commands *Commands
}

// NewDockerRuntime creates a docker runtime over the given command map.
func NewDockerRuntime(commands *Commands) (*DockerRuntime, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &DockerRuntime{client: dockerClient, commands: commands}, nil
}

func (r *DockerRuntime) Run(ctx context.Context, j *job.Job) (string, error) {
	spec, ok := r.commands.Lookup(j.Type)
	if !ok || spec.Image == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownJobType, j.Type)
	}

	if err := r.pullImageIfNeeded(ctx, spec.Image); err != nil {
		return "", err
	}

	var cmd []string
	if spec.Cmd != "" {
		cmd = []string{"/bin/sh", "-c", spec.Cmd}
	}

	containerConfig := &container.Config{
		Image: spec.Image,
		Cmd:   cmd,
		Env:   paramEnv(j),
		Labels: map[string]string{
			"job.id":     j.ID,
			"job.type":   j.Type,
			"managed-by": "tracker-agent",
		},
	}

	containerName := fmt.Sprintf("trackerjob-%s", uuid.NewString()[:8])
	resp, err := r.client.ContainerCreate(ctx, containerConfig, &container.HostConfig{}, nil, nil, containerName)
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}
	defer func() {
		_ = r.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
	}()

	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("starting container: %w", err)
	}

	exitCode, err := r.waitForExit(ctx, resp.ID)
	output := r.collectLogs(ctx, resp.ID)

	if errors.Is(err, context.DeadlineExceeded) {
		return output, ErrJobTimeout
	}
	if err != nil {
		return output, fmt.Errorf("waiting for container: %w", err)
	}
	if exitCode != 0 {
		return output, fmt.Errorf("container exited with code %d", exitCode)
	}
	return output, nil
}

// Ready reports whether the daemon is reachable.
func (r *DockerRuntime) Ready(ctx context.Context) error {
	_, err := r.client.Ping(ctx)
	return err
}

// Close releases the daemon connection.
func (r *DockerRuntime) Close() error {
	return r.client.Close()
}

func (r *DockerRuntime) pullImageIfNeeded(ctx context.Context, imageName string) error {
	_, err := r.client.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}
	reader, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", imageName, err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

func (r *DockerRuntime) waitForExit(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := r.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return -1, fmt.Errorf("container wait: %s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	case err := <-errCh:
		return -1, err
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (r *DockerRuntime) collectLogs(ctx context.Context, containerID string) string {
	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return ""
	}
	defer logs.Close()

	var buf limitedBuffer
	_, _ = stdcopy.StdCopy(&buf, &buf, logs)
	return buf.String()
}

// limitedBuffer keeps the first maxOutputLen bytes and drops the rest.
type limitedBuffer struct {
	data []byte
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := maxOutputLen - len(b.data)
	if room > 0 {
		if len(p) < room {
			room = len(p)
		}
		b.data = append(b.data, p[:room]...)
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return string(b.data)
}
