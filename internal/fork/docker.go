package fork

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/compose-network/deploykit/internal/logger"
	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/moby/go-archive"
)

type (
	// Docker runs fork containers through the local Docker daemon.
	Docker struct {
		cli    *client.Client
		logger *slog.Logger
	}

	ContainerSpec struct {
		Name       string
		Image      string
		Entrypoint []string
		Cmd        []string
		// Port is published on 127.0.0.1 under the same number.
		Port int
		// Mounts bind host files into the container.
		Mounts []Mount
	}

	Mount struct {
		Source   string
		Target   string
		ReadOnly bool
	}
)

// NewDocker connects to the daemon configured in the environment.
func NewDocker(log *slog.Logger) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Docker{cli: cli, logger: logger.Named(log, "docker_client")}, nil
}

func (d *Docker) Close() error {
	return d.cli.Close()
}

// EnsureImage pulls imageName unless it is already present.
func (d *Docker) EnsureImage(ctx context.Context, imageName string) error {
	_, err := d.cli.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to inspect image %s: %w", imageName, err)
	}

	return d.pullImage(ctx, imageName)
}

func (d *Docker) pullImage(ctx context.Context, imageName string) error {
	d.logger.With("image", imageName).Info("pulling docker image")

	resp, err := d.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer resp.Close()

	scanner := bufio.NewScanner(resp)
	var pullError error
	for scanner.Scan() {
		line := scanner.Text()
		d.logger.Debug(line)

		var msg struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(line), &msg); err == nil && msg.Error != "" {
			pullError = fmt.Errorf("pull failed: %s", msg.Error)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading pull output: %w", err)
	}

	if pullError != nil {
		return pullError
	}

	d.logger.With("image", imageName).Info("docker image pulled successfully")
	return nil
}

// StartContainer creates and starts a detached container and returns its ID.
func (d *Docker) StartContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	port, err := nat.NewPort("tcp", fmt.Sprint(spec.Port))
	if err != nil {
		return "", fmt.Errorf("invalid port %d: %w", spec.Port, err)
	}

	config := &container.Config{
		Image:        spec.Image,
		Entrypoint:   spec.Entrypoint,
		Cmd:          spec.Cmd,
		ExposedPorts: nat.PortSet{port: struct{}{}},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: port.Port()}},
		},
	}
	for _, m := range spec.Mounts {
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = d.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("failed to start container %s: %w", spec.Name, err)
	}

	d.logger.With("container", spec.Name).With("id", resp.ID).Info("container started")

	return resp.ID, nil
}

// StopContainer sends SIGTERM and waits up to timeout before killing.
func (d *Docker) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())
	if err := d.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds}); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("container %s: %w", id, ErrNotRunning)
		}
		return fmt.Errorf("failed to stop container %s: %w", id, err)
	}
	return nil
}

// CopyOut extracts srcPath from the container into destDir.
func (d *Docker) CopyOut(ctx context.Context, id, srcPath, destDir string) error {
	reader, _, err := d.cli.CopyFromContainer(ctx, id, srcPath)
	if err != nil {
		return fmt.Errorf("failed to copy %s from container %s: %w", srcPath, id, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", destDir, err)
	}

	if err := archive.Untar(reader, destDir, &archive.TarOptions{NoLchown: true}); err != nil {
		return fmt.Errorf("failed to extract %s: %w", srcPath, err)
	}

	return nil
}

func (d *Docker) RemoveContainer(ctx context.Context, id string) error {
	if err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove container %s: %w", id, err)
	}
	return nil
}
