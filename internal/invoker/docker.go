package invoker

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
)

// Docker runs tools inside a container. Host directories in Mounts are
// bind-mounted at the same absolute path, so file arguments need no rewriting.
type Docker struct {
	Image   string
	Mounts  []string
	WorkDir string
	UserID  string
}

var _ Invoker = (*Docker)(nil)

func (d *Docker) Invoke(ctx context.Context, executable string, args []string, timeout time.Duration) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: creating docker client: %w", ErrSpawn, err)
	}
	defer cli.Close()

	mounts, err := bindMounts(d.Mounts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts: mounts,
		Init:   &initTrue,
	}
	containerCfg := &container.Config{
		Image:      d.Image,
		Cmd:        append([]string{executable}, args...),
		WorkingDir: d.WorkDir,
		Labels:     map[string]string{"expandbench": "true"},
	}
	if d.UserID != "" {
		containerCfg.User = d.UserID
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating container from %s: %w", ErrSpawn, d.Image, err)
	}
	containerID := createResp.ID
	defer func() {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	start := time.Now()
	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("%w: starting container: %w", ErrSpawn, err)
	}

	waitCtx, cancel := timeoutContext(ctx, timeout)
	defer cancel()

	waitResult := cli.ContainerWait(waitCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	for {
		select {
		case err := <-waitResult.Error:
			if err == nil {
				// nil on this channel carries nothing; keep waiting for the status
				continue
			}
			elapsed := time.Since(start)
			cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if deadlineHit(waitCtx) {
				return &Result{Elapsed: elapsed, TimedOut: true}, nil
			}
			return nil, fmt.Errorf("waiting for container: %w", err)
		case status := <-waitResult.Result:
			elapsed := time.Since(start)
			stdout, stderr, err := containerOutput(cli, containerID)
			if err != nil {
				return nil, err
			}
			return &Result{
				Stdout:     stdout,
				Stderr:     stderr,
				ReturnCode: int(status.StatusCode),
				Elapsed:    elapsed,
			}, nil
		}
	}
}

func containerOutput(cli *client.Client, containerID string) (string, string, error) {
	logReader, err := cli.ContainerLogs(context.Background(), containerID, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", fmt.Errorf("reading container logs: %w", err)
	}
	defer logReader.Close()
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logReader); err != nil {
		return "", "", fmt.Errorf("demultiplexing container logs: %w", err)
	}
	return stdout.String(), stderr.String(), nil
}

func bindMounts(paths []string) ([]mount.Mount, error) {
	var mounts []mount.Mount
	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving mount %s: %w", p, err)
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: abs,
			Target: abs,
		})
	}
	return mounts, nil
}
