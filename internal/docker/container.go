package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/shinji-kodama/mutafix/internal/model"
)

// ContainerInfo is a build container left on the host. Normally Builder
// removes its container when the build finishes; anything listed here was
// left behind by an interrupted session.
type ContainerInfo struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Status string            `json:"status"`
	Labels map[string]string `json:"labels,omitempty"`

	// Run is parsed from Labels. Nil when the labels are incomplete, e.g.
	// for containers created by an older mutafix.
	Run *RunLabels `json:"-"`
}

// RunID returns the session ID of the container, or "" if unknown.
func (c ContainerInfo) RunID() string {
	if c.Run != nil {
		return c.Run.RunID
	}
	return c.Labels[LabelRunID]
}

// Age returns how long ago the container was created, or 0 if unknown.
func (c ContainerInfo) Age(now time.Time) time.Duration {
	if c.Run == nil || c.Run.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(c.Run.CreatedAt)
}

// ListManagedContainers returns every container labelled as managed by
// mutafix, stopped ones included. When repo is not empty only containers
// that built that repository are returned.
//
// Filtering happens server-side through the Docker label filter.
func ListManagedContainers(ctx context.Context, cli *Client, repo string) ([]ContainerInfo, error) {
	args := filters.NewArgs()
	for _, l := range FilterLabels() {
		args.Add("label", l)
	}
	if repo != "" {
		args.Add("label", LabelRepo+"="+repo)
	}

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: args,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		result = append(result, containerToInfo(c))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// containerToInfo maps a Docker API summary to ContainerInfo. Docker
// reports names with a leading "/", which is stripped.
func containerToInfo(c container.Summary) ContainerInfo {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	info := ContainerInfo{
		ID:     c.ID,
		Name:   name,
		Status: c.State,
		Labels: c.Labels,
	}
	if run, err := ParseLabels(c.Labels); err == nil {
		info.Run = run
	}
	return info
}

// GroupContainersByRun groups containers by their run ID label.
// Containers without one are grouped under "".
func GroupContainersByRun(containers []ContainerInfo) map[string][]ContainerInfo {
	groups := make(map[string][]ContainerInfo)
	for _, c := range containers {
		id := c.RunID()
		groups[id] = append(groups[id], c)
	}
	return groups
}

// ContainerName returns the name given to a build container:
// "mutafix-<first 8 chars of run ID>-<phase>".
func ContainerName(runID string, phase model.BuildPhase) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	if short == "" {
		short = "run"
	}
	return fmt.Sprintf("%s-%s-%s", ManagedByValue, short, phase)
}

// RemoveContainer removes a container. With force a running container is
// killed first.
func RemoveContainer(ctx context.Context, cli *Client, containerID string, force bool) error {
	err := cli.Inner().ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: force,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove container %q", containerID),
			err,
		)
	}
	return nil
}
