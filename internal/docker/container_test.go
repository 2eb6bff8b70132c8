package docker

import (
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/mutafix/internal/build"
	"github.com/shinji-kodama/mutafix/internal/model"
)

func TestContainerToInfo(t *testing.T) {
	summary := container.Summary{
		ID:     "aaa111",
		Names:  []string{"/mutafix-3f6c2a9e-mutated"},
		State:  "exited",
		Labels: BuildLabels(testRunLabels()),
	}

	info := containerToInfo(summary)

	assert.Equal(t, "aaa111", info.ID)
	assert.Equal(t, "mutafix-3f6c2a9e-mutated", info.Name)
	assert.Equal(t, "exited", info.Status)
	require.NotNil(t, info.Run)
	assert.Equal(t, model.PhaseMutated, info.Run.Phase)
	assert.Equal(t, "3f6c2a9e-8d41-4b7a-9a55-0e1f2d3c4b5a", info.RunID())

	created := testRunLabels().CreatedAt
	assert.Equal(t, time.Hour, info.Age(created.Add(time.Hour)))
}

func TestContainerToInfo_IncompleteLabels(t *testing.T) {
	info := containerToInfo(container.Summary{
		ID: "bbb222",
		Labels: map[string]string{
			LabelManagedBy: ManagedByValue,
			LabelRunID:     "partial",
		},
	})

	assert.Empty(t, info.Name)
	assert.Nil(t, info.Run)
	assert.Equal(t, "partial", info.RunID())
	assert.Zero(t, info.Age(time.Now()))
}

func TestGroupContainersByRun(t *testing.T) {
	mk := func(id, runID string) ContainerInfo {
		return ContainerInfo{ID: id, Labels: map[string]string{LabelRunID: runID}}
	}

	groups := GroupContainersByRun([]ContainerInfo{
		mk("a", "run-1"),
		mk("b", "run-1"),
		mk("c", "run-2"),
		{ID: "d"},
	})

	require.Len(t, groups, 3)
	assert.Len(t, groups["run-1"], 2)
	assert.Len(t, groups["run-2"], 1)
	assert.Len(t, groups[""], 1)
}

func TestContainerName(t *testing.T) {
	assert.Equal(t, "mutafix-3f6c2a9e-baseline",
		ContainerName("3f6c2a9e-8d41-4b7a-9a55-0e1f2d3c4b5a", model.PhaseBaseline))
	assert.Equal(t, "mutafix-abc-mutated", ContainerName("abc", model.PhaseMutated))
	assert.Equal(t, "mutafix-run-baseline", ContainerName("", model.PhaseBaseline))
}

func TestContainerConfig(t *testing.T) {
	labels := testRunLabels()
	argv := []string{"./gradlew", "--no-daemon", "clean", "build"}

	cfg, hostCfg := containerConfig("eclipse-temurin:17", "/home/dev/project", argv, []string{"A=1"}, labels)

	assert.Equal(t, "eclipse-temurin:17", cfg.Image)
	assert.Equal(t, argv, []string(cfg.Cmd))
	assert.Equal(t, []string{"A=1"}, cfg.Env)
	assert.Equal(t, MountPoint, cfg.WorkingDir)
	assert.Equal(t, BuildLabels(labels), cfg.Labels)
	assert.Equal(t, hostUser(), cfg.User)

	require.Len(t, hostCfg.Mounts, 1)
	assert.Equal(t, mount.TypeBind, hostCfg.Mounts[0].Type)
	assert.Equal(t, "/home/dev/project", hostCfg.Mounts[0].Source)
	assert.Equal(t, "/src", hostCfg.Mounts[0].Target)
}

func TestDockerRunArgv(t *testing.T) {
	got := dockerRunArgv("golang:1.25", "/work/repo", []string{"go", "build", "./..."})

	assert.Equal(t, []string{
		"docker", "run", "--rm", "-v", "/work/repo:/src", "-w", "/src",
		"golang:1.25", "go", "build", "./...",
	}, got)
}

func TestBuilderEnvironment(t *testing.T) {
	b := &Builder{Env: map[string]string{"CGO_ENABLED": "0"}}

	env := b.environment(build.ToolGo)
	assert.Contains(t, env, "GOFLAGS=-buildvcs=false")
	assert.Contains(t, env, "CGO_ENABLED=0")
	assert.IsIncreasing(t, env)

	gradle := b.environment(build.ToolGradle)
	assert.NotContains(t, gradle, "GOFLAGS=-buildvcs=false")
}

func TestBuilderEnvironment_UserOverrides(t *testing.T) {
	b := &Builder{Env: map[string]string{"GOFLAGS": "-mod=vendor"}}

	env := b.environment(build.ToolGo)
	assert.Contains(t, env, "GOFLAGS=-mod=vendor")
	assert.NotContains(t, env, "GOFLAGS=-buildvcs=false")
}

func TestEnvList(t *testing.T) {
	assert.Equal(t, []string{"A=1", "B=", "C=x=y"},
		envList(map[string]string{"C": "x=y", "A": "1", "B": ""}))
	assert.Empty(t, envList(nil))
}
