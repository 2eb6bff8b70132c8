// Package docker provides Docker Engine API wrappers for running mutafix
// builds inside containers.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Container labels that tag every build container with its session
//     (run ID, operation, phase), so leftovers can be found and removed
//   - The containerised build runner: pull, create, start, wait, collect
//     logs, remove
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
