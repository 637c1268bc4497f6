// Package version carries the cache generation the binary was built for.
package version

// Version names the current set of cache namespaces. It is fixed at build time:
//
//	go build -ldflags "-X github.com/avatarctic/offline-cache/internal/version.Version=v2" ./cmd/server
var Version = "v1"
