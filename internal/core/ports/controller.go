package ports

import (
	"context"
	"net/http"

	"github.com/avatarctic/offline-cache/internal/core/domain/cache"
	"github.com/avatarctic/offline-cache/internal/core/domain/lifecycle"
	"github.com/google/uuid"
)

// OfflineCacheHost is what the front server needs from the controller lifecycle host.
type OfflineCacheHost interface {
	Register(ctx context.Context, version string) error
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
	PostMessage(ctx context.Context, msg cache.Message) error
	OpenClient() lifecycle.Client
	CloseClient(ctx context.Context, id uuid.UUID) error
	Status() lifecycle.Status
	Namespaces(ctx context.Context) ([]string, error)
}
