package cache

import "errors"

var (
	ErrInstallFailed      = errors.New("install failed")
	ErrNamespaceNotFound  = errors.New("cache namespace not found")
	ErrNoActiveController = errors.New("no active controller")
	ErrClientNotFound     = errors.New("client not found")
)
