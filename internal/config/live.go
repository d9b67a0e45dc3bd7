package config

import (
	"sync/atomic"

	"github.com/marklab/marksync/internal/bookmark"
)

// Live is a swappable configuration handle. The daemon's hot-reload
// replaces the whole Config atomically while sync cycles read through
// it, so a reload mid-run is either fully visible or not at all.
//
// It satisfies the engine's Settings interface by delegating every call
// to the current Config.
type Live struct {
	ptr atomic.Pointer[Config]
}

// NewLive wraps an initial configuration.
func NewLive(cfg *Config) *Live {
	l := &Live{}
	l.ptr.Store(cfg)
	return l
}

// Current returns the configuration in effect.
func (l *Live) Current() *Config {
	return l.ptr.Load()
}

// Swap replaces the configuration in effect.
func (l *Live) Swap(cfg *Config) {
	l.ptr.Store(cfg)
}

func (l *Live) NotificationsEnabled() bool { return l.Current().NotificationsEnabled() }

func (l *Live) NotifyOnSuccess() bool { return l.Current().NotifyOnSuccess() }

func (l *Live) NotifyOnError() bool { return l.Current().NotifyOnError() }

func (l *Live) FolderID(providerID string) string { return l.Current().FolderID(providerID) }

func (l *Live) FolderTitle(providerID string) string { return l.Current().FolderTitle(providerID) }

func (l *Live) SortOrder(providerID string) bookmark.SortOrder {
	return l.Current().SortOrder(providerID)
}

func (l *Live) Filter(providerID string, title string) bool {
	return l.Current().Filter(providerID, title)
}
