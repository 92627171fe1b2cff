// Package events defines the typed notifications the core emits after
// state changes. Dispatching is side-channel only: no operation depends on
// an event being delivered.
package events

import (
	"context"
	"time"

	"github.com/envault/envault/internal/logging"
)

type MemberJoined struct {
	ProjectID string
	MemberID  string
	At        time.Time
}

type MemberRemoved struct {
	ProjectID string
	MemberID  string
	At        time.Time
}

type VersionAppended struct {
	ProjectID string
	VersionID string
	AuthorID  string
	At        time.Time
}

// Dispatcher receives events after the state change committed. Dispatch
// must not block; implementations that do slow work hand off internally.
type Dispatcher interface {
	MemberJoined(ctx context.Context, e MemberJoined)
	MemberRemoved(ctx context.Context, e MemberRemoved)
	VersionAppended(ctx context.Context, e VersionAppended)
}

// LogDispatcher writes every event to the structured log.
type LogDispatcher struct {
	logger logging.Logger
}

func NewLogDispatcher(logger logging.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With("component", "events")}
}

func (d *LogDispatcher) MemberJoined(ctx context.Context, e MemberJoined) {
	d.logger.Info(ctx, "member joined", "project_id", e.ProjectID, "member_id", e.MemberID)
}

func (d *LogDispatcher) MemberRemoved(ctx context.Context, e MemberRemoved) {
	d.logger.Info(ctx, "member removed", "project_id", e.ProjectID, "member_id", e.MemberID)
}

func (d *LogDispatcher) VersionAppended(ctx context.Context, e VersionAppended) {
	d.logger.Info(ctx, "version appended", "project_id", e.ProjectID, "version_id", e.VersionID, "author_id", e.AuthorID)
}

// Nop discards every event.
type Nop struct{}

func (Nop) MemberJoined(context.Context, MemberJoined)       {}
func (Nop) MemberRemoved(context.Context, MemberRemoved)     {}
func (Nop) VersionAppended(context.Context, VersionAppended) {}
