// Package workspace implements WorkspaceService: per-session focus state
// (the "current task" pointer), session id resolution, and housekeeping
// (expiry, cap enforcement). Grounded on original_source/'s
// WorkspaceManager and its session_id precedence (argument -> IE_SESSION_ID
// -> "-1").
package workspace

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/wayfind/intent-engine/internal/model"
	"github.com/wayfind/intent-engine/internal/store"
)

type Service struct {
	store *store.Store
}

func New(s *store.Store) *Service { return &Service{store: s} }

// ResolveSessionID picks a session id the way every tool handler does:
// an explicit argument wins, then IE_SESSION_ID, then the fixed legacy
// single-workspace id "-1". A caller that wants a fresh anonymous session
// (e.g. a dashboard viewer) uses NewAnonymousSessionID instead.
func ResolveSessionID(arg, envSessionID string) string {
	if arg != "" {
		return arg
	}
	if envSessionID != "" {
		return envSessionID
	}
	return "-1"
}

// NewAnonymousSessionID generates a random session id for a client that
// wants isolated focus state without configuring IE_SESSION_ID.
func NewAnonymousSessionID() string {
	return uuid.NewString()
}

// Get resolves sessionID's current focus (creating the session row on
// first use), and the full task it points at, if any.
func (s *Service) Get(ctx context.Context, sessionID string) (model.Session, *model.Task, error) {
	var sess model.Session
	var task *model.Task
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		sess, err = s.store.GetOrCreateSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.CurrentTaskID == nil {
			return nil
		}
		t, err := s.store.GetTask(ctx, tx, *sess.CurrentTaskID)
		if err != nil {
			return err
		}
		task = &t
		return nil
	})
	return sess, task, err
}

// Set points sessionID's focus directly at taskID, validating it exists.
func (s *Service) Set(ctx context.Context, sessionID string, taskID int64) (model.WorkspaceStatus, error) {
	var ws model.WorkspaceStatus
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.store.GetTask(ctx, tx, taskID); err != nil {
			return err
		}
		if err := s.store.SetSessionFocus(ctx, tx, sessionID, taskID); err != nil {
			return err
		}
		ws.CurrentTaskID = &taskID
		return nil
	})
	return ws, err
}

// Clear unsets sessionID's focus.
func (s *Service) Clear(ctx context.Context, sessionID string) (model.WorkspaceStatus, error) {
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		return s.store.ClearSessionFocus(ctx, tx, sessionID)
	})
	return model.WorkspaceStatus{}, err
}

// CleanupExpired removes sessions whose last_active_at predates maxAge.
func (s *Service) CleanupExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	var n int64
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = s.store.CleanupExpiredSessions(ctx, tx, maxAge)
		return err
	})
	return n, err
}

// EnforceLimit caps the number of live sessions, evicting the
// least-recently-active ones.
func (s *Service) EnforceLimit(ctx context.Context, maxSessions int64) (int64, error) {
	var n int64
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = s.store.EnforceSessionLimit(ctx, tx, maxSessions)
		return err
	})
	return n, err
}
