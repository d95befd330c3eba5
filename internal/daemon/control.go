package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/al-bashkir/sfa-attack-simulation/internal/ipc"
	"github.com/al-bashkir/sfa-attack-simulation/internal/session"
)

// sessionControl answers control socket requests from the session store.
func sessionControl(store session.Store) ipc.Handler {
	return func(ctx context.Context, req *ipc.Request) (*ipc.Response, error) {
		switch req.Type {
		case ipc.MessageTypeListSessions:
			sessions, err := store.List(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list sessions: %w", err)
			}

			sort.Slice(sessions, func(i, j int) bool {
				return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
			})

			infos := make([]ipc.SessionInfo, 0, len(sessions))
			for _, s := range sessions {
				infos = append(infos, ipc.SessionInfo{
					ID:        s.ID,
					User:      s.User,
					Role:      string(s.Role),
					CreatedAt: s.CreatedAt,
					ExpiresAt: s.ExpiresAt,
				})
			}
			return &ipc.Response{Status: ipc.StatusOK, Sessions: infos}, nil

		case ipc.MessageTypeRevokeSession:
			if req.SessionID == "" {
				return nil, errors.New("session_id is required")
			}
			if _, err := store.Get(ctx, req.SessionID); err != nil {
				if errors.Is(err, session.ErrNotFound) {
					return nil, err
				}
				return nil, fmt.Errorf("failed to load session: %w", err)
			}
			if err := store.Delete(ctx, req.SessionID); err != nil {
				return nil, fmt.Errorf("failed to revoke session: %w", err)
			}
			slog.Info("session revoked via control socket", "session_id", req.SessionID)
			return &ipc.Response{Status: ipc.StatusOK}, nil

		default:
			return nil, fmt.Errorf("unsupported request type: %s", req.Type)
		}
	}
}
