package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/webitel/chat-routing-service/internal/domain/model"
)

func (s *ChatService) handleLogin(ctx context.Context, conn model.Conn, raw []byte, _ time.Time) {
	var req model.LoginReq
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("malformed login frame", "conn_id", conn.ID(), "error", err)
		return
	}

	ack, err := s.Login(ctx, conn, req.ID, req.Password)
	switch {
	case errors.Is(err, model.ErrAlreadyLoggedIn):
		s.sendAck(conn, model.Ack{MsgID: model.MsgLoginAck, Errno: model.ErrnoAlreadyOnline, Errmsg: err.Error()})
	case err != nil:
		s.sendAck(conn, model.Ack{MsgID: model.MsgLoginAck, Errno: model.ErrnoFailure, Errmsg: model.ErrAuth.Error()})
	default:
		s.sendAck(conn, ack)
	}
}

// Login enforces the session state machine and assembles the login response.
// Presence must be online before the ack is sent: it is the single fact other
// nodes rely on when deciding between relay and queueing.
func (s *ChatService) Login(ctx context.Context, conn model.Conn, userID int64, password string) (*model.LoginAck, error) {
	user, err := s.store.QueryUser(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrAuth
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, model.ErrAuth
	}
	if user.State == model.StateOnline {
		// Duplicate concurrent login: reject without touching the registry
		// or the relay subscription of the existing session.
		return nil, model.ErrAlreadyLoggedIn
	}

	s.registry.Register(userID, conn)
	if err := s.relay.Subscribe(ctx, userID); err != nil {
		// Single-node degrade: local delivery and the offline queue still work.
		s.logger.Warn("relay subscribe failed, cross-node delivery unavailable",
			"user_id", userID, "error", err)
	}
	if err := s.store.UpdateUserState(ctx, userID, model.StateOnline); err != nil {
		s.logger.Error("presence update failed", "user_id", userID, "error", err)
	}

	ack := &model.LoginAck{
		MsgID: model.MsgLoginAck,
		Errno: model.ErrnoOK,
		ID:    user.ID,
		Name:  user.Name,
	}

	queued, err := s.store.DrainAndClear(ctx, userID)
	if err != nil {
		s.logger.Error("offline drain failed", "user_id", userID, "error", err)
	}
	for _, payload := range queued {
		ack.OfflineMsg = append(ack.OfflineMsg, json.RawMessage(payload))
	}

	ack.Friends, ack.Groups = s.rosters(ctx, userID)
	return ack, nil
}

func (s *ChatService) handleLogout(ctx context.Context, conn model.Conn, raw []byte, _ time.Time) {
	var req model.LogoutReq
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("malformed logout frame", "conn_id", conn.ID(), "error", err)
		return
	}
	s.Logout(ctx, req.ID)
}

// Logout is idempotent: a second call is a no-op beyond the state write.
func (s *ChatService) Logout(ctx context.Context, userID int64) {
	s.registry.Remove(userID)
	s.relay.Unsubscribe(userID)
	if err := s.store.UpdateUserState(ctx, userID, model.StateOffline); err != nil {
		s.logger.Error("presence update failed", "user_id", userID, "error", err)
	}
}

// HandleDisconnect resolves the owning user from the handle alone. A
// connection that never logged in changes no state.
func (s *ChatService) HandleDisconnect(ctx context.Context, conn model.Conn) {
	userID, ok := s.registry.RemoveByConn(conn)
	if !ok {
		return
	}
	s.relay.Unsubscribe(userID)
	if err := s.store.UpdateUserState(ctx, userID, model.StateOffline); err != nil {
		s.logger.Error("presence update failed", "user_id", userID, "error", err)
	}
	s.logger.Info("session closed by disconnect", "user_id", userID, "conn_id", conn.ID())
}

func (s *ChatService) handleRegister(ctx context.Context, conn model.Conn, raw []byte, _ time.Time) {
	var req model.RegisterReq
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("malformed register frame", "conn_id", conn.ID(), "error", err)
		return
	}

	id, err := s.Register(ctx, req.Name, req.Password)
	if err != nil {
		s.sendAck(conn, model.Ack{MsgID: model.MsgRegisterAck, Errno: model.ErrnoFailure, Errmsg: model.ErrRegistration.Error()})
		return
	}
	s.sendAck(conn, model.Ack{MsgID: model.MsgRegisterAck, Errno: model.ErrnoOK, ID: id})
}

// Register creates an account and returns the assigned id.
func (s *ChatService) Register(ctx context.Context, name, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	id, err := s.store.InsertUser(ctx, name, string(hash))
	if err != nil {
		s.logger.Warn("registration rejected", "name", name, "error", err)
		return 0, model.ErrRegistration
	}
	return id, nil
}
