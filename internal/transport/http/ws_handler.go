package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/majlischat/majlis-server/internal/auth"
	"github.com/majlischat/majlis-server/internal/core"
	"github.com/majlischat/majlis-server/internal/perm"
	"github.com/majlischat/majlis-server/internal/proto"
	"github.com/majlischat/majlis-server/internal/utils"
)

// helloTimeout bounds how long a fresh connection may stall before
// introducing itself.
const helloTimeout = 10 * time.Second

// WSHandler is the connection gateway: it upgrades HTTP connections,
// runs the admission checks, and bridges the socket to a core.Client.
type WSHandler struct {
	hub  *core.Hub
	auth *auth.Service
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, auth: authService, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client, cerr, err := h.admit(ctx, conn, r)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws hello failed")
		return
	}
	if cerr != nil {
		// Fail closed: no session exists, tear the connection down.
		_ = wsjson.Write(ctx, conn, proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: cerr.Code, Msg: cerr.Message},
		})
		conn.Close(websocket.StatusPolicyViolation, cerr.Code)
		return
	}
	defer h.hub.Leave(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("user", client.Name).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// admit reads the hello frame, resolves the requested role, and runs
// the ban and name checks through the hub. A *core.CoreError means the
// connection was refused before any session was created.
func (h *WSHandler) admit(ctx context.Context, conn *websocket.Conn, r *stdhttp.Request) (*core.Client, *core.CoreError, error) {
	helloCtx, cancel := context.WithTimeout(ctx, helloTimeout)
	defer cancel()

	var inbound proto.Inbound
	if err := wsjson.Read(helloCtx, conn, &inbound); err != nil {
		return nil, nil, fmt.Errorf("read hello: %w", err)
	}
	if inbound.Type != proto.InboundTypeHello {
		return nil, &core.CoreError{Code: core.ErrCodeBadRequest, Message: "hello must be the first message"}, nil
	}
	var hello proto.HelloData
	if err := json.Unmarshal(inbound.Data, &hello); err != nil {
		return nil, nil, fmt.Errorf("unmarshal hello: %w", err)
	}

	name := hello.Name
	role := perm.RoleMember
	switch {
	case hello.Token != "":
		claims, err := h.auth.ValidateToken(hello.Token)
		if err != nil {
			return nil, &core.CoreError{Code: core.ErrCodeUnauthorized, Message: "invalid admin token"}, nil
		}
		if name == "" {
			name = claims.Username
		}
		if name != claims.Username {
			return nil, &core.CoreError{Code: core.ErrCodeBadRequest, Message: "display name does not match the admin account"}, nil
		}
		role = claims.Role
	case hello.Role == string(perm.RoleGuest):
		role = perm.RoleGuest
	case hello.Role == "" || hello.Role == string(perm.RoleMember):
		// default
	default:
		// Privileged tiers require a token; fail closed.
		return nil, &core.CoreError{Code: core.ErrCodeUnauthorized, Message: "that role requires an admin login"}, nil
	}

	client := core.NewClient(utils.NewID(), name, role)
	client.Avatar = hello.Avatar
	client.DeviceID = hello.DeviceID
	client.Addr = remoteAddr(r)

	if err := h.hub.Join(ctx, client); err != nil {
		var cerr *core.CoreError
		if errors.As(err, &cerr) {
			return nil, cerr, nil
		}
		return nil, nil, err
	}
	return client, nil, nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(chatRateLimit)
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("user", client.Name).Msg("failed to map inbound")
			return err
		}
		if protoErr == nil && cmd.Kind == core.CommandSendMessage && !limiter.allow(time.Now()) {
			protoErr = &proto.Error{Code: "rate_limited", Msg: "too many messages, slow down"}
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
			continue
		}
		select {
		case client.Commands <- cmd:
		case <-client.Done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("user", client.Name).Msg("write ws event")
				return err
			}
			if event.Kind == core.EventKicked {
				return nil
			}
		case <-client.Done:
			// Flush whatever was queued before the drop, so a kicked
			// client still sees the notice.
			for {
				select {
				case event := <-client.Events:
					if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func remoteAddr(r *stdhttp.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
