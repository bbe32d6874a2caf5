package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vendalink/salechat-server/internal/auth"
	"github.com/vendalink/salechat-server/internal/proto"
	"github.com/vendalink/salechat-server/internal/service/messaging"
)

// outboundBuffer bounds the per-connection write queue. Forwarders drop
// the connection rather than block the views behind a stalled socket.
const outboundBuffer = 64

// WSHandler upgrades HTTP connections and bridges live views to the wire.
type WSHandler struct {
	messaging *messaging.Service
	auth      *auth.Service
	log       *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(msgService *messaging.Service, authService *auth.Service, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{messaging: msgService, auth: authService, log: logger}
}

// wsSession tracks one connection's open watches. Each watch owns an
// independent live view; closing the session closes them all.
type wsSession struct {
	viewerID   int64
	viewerName string
	out        chan proto.Outbound

	mu      sync.Mutex
	watches map[string]func()
	nextID  int64
}

func newSession(viewerID int64, viewerName string) *wsSession {
	return &wsSession{
		viewerID:   viewerID,
		viewerName: viewerName,
		out:        make(chan proto.Outbound, outboundBuffer),
		watches:    make(map[string]func()),
	}
}

func (s *wsSession) addWatch(closeView func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("w%d", s.nextID)
	s.watches[id] = closeView
	return id
}

// removeWatch detaches a watch and returns its closer, or nil if unknown.
func (s *wsSession) removeWatch(id string) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	closeView := s.watches[id]
	delete(s.watches, id)
	return closeView
}

func (s *wsSession) closeAll() {
	s.mu.Lock()
	closers := make([]func(), 0, len(s.watches))
	for id, closeView := range s.watches {
		closers = append(closers, closeView)
		delete(s.watches, id)
	}
	s.mu.Unlock()
	for _, closeView := range closers {
		closeView()
	}
}

// send queues an outbound frame without outliving the connection.
func (s *wsSession) send(ctx context.Context, msg proto.Outbound) {
	select {
	case s.out <- msg:
	case <-ctx.Done():
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		w.WriteHeader(stdhttp.StatusUnauthorized)
		return
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws token rejected")
		w.WriteHeader(stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	viewerName := claims.DisplayName
	if viewerName == "" {
		viewerName = claims.Username
	}
	session := newSession(claims.UserID, viewerName)
	defer session.closeAll()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session)
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
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *wsSession) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}
		h.handleInbound(ctx, session, inbound)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *wsSession) error {
	for {
		select {
		case msg := <-session.out:
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				h.log.Error().Err(err).Int64("viewer_id", session.viewerID).Msg("write ws outbound")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) handleInbound(ctx context.Context, session *wsSession, inbound proto.Inbound) {
	switch inbound.Type {
	case proto.InboundTypeWatchList:
		h.openListWatch(ctx, session)
	case proto.InboundTypeWatchThread:
		var data proto.WatchThreadData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			session.send(ctx, protoError("bad_request", "invalid watch_thread data"))
			return
		}
		h.openThreadWatch(ctx, session, data.PeerID)
	case proto.InboundTypeWatchBell:
		h.openBellWatch(ctx, session)
	case proto.InboundTypeUnwatch:
		var data proto.UnwatchData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			session.send(ctx, protoError("bad_request", "invalid unwatch data"))
			return
		}
		h.closeWatch(ctx, session, data.WatchID)
	case proto.InboundTypeSend:
		var data proto.SendData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			session.send(ctx, protoError("bad_request", "invalid send data"))
			return
		}
		h.handleSend(ctx, session, data)
	default:
		session.send(ctx, protoError("unknown_type", "unknown inbound type: "+inbound.Type))
	}
}

func (h *WSHandler) openListWatch(ctx context.Context, session *wsSession) {
	view, err := h.messaging.OpenConversationList(ctx, session.viewerID)
	if err != nil {
		h.log.Error().Err(err).Int64("viewer_id", session.viewerID).Msg("open list view")
		session.send(ctx, protoError("internal", "failed to open conversation list"))
		return
	}

	watchID := session.addWatch(view.Close)
	session.send(ctx, proto.Outbound{
		Type:    proto.OutboundTypeEvent,
		Event:   proto.EventWatchOpened,
		WatchID: watchID,
	})

	go func() {
		for snap := range view.Updates() {
			session.send(ctx, proto.Outbound{
				Type:    proto.OutboundTypeEvent,
				Event:   proto.EventConversations,
				WatchID: watchID,
				Data:    toConversationPayloads(snap),
			})
		}
		h.notifyWatchClosed(ctx, session, watchID)
	}()
}

func (h *WSHandler) openThreadWatch(ctx context.Context, session *wsSession, peerID int64) {
	view, err := h.messaging.OpenThread(ctx, session.viewerID, peerID)
	if err != nil {
		if errors.Is(err, messaging.ErrMissingPeer) {
			session.send(ctx, protoError("bad_request", "missing peer id"))
			return
		}
		h.log.Error().Err(err).Int64("peer_id", peerID).Msg("open thread view")
		session.send(ctx, protoError("internal", "failed to open thread"))
		return
	}

	watchID := session.addWatch(view.Close)
	session.send(ctx, proto.Outbound{
		Type:    proto.OutboundTypeEvent,
		Event:   proto.EventWatchOpened,
		WatchID: watchID,
	})

	go func() {
		for snap := range view.Updates() {
			session.send(ctx, proto.Outbound{
				Type:    proto.OutboundTypeEvent,
				Event:   proto.EventThread,
				WatchID: watchID,
				Data:    toMessagePayloads(snap),
			})
		}
		h.notifyWatchClosed(ctx, session, watchID)
	}()
}

func (h *WSHandler) openBellWatch(ctx context.Context, session *wsSession) {
	view, err := h.messaging.OpenBell(ctx, session.viewerID)
	if err != nil {
		h.log.Error().Err(err).Int64("viewer_id", session.viewerID).Msg("open bell view")
		session.send(ctx, protoError("internal", "failed to open bell"))
		return
	}

	watchID := session.addWatch(view.Close)
	session.send(ctx, proto.Outbound{
		Type:    proto.OutboundTypeEvent,
		Event:   proto.EventWatchOpened,
		WatchID: watchID,
	})

	go func() {
		for count := range view.Updates() {
			session.send(ctx, proto.Outbound{
				Type:    proto.OutboundTypeEvent,
				Event:   proto.EventBellCount,
				WatchID: watchID,
				Data:    proto.BellCountPayload{Count: count},
			})
		}
		h.notifyWatchClosed(ctx, session, watchID)
	}()
}

func (h *WSHandler) closeWatch(ctx context.Context, session *wsSession, watchID string) {
	closeView := session.removeWatch(watchID)
	if closeView == nil {
		session.send(ctx, protoError("bad_request", "unknown watch id: "+watchID))
		return
	}
	closeView()
}

// notifyWatchClosed tells the client its view terminated so it can reopen
// and refetch. Watches closed by unwatch or teardown report too; the
// client treats a close for an unknown watch id as a no-op.
func (h *WSHandler) notifyWatchClosed(ctx context.Context, session *wsSession, watchID string) {
	session.removeWatch(watchID)
	session.send(ctx, proto.Outbound{
		Type:    proto.OutboundTypeEvent,
		Event:   proto.EventWatchClosed,
		WatchID: watchID,
	})
}

func (h *WSHandler) handleSend(ctx context.Context, session *wsSession, data proto.SendData) {
	msg, err := h.messaging.SendMessage(ctx, session.viewerID, session.viewerName, data.ReceiverID, data.Body)
	if err != nil {
		if errors.Is(err, messaging.ErrEmptyBody) ||
			errors.Is(err, messaging.ErrMissingPeer) ||
			errors.Is(err, messaging.ErrSelfMessage) {
			session.send(ctx, protoError("bad_request", err.Error()))
			return
		}
		h.log.Error().Err(err).Int64("receiver_id", data.ReceiverID).Msg("ws send failed")
		session.send(ctx, protoError("internal", "failed to send message"))
		return
	}

	payload := storeMessagePayload(msg)
	payload.ClientKey = data.ClientKey
	session.send(ctx, proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.EventSendAck,
		Data:  payload,
	})
}

func protoError(code, msg string) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: code, Msg: msg},
	}
}
