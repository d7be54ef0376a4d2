package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Inbound command types.
const (
	CmdCreateRoom   = "create_room"
	CmdJoinRoom     = "join_room"
	CmdStartRoom    = "start_room"
	CmdSubmitAnswer = "submit_answer"
	CmdRoomState    = "room_state"
)

// Direct replies to a command; broadcast events are forwarded as-is.
const (
	ReplyRoomCreated = "room_created"
	ReplyJoined      = "joined"
	ReplyAck         = "ack"
	ReplyRoomState   = "room_state"
	ReplyError       = "error"
)

// Subscriber delivers events published on a topic until cancel is called.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan domain.Event, func(), error)
}

type WSHandler struct {
	driver     *app.SessionDriver
	subscriber Subscriber
	upgrader   websocket.Upgrader
	log        logrus.FieldLogger
}

func NewWSHandler(driver *app.SessionDriver, subscriber Subscriber, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		driver:     driver,
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.WithField("component", "ws"),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type createPayload struct {
	Config domain.RoomConfig `json:"config"`
}

type submitPayload struct {
	RoomID         string        `json:"roomId"`
	QuestionNumber int           `json:"questionNumber"`
	Answer         domain.Answer `json:"answer"`
}

type roomCreatedPayload struct {
	RoomID string `json:"roomId"`
}

type joinedPayload struct {
	RoomID       string               `json:"roomId"`
	Participants []domain.Participant `json:"participants"`
}

type ackPayload struct {
	Command        string              `json:"command"`
	Status         domain.SubmitStatus `json:"status,omitempty"`
	QuestionNumber int                 `json:"questionNumber,omitempty"`
	Score          int                 `json:"score,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the room commands.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if userID == "" || displayName == "" {
		http.Error(w, "missing userId or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	s := &wsSession{
		handler:      h,
		ctx:          r.Context(),
		conn:         conn,
		participant:  domain.Participant{ID: userID, Name: displayName},
		log:          h.log.WithField("participant_id", userID),
		send:         make(chan domain.Event, 32),
		closeSignals: make(chan struct{}),
	}
	s.run()
}

// wsSession is one connection: a single writer goroutine owns conn writes, and one
// forwarder goroutine per subscribed topic feeds it.
type wsSession struct {
	handler     *WSHandler
	ctx         context.Context
	conn        *websocket.Conn
	participant domain.Participant
	log         logrus.FieldLogger

	send         chan domain.Event
	closeSignals chan struct{}
	forwarders   sync.WaitGroup

	// touched only by the reader goroutine
	personalCancel func()
	roomID         string
	roomCancel     func()
}

func (s *wsSession) run() {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range s.send {
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.WithError(err).Debug("ws write error")
				_ = s.conn.Close()
				for range s.send {
				}
				return
			}
		}
	}()

	if err := s.subscribePersonal(); err != nil {
		s.reply(ReplyError, "", errorPayload{Code: app.CodeInternal, Message: "subscribe failed"})
	} else {
		s.readLoop()
	}

	close(s.closeSignals)
	if s.personalCancel != nil {
		s.personalCancel()
	}
	if s.roomCancel != nil {
		s.roomCancel()
	}
	s.forwarders.Wait()
	close(s.send)
	<-writerDone
}

func (s *wsSession) readLoop() {
	for {
		var inbound inboundMessage
		if err := s.conn.ReadJSON(&inbound); err != nil {
			return
		}
		s.dispatch(inbound)
	}
}

func (s *wsSession) dispatch(msg inboundMessage) {
	switch msg.Type {
	case CmdCreateRoom:
		var payload createPayload
		if !s.decode(msg, &payload) {
			return
		}
		roomID, err := s.handler.driver.CreateRoom(s.ctx, s.participant.ID, payload.Config)
		if err != nil {
			s.fail("", err)
			return
		}
		events, cancel, err := s.subscribeRoom(roomID)
		if err != nil {
			s.fail(roomID, err)
			return
		}
		s.adoptRoom(roomID, events, cancel)
		s.reply(ReplyRoomCreated, roomID, roomCreatedPayload{RoomID: roomID})

	case CmdJoinRoom:
		var payload roomPayload
		if !s.decode(msg, &payload) {
			return
		}
		// subscribe first so this connection sees its own participant_joined
		events, cancel, err := s.subscribeRoom(payload.RoomID)
		if err != nil {
			s.fail(payload.RoomID, err)
			return
		}
		participants, err := s.handler.driver.JoinRoom(s.ctx, payload.RoomID, s.participant)
		if err != nil {
			// a rejected join leaves the current room subscription in place
			cancel()
			s.fail(payload.RoomID, err)
			return
		}
		s.adoptRoom(payload.RoomID, events, cancel)
		s.reply(ReplyJoined, payload.RoomID, joinedPayload{RoomID: payload.RoomID, Participants: participants})

	case CmdStartRoom:
		var payload roomPayload
		if !s.decode(msg, &payload) {
			return
		}
		if err := s.handler.driver.StartRoom(s.ctx, payload.RoomID, s.participant.ID); err != nil {
			s.fail(payload.RoomID, err)
			return
		}
		s.reply(ReplyAck, payload.RoomID, ackPayload{Command: CmdStartRoom})

	case CmdSubmitAnswer:
		var payload submitPayload
		if !s.decode(msg, &payload) {
			return
		}
		ack, err := s.handler.driver.SubmitAnswer(s.ctx, payload.RoomID, s.participant.ID, payload.QuestionNumber, payload.Answer)
		if err != nil {
			s.fail(payload.RoomID, err)
			return
		}
		s.reply(ReplyAck, payload.RoomID, ackPayload{
			Command:        CmdSubmitAnswer,
			Status:         ack.Status,
			QuestionNumber: ack.QuestionNumber,
			Score:          ack.Score,
		})

	case CmdRoomState:
		var payload roomPayload
		if !s.decode(msg, &payload) {
			return
		}
		view, err := s.handler.driver.RoomView(s.ctx, payload.RoomID)
		if err != nil {
			s.fail(payload.RoomID, err)
			return
		}
		s.reply(ReplyRoomState, payload.RoomID, view)

	default:
		s.reply(ReplyError, "", errorPayload{Code: app.CodeBadRequest, Message: "unsupported message type"})
	}
}

func (s *wsSession) decode(msg inboundMessage, into any) bool {
	if len(msg.Payload) == 0 {
		msg.Payload = []byte("{}")
	}
	if err := json.Unmarshal(msg.Payload, into); err != nil {
		s.reply(ReplyError, "", errorPayload{Code: app.CodeBadRequest, Message: "invalid " + msg.Type + " payload"})
		return false
	}
	return true
}

func (s *wsSession) fail(roomID string, err error) {
	code := app.ErrorCode(err)
	msg := err.Error()
	if code == app.CodeInternal {
		s.log.WithError(err).WithField("room_id", roomID).Error("command failed")
		msg = "internal error"
	}
	s.reply(ReplyError, roomID, errorPayload{Code: code, Message: msg})
}

func (s *wsSession) reply(typ, roomID string, payload any) {
	s.send <- domain.Event{Type: typ, RoomID: roomID, Payload: payload}
}

func (s *wsSession) subscribePersonal() error {
	events, cancel, err := s.handler.subscriber.Subscribe(s.ctx, domain.ParticipantTopic(s.participant.ID))
	if err != nil {
		return err
	}
	s.personalCancel = cancel
	s.forward(events)
	return nil
}

// subscribeRoom opens a subscription on roomID without touching the current one.
// When the connection already follows roomID, events is nil and cancel is a no-op.
func (s *wsSession) subscribeRoom(roomID string) (<-chan domain.Event, func(), error) {
	if roomID == s.roomID && s.roomCancel != nil {
		return nil, func() {}, nil
	}
	return s.handler.subscriber.Subscribe(s.ctx, domain.RoomTopic(roomID))
}

// adoptRoom makes a subscription from subscribeRoom the connection's room feed,
// dropping the previous one.
func (s *wsSession) adoptRoom(roomID string, events <-chan domain.Event, cancel func()) {
	if events == nil {
		return
	}
	if s.roomCancel != nil {
		s.roomCancel()
	}
	s.roomID = roomID
	s.roomCancel = cancel
	s.forward(events)
}

func (s *wsSession) forward(events <-chan domain.Event) {
	s.forwarders.Add(1)
	go func() {
		defer s.forwarders.Done()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case s.send <- ev:
				case <-s.closeSignals:
					return
				}
			case <-s.closeSignals:
				return
			}
		}
	}()
}
