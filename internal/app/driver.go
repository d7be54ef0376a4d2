package app

import (
	"context"
	"errors"
	"fmt"

	"quiz-room-service/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// DefaultRoomConfig fills zero-valued fields of a create request.
var DefaultRoomConfig = domain.RoomConfig{
	Pattern:         domain.PatternMixed,
	QuestionCount:   20,
	TimePerQuestion: 60,
}

// SessionDriver is the command entry point: it resolves rooms, performs the
// structural authorization checks and delegates to the room state machine.
type SessionDriver struct {
	registry    *RoomRegistry
	broadcaster Broadcaster
	defaults    domain.RoomConfig
	validate    *validator.Validate
	log         logrus.FieldLogger
}

// DriverOption customizes a SessionDriver.
type DriverOption func(*SessionDriver)

// WithDefaults sets the config used for zero-valued fields of create requests.
func WithDefaults(cfg domain.RoomConfig) DriverOption {
	return func(d *SessionDriver) { d.defaults = cfg }
}

func WithDriverLogger(log logrus.FieldLogger) DriverOption {
	return func(d *SessionDriver) { d.log = log }
}

func NewSessionDriver(registry *RoomRegistry, broadcaster Broadcaster, opts ...DriverOption) *SessionDriver {
	d := &SessionDriver{
		registry:    registry,
		broadcaster: broadcaster,
		defaults:    DefaultRoomConfig,
		validate:    validator.New(),
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.WithField("component", "driver")
	return d
}

// CreateRoom validates the config (zero fields take defaults) and registers a new room.
func (d *SessionDriver) CreateRoom(ctx context.Context, hostID string, cfg domain.RoomConfig) (string, error) {
	if hostID == "" {
		return "", fmt.Errorf("%w: host id is required", domain.ErrInvalidRequest)
	}
	cfg = d.withDefaults(cfg)
	if err := d.validate.Struct(cfg); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidRoomConfig, err)
	}
	roomID, err := d.registry.Create(ctx, hostID, cfg)
	if err != nil {
		d.log.WithError(err).Error("room allocation failed")
		return "", err
	}
	return roomID, nil
}

// JoinRoom adds the participant to a waiting room and returns the ordered participant list.
func (d *SessionDriver) JoinRoom(_ context.Context, roomID string, participant domain.Participant) ([]domain.Participant, error) {
	if participant.ID == "" {
		return nil, fmt.Errorf("%w: participant id is required", domain.ErrInvalidRequest)
	}
	room, err := d.registry.Get(roomID)
	if err != nil {
		return nil, err
	}
	return room.Join(participant)
}

// StartRoom starts the room if requesterID is its host.
func (d *SessionDriver) StartRoom(ctx context.Context, roomID, requesterID string) error {
	room, err := d.registry.Get(roomID)
	if err != nil {
		return err
	}
	if room.HostID() != requesterID {
		d.log.WithFields(logrus.Fields{"room_id": roomID, "requester_id": requesterID}).Warn("non-host start rejected")
		return domain.ErrForbidden
	}
	return room.Start(ctx)
}

// SubmitAnswer always acknowledges a participant's submission; late, duplicate and
// early answers come back as non-scoring acks. The outcome is also sent privately
// to the participant topic.
func (d *SessionDriver) SubmitAnswer(ctx context.Context, roomID, participantID string, questionNumber int, answer domain.Answer) (domain.SubmitAck, error) {
	room, err := d.registry.Get(roomID)
	if err != nil {
		return domain.SubmitAck{}, err
	}
	ack, err := room.SubmitAnswer(participantID, questionNumber, answer)
	if err != nil {
		return domain.SubmitAck{}, err
	}
	if ack.Status != domain.SubmitIgnored {
		d.broadcaster.Publish(ctx, domain.ParticipantTopic(participantID), domain.Event{
			Type:   domain.EventAnswerResult,
			RoomID: roomID,
			Payload: domain.AnswerResultPayload{
				QuestionNumber: ack.QuestionNumber,
				Status:         ack.Status,
			},
		})
	}
	return ack, nil
}

// RoomView returns a snapshot of a live room.
func (d *SessionDriver) RoomView(_ context.Context, roomID string) (domain.RoomView, error) {
	room, err := d.registry.Get(roomID)
	if err != nil {
		return domain.RoomView{}, err
	}
	return room.View(), nil
}

func (d *SessionDriver) withDefaults(cfg domain.RoomConfig) domain.RoomConfig {
	if cfg.Pattern == "" {
		cfg.Pattern = d.defaults.Pattern
	}
	if cfg.QuestionCount == 0 {
		cfg.QuestionCount = d.defaults.QuestionCount
	}
	if cfg.TimePerQuestion == 0 {
		cfg.TimePerQuestion = d.defaults.TimePerQuestion
	}
	return cfg
}

// Caller-facing error codes.
const (
	CodeRoomNotFound        = "ROOM_NOT_FOUND"
	CodeRoomNotJoinable     = "ROOM_NOT_JOINABLE"
	CodeForbidden           = "FORBIDDEN"
	CodeRoomAlreadyStarted  = "ROOM_ALREADY_STARTED"
	CodeParticipantNotFound = "PARTICIPANT_NOT_FOUND"
	CodeInvalidConfig       = "INVALID_CONFIG"
	CodeBadRequest          = "BAD_REQUEST"
	CodeInternal            = "INTERNAL"
)

// ErrorCode maps a driver error to its caller-facing code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, domain.ErrRoomNotJoinable):
		return CodeRoomNotJoinable
	case errors.Is(err, domain.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, domain.ErrRoomAlreadyStarted):
		return CodeRoomAlreadyStarted
	case errors.Is(err, domain.ErrParticipantNotFound):
		return CodeParticipantNotFound
	case errors.Is(err, domain.ErrInvalidRoomConfig):
		return CodeInvalidConfig
	case errors.Is(err, domain.ErrInvalidRequest):
		return CodeBadRequest
	default:
		return CodeInternal
	}
}
