package app

import (
	"context"
	"sync"
	"time"

	"quiz-room-service/internal/domain"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const questionFetchTimeout = 10 * time.Second

// Room is one quiz session. Every mutation (join, start, advance, submit, close)
// runs under mu, so a room is a single serialization domain.
type Room struct {
	id        string
	hostID    string
	config    domain.RoomConfig
	createdAt time.Time

	source      QuestionSource
	broadcaster Broadcaster
	scheduler   Scheduler
	log         logrus.FieldLogger
	onFinish    func(roomID string)

	mu           sync.Mutex
	state        domain.RoomState
	order        []string
	participants map[string]domain.Participant
	scores       map[string]int
	questions    []domain.Question
	currentIndex int
	answered     map[string]struct{}
	timer        Timer
	generation   uint64
}

type roomDeps struct {
	source      QuestionSource
	broadcaster Broadcaster
	scheduler   Scheduler
	log         logrus.FieldLogger
	onFinish    func(roomID string)
}

func newRoom(id, hostID string, cfg domain.RoomConfig, createdAt time.Time, deps roomDeps) *Room {
	return &Room{
		id:           id,
		hostID:       hostID,
		config:       cfg,
		createdAt:    createdAt,
		source:       deps.source,
		broadcaster:  deps.broadcaster,
		scheduler:    deps.scheduler,
		log:          deps.log.WithField("room_id", id),
		onFinish:     deps.onFinish,
		state:        domain.RoomWaiting,
		participants: make(map[string]domain.Participant),
		scores:       make(map[string]int),
		answered:     make(map[string]struct{}),
	}
}

func (r *Room) ID() string {
	return r.id
}

func (r *Room) HostID() string {
	return r.hostID
}

func (r *Room) Config() domain.RoomConfig {
	return r.config
}

// State reports the current lifecycle phase.
func (r *Room) State() domain.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// View returns a consistent snapshot of the room.
func (r *Room) View() domain.RoomView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.RoomView{
		ID:             r.id,
		HostID:         r.hostID,
		Config:         r.config,
		State:          r.state,
		Participants:   r.participantsLocked(),
		Scores:         lo.Assign(r.scores),
		QuestionNumber: r.currentIndex,
		TotalQuestions: len(r.questions),
	}
}

// Join adds a participant with score 0. Re-joining with a known id only refreshes
// the display name; order and score are kept.
func (r *Room) Join(p domain.Participant) ([]domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.RoomWaiting {
		return nil, domain.ErrRoomNotJoinable
	}
	if _, ok := r.participants[p.ID]; !ok {
		r.order = append(r.order, p.ID)
		r.scores[p.ID] = 0
	}
	r.participants[p.ID] = p

	list := r.participantsLocked()
	r.publishLocked(domain.EventParticipantJoined, domain.ParticipantJoinedPayload{Participants: list})
	r.log.WithField("participant_id", p.ID).Info("participant joined")
	return list, nil
}

// Start moves the room to playing, loads its questions and publishes the first one.
// Host authorization is checked by the caller. A failed or empty fetch ends the
// room immediately with an empty score map.
func (r *Room) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.RoomWaiting {
		return domain.ErrRoomAlreadyStarted
	}
	r.state = domain.RoomPlaying

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), questionFetchTimeout)
	defer cancel()
	questions, err := r.source.Fetch(fetchCtx, domain.QuestionFilter{Pattern: r.config.Pattern}, r.config.QuestionCount)
	if err != nil {
		r.log.WithError(err).Error("failed to fetch questions")
		r.publishLocked(domain.EventRoomError, domain.RoomErrorPayload{Message: "failed to fetch questions"})
		r.finishLocked(map[string]int{})
		return nil
	}
	if len(questions) == 0 {
		r.log.WithError(domain.ErrEmptyQuestionSet).Warn("closing room")
		r.finishLocked(map[string]int{})
		return nil
	}
	if len(questions) > r.config.QuestionCount {
		questions = questions[:r.config.QuestionCount]
	}
	r.questions = questions

	r.publishLocked(domain.EventGameStarted, domain.GameStartedPayload{TotalQuestions: len(questions)})
	r.log.WithField("questions", len(questions)).Info("game started")
	r.advanceLocked()
	return nil
}

// SubmitAnswer scores an answer against the live question. The first submission
// per participant per question is final. A non-zero questionNumber that does not
// match the live question marks the submission stale.
func (r *Room) SubmitAnswer(participantID string, questionNumber int, answer domain.Answer) (domain.SubmitAck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[participantID]; !ok {
		return domain.SubmitAck{}, domain.ErrParticipantNotFound
	}
	ack := domain.SubmitAck{Status: domain.SubmitIgnored, Score: r.scores[participantID]}
	if !r.liveLocked() {
		return ack, nil
	}
	ack.QuestionNumber = r.currentIndex
	if questionNumber != 0 && questionNumber != r.currentIndex {
		return ack, nil
	}
	if _, done := r.answered[participantID]; done {
		ack.Status = domain.SubmitDuplicate
		return ack, nil
	}
	r.answered[participantID] = struct{}{}

	question := r.questions[r.currentIndex-1]
	if !question.CorrectAnswer.Equal(answer) {
		ack.Status = domain.SubmitIncorrect
		return ack, nil
	}

	r.scores[participantID] += domain.ScoreReward
	ack.Status = domain.SubmitScored
	ack.Score = r.scores[participantID]
	r.publishLocked(domain.EventPlayerScored, domain.PlayerScoredPayload{
		ParticipantID: participantID,
		NewScore:      ack.Score,
	})
	return ack, nil
}

// shutdown ends a room that will never reach game_over. It reports false if the
// room had already finished.
func (r *Room) shutdown(reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == domain.RoomFinished {
		return false
	}
	r.closeLocked(reason)
	return true
}

// expireIfIdle closes the room if it is still waiting ttl after creation.
func (r *Room) expireIfIdle(now time.Time, ttl time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != domain.RoomWaiting || now.Sub(r.createdAt) < ttl {
		return false
	}
	r.closeLocked(domain.CloseReasonIdle)
	return true
}

func (r *Room) closeLocked(reason string) {
	r.stopTimerLocked()
	r.state = domain.RoomFinished
	r.publishLocked(domain.EventRoomClosed, domain.RoomClosedPayload{Reason: reason})
	r.log.WithField("reason", reason).Info("room closed")
}

func (r *Room) advanceLocked() {
	r.stopTimerLocked()
	if r.currentIndex >= len(r.questions) {
		r.finishLocked(lo.Assign(r.scores))
		return
	}

	question := r.questions[r.currentIndex]
	r.currentIndex++
	r.answered = make(map[string]struct{})
	r.publishLocked(domain.EventNewQuestion, domain.NewQuestionPayload{
		Question:        question.Public(),
		TimeLeftSeconds: r.config.TimePerQuestion,
		QuestionNumber:  r.currentIndex,
	})

	r.generation++
	gen := r.generation
	r.timer = r.scheduler.AfterFunc(time.Duration(r.config.TimePerQuestion)*time.Second, func() {
		r.onTimer(gen)
	})
}

func (r *Room) onTimer(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// superseded or torn down
	if gen != r.generation || r.state != domain.RoomPlaying {
		return
	}
	r.timer = nil
	r.advanceLocked()
}

func (r *Room) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.generation++
}

func (r *Room) finishLocked(scores map[string]int) {
	r.stopTimerLocked()
	r.state = domain.RoomFinished
	r.publishLocked(domain.EventGameOver, domain.GameOverPayload{Scores: scores})
	r.log.WithField("scores", scores).Info("game over")
	if r.onFinish != nil {
		r.onFinish(r.id)
	}
}

func (r *Room) liveLocked() bool {
	return r.state == domain.RoomPlaying && r.currentIndex > 0 && r.currentIndex <= len(r.questions)
}

func (r *Room) participantsLocked() []domain.Participant {
	return lo.Map(r.order, func(id string, _ int) domain.Participant {
		return r.participants[id]
	})
}

// publishLocked runs under mu so per-room events leave in transition order.
func (r *Room) publishLocked(eventType string, payload any) {
	r.broadcaster.Publish(context.Background(), domain.RoomTopic(r.id), domain.Event{
		Type:    eventType,
		RoomID:  r.id,
		Payload: payload,
	})
}
