package domain

// Event types published to room and participant topics.
const (
	EventParticipantJoined = "participant_joined"
	EventGameStarted       = "game_started"
	EventNewQuestion       = "new_question"
	EventPlayerScored      = "player_scored"
	EventGameOver          = "game_over"
	EventRoomError         = "room_error"
	EventRoomClosed        = "room_closed"
	EventAnswerResult      = "answer_result"
)

// Event is the envelope handed to a Broadcaster.
type Event struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId"`
	Payload any    `json:"payload"`
}

type ParticipantJoinedPayload struct {
	Participants []Participant `json:"participants"`
}

type GameStartedPayload struct {
	TotalQuestions int `json:"totalQuestions"`
}

type NewQuestionPayload struct {
	Question        PublicQuestion `json:"question"`
	TimeLeftSeconds int            `json:"timeLeftSeconds"`
	QuestionNumber  int            `json:"questionNumber"`
}

type PlayerScoredPayload struct {
	ParticipantID string `json:"participantId"`
	NewScore      int    `json:"newScore"`
}

type GameOverPayload struct {
	Scores map[string]int `json:"scores"`
}

type RoomErrorPayload struct {
	Message string `json:"message"`
}

// Reasons carried by room_closed.
const (
	CloseReasonIdle     = "idle"
	CloseReasonShutdown = "shutdown"
)

type RoomClosedPayload struct {
	Reason string `json:"reason"`
}

type AnswerResultPayload struct {
	QuestionNumber int          `json:"questionNumber"`
	Status         SubmitStatus `json:"status"`
}

// RoomTopic addresses every subscriber of a room.
func RoomTopic(roomID string) string {
	return "room:" + roomID
}

// ParticipantTopic addresses a single participant across rooms.
func ParticipantTopic(participantID string) string {
	return "participant:" + participantID
}
