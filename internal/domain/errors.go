package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a room id is unknown, including rooms that already finished.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomNotJoinable is returned when joining a room that has left the waiting state.
	ErrRoomNotJoinable = errors.New("room is not joinable")
	// ErrForbidden is returned when someone other than the host tries to start a room.
	ErrForbidden = errors.New("only the host can start the room")
	// ErrRoomAlreadyStarted is returned when starting a room that is not waiting.
	ErrRoomAlreadyStarted = errors.New("room already started")
	// ErrParticipantNotFound is returned when a user acts in a room before joining it.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrEmptyQuestionSet means the question source returned nothing; handled inside the room.
	ErrEmptyQuestionSet = errors.New("question source returned no questions")
	// ErrInvalidRoomConfig wraps validation failures of a room config.
	ErrInvalidRoomConfig = errors.New("invalid room config")
	// ErrInvalidRequest is returned for commands missing required identifiers.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRoomIDExhausted means no free room id could be allocated.
	ErrRoomIDExhausted = errors.New("room id space exhausted")
)
