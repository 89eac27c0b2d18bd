package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Actor lifecycle errors
	CodeActorLoadFailed    Code = "ACTOR_LOAD_FAILED"
	CodeActorPersistFailed Code = "ACTOR_PERSIST_FAILED"
	CodeActorClosed        Code = "ACTOR_CLOSED"
	CodeActorKindUnknown   Code = "ACTOR_KIND_UNKNOWN"
	CodeActorKeyEmpty      Code = "ACTOR_KEY_EMPTY"

	// Chat errors
	CodeChatUserEmpty      Code = "CHAT_USER_EMPTY"
	CodeChatMessageEmpty   Code = "CHAT_MESSAGE_EMPTY"
	CodeChatMessageTooLong Code = "CHAT_MESSAGE_TOO_LONG"

	// Game errors
	CodeGamePlayerEmpty Code = "GAME_PLAYER_EMPTY"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)
