package chat

// Event is one item on a chat room's watch stream. It is a closed union:
// MessageEvent, TypingEvent or ConnectedUsersEvent.
type Event interface {
	isChatEvent()
}

// MessageEvent carries the full message log after a send.
type MessageEvent struct {
	Messages []Message
}

// TypingEvent carries the users currently typing joined by ", ", or an empty
// string when nobody is typing.
type TypingEvent struct {
	Typing string
}

// ConnectedUsersEvent carries the users present in the room, in join order.
type ConnectedUsersEvent struct {
	Users []string
}

func (MessageEvent) isChatEvent()        {}
func (TypingEvent) isChatEvent()         {}
func (ConnectedUsersEvent) isChatEvent() {}
