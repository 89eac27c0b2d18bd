// Package chat implements a chat room actor: a persisted message log plus
// in-memory presence and typing indicators.
package chat

import (
	"context"
	"slices"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	apperrors "github.com/louisbranch/actorspace/internal/platform/errors"
	"github.com/louisbranch/actorspace/internal/platform/id"
	"github.com/louisbranch/actorspace/internal/services/actors/directory"
	"github.com/louisbranch/actorspace/internal/services/actors/host"
	"github.com/louisbranch/actorspace/internal/services/actors/watch"
)

const (
	// Kind is the directory name of the chat actor.
	Kind = "Chat"
	// StateName is the record the message log is persisted under.
	StateName = "chat"
	// MaxMessageRunes bounds message content length.
	MaxMessageRunes = 2000
)

// Message is one entry of the room log.
type Message struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Option configures a Chat.
type Option func(*Chat)

// WithClock overrides the message timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Chat) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator overrides how message IDs are minted.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(c *Chat) {
		if newID != nil {
			c.newID = newID
		}
	}
}

// Chat is a room. Messages survive restarts; presence and typing do not.
type Chat struct {
	inst  *host.Instance[[]Message, Event]
	now   func() time.Time
	newID func() (string, error)

	// Owned by the executor.
	users  []string
	typing []string

	usersView atomic.Pointer[[]string]
}

// New builds an unloaded chat room.
func New(env directory.Env, opts ...Option) (*Chat, error) {
	inst, err := host.New[[]Message, Event](host.Config[[]Message]{
		Address:          env.Address,
		Store:            env.Store,
		StateName:        StateName,
		Default:          func() []Message { return []Message{} },
		Logger:           env.Logger,
		MailboxSize:      env.MailboxSize,
		SubscriberBuffer: env.SubscriberBuffer,
	})
	if err != nil {
		return nil, err
	}
	c := &Chat{
		inst:  inst,
		now:   time.Now,
		newID: id.NewID,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.setUsers([]string{})
	return c, nil
}

// Factory adapts New for directory registration.
func Factory(env directory.Env) (directory.Actor, error) {
	return New(env)
}

// Load reads the persisted message log.
func (c *Chat) Load(ctx context.Context) error {
	return c.inst.Load(ctx)
}

// Close stops the room and ends its watchers.
func (c *Chat) Close() error {
	return c.inst.Close()
}

// Join marks user present and publishes the connected users.
func (c *Chat) Join(ctx context.Context, user string) error {
	user, err := normalizeUser(user)
	if err != nil {
		return err
	}
	return c.inst.Do(ctx, func([]Message) error {
		if !slices.Contains(c.users, user) {
			c.setUsers(append(slices.Clip(c.users), user))
		}
		c.inst.Events().Notify(ConnectedUsersEvent{Users: c.users})
		return nil
	})
}

// Leave removes user and publishes the connected users. A user who was
// typing stops typing.
func (c *Chat) Leave(ctx context.Context, user string) error {
	user, err := normalizeUser(user)
	if err != nil {
		return err
	}
	return c.inst.Do(ctx, func([]Message) error {
		if idx := slices.Index(c.users, user); idx >= 0 {
			c.setUsers(slices.Delete(slices.Clone(c.users), idx, idx+1))
		}
		c.inst.Events().Notify(ConnectedUsersEvent{Users: c.users})
		if idx := slices.Index(c.typing, user); idx >= 0 {
			c.typing = slices.Delete(c.typing, idx, idx+1)
			c.inst.Events().Notify(TypingEvent{Typing: strings.Join(c.typing, ", ")})
		}
		return nil
	})
}

// SetTyping records whether user is typing and publishes who is.
func (c *Chat) SetTyping(ctx context.Context, user string, typing bool) error {
	user, err := normalizeUser(user)
	if err != nil {
		return err
	}
	return c.inst.Do(ctx, func([]Message) error {
		idx := slices.Index(c.typing, user)
		switch {
		case typing && idx < 0:
			c.typing = append(c.typing, user)
		case !typing && idx >= 0:
			c.typing = slices.Delete(c.typing, idx, idx+1)
		}
		c.inst.Events().Notify(TypingEvent{Typing: strings.Join(c.typing, ", ")})
		return nil
	})
}

// SendMessage appends a message, persists the log and publishes it.
func (c *Chat) SendMessage(ctx context.Context, user string, content string) ([]Message, error) {
	user, err := normalizeUser(user)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.New(apperrors.CodeChatMessageEmpty, "message content is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageRunes {
		return nil, apperrors.WithMetadata(apperrors.CodeChatMessageTooLong, "message content is too long", map[string]string{
			"max_runes": "2000",
		})
	}

	log, err := c.inst.Apply(ctx, func(log []Message) ([]Message, bool, error) {
		msgID, err := c.newID()
		if err != nil {
			return nil, false, err
		}
		msg := Message{
			ID:        msgID,
			User:      user,
			Content:   content,
			Timestamp: c.now().UTC(),
		}
		return append(slices.Clip(log), msg), true, nil
	}, func(log []Message) {
		c.inst.Events().Notify(MessageEvent{Messages: log})
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(log), nil
}

// Messages returns the log in send order.
func (c *Chat) Messages(ctx context.Context) ([]Message, error) {
	log, err := c.inst.State(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(log), nil
}

// Users returns the connected users in join order.
func (c *Chat) Users(ctx context.Context) ([]string, error) {
	if err := c.inst.Load(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(*c.usersView.Load()), nil
}

// Watch subscribes to messages, typing and presence changes made after the
// call.
func (c *Chat) Watch() *watch.Subscription[Event] {
	return c.inst.Events().Subscribe()
}

// setUsers replaces the presence list. Published slices are never mutated
// afterward, so readers and events can share them.
func (c *Chat) setUsers(users []string) {
	c.users = users
	c.usersView.Store(&users)
}

func normalizeUser(user string) (string, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return "", apperrors.New(apperrors.CodeChatUserEmpty, "user is required")
	}
	return user, nil
}
