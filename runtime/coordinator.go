package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// DefaultHistoryLimit is also the most a history may hold.
const DefaultHistoryLimit = 50

// reactionStripes bounds the locks that keep reaction commits and their broadcasts in one order.
const reactionStripes = 64

type UploadScope string

const (
	// UploadRoom broadcasts an uploaded file to the uploader's room only.
	UploadRoom UploadScope = "room"
	// UploadAll broadcasts it to every connection.
	UploadAll UploadScope = "all"
)

func ParseUploadScope(raw string) UploadScope {
	if UploadScope(strings.ToLower(strings.TrimSpace(raw))) == UploadAll {
		return UploadAll
	}
	return UploadRoom
}

type Settings struct {
	HistoryLimit     int
	MaxMessageLength int
	TypingScope      TypingScope
	UploadScope      UploadScope
	SeedRooms        []string
}

// Coordinator owns the chat state: room directory, room membership moves and typing set.
// Every state transition happens in one critical section on mu, together with the
// publication of the events describing it, so the fanout sees them in commit order.
// Store calls are made outside mu; whatever they rely on is checked again afterwards.
//
// Lock order is connection lock, then reaction stripe, then mu, then the registry's own lock.
type Coordinator struct {
	mu         sync.Mutex
	reactions  [reactionStripes]sync.Mutex
	log        *slog.Logger
	registry   contract.IRegistry
	directory  *Directory
	typing     *TypingSet
	repository repositories.IMessageRepository
	publisher  contract.Publisher
	validate   *validator.Validate
	settings   Settings
	locks      sync.Map // map connection -> *sync.Mutex
}

func NewCoordinator(log *slog.Logger, registry contract.IRegistry,
	repository repositories.IMessageRepository, publisher contract.Publisher, settings Settings) *Coordinator {
	if settings.HistoryLimit <= 0 || settings.HistoryLimit > DefaultHistoryLimit {
		settings.HistoryLimit = DefaultHistoryLimit
	}
	return &Coordinator{
		log:        log,
		registry:   registry,
		directory:  NewDirectory(settings.SeedRooms...),
		typing:     NewTypingSet(settings.TypingScope),
		repository: repository,
		publisher:  publisher,
		validate:   validator.New(),
		settings:   settings,
	}
}

// Dispatch routes an inbound command of a connection.
// A failed command is acknowledged to its sender with an error event.
func (c *Coordinator) Dispatch(ctx context.Context, connectionID string, cmd domain.Command) error {
	err := c.dispatch(ctx, connectionID, cmd)
	if err != nil {
		c.log.Debug("Command failed", "connection", connectionID, "event", cmd.EventName(), "error", err)
		c.publish(ctx, event.ToConnections(connectionID), event.Failure{
			Event:   cmd.EventName(),
			Code:    errors.Code(err),
			Message: err.Error(),
		})
	}
	return err
}

func (c *Coordinator) dispatch(ctx context.Context, connectionID string, cmd domain.Command) error {
	if err := c.validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	switch cmd := cmd.(type) {
	case domain.JoinRoomCommand:
		return c.JoinRoom(ctx, connectionID, cmd.Room)
	case domain.CreateRoomCommand:
		return c.CreateRoom(ctx, connectionID, cmd.Room)
	case domain.DeleteRoomCommand:
		return c.DeleteRoom(ctx, connectionID, cmd.Room)
	case domain.SendMessageCommand:
		_, err := c.SendMessage(ctx, connectionID, cmd.Body)
		return err
	case domain.PrivateMessageCommand:
		return c.SendPrivateMessage(ctx, connectionID, cmd.To, cmd.Body)
	case domain.ReactCommand:
		messageID, err := uuid.Parse(cmd.MessageID)
		if err != nil {
			return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
		}
		return c.ToggleReaction(ctx, connectionID, messageID, cmd.Emoji)
	case domain.TypingCommand:
		return c.SetTyping(ctx, connectionID, cmd.IsTyping)
	default:
		return errors.ErrUnknownEvent
	}
}

// Connect registers a new connection into General and sends it the initial state.
func (c *Coordinator) Connect(ctx context.Context, connectionID, username string, sink contract.EventSink) (domain.Connection, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.Connection{}, errors.ErrAuthenticationFailed
	}
	lock := c.lockConnection(connectionID)
	defer lock.Unlock()

	conn := domain.Connection{ID: connectionID, Username: username, Room: domain.General}
	c.mu.Lock()
	if err := c.registry.Register(conn, sink); err != nil {
		c.mu.Unlock()
		return domain.Connection{}, err
	}
	c.publish(ctx, event.ToConnections(connectionID), event.Connected{ID: connectionID, Username: username})
	c.publish(ctx, event.ToConnections(connectionID), event.RoomList{Rooms: c.directory.Names()})
	c.publishPresence(ctx, domain.General)
	c.mu.Unlock()

	c.log.Info("Connection registered", "connection", connectionID, "username", username)
	if c.sendHistory(ctx, connectionID, domain.General) {
		c.publish(ctx, event.ToRoom(domain.General, connectionID),
			event.ReceiveMessage{Message: domain.JoinNotice(domain.General, username, time.Now().UTC())})
	}
	return conn, nil
}

// Disconnect forgets the connection. Unknown ids are ignored.
func (c *Coordinator) Disconnect(ctx context.Context, connectionID string) {
	lock := c.lockConnection(connectionID)
	defer func() {
		lock.Unlock()
		c.locks.Delete(connectionID)
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.registry.Unregister(connectionID)
	if !ok {
		return
	}
	c.publishPresence(ctx, conn.Room)
	c.publish(ctx, event.ToRoom(conn.Room),
		event.ReceiveMessage{Message: domain.LeaveNotice(conn.Room, conn.Username, time.Now().UTC())})
	if room, cleared := c.typing.Clear(connectionID); cleared {
		c.publishTyping(ctx, room)
	}
	c.log.Info("Connection unregistered", "connection", connectionID, "username", conn.Username, "room", conn.Room)
}

// JoinRoom switches the connection's room. Joining the current room resends presence and history.
func (c *Coordinator) JoinRoom(ctx context.Context, connectionID, room string) error {
	room = strings.TrimSpace(room)
	lock := c.lockConnection(connectionID)
	defer lock.Unlock()

	c.mu.Lock()
	if !c.directory.Exists(room) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", errors.ErrRoomNotFound, room)
	}
	old, ok := c.registry.SetRoom(connectionID, room)
	if !ok {
		c.mu.Unlock()
		return errors.ErrConnectionNotFound
	}
	if old != room {
		c.publishPresence(ctx, old)
		if left, moved := c.typing.Move(connectionID, room); moved && c.typing.Scope() == TypingRoom {
			c.publishTyping(ctx, left)
			c.publishTyping(ctx, room)
		}
	}
	c.publishPresence(ctx, room)
	c.mu.Unlock()

	c.sendHistory(ctx, connectionID, room)
	return nil
}

// CreateRoom adds a room; an existing name changes nothing and is not an error.
func (c *Coordinator) CreateRoom(ctx context.Context, connectionID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.ErrInvalidRoomName
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.directory.Create(name) {
		c.log.Info("Room created", "room", name, "by", connectionID)
		c.publish(ctx, event.ToAll(), event.RoomList{Rooms: c.directory.Names()})
	}
	return nil
}

// DeleteRoom removes a room, moves its members to General and purges its messages.
// Every migrated connection still alive receives General's history, then exactly one room_deleted.
func (c *Coordinator) DeleteRoom(ctx context.Context, connectionID, name string) error {
	name = strings.TrimSpace(name)
	lock := c.lockConnection(connectionID)
	defer lock.Unlock()

	c.mu.Lock()
	if err := c.directory.Delete(name); err != nil {
		c.mu.Unlock()
		return err
	}
	c.publish(ctx, event.ToAll(), event.RoomList{Rooms: c.directory.Names()})
	migrated := c.registry.MembersOf(name)
	typingMoved := false
	for _, member := range migrated {
		c.registry.SetRoom(member.ID, domain.General)
		if _, moved := c.typing.Move(member.ID, domain.General); moved {
			typingMoved = true
		}
	}
	if len(migrated) > 0 {
		c.publishPresence(ctx, domain.General)
	}
	if typingMoved && c.typing.Scope() == TypingRoom {
		c.publishTyping(ctx, domain.General)
	}
	c.mu.Unlock()
	c.log.Info("Room deleted", "room", name, "by", connectionID, "migrated", len(migrated))

	if len(migrated) > 0 {
		history, err := c.repository.GetMessages(ctx, domain.General, c.settings.HistoryLimit)
		if err != nil {
			c.log.Warn("General history unavailable for migrated connections", "room", name, "error", err)
		}

		c.mu.Lock()
		for _, member := range migrated {
			conn, ok := c.registry.Lookup(member.ID)
			if !ok {
				continue
			}
			if err == nil && conn.Room == domain.General {
				c.publish(ctx, event.ToConnections(member.ID), event.MessageHistory{Room: domain.General, Messages: history})
			}
			c.publish(ctx, event.ToConnections(member.ID), event.RoomDeleted{Room: name})
		}
		c.mu.Unlock()
	}

	c.purge(ctx, name)
	return nil
}

// SendMessage persists a message in the sender's current room and broadcasts it to that room.
func (c *Coordinator) SendMessage(ctx context.Context, connectionID, body string) (domain.Message, error) {
	if err := c.checkBody(body); err != nil {
		return domain.Message{}, err
	}
	lock := c.lockConnection(connectionID)
	defer lock.Unlock()

	conn, ok := c.registry.Lookup(connectionID)
	if !ok {
		return domain.Message{}, errors.ErrConnectionNotFound
	}
	return c.persistAndBroadcast(ctx, domain.Message{
		Sender:    conn.Username,
		SenderID:  conn.ID,
		Body:      body,
		Room:      conn.Room,
		Reactions: domain.Reactions{},
	}, event.ToRoom(conn.Room))
}

// SendPrivateMessage delivers an ephemeral message to the target and echoes it to the sender.
func (c *Coordinator) SendPrivateMessage(ctx context.Context, fromID, toID, body string) error {
	if err := c.checkBody(body); err != nil {
		return err
	}
	lock := c.lockConnection(fromID)
	defer lock.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	from, ok := c.registry.Lookup(fromID)
	if !ok {
		return errors.ErrConnectionNotFound
	}
	if _, ok := c.registry.Lookup(toID); !ok {
		return fmt.Errorf("%w: %s", errors.ErrConnectionNotFound, toID)
	}
	message := domain.Message{
		ID:        uuid.New(),
		Sender:    from.Username,
		SenderID:  from.ID,
		Body:      body,
		Private:   true,
		Reactions: domain.Reactions{},
		CreatedAt: time.Now().UTC(),
	}
	c.publish(ctx, event.ToConnections(toID, fromID), event.ReceiveMessage{Message: message})
	return nil
}

// SendFile records an uploaded file as a message of the uploader's room, General when the uploader is unknown.
// Uploads arrive over HTTP, outside the connection's own command order.
func (c *Coordinator) SendFile(ctx context.Context, uploaderID, username string, file domain.FileMeta) (domain.Message, error) {
	room := domain.General
	username = strings.TrimSpace(username)
	if conn, ok := c.registry.Lookup(uploaderID); ok {
		room, username = conn.Room, conn.Username
	}
	if username == "" {
		return domain.Message{}, fmt.Errorf("%w: missing username", errors.ErrUploadRejected)
	}

	target := lo.Ternary(c.settings.UploadScope == UploadAll, event.ToAll(), event.ToRoom(room))
	message, err := c.persistAndBroadcast(ctx, domain.Message{
		Sender:    username,
		SenderID:  uploaderID,
		Room:      room,
		FileMeta:  &file,
		Reactions: domain.Reactions{},
	}, target)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %w", errors.ErrUploadFailed, err)
	}
	return message, nil
}

// ToggleReaction flips the user's mark on a persisted message and broadcasts the full reaction map.
// Toggles of one message are broadcast in the order the store committed them.
func (c *Coordinator) ToggleReaction(ctx context.Context, connectionID string, messageID uuid.UUID, emoji string) error {
	lock := c.lockConnection(connectionID)
	defer lock.Unlock()

	conn, ok := c.registry.Lookup(connectionID)
	if !ok {
		return errors.ErrConnectionNotFound
	}
	stripe := &c.reactions[messageID[len(messageID)-1]%reactionStripes]
	stripe.Lock()
	defer stripe.Unlock()
	updated, err := c.repository.MutateMessage(ctx, messageID, func(m *domain.Message) error {
		m.Reactions.Toggle(emoji, conn.Username)
		return nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.publish(ctx, event.ToRoom(updated.Room), event.MessageUpdated{
		MessageID: updated.ID,
		Room:      updated.Room,
		Reactions: updated.Reactions.Clone(),
	})
	return nil
}

// SetTyping updates the typing set and broadcasts the list when it changed.
func (c *Coordinator) SetTyping(ctx context.Context, connectionID string, isTyping bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.registry.Lookup(connectionID)
	if !ok {
		return errors.ErrConnectionNotFound
	}
	if c.typing.Set(connectionID, conn.Username, conn.Room, isTyping) {
		c.publishTyping(ctx, conn.Room)
	}
	return nil
}

func (c *Coordinator) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.directory.Names()
}

func (c *Coordinator) Members(room string) ([]domain.Member, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.directory.Exists(room) {
		return nil, errors.ErrRoomNotFound
	}
	return c.registry.MembersOf(room), nil
}

// History returns the most recent messages of a room, oldest first.
func (c *Coordinator) History(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	c.mu.Lock()
	exists := c.directory.Exists(room)
	c.mu.Unlock()
	if !exists {
		return nil, errors.ErrRoomNotFound
	}
	if limit <= 0 || limit > c.settings.HistoryLimit {
		limit = c.settings.HistoryLimit
	}
	return c.repository.GetMessages(ctx, room, limit)
}

func (c *Coordinator) ConnectionCount() int {
	return c.registry.Count()
}

// persistAndBroadcast stores the message then publishes it, unless its room vanished during the write.
func (c *Coordinator) persistAndBroadcast(ctx context.Context, message domain.Message, target event.Target) (domain.Message, error) {
	stored, err := c.repository.StoreMessage(ctx, message)
	if err != nil {
		c.log.Error("Message not persisted", "room", message.Room, "sender", message.Sender, "error", err)
		return domain.Message{}, err
	}

	c.mu.Lock()
	if !c.directory.Exists(stored.Room) {
		c.mu.Unlock()
		// the room was deleted while the message was written, drop what may have outlived the purge
		c.purge(ctx, stored.Room)
		return domain.Message{}, fmt.Errorf("%w: %s", errors.ErrRoomNotFound, stored.Room)
	}
	c.publish(ctx, target, event.ReceiveMessage{Message: stored, Persisted: true})
	c.mu.Unlock()
	return stored, nil
}

// sendHistory delivers a room's history if the connection is still in that room once the store answered.
func (c *Coordinator) sendHistory(ctx context.Context, connectionID, room string) bool {
	messages, err := c.repository.GetMessages(ctx, room, c.settings.HistoryLimit)
	if err != nil {
		c.log.Warn("History unavailable", "connection", connectionID, "room", room, "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.registry.Lookup(connectionID)
	if !ok || conn.Room != room {
		c.log.Debug("History discarded, connection moved or left", "connection", connectionID, "room", room)
		return false
	}
	if err == nil {
		c.publish(ctx, event.ToConnections(connectionID), event.MessageHistory{Room: room, Messages: messages})
	}
	return true
}

func (c *Coordinator) purge(ctx context.Context, room string) {
	if _, err := c.repository.DeleteRoom(ctx, room); err != nil {
		c.log.Error("Room messages not purged", "room", room, "error", err)
	}
	c.publish(ctx, event.ToNone(), event.RoomPurged{Room: room})
}

func (c *Coordinator) checkBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return errors.ErrEmptyBody
	}
	if c.settings.MaxMessageLength > 0 {
		if err := c.validate.Var(body, fmt.Sprintf("max=%d", c.settings.MaxMessageLength)); err != nil {
			return fmt.Errorf("%w: more than %d characters", errors.ErrMessageTooLong, c.settings.MaxMessageLength)
		}
	}
	return nil
}

// publishPresence must be called with mu held.
func (c *Coordinator) publishPresence(ctx context.Context, room string) {
	c.publish(ctx, event.ToRoom(room), event.UserList{Room: room, Members: c.registry.MembersOf(room)})
}

// publishTyping must be called with mu held.
func (c *Coordinator) publishTyping(ctx context.Context, room string) {
	c.publisher.Publish(ctx, c.typing.Envelope(room))
}

func (c *Coordinator) publish(ctx context.Context, target event.Target, evt event.DomainEvent) {
	c.publisher.Publish(ctx, event.NewEnvelope(target, evt))
}

func (c *Coordinator) lockConnection(connectionID string) *sync.Mutex {
	l, _ := c.locks.LoadOrStore(connectionID, &sync.Mutex{})
	lock := l.(*sync.Mutex)
	lock.Lock()
	return lock
}
