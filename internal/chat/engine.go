package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playgrid/backend/internal/config"
	"github.com/playgrid/backend/internal/models"
)

var (
	ErrRoomNotFound     = errors.New("chat room not found")
	ErrNotParticipant   = errors.New("not a participant of this room")
	ErrEmptyMessage     = errors.New("message body is empty")
	ErrMessageTooLong   = errors.New("message body exceeds the length cap")
	ErrRecipientOffline = errors.New("recipient is offline")
)

// GlobalRoomID names the single global room that exists for the process
// lifetime.
const GlobalRoomID = "global"

// Kind classifies a chat room.
type Kind string

const (
	KindGlobal  Kind = "global"
	KindGame    Kind = "game"
	KindPrivate Kind = "private"
)

// MessageKind classifies a chat message.
const (
	MessageKindChat    = "message"
	MessageKindSystem  = "system"
	MessageKindPrivate = "private"
)

// Message is one chat message.
type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	Kind       string    `json:"kind"`
	TargetID   string    `json:"target_id,omitempty"` // private messages only
	CreatedAt  time.Time `json:"created_at"`
}

// Room is a named message channel with a bounded buffer (oldest evicted past
// the cap).
type Room struct {
	ID           string
	Name         string
	Kind         Kind
	Participants map[string]string // userID -> username
	Messages     []Message
	CreatedAt    time.Time
	LastActivity time.Time

	typing map[string]*time.Timer // userID -> auto-stop timer
}

// Presence answers "is this identity currently reachable". Implemented by the
// connection registry; consulted, never mutated, here.
type Presence interface {
	Online(userID string) bool
}

// Archiver persists messages out of band. Failures never block delivery.
type Archiver interface {
	ArchiveMessage(ctx context.Context, rec models.ChatMessageRecord) error
}

// Engine owns all chat rooms. The global room lives for the process lifetime;
// game rooms are created lazily on first join and deleted when the last
// participant leaves.
type Engine struct {
	cfg      *config.Config
	presence Presence
	archive  Archiver

	mu    sync.Mutex
	rooms map[string]*Room

	// onTypingStop fires when a server-owned typing timer lapses.
	onTypingStop func(roomID, userID string, recipients []string)
}

func NewEngine(cfg *config.Config, presence Presence, archive Archiver) *Engine {
	e := &Engine{
		cfg:      cfg,
		presence: presence,
		archive:  archive,
		rooms:    make(map[string]*Room),
	}
	e.rooms[GlobalRoomID] = newRoom(GlobalRoomID, "Global", KindGlobal)
	return e
}

func newRoom(id, name string, kind Kind) *Room {
	now := time.Now()
	return &Room{
		ID:           id,
		Name:         name,
		Kind:         kind,
		Participants: make(map[string]string),
		CreatedAt:    now,
		LastActivity: now,
		typing:       make(map[string]*time.Timer),
	}
}

// OnTypingStop registers the typing auto-stop callback.
func (e *Engine) OnTypingStop(fn func(roomID, userID string, recipients []string)) {
	e.onTypingStop = fn
}

// kindForRoomID infers the room kind for lazily-created rooms.
func kindForRoomID(roomID string) Kind {
	if strings.HasPrefix(roomID, "room_") {
		return KindGame
	}
	return KindPrivate
}

// JoinResult is the outcome of a join: current participants plus recipients
// for the join broadcast.
type JoinResult struct {
	RoomID       string
	Name         string
	Kind         Kind
	Participants []string // usernames
	Recipients   []string // userIDs to notify
}

// JoinRoom adds the caller to the participant set, creating non-global rooms
// lazily on first join.
func (e *Engine) JoinRoom(userID, username, roomID string) (JoinResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	room, ok := e.rooms[roomID]
	if !ok {
		room = newRoom(roomID, roomID, kindForRoomID(roomID))
		e.rooms[roomID] = room
		log.Printf("[CHAT] Room created lazily: %s kind=%s", roomID, room.Kind)
	}

	room.Participants[userID] = username
	room.LastActivity = time.Now()

	return JoinResult{
		RoomID:       room.ID,
		Name:         room.Name,
		Kind:         room.Kind,
		Participants: room.participantNames(),
		Recipients:   room.recipientIDs(),
	}, nil
}

// LeaveRoom removes the caller from the participant set. Leaving a room not
// joined is a no-op. Non-global rooms are deleted when emptied.
func (e *Engine) LeaveRoom(userID, roomID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	room, ok := e.rooms[roomID]
	if !ok {
		return nil
	}

	delete(room.Participants, userID)
	e.clearTypingLocked(room, userID)
	room.LastActivity = time.Now()

	if room.Kind != KindGlobal && len(room.Participants) == 0 {
		delete(e.rooms, roomID)
		log.Printf("[CHAT] Room removed (last participant left): %s", roomID)
		return nil
	}
	return room.recipientIDs()
}

// LeaveAll removes the user from every room. Used on disconnect.
func (e *Engine) LeaveAll(userID string) map[string][]string {
	e.mu.Lock()
	roomIDs := make([]string, 0, len(e.rooms))
	for id, room := range e.rooms {
		if _, ok := room.Participants[userID]; ok {
			roomIDs = append(roomIDs, id)
		}
	}
	e.mu.Unlock()

	out := make(map[string][]string, len(roomIDs))
	for _, id := range roomIDs {
		out[id] = e.LeaveRoom(userID, id)
	}
	return out
}

// SendResult is an accepted message plus its delivery set.
type SendResult struct {
	Message    Message
	Recipients []string // userIDs
}

// SendMessage validates, buffers, and prepares a room message for broadcast.
// Non-global rooms require participancy.
func (e *Engine) SendMessage(userID, username, roomID, body string) (SendResult, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return SendResult{}, ErrEmptyMessage
	}
	if len(body) > e.cfg.ChatMaxMessageLen {
		return SendResult{}, ErrMessageTooLong
	}

	e.mu.Lock()
	room, ok := e.rooms[roomID]
	if !ok {
		e.mu.Unlock()
		return SendResult{}, ErrRoomNotFound
	}
	if room.Kind != KindGlobal {
		if _, ok := room.Participants[userID]; !ok {
			e.mu.Unlock()
			return SendResult{}, ErrNotParticipant
		}
	}

	msg := Message{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		AuthorID:   userID,
		AuthorName: username,
		Body:       body,
		Kind:       MessageKindChat,
		CreatedAt:  time.Now(),
	}
	room.append(msg, e.cfg.ChatBufferCap)
	room.LastActivity = msg.CreatedAt
	e.clearTypingLocked(room, userID)
	recipients := room.recipientIDs()
	e.mu.Unlock()

	e.archiveAsync(msg)
	return SendResult{Message: msg, Recipients: recipients}, nil
}

// SystemMessage buffers a system notice in the room and returns its delivery
// set.
func (e *Engine) SystemMessage(roomID, body string) (SendResult, error) {
	e.mu.Lock()
	room, ok := e.rooms[roomID]
	if !ok {
		e.mu.Unlock()
		return SendResult{}, ErrRoomNotFound
	}
	msg := Message{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		AuthorID:   "system",
		AuthorName: "system",
		Body:       body,
		Kind:       MessageKindSystem,
		CreatedAt:  time.Now(),
	}
	room.append(msg, e.cfg.ChatBufferCap)
	room.LastActivity = msg.CreatedAt
	recipients := room.recipientIDs()
	e.mu.Unlock()

	return SendResult{Message: msg, Recipients: recipients}, nil
}

// PrivateMessage is delivered to the sender and the resolved recipient only.
// An unreachable target is a distinct recipient-offline failure.
func (e *Engine) PrivateMessage(userID, username, targetUserID, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, ErrEmptyMessage
	}
	if len(body) > e.cfg.ChatMaxMessageLen {
		return Message{}, ErrMessageTooLong
	}
	if e.presence == nil || !e.presence.Online(targetUserID) {
		return Message{}, ErrRecipientOffline
	}

	msg := Message{
		ID:         uuid.NewString(),
		AuthorID:   userID,
		AuthorName: username,
		Body:       body,
		Kind:       MessageKindPrivate,
		TargetID:   targetUserID,
		CreatedAt:  time.Now(),
	}
	e.archiveAsync(msg)
	return msg, nil
}

// History returns a bounded slice of the room buffer, newest last. The global
// room requires no participancy; all other kinds do.
func (e *Engine) History(userID, roomID string, limit, offset int) ([]Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	room, ok := e.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.Kind != KindGlobal {
		if _, ok := room.Participants[userID]; !ok {
			return nil, ErrNotParticipant
		}
	}

	if limit <= 0 || limit > e.cfg.ChatBufferCap {
		limit = e.cfg.ChatBufferCap
	}
	if offset < 0 {
		offset = 0
	}

	// offset counts back from the newest message
	end := len(room.Messages) - offset
	if end <= 0 {
		return []Message{}, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]Message, end-start)
	copy(out, room.Messages[start:end])
	return out, nil
}

// TypingStart broadcasts an ephemeral typing indicator and arms the
// server-owned auto-stop timer. The client is not trusted to send the stop.
func (e *Engine) TypingStart(userID, roomID string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	room, ok := e.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if _, ok := room.Participants[userID]; !ok && room.Kind != KindGlobal {
		return nil, ErrNotParticipant
	}

	if t, ok := room.typing[userID]; ok {
		t.Stop()
	}
	idle := time.Duration(e.cfg.TypingIdleSecs) * time.Second
	room.typing[userID] = time.AfterFunc(idle, func() { e.autoStopTyping(roomID, userID) })

	return room.recipientIDs(), nil
}

// TypingStop cancels the indicator explicitly.
func (e *Engine) TypingStop(userID, roomID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	room, ok := e.rooms[roomID]
	if !ok {
		return nil
	}
	if !e.clearTypingLocked(room, userID) {
		return nil
	}
	return room.recipientIDs()
}

func (e *Engine) clearTypingLocked(room *Room, userID string) bool {
	t, ok := room.typing[userID]
	if !ok {
		return false
	}
	t.Stop()
	delete(room.typing, userID)
	return true
}

func (e *Engine) autoStopTyping(roomID, userID string) {
	e.mu.Lock()
	room, ok := e.rooms[roomID]
	if !ok {
		e.mu.Unlock()
		return
	}
	if _, ok := room.typing[userID]; !ok {
		e.mu.Unlock()
		return
	}
	delete(room.typing, userID)
	recipients := room.recipientIDs()
	e.mu.Unlock()

	if e.onTypingStop != nil {
		e.onTypingStop(roomID, userID, recipients)
	}
}

// Members returns the usernames of the room's participants. Used by the
// fallback surface.
func (e *Engine) Members(roomID string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	room, ok := e.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room.participantNames(), nil
}

// CleanupOldMessages purges buffered messages older than the retention window
// across all rooms. Returns the purge count.
func (e *Engine) CleanupOldMessages() int {
	cutoff := time.Now().Add(-time.Duration(e.cfg.ChatRetentionMinutes) * time.Minute)

	e.mu.Lock()
	defer e.mu.Unlock()

	purged := 0
	for _, room := range e.rooms {
		kept := room.Messages[:0]
		for _, m := range room.Messages {
			if m.CreatedAt.After(cutoff) {
				kept = append(kept, m)
			} else {
				purged++
			}
		}
		room.Messages = kept
	}
	if purged > 0 {
		log.Printf("[CHAT] Purged %d old messages", purged)
	}
	return purged
}

// RoomCount returns the number of live chat rooms.
func (e *Engine) RoomCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rooms)
}

func (e *Engine) archiveAsync(msg Message) {
	if e.archive == nil {
		return
	}
	rec := models.ChatMessageRecord{
		ID:         msg.ID,
		RoomID:     msg.RoomID,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		Kind:       msg.Kind,
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.archive.ArchiveMessage(ctx, rec); err != nil {
			log.Printf("[DB] ArchiveMessage failed for message %s: %v", rec.ID, err)
		}
	}()
}

// append enforces ring-buffer semantics: newest retained, oldest evicted past
// the cap.
func (r *Room) append(msg Message, limit int) {
	r.Messages = append(r.Messages, msg)
	if limit > 0 && len(r.Messages) > limit {
		r.Messages = r.Messages[len(r.Messages)-limit:]
	}
}

func (r *Room) participantNames() []string {
	out := make([]string, 0, len(r.Participants))
	for _, name := range r.Participants {
		out = append(out, name)
	}
	return out
}

func (r *Room) recipientIDs() []string {
	out := make([]string, 0, len(r.Participants))
	for id := range r.Participants {
		out = append(out, id)
	}
	return out
}
