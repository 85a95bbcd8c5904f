package chat

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/zhouzirui/research-agent/internal/model/chat"
)

// Session is a live conversation owning exactly one bot.
type Session struct {
	ID        string
	CreatedAt time.Time
	Bot       *Bot
}

// Info summarises the session.
func (s *Session) Info() chat.SessionInfo {
	return chat.SessionInfo{
		ID:           s.ID,
		MessageCount: s.Bot.Len(),
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
	}
}

// BotFactory builds the bot for a new session.
type BotFactory func() *Bot

// Service keeps sessions in process memory. Sessions never expire; they
// live until deleted or the process exits.
type Service struct {
	sessions *cache.Cache
	newBot   BotFactory
	now      func() time.Time
}

// NewService bootstraps the in-memory session service.
func NewService(newBot BotFactory) *Service {
	return &Service{
		sessions: cache.New(cache.NoExpiration, 0),
		newBot:   newBot,
		now:      time.Now,
	}
}

// CreateSession provisions a session under a fresh identifier.
func (s *Service) CreateSession(_ context.Context) (*Session, error) {
	for {
		session := s.build(uuid.NewString())
		if err := s.sessions.Add(session.ID, session, cache.NoExpiration); err == nil {
			return session, nil
		}
	}
}

// GetOrCreate returns the session for id, creating it on first use. An empty
// id always yields a new session. The boolean reports whether it was created.
func (s *Service) GetOrCreate(ctx context.Context, id string) (*Session, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		session, err := s.CreateSession(ctx)
		return session, err == nil, err
	}

	if session, ok := s.lookup(id); ok {
		return session, false, nil
	}

	session := s.build(id)
	if err := s.sessions.Add(id, session, cache.NoExpiration); err != nil {
		// Lost the race to a concurrent request for the same id.
		if existing, ok := s.lookup(id); ok {
			return existing, false, nil
		}
		return nil, false, err
	}
	return session, true, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, id string) (*Session, error) {
	session, ok := s.lookup(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// DeleteSession removes a session and its history.
func (s *Service) DeleteSession(_ context.Context, id string) error {
	if _, ok := s.lookup(id); !ok {
		return ErrSessionNotFound
	}
	s.sessions.Delete(id)
	return nil
}

// ListSessions returns every live session, oldest first.
func (s *Service) ListSessions(_ context.Context) []chat.SessionInfo {
	items := s.sessions.Items()

	sessions := make([]*Session, 0, len(items))
	for _, item := range items {
		if session, ok := item.Object.(*Session); ok {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	infos := make([]chat.SessionInfo, len(sessions))
	for i, session := range sessions {
		infos[i] = session.Info()
	}
	return infos
}

// Count reports the number of live sessions.
func (s *Service) Count() int {
	return s.sessions.ItemCount()
}

// Chat routes a message to the session's bot, creating the session on
// first use. The returned session id is the one the reply belongs to.
func (s *Service) Chat(ctx context.Context, sessionID, message string) (string, string, error) {
	session, _, err := s.GetOrCreate(ctx, sessionID)
	if err != nil {
		return "", "", err
	}

	reply, err := session.Bot.Chat(ctx, message)
	return reply, session.ID, err
}

// ClearHistory empties a session's conversation.
func (s *Service) ClearHistory(ctx context.Context, id string) error {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	session.Bot.Clear()
	return nil
}

// History returns the stored messages for a session.
func (s *Service) History(ctx context.Context, id string) ([]chat.Message, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return session.Bot.History(), nil
}

func (s *Service) build(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: s.now().UTC(),
		Bot:       s.newBot(),
	}
}

func (s *Service) lookup(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	x, found := s.sessions.Get(id)
	if !found {
		return nil, false
	}
	session, ok := x.(*Session)
	return session, ok
}
