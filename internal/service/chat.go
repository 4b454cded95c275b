package service

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/agent"
	"github.com/chirino/movie-service/internal/convlock"
	"github.com/chirino/movie-service/internal/model"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
	"github.com/chirino/movie-service/internal/session"
)

// ChatRequest is one user message. Either id may be empty; see Chat.
type ChatRequest struct {
	UserID  string `json:"user_id,omitempty"`
	ChatID  string `json:"chat_id,omitempty"`
	Message string `json:"message"`
}

// ChatResponse carries the agent's reply and the effective ids.
type ChatResponse struct {
	UserID    string `json:"user_id"`
	ChatID    string `json:"chat_id"`
	Message   string `json:"message"`
	Reply     string `json:"reply"`
	IsNewUser bool   `json:"is_new_user"`
	IsNewChat bool   `json:"is_new_chat"`
}

// HistoryTurn is one entry of a conversation history response.
type HistoryTurn struct {
	Role    model.Role `json:"role"`
	Content string     `json:"content"`
}

// HistoryResponse lists a chat's turns in order.
type HistoryResponse struct {
	UserID              string        `json:"user_id"`
	ChatID              string        `json:"chat_id"`
	ConversationHistory []HistoryTurn `json:"conversation_history"`
}

// StatusResponse confirms an archive or unarchive.
type StatusResponse struct {
	Message string           `json:"message"`
	UserID  string           `json:"user_id"`
	ChatID  string           `json:"chat_id"`
	Status  model.ChatStatus `json:"status"`
}

// ChatService ties identity resolution, per-conversation locking, the turn
// log and the agent together.
type ChatService struct {
	sessions      *session.Layer
	conversations registrystore.ConversationStore
	locks         *convlock.Registry
	agent         agent.Agent
}

// NewChatService creates a chat service.
func NewChatService(sessions *session.Layer, conversations registrystore.ConversationStore, locks *convlock.Registry, a agent.Agent) *ChatService {
	return &ChatService{sessions: sessions, conversations: conversations, locks: locks, agent: a}
}

// Chat resolves identity from the request shape, then appends the user
// message and the agent's reply to the conversation under its lock:
//   - no ids: a new user and chat are created
//   - user only: the user must exist; a new chat is created
//   - chat only: rejected
//   - both: the pair must exist and the chat must be active, checked again
//     once the lock is held so an archive cannot slip in between
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, &registrystore.ValidationError{Field: "message", Message: "must not be empty"}
	}
	resp := &ChatResponse{Message: req.Message}

	switch {
	case req.ChatID != "" && req.UserID == "":
		return nil, &registrystore.ValidationError{Field: "user_id", Message: "user_id is required when chat_id is provided"}

	case req.ChatID == "":
		userID, created, err := s.sessions.ResolveOrCreateUser(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		chatID, err := s.sessions.CreateChat(ctx, userID)
		if err != nil {
			return nil, err
		}
		resp.UserID, resp.ChatID, resp.IsNewUser, resp.IsNewChat = userID, chatID, created, true

	default:
		if err := s.requireActive(ctx, req.UserID, req.ChatID); err != nil {
			return nil, err
		}
		resp.UserID, resp.ChatID = req.UserID, req.ChatID
	}

	reply, err := convlock.With(ctx, s.locks, resp.ChatID, func(ctx context.Context) (string, error) {
		if !resp.IsNewChat {
			if err := s.requireActive(ctx, resp.UserID, resp.ChatID); err != nil {
				return "", err
			}
		}
		history, err := s.conversations.ListTurns(ctx, resp.ChatID)
		if err != nil {
			return "", &registrystore.UnavailableError{Backend: "conversations", Err: err}
		}
		start := time.Now()
		reply, err := s.agent.Reply(ctx, history, message)
		if err != nil {
			return "", &registrystore.UnavailableError{Backend: "agent", Err: err}
		}
		log.Debug("Agent replied", "chatId", resp.ChatID, "turns", len(history), "duration", time.Since(start))
		if _, err := s.conversations.AppendTurns(ctx, resp.ChatID, []model.Turn{
			{Role: model.RoleUser, Content: message},
			{Role: model.RoleAssistant, Content: reply},
		}); err != nil {
			return "", err
		}
		return reply, nil
	})
	if err != nil {
		return nil, err
	}
	resp.Reply = reply
	return resp, nil
}

// History returns the turns of an active chat.
func (s *ChatService) History(ctx context.Context, userID, chatID string) (*HistoryResponse, error) {
	if err := requireIDs(userID, chatID); err != nil {
		return nil, err
	}
	if err := s.requireActive(ctx, userID, chatID); err != nil {
		return nil, err
	}
	turns, err := convlock.With(ctx, s.locks, chatID, func(ctx context.Context) ([]model.Turn, error) {
		if err := s.requireActive(ctx, userID, chatID); err != nil {
			return nil, err
		}
		return s.conversations.ListTurns(ctx, chatID)
	})
	if err != nil {
		return nil, err
	}
	out := make([]HistoryTurn, 0, len(turns))
	for _, t := range turns {
		if t.Content == "" {
			continue
		}
		out = append(out, HistoryTurn{Role: t.Role, Content: t.Content})
	}
	return &HistoryResponse{UserID: userID, ChatID: chatID, ConversationHistory: out}, nil
}

// Archive moves an active chat to archived.
func (s *ChatService) Archive(ctx context.Context, userID, chatID string) (*StatusResponse, error) {
	return s.transition(ctx, userID, chatID, model.ChatStatusArchived, "Chat archived successfully")
}

// Unarchive moves an archived chat back to active.
func (s *ChatService) Unarchive(ctx context.Context, userID, chatID string) (*StatusResponse, error) {
	return s.transition(ctx, userID, chatID, model.ChatStatusActive, "Chat unarchived successfully")
}

// transition changes the status while holding the conversation lock, so it
// waits for an in-flight exchange and is seen by the next one. Ownership is
// checked first so unknown chats never get a lock.
func (s *ChatService) transition(ctx context.Context, userID, chatID string, next model.ChatStatus, message string) (*StatusResponse, error) {
	if err := requireIDs(userID, chatID); err != nil {
		return nil, err
	}
	if _, err := s.sessions.ValidateChatPair(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return convlock.With(ctx, s.locks, chatID, func(ctx context.Context) (*StatusResponse, error) {
		return s.applyTransition(ctx, userID, chatID, next, message)
	})
}

func (s *ChatService) applyTransition(ctx context.Context, userID, chatID string, next model.ChatStatus, message string) (*StatusResponse, error) {
	current, err := s.sessions.ValidateChatPair(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if !current.CanTransitionTo(next) {
		return nil, &registrystore.ConflictError{Message: "chat " + chatID + " is already " + string(current)}
	}
	changed, err := s.sessions.SetStatus(ctx, chatID, userID, next)
	if err != nil {
		return nil, err
	}
	if !changed {
		// The cached pair outlived the durable row.
		s.sessions.Forget(ctx, userID, chatID)
		return nil, &registrystore.NotFoundError{Resource: "chat", ID: chatID}
	}
	return &StatusResponse{Message: message, UserID: userID, ChatID: chatID, Status: next}, nil
}

func (s *ChatService) requireActive(ctx context.Context, userID, chatID string) error {
	status, err := s.sessions.ValidateChatPair(ctx, userID, chatID)
	if err != nil {
		return err
	}
	if status != model.ChatStatusActive {
		return &registrystore.NotActiveError{ChatID: chatID, Status: status}
	}
	return nil
}

func requireIDs(userID, chatID string) error {
	if userID == "" {
		return &registrystore.ValidationError{Field: "user_id", Message: "required"}
	}
	if chatID == "" {
		return &registrystore.ValidationError{Field: "chat_id", Message: "required"}
	}
	return nil
}
