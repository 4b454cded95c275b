// Package chat mounts the conversational endpoints.
package chat

import (
	"context"
	"net/http"

	"github.com/chirino/movie-service/internal/plugin/route/httperr"
	"github.com/chirino/movie-service/internal/service"
	"github.com/gin-gonic/gin"
)

type chatRef struct {
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id"`
}

// MountRoutes mounts the chat routes.
func MountRoutes(r *gin.Engine, chats *service.ChatService) {
	g := r.Group("/chat")

	g.POST("", func(c *gin.Context) {
		var req service.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "chat", err)
			return
		}
		resp, err := chats.Chat(c.Request.Context(), req)
		if err != nil {
			httperr.Handle(c, "chat", err)
			return
		}
		c.JSON(http.StatusOK, resp)
	})

	g.POST("/history", withRef("chat_history", func(ctx context.Context, ref chatRef) (any, error) {
		return chats.History(ctx, ref.UserID, ref.ChatID)
	}))
	g.POST("/archive", withRef("chat_archive", func(ctx context.Context, ref chatRef) (any, error) {
		return chats.Archive(ctx, ref.UserID, ref.ChatID)
	}))
	g.POST("/unarchive", withRef("chat_unarchive", func(ctx context.Context, ref chatRef) (any, error) {
		return chats.Unarchive(ctx, ref.UserID, ref.ChatID)
	}))
}

func withRef(handler string, fn func(ctx context.Context, ref chatRef) (any, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ref chatRef
		if err := c.ShouldBindJSON(&ref); err != nil {
			httperr.BadRequest(c, handler, err)
			return
		}
		resp, err := fn(c.Request.Context(), ref)
		if err != nil {
			httperr.Handle(c, handler, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
