package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dayal123456/Lumico-ai/internal/model"
	"github.com/dayal123456/Lumico-ai/internal/model/chat"
	"github.com/dayal123456/Lumico-ai/internal/pkg/cache"
	"github.com/dayal123456/Lumico-ai/internal/pkg/ctxutil"
	"github.com/dayal123456/Lumico-ai/internal/service"
)

// ConversationHandler 对话管理处理器
type ConversationHandler struct {
	history *service.HistoryService
	cache   *cache.RedisCache // 可为空，watch 端点降级为只推初始快照
}

// NewConversationHandler 创建对话管理处理器
func NewConversationHandler(history *service.HistoryService, redisCache *cache.RedisCache) *ConversationHandler {
	return &ConversationHandler{
		history: history,
		cache:   redisCache,
	}
}

// List 获取对话列表（不含消息体，按更新时间倒序）
// @Summary      对话列表
// @Tags         对话管理
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/conversations [get]
func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}

	convs, err := h.history.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Code:    50001,
			Message: "Failed to list conversations",
			Detail:  err.Error(),
		})
		return
	}
	if convs == nil {
		convs = []*chat.Summary{}
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": convs,
		"total":         len(convs),
	})
}

// Get 获取对话详情（含完整消息列表）
// @Summary      对话详情
// @Tags         对话管理
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "对话ID"
// @Success      200  {object}  chat.Conversation
// @Failure      404  {object}  model.ErrorResponse
// @Router       /api/v1/conversations/{id} [get]
func (h *ConversationHandler) Get(c *gin.Context) {
	userID, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}

	conv, err := h.history.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.notFoundOrInternal(c, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

// Rename 重命名对话
// @Summary      重命名对话
// @Tags         对话管理
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  string                            true  "对话ID"
// @Param        request  body  model.RenameConversationRequest  true  "重命名请求"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/conversations/{id} [patch]
func (h *ConversationHandler) Rename(c *gin.Context) {
	userID, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}

	var req model.RenameConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	if err := h.history.Rename(c.Request.Context(), userID, c.Param("id"), req.Title); err != nil {
		h.notFoundOrInternal(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Conversation renamed",
	})
}

// Delete 删除对话
// @Summary      删除对话
// @Tags         对话管理
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "对话ID"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/conversations/{id} [delete]
func (h *ConversationHandler) Delete(c *gin.Context) {
	userID, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}

	if err := h.history.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.notFoundOrInternal(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Conversation deleted",
	})
}

// PrefillEdit 读取某条消息的原文，供客户端编辑后重新发送
// @Summary      取消息原文
// @Tags         对话管理
// @Produce      json
// @Security     BearerAuth
// @Param        id          path      string  true  "对话ID"
// @Param        message_id  path      string  true  "消息ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  model.ErrorResponse
// @Router       /api/v1/conversations/{id}/messages/{message_id} [get]
func (h *ConversationHandler) PrefillEdit(c *gin.Context) {
	userID, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}

	content, err := h.history.PrefillEdit(c.Request.Context(), userID, c.Param("id"), c.Param("message_id"))
	if err != nil {
		if errors.Is(err, service.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, model.ErrorResponse{
				Code:    40402,
				Message: "Message not found",
			})
			return
		}
		h.notFoundOrInternal(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"content": content,
	})
}

// Watch 订阅历史列表变更 (SSE)
// 连接时先推一帧当前列表快照，之后每次持久化写入都推送完整列表；
// 客户端把每帧当作权威状态整体替换本地列表
// @Summary      订阅对话列表变更
// @Tags         对话管理
// @Produce      text/event-stream
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/conversations/watch [get]
func (h *ConversationHandler) Watch(c *gin.Context) {
	userID, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// 初始快照
	convs, err := h.history.List(c.Request.Context(), userID)
	if err == nil {
		if convs == nil {
			convs = []*chat.Summary{}
		}
		c.SSEvent("snapshot", gin.H{"conversations": convs})
		c.Writer.Flush()
	}

	if h.cache == nil {
		// 没有 Redis 时只给初始快照，保持连接直到客户端断开
		<-c.Request.Context().Done()
		return
	}

	sub := h.cache.Subscribe(c.Request.Context(), cache.HistoryChannel(userID))
	defer sub.Close()

	msgCh := sub.Channel()
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, open := <-msgCh:
			if !open {
				return false
			}
			// 服务端发布的就是 JSON 快照，原样转发
			c.Render(-1, sseRawEvent{name: "snapshot", data: msg.Payload})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// sseRawEvent 直接透传已序列化 JSON 的 SSE 事件
type sseRawEvent struct {
	name string
	data string
}

func (e sseRawEvent) Render(w http.ResponseWriter) error {
	e.WriteContentType(w)
	_, err := w.Write([]byte("event:" + e.name + "\ndata:" + e.data + "\n\n"))
	return err
}

func (e sseRawEvent) WriteContentType(w http.ResponseWriter) {
	header := w.Header()
	if _, ok := header["Content-Type"]; !ok {
		header["Content-Type"] = []string{"text/event-stream"}
	}
}

func (h *ConversationHandler) notFoundOrInternal(c *gin.Context, err error) {
	if errors.Is(err, mongo.ErrNoDocuments) {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Code:    40401,
			Message: "Conversation not found",
		})
		return
	}
	c.JSON(http.StatusInternalServerError, model.ErrorResponse{
		Code:    50001,
		Message: "Internal error",
		Detail:  err.Error(),
	})
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, model.ErrorResponse{
		Code:    40101,
		Message: "未授权",
	})
}
