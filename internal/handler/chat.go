package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dayal123456/Lumico-ai/internal/model"
	"github.com/dayal123456/Lumico-ai/internal/pkg/ctxutil"
	"github.com/dayal123456/Lumico-ai/internal/service"
)

// ChatHandler 对话处理器
type ChatHandler struct {
	chat *service.ChatService
}

// NewChatHandler 创建对话处理器
func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Stream 流式对话接口 (SSE)
// 把服务层的快照通道逐条转成 SSE 事件；客户端断开即取消生成
// @Summary      流式对话
// @Description  发起一轮对话，以 SSE 推送累积快照，最后一帧带 done 标记
// @Tags         对话
// @Accept       json
// @Produce      text/event-stream
// @Security     BearerAuth
// @Param        request  body      model.ChatStreamRequest  true  "对话请求"
// @Success      200  {object}  model.ChatChunk
// @Failure      400  {object}  model.ErrorResponse
// @Failure      409  {object}  model.ErrorResponse
// @Router       /api/v1/chat/stream [post]
func (h *ChatHandler) Stream(c *gin.Context) {
	userID, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{
			Code:    40101,
			Message: "未授权",
		})
		return
	}

	var req model.ChatStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	ch, err := h.chat.StreamChat(c.Request.Context(), userID, &req)
	if err != nil {
		h.streamError(c, err)
		return
	}

	// 设置 SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		chunk, open := <-ch
		if !open {
			return false
		}
		switch {
		case chunk.Done:
			c.SSEvent("done", chunk)
		case chunk.Content == "" && chunk.Status != "":
			c.SSEvent("status", chunk)
		default:
			c.SSEvent("message", chunk)
		}
		return true
	})
}

// Stop 取消当前生成
// 已累积的部分文本仍会落库
// @Summary      停止生成
// @Tags         对话
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/chat/stop [post]
func (h *ChatHandler) Stop(c *gin.Context) {
	userID, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{
			Code:    40101,
			Message: "未授权",
		})
		return
	}

	cancelled := h.chat.Cancel(userID)
	c.JSON(http.StatusOK, gin.H{
		"cancelled": cancelled,
	})
}

// streamError 把服务层错误映射为 HTTP 响应
func (h *ChatHandler) streamError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionActive):
		c.JSON(http.StatusConflict, model.ErrorResponse{
			Code:    40901,
			Message: err.Error(),
		})
	case errors.Is(err, service.ErrEmptyMessage), errors.Is(err, service.ErrNothingToRegenerate):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Code:    40002,
			Message: err.Error(),
		})
	case errors.Is(err, mongo.ErrNoDocuments):
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Code:    40401,
			Message: "Conversation not found",
		})
	default:
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Code:    50001,
			Message: "Failed to start chat stream",
			Detail:  err.Error(),
		})
	}
}
