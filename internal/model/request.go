package model

import "github.com/dayal123456/Lumico-ai/internal/model/chat"

// ChatStreamRequest 流式对话请求
// RegenerateIndex 非空时表示重新生成：历史截断到该下标前最近的一条
// user 消息后重新提交，Message 与 Attachment 被忽略
type ChatStreamRequest struct {
	ConversationID  string           `json:"conversation_id,omitempty"`
	Message         string           `json:"message"`
	Attachment      *chat.Attachment `json:"attachment,omitempty"`
	Thinking        bool             `json:"thinking,omitempty"`
	RegenerateIndex *int             `json:"regenerate_index,omitempty"`
}

// RenameConversationRequest 重命名对话请求
type RenameConversationRequest struct {
	Title string `json:"title" binding:"required"`
}
