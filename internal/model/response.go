package model

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// TokenUsage Token 使用统计（估算值）
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatChunk 流式对话片段
// Content 始终是累积后的完整快照，客户端整体替换当前 assistant 消息
type ChatChunk struct {
	Content        string      `json:"content,omitempty"`
	Status         string      `json:"status,omitempty"`
	Done           bool        `json:"done,omitempty"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Title          string      `json:"title,omitempty"`
	Usage          *TokenUsage `json:"usage,omitempty"`
}

// ExtractedFile 文件提取结果
// 图片返回 base64 data URL，其余类型返回截断后的纯文本
type ExtractedFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Type    string `json:"type"` // image | file
	URL     string `json:"url,omitempty"`
}
