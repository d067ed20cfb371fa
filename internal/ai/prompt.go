package ai

import (
	"time"

	"github.com/dayal123456/Lumico-ai/internal/model/chat"
)

// WireMessage 发往补全端点的消息
// Content 是纯文本或多段内容（文本段 + 图片引用段）
type WireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart 多段内容中的一段
type ContentPart struct {
	Type     string    `json:"type"` // text | image_url
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// ImageRef 图片引用（base64 data URL 或外链）
type ImageRef struct {
	URL string `json:"url"`
}

// BuildMessages 把对话历史转换为补全端点的消息列表
// 头部注入带当前日期时间的 system prompt；
// 带图片附件的消息展开为 文本段 + 图片段
func BuildMessages(msgs []chat.Message, now time.Time) []WireMessage {
	out := make([]WireMessage, 0, len(msgs)+1)
	out = append(out, WireMessage{Role: chat.RoleSystem, Content: systemPrompt(now)})

	for _, m := range msgs {
		if m.Attachment != nil && m.Attachment.Type == chat.AttachmentImage {
			text := m.Content
			if text == "" {
				text = "Analyze this image."
			}
			out = append(out, WireMessage{
				Role: m.Role,
				Content: []ContentPart{
					{Type: "text", Text: text},
					{Type: "image_url", ImageURL: &ImageRef{URL: m.Attachment.Content}},
				},
			})
			continue
		}
		content := m.Content
		if m.Attachment != nil && m.Attachment.Type == chat.AttachmentFile {
			content += "\n\nFile: " + m.Attachment.Name + "\n```\n" + m.Attachment.Content + "\n```"
		}
		out = append(out, WireMessage{Role: m.Role, Content: content})
	}

	return out
}

func systemPrompt(now time.Time) string {
	return "You are a helpful AI assistant. Answer the user's questions clearly and concisely.\n" +
		"Current Date: " + now.Format("Monday, January 2, 2006") + "\n" +
		"Current Time: " + now.Format("03:04 PM")
}
