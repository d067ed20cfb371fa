package ai

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/dayal123456/Lumico-ai/internal/ai/component"
	"github.com/dayal123456/Lumico-ai/internal/config"
	"github.com/dayal123456/Lumico-ai/internal/model/chat"
	"github.com/dayal123456/Lumico-ai/internal/pkg/textutil"
)

// titleFallbackLen 本地降级标题的截断长度
const titleFallbackLen = 30

// TitleGenerator 对话标题生成器
// 取最近一条 user 消息，发一个小的非流式补全请求要一个 2-5 词的标签。
// 任何失败都在本地降级为消息文本截断，绝不向上传播。
type TitleGenerator struct {
	chatModel model.ChatModel
}

// NewTitleGenerator 创建标题生成器
// API key 未配置时 chatModel 为空，只走本地降级
func NewTitleGenerator(ctx context.Context, cfg *config.AIConfig) (*TitleGenerator, error) {
	if cfg.TitleAPIKey() == "" {
		log.Warn().Msg("title API key not configured, titles fall back to local truncation")
		return &TitleGenerator{}, nil
	}

	chatModel, err := component.NewTitleChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &TitleGenerator{chatModel: chatModel}, nil
}

// NewTitleGeneratorWithModel 用现成的 ChatModel 创建（测试用）
func NewTitleGeneratorWithModel(chatModel model.ChatModel) *TitleGenerator {
	return &TitleGenerator{chatModel: chatModel}
}

// Generate 生成对话标题
// 没有 user 消息时返回固定默认值
func (g *TitleGenerator) Generate(ctx context.Context, msgs []chat.Message) string {
	last := chat.LastUserMessage(msgs)
	if last == nil {
		return chat.DefaultTitle
	}

	if g.chatModel == nil {
		return Fallback(last.Content)
	}

	prompt := "Generate a very short title (2-5 words) for this conversation. " +
		"Output ONLY the title text.\n\nConversation:\n" + last.Content

	resp, err := g.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		log.Warn().Err(err).Msg("title generation failed")
		return Fallback(last.Content)
	}

	title := strings.Trim(strings.TrimSpace(resp.Content), `"'`)
	if title == "" {
		return Fallback(last.Content)
	}
	return title
}

// Fallback 本地降级标题：源消息前 30 个字符，超长加省略号
func Fallback(content string) string {
	return textutil.Truncate(content, titleFallbackLen)
}

// ShouldRefreshTitle 标题刷新节奏
// user 消息数为 1 或偶数时刷新：首条消息尽快有标题，之后隔轮刷新摊薄成本
func ShouldRefreshTitle(userCount int) bool {
	return userCount == 1 || userCount%2 == 0
}
