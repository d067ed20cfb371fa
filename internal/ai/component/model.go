package component

import (
	"context"
	"fmt"

	arkext "github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/dayal123456/Lumico-ai/internal/config"
)

// NewTitleChatModel 创建标题生成用的 ChatModel
// 标题是小请求，低 token 上限直接固化在模型配置里
// 支持多种 Provider: openai, azure, ark
func NewTitleChatModel(ctx context.Context, cfg *config.AIConfig) (model.ChatModel, error) {
	switch cfg.Title.Provider {
	case "openai", "":
		return newOpenAIChatModel(ctx, cfg, false)
	case "azure":
		return newOpenAIChatModel(ctx, cfg, true)
	case "ark":
		return newArkChatModel(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported title provider: %s", cfg.Title.Provider)
	}
}

// newOpenAIChatModel 创建 OpenAI / Azure ChatModel
func newOpenAIChatModel(ctx context.Context, cfg *config.AIConfig, byAzure bool) (model.ChatModel, error) {
	modelCfg := &openai.ChatModelConfig{
		Model:   cfg.TitleModel(),
		APIKey:  cfg.TitleAPIKey(),
		ByAzure: byAzure,
	}

	// Base URL (用于代理或兼容 API)
	if baseURL := cfg.TitleBaseURL(); baseURL != "" {
		modelCfg.BaseURL = baseURL
	}

	// 模型参数
	if cfg.Title.Temperature > 0 {
		temp := float32(cfg.Title.Temperature)
		modelCfg.Temperature = &temp
	}
	if cfg.Title.MaxTokens > 0 {
		maxTokens := cfg.Title.MaxTokens
		modelCfg.MaxTokens = &maxTokens
	}

	return openai.NewChatModel(ctx, modelCfg)
}

// newArkChatModel 创建 Ark ChatModel（使用 eino-ext 模块）
func newArkChatModel(ctx context.Context, cfg *config.AIConfig) (model.ChatModel, error) {
	baseURL := cfg.TitleBaseURL()
	if baseURL == "" {
		baseURL = "https://ark.cn-beijing.volces.com/api/v3"
	}

	modelCfg := &arkext.ChatModelConfig{
		Model:   cfg.TitleModel(),
		APIKey:  cfg.TitleAPIKey(),
		BaseURL: baseURL,
	}

	if cfg.Title.Temperature > 0 {
		temp := float32(cfg.Title.Temperature)
		modelCfg.Temperature = &temp
	}
	if cfg.Title.MaxTokens > 0 {
		maxTokens := cfg.Title.MaxTokens
		modelCfg.MaxTokens = &maxTokens
	}

	return arkext.NewChatModel(ctx, modelCfg)
}
