package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dayal123456/Lumico-ai/internal/model/chat"
	"github.com/dayal123456/Lumico-ai/internal/pkg/cache"
	"github.com/dayal123456/Lumico-ai/internal/repository"
)

// historyListLimit 历史列表（含推送快照）的最大条数
const historyListLimit = 50

// TitleSource 标题来源
// 生产实现是 ai.TitleGenerator，测试注入假实现
type TitleSource interface {
	Generate(ctx context.Context, msgs []chat.Message) string
}

// titleCadence 标题刷新节奏判断
type titleCadence func(userCount int) bool

// HistoryService 对话历史持久化服务
// 每轮对话结束（完成、取消或出错）后把完整消息列表写成快照；
// 首次写入时创建对话并拿到稳定 ID；按节奏刷新标题。
// 它只读消息快照，从不改动会话内存状态。
type HistoryService struct {
	repo    *repository.ConversationRepo
	cache   *cache.RedisCache // 可为空，缓存与推送都降级为空操作
	titles  TitleSource
	cadence titleCadence
}

// NewHistoryService 创建历史服务
func NewHistoryService(repo *repository.ConversationRepo, redisCache *cache.RedisCache, titles TitleSource, cadence func(int) bool) *HistoryService {
	return &HistoryService{
		repo:    repo,
		cache:   redisCache,
		titles:  titles,
		cadence: cadence,
	}
}

// Save 持久化完整消息快照，返回对话ID和刷新后的标题（未刷新时为空）
// convID 为空表示首次保存：先创建对话拿ID，再写消息快照
func (s *HistoryService) Save(ctx context.Context, userID, convID string, msgs []chat.Message) (string, string, error) {
	stored := chat.CleanMessages(msgs)

	if convID == "" {
		conv := &chat.Conversation{UserID: userID, Title: chat.DefaultTitle}
		if err := s.repo.Create(ctx, conv); err != nil {
			return "", "", err
		}
		convID = conv.ID.Hex()
	}

	if err := s.repo.ReplaceMessages(ctx, convID, stored); err != nil {
		return convID, "", err
	}

	s.invalidate(ctx, convID)

	// 标题刷新是尽力而为：失败只记日志，不影响保存结果
	title := s.refreshTitle(ctx, convID, msgs)

	s.publishSnapshot(ctx, userID)

	return convID, title, nil
}

// Load 读取对话的消息列表（运行时形态）
func (s *HistoryService) Load(ctx context.Context, userID, convID string) ([]chat.Message, error) {
	conv, err := s.Get(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	return chat.RuntimeMessages(conv.Messages), nil
}

// Get 读取对话详情，redis 缓存旁路
func (s *HistoryService) Get(ctx context.Context, userID, convID string) (*chat.Conversation, error) {
	if s.cache != nil {
		var cached chat.Conversation
		if err := s.cache.Get(ctx, cache.ConversationCacheKey(convID), &cached); err == nil && cached.UserID == userID {
			return &cached, nil
		}
	}

	conv, err := s.repo.FindByID(ctx, userID, convID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.ConversationCacheKey(convID), conv, cache.ConversationCacheTTL); err != nil {
			log.Warn().Err(err).Str("conversation_id", convID).Msg("failed to cache conversation")
		}
	}

	return conv, nil
}

// List 用户的对话列表（不含消息体）
func (s *HistoryService) List(ctx context.Context, userID string) ([]*chat.Summary, error) {
	return s.repo.ListByUserID(ctx, userID, historyListLimit, 0)
}

// Rename 重命名对话
func (s *HistoryService) Rename(ctx context.Context, userID, convID, title string) error {
	if _, err := s.repo.FindByID(ctx, userID, convID); err != nil {
		return err
	}
	if err := s.repo.UpdateTitle(ctx, convID, title); err != nil {
		return err
	}
	s.invalidate(ctx, convID)
	s.publishSnapshot(ctx, userID)
	return nil
}

// Delete 删除对话
func (s *HistoryService) Delete(ctx context.Context, userID, convID string) error {
	if err := s.repo.Delete(ctx, userID, convID); err != nil {
		return err
	}
	s.invalidate(ctx, convID)
	s.publishSnapshot(ctx, userID)
	return nil
}

// PrefillEdit 返回某条消息的内容，供客户端重新编辑后发送
// 不改动历史，也不代发
func (s *HistoryService) PrefillEdit(ctx context.Context, userID, convID, messageID string) (string, error) {
	conv, err := s.Get(ctx, userID, convID)
	if err != nil {
		return "", err
	}
	for _, m := range conv.Messages {
		if m.ID == messageID {
			return m.Content, nil
		}
	}
	return "", ErrMessageNotFound
}

// refreshTitle 按节奏刷新标题，返回新标题（没刷新返回空）
func (s *HistoryService) refreshTitle(ctx context.Context, convID string, msgs []chat.Message) string {
	if s.titles == nil || !s.cadence(chat.CountUserMessages(msgs)) {
		return ""
	}

	title := s.titles.Generate(ctx, msgs)
	if title == "" {
		return ""
	}

	if err := s.repo.UpdateTitle(ctx, convID, title); err != nil {
		log.Warn().Err(err).Str("conversation_id", convID).Msg("failed to update conversation title")
		return ""
	}
	s.invalidate(ctx, convID)
	return title
}

// publishSnapshot 推送完整的历史列表快照
// 订阅端把每次回调当作权威状态整体替换本地列表
func (s *HistoryService) publishSnapshot(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}

	list, err := s.repo.ListByUserID(ctx, userID, historyListLimit, 0)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to load history snapshot for publish")
		return
	}

	if err := s.cache.Publish(ctx, cache.HistoryChannel(userID), list); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to publish history snapshot")
	}
}

func (s *HistoryService) invalidate(ctx context.Context, convID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.ConversationCacheKey(convID)); err != nil {
		log.Warn().Err(err).Str("conversation_id", convID).Msg("failed to invalidate conversation cache")
	}
}
