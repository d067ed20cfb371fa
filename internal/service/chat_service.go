package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dayal123456/Lumico-ai/internal/ai"
	"github.com/dayal123456/Lumico-ai/internal/model"
	"github.com/dayal123456/Lumico-ai/internal/model/chat"
	"github.com/dayal123456/Lumico-ai/internal/pkg/id"
	"github.com/dayal123456/Lumico-ai/internal/pkg/textutil"
)

var (
	// ErrSessionActive 同一用户已有生成中的会话
	ErrSessionActive = errors.New("该对话正在生成回复")
	// ErrEmptyMessage 空提交
	ErrEmptyMessage = errors.New("消息内容不能为空")
	// ErrNothingToRegenerate 截断后没有可重答的 user 消息
	ErrNothingToRegenerate = errors.New("没有可重新生成的消息")
	// ErrMessageNotFound 指定消息不存在
	ErrMessageNotFound = errors.New("消息不存在")
)

const (
	// assistantLabel 助手消息的展示名
	assistantLabel = "AI Assistant"
	// saveTimeout 流结束后落库的超时，持久化不跟随请求 ctx
	saveTimeout = 10 * time.Second
)

// SessionStatus 会话状态机的可观测状态
type SessionStatus string

const (
	StatusProcessing SessionStatus = "processing" // 已提交，等待首个增量
	StatusStreaming  SessionStatus = "streaming"  // 正在接收增量
	StatusFinished   SessionStatus = "finished"   // 正常收尾
	StatusCancelled  SessionStatus = "cancelled"  // 用户取消，保留部分文本
	StatusErrored    SessionStatus = "errored"    // 传输失败，错误附注在消息尾部
)

// StreamOpener 流式补全入口
// 生产实现是 ai.Client，测试注入假实现
type StreamOpener interface {
	OpenStream(ctx context.Context, msgs []ai.WireMessage, opts ai.StreamOptions) (ai.DeltaStream, error)
}

// ConversationStore 会话历史存取
// 生产实现是 HistoryService
type ConversationStore interface {
	Load(ctx context.Context, userID, convID string) ([]chat.Message, error)
	Save(ctx context.Context, userID, convID string, msgs []chat.Message) (string, string, error)
}

// session 一次进行中的生成
type session struct {
	cancel context.CancelFunc
	status SessionStatus
}

// ChatService 对话服务 - 业务逻辑层
// 职责: 驱动单轮对话的状态机：组装上下文、打开补全流、
// 逐增量累积并对外推送快照，结束后整体落库。
// 同一用户同时只允许一条生成中的会话，后来的提交直接拒绝。
type ChatService struct {
	completions StreamOpener
	history     ConversationStore
	tokens      *textutil.TokenEstimator

	mu       sync.Mutex
	sessions map[string]*session // key: userID
}

// NewChatService 创建对话服务
func NewChatService(completions StreamOpener, history ConversationStore) *ChatService {
	return &ChatService{
		completions: completions,
		history:     history,
		tokens:      textutil.NewTokenEstimator(),
		sessions:    make(map[string]*session),
	}
}

// StreamChat 发起一轮对话，返回增量快照通道
// 通道上每个 ChatChunk 的 Content 都是到当前为止的完整文本，
// 消费方整体替换而不是追加；最后一个 chunk 带 Done 标记和落库结果。
func (s *ChatService) StreamChat(ctx context.Context, userID string, req *model.ChatStreamRequest) (<-chan model.ChatChunk, error) {
	if req.RegenerateIndex == nil && strings.TrimSpace(req.Message) == "" && req.Attachment == nil {
		return nil, ErrEmptyMessage
	}

	var turns []chat.Message
	if req.ConversationID != "" {
		loaded, err := s.history.Load(ctx, userID, req.ConversationID)
		if err != nil {
			return nil, err
		}
		turns = loaded
	}

	if req.RegenerateIndex != nil {
		truncated, ok := TruncateForRegenerate(turns, *req.RegenerateIndex)
		if !ok {
			return nil, ErrNothingToRegenerate
		}
		turns = truncated
	} else {
		turns = append(turns, chat.Message{
			ID:         id.New(),
			Role:       chat.RoleUser,
			Content:    req.Message,
			Attachment: req.Attachment,
		})
	}

	s.mu.Lock()
	if _, active := s.sessions[userID]; active {
		s.mu.Unlock()
		return nil, ErrSessionActive
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s.sessions[userID] = &session{cancel: cancel, status: StatusProcessing}
	s.mu.Unlock()

	ch := make(chan model.ChatChunk, 16)
	go s.run(ctx, streamCtx, cancel, userID, req, turns, ch)
	return ch, nil
}

// Cancel 取消用户当前的生成，返回是否有会话被取消
// 已累积的部分文本由流式协程照常落库
func (s *ChatService) Cancel(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	sess.cancel()
	return true
}

// Status 用户当前会话的状态，没有进行中的会话时第二个返回值为 false
func (s *ChatService) Status(userID string) (SessionStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return "", false
	}
	return sess.status, true
}

// TruncateForRegenerate 为重新生成截断历史
// 丢弃 index 及其后的全部消息，再回退到剩余部分最后一条 user 消息（含）。
// 找不到 user 消息或 index 非法时返回 false。
func TruncateForRegenerate(msgs []chat.Message, index int) ([]chat.Message, bool) {
	if index < 0 {
		return nil, false
	}
	if index > len(msgs) {
		index = len(msgs)
	}
	head := msgs[:index]

	last := -1
	for i := len(head) - 1; i >= 0; i-- {
		if head[i].Role == chat.RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		return nil, false
	}

	out := make([]chat.Message, last+1)
	copy(out, head[:last+1])
	return out, true
}

// run 驱动单轮生成：打开流、逐增量累积推送、收尾落库
// reqCtx 是消费方的生命周期，streamCtx 只管上游流：
// 用户主动停止后消费方还在读，收尾帧必须照常送达
func (s *ChatService) run(reqCtx, streamCtx context.Context, cancel context.CancelFunc, userID string, req *model.ChatStreamRequest, turns []chat.Message, ch chan<- model.ChatChunk) {
	defer close(ch)
	defer s.release(userID)
	defer cancel()

	placeholder := chat.Message{
		ID:         id.New(),
		Role:       chat.RoleAssistant,
		ModelName:  assistantLabel,
		Generating: true,
	}

	s.setStatus(userID, StatusProcessing)
	s.emit(reqCtx, ch, model.ChatChunk{Status: string(StatusProcessing)})

	var acc ai.Accumulator
	status := StatusFinished

	stream, err := s.completions.OpenStream(streamCtx, ai.BuildMessages(turns, time.Now()), ai.StreamOptions{Thinking: req.Thinking})
	if err != nil {
		if ai.IsCancellation(err) {
			status = StatusCancelled
		} else {
			status = StatusErrored
			placeholder.Content = annotateError(placeholder.Content, err)
			log.Error().Err(err).Str("user_id", userID).Msg("failed to open completion stream")
		}
	} else {
		defer stream.Close()

		s.setStatus(userID, StatusStreaming)
		s.emit(reqCtx, ch, model.ChatChunk{Status: string(StatusStreaming)})

		for {
			delta, err := stream.Recv()
			if err != nil {
				switch {
				case errors.Is(err, io.EOF):
					status = StatusFinished
				case ai.IsCancellation(err):
					status = StatusCancelled
					log.Info().Str("user_id", userID).Int("partial_bytes", acc.Len()).Msg("stream cancelled, keeping partial response")
				default:
					status = StatusErrored
					placeholder.Content = annotateError(acc.Snapshot(), err)
					log.Error().Err(err).Str("user_id", userID).Msg("completion stream failed")
				}
				break
			}

			acc.Append(delta)
			s.emit(reqCtx, ch, model.ChatChunk{Content: acc.Snapshot(), Status: string(StatusStreaming)})
		}
	}

	if status != StatusErrored {
		placeholder.Content = acc.Snapshot()
	}
	placeholder.Generating = false
	s.setStatus(userID, status)
	s.emit(reqCtx, ch, model.ChatChunk{Content: placeholder.Content, Status: string(status)})

	final := append(turns, placeholder)

	// 落库不跟随请求 ctx：取消的流也要把部分文本存下来
	saveCtx, cancelSave := context.WithTimeout(context.Background(), saveTimeout)
	defer cancelSave()

	convID, title, err := s.history.Save(saveCtx, userID, req.ConversationID, final)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("conversation_id", req.ConversationID).Msg("failed to persist conversation")
		convID = req.ConversationID
	}

	s.emit(reqCtx, ch, model.ChatChunk{
		Content:        placeholder.Content,
		Status:         string(status),
		Done:           true,
		ConversationID: convID,
		Title:          title,
		Usage:          s.estimateUsage(turns, placeholder.Content),
	})
}

// emit 向消费方推送快照，消费方走开时丢弃
func (s *ChatService) emit(ctx context.Context, ch chan<- model.ChatChunk, chunk model.ChatChunk) {
	select {
	case ch <- chunk:
	case <-ctx.Done():
	}
}

func (s *ChatService) setStatus(userID string, status SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		sess.status = status
	}
}

func (s *ChatService) release(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// estimateUsage 本地估算 token 用量
func (s *ChatService) estimateUsage(turns []chat.Message, completion string) *model.TokenUsage {
	prompt := 0
	for _, m := range turns {
		prompt += s.tokens.Estimate(m.Content)
	}
	out := s.tokens.Estimate(completion)
	return &model.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: out,
		TotalTokens:      prompt + out,
	}
}

// annotateError 把传输错误附注到已累积文本的尾部
func annotateError(content string, err error) string {
	return content + "\n[System Error]: " + transportMessage(err)
}

// transportMessage 提取面向用户的错误文案
func transportMessage(err error) string {
	var te *ai.TransportError
	if errors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}
