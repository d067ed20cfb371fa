package service

import (
	"context"
	"io"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/dayal123456/Lumico-ai/internal/ai"
	"github.com/dayal123456/Lumico-ai/internal/model"
	"github.com/dayal123456/Lumico-ai/internal/model/chat"
)

// scriptedStream 按脚本交付增量，读尽后返回 final（空时为 io.EOF）
type scriptedStream struct {
	deltas []string
	final  error
	i      int
}

func (s *scriptedStream) Recv() (string, error) {
	if s.i < len(s.deltas) {
		d := s.deltas[s.i]
		s.i++
		return d, nil
	}
	if s.final != nil {
		return "", s.final
	}
	return "", io.EOF
}

func (s *scriptedStream) Close() error { return nil }

// partialStream 先交付一个增量，然后阻塞到 ctx 取消
type partialStream struct {
	ctx  context.Context
	sent bool
}

func (s *partialStream) Recv() (string, error) {
	if !s.sent {
		s.sent = true
		return "partial", nil
	}
	<-s.ctx.Done()
	return "", s.ctx.Err()
}

func (s *partialStream) Close() error { return nil }

type fakeOpener struct {
	open    func(ctx context.Context) (ai.DeltaStream, error)
	gotMsgs []ai.WireMessage
	gotOpts ai.StreamOptions
}

func (o *fakeOpener) OpenStream(ctx context.Context, msgs []ai.WireMessage, opts ai.StreamOptions) (ai.DeltaStream, error) {
	o.gotMsgs = msgs
	o.gotOpts = opts
	return o.open(ctx)
}

type fakeStore struct {
	mu      sync.Mutex
	history []chat.Message
	loadErr error

	saveID    string
	saveTitle string
	saveErr   error

	savedUserID string
	savedConvID string
	saved       []chat.Message
	saveCalled  bool
}

func (f *fakeStore) Load(ctx context.Context, userID, convID string) ([]chat.Message, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make([]chat.Message, len(f.history))
	copy(out, f.history)
	return out, nil
}

func (f *fakeStore) Save(ctx context.Context, userID, convID string, msgs []chat.Message) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalled = true
	f.savedUserID = userID
	f.savedConvID = convID
	f.saved = msgs
	if f.saveErr != nil {
		return "", "", f.saveErr
	}
	return f.saveID, f.saveTitle, nil
}

// collect 读完整个快照通道
func collect(ch <-chan model.ChatChunk) []model.ChatChunk {
	var out []model.ChatChunk
	for chunk := range ch {
		out = append(out, chunk)
	}
	return out
}

func TestChatService_StreamChat(t *testing.T) {
	Convey("StreamChat 驱动单轮对话", t, func() {
		ctx := context.Background()

		Convey("空提交直接拒绝", func() {
			svc := NewChatService(&fakeOpener{}, &fakeStore{})
			_, err := svc.StreamChat(ctx, "u1", &model.ChatStreamRequest{Message: "   "})
			So(err, ShouldEqual, ErrEmptyMessage)
		})

		Convey("只带附件不带文字的提交是合法的", func() {
			opener := &fakeOpener{open: func(context.Context) (ai.DeltaStream, error) {
				return &scriptedStream{deltas: []string{"ok"}}, nil
			}}
			svc := NewChatService(opener, &fakeStore{saveID: "conv1"})

			ch, err := svc.StreamChat(ctx, "u1", &model.ChatStreamRequest{
				Attachment: &chat.Attachment{Type: chat.AttachmentImage, Content: "data:image/png;base64,AA"},
			})
			So(err, ShouldBeNil)
			collect(ch)
		})

		Convey("正常流程：快照累积推送，收尾落库", func() {
			opener := &fakeOpener{open: func(context.Context) (ai.DeltaStream, error) {
				return &scriptedStream{deltas: []string{"Hel", "lo"}}, nil
			}}
			store := &fakeStore{saveID: "conv123", saveTitle: "Greeting"}
			svc := NewChatService(opener, store)

			ch, err := svc.StreamChat(ctx, "u1", &model.ChatStreamRequest{Message: "hi"})
			So(err, ShouldBeNil)

			chunks := collect(ch)
			So(len(chunks), ShouldBeGreaterThanOrEqualTo, 5)

			So(chunks[0].Status, ShouldEqual, string(StatusProcessing))
			So(chunks[1].Status, ShouldEqual, string(StatusStreaming))

			// 每帧内容是累积快照而不是单个增量
			So(chunks[2].Content, ShouldEqual, "Hel")
			So(chunks[3].Content, ShouldEqual, "Hello")

			done := chunks[len(chunks)-1]
			So(done.Done, ShouldBeTrue)
			So(done.ConversationID, ShouldEqual, "conv123")
			So(done.Title, ShouldEqual, "Greeting")
			So(done.Content, ShouldEqual, "Hello")
			So(done.Usage, ShouldNotBeNil)
			So(done.Usage.TotalTokens, ShouldBeGreaterThan, 0)

			So(store.saveCalled, ShouldBeTrue)
			So(store.savedConvID, ShouldEqual, "") // 新对话首次保存
			So(store.saved, ShouldHaveLength, 2)
			So(store.saved[0].Role, ShouldEqual, chat.RoleUser)
			So(store.saved[0].Content, ShouldEqual, "hi")
			So(store.saved[1].Role, ShouldEqual, chat.RoleAssistant)
			So(store.saved[1].Content, ShouldEqual, "Hello")
			So(store.saved[1].ModelName, ShouldEqual, "AI Assistant")
			So(store.saved[1].Generating, ShouldBeFalse)

			// 会话结束后释放
			_, active := svc.Status("u1")
			So(active, ShouldBeFalse)
		})

		Convey("已有对话先加载历史再追加新轮次", func() {
			opener := &fakeOpener{open: func(context.Context) (ai.DeltaStream, error) {
				return &scriptedStream{deltas: []string{"again"}}, nil
			}}
			store := &fakeStore{
				history: []chat.Message{
					{ID: "m1", Role: chat.RoleUser, Content: "q1"},
					{ID: "m2", Role: chat.RoleAssistant, Content: "a1"},
				},
				saveID: "conv9",
			}
			svc := NewChatService(opener, store)

			ch, err := svc.StreamChat(ctx, "u1", &model.ChatStreamRequest{ConversationID: "conv9", Message: "q2"})
			So(err, ShouldBeNil)
			collect(ch)

			// system prompt + 历史2条 + 新 user 轮
			So(opener.gotMsgs, ShouldHaveLength, 4)
			So(store.savedConvID, ShouldEqual, "conv9")
			So(store.saved, ShouldHaveLength, 4)
			So(store.saved[2].Content, ShouldEqual, "q2")
		})

		Convey("取消后保留部分内容并照常落库", func() {
			opener := &fakeOpener{open: func(streamCtx context.Context) (ai.DeltaStream, error) {
				return &partialStream{ctx: streamCtx}, nil
			}}
			store := &fakeStore{saveID: "conv5"}
			svc := NewChatService(opener, store)

			ch, err := svc.StreamChat(ctx, "u1", &model.ChatStreamRequest{Message: "hi"})
			So(err, ShouldBeNil)

			// 依次读到第一个增量快照
			So((<-ch).Status, ShouldEqual, string(StatusProcessing))
			So((<-ch).Status, ShouldEqual, string(StatusStreaming))
			So((<-ch).Content, ShouldEqual, "partial")

			So(svc.Cancel("u1"), ShouldBeTrue)

			chunks := collect(ch)
			So(len(chunks), ShouldBeGreaterThanOrEqualTo, 2)
			So(chunks[0].Status, ShouldEqual, string(StatusCancelled))
			So(chunks[0].Content, ShouldEqual, "partial")

			done := chunks[len(chunks)-1]
			So(done.Done, ShouldBeTrue)
			So(done.ConversationID, ShouldEqual, "conv5")

			So(store.saved, ShouldHaveLength, 2)
			So(store.saved[1].Content, ShouldEqual, "partial")
		})

		Convey("流中途失败时错误标注在已累积内容尾部", func() {
			opener := &fakeOpener{open: func(context.Context) (ai.DeltaStream, error) {
				return &scriptedStream{
					deltas: []string{"half"},
					final:  &ai.TransportError{StatusCode: 500, Message: "API Error 500"},
				}, nil
			}}
			store := &fakeStore{saveID: "conv7"}
			svc := NewChatService(opener, store)

			ch, err := svc.StreamChat(ctx, "u1", &model.ChatStreamRequest{Message: "hi"})
			So(err, ShouldBeNil)

			chunks := collect(ch)
			done := chunks[len(chunks)-1]
			So(done.Done, ShouldBeTrue)
			So(done.Status, ShouldEqual, string(StatusErrored))
			So(done.Content, ShouldEqual, "half\n[System Error]: API Error 500")

			So(store.saved[1].Content, ShouldEqual, "half\n[System Error]: API Error 500")
		})

		Convey("打开流失败同样标注错误并落库", func() {
			opener := &fakeOpener{open: func(context.Context) (ai.DeltaStream, error) {
				return nil, &ai.TransportError{Message: "connection refused"}
			}}
			store := &fakeStore{saveID: "conv8"}
			svc := NewChatService(opener, store)

			ch, err := svc.StreamChat(ctx, "u1", &model.ChatStreamRequest{Message: "hi"})
			So(err, ShouldBeNil)

			chunks := collect(ch)
			done := chunks[len(chunks)-1]
			So(done.Status, ShouldEqual, string(StatusErrored))
			So(done.Content, ShouldEqual, "\n[System Error]: connection refused")
			So(store.saveCalled, ShouldBeTrue)
		})

		Convey("同一用户的并发提交被拒绝", func() {
			opener := &fakeOpener{open: func(streamCtx context.Context) (ai.DeltaStream, error) {
				return &partialStream{ctx: streamCtx}, nil
			}}
			svc := NewChatService(opener, &fakeStore{saveID: "conv2"})

			ch, err := svc.StreamChat(ctx, "u1", &model.ChatStreamRequest{Message: "first"})
			So(err, ShouldBeNil)

			_, err = svc.StreamChat(ctx, "u1", &model.ChatStreamRequest{Message: "second"})
			So(err, ShouldEqual, ErrSessionActive)

			// 另一个用户不受影响
			opener2 := &fakeOpener{open: func(context.Context) (ai.DeltaStream, error) {
				return &scriptedStream{deltas: []string{"ok"}}, nil
			}}
			svc2 := NewChatService(opener2, &fakeStore{saveID: "conv3"})
			ch2, err := svc2.StreamChat(ctx, "u2", &model.ChatStreamRequest{Message: "hello"})
			So(err, ShouldBeNil)
			collect(ch2)

			So(svc.Cancel("u1"), ShouldBeTrue)
			collect(ch)

			// 会话释放后可以再次提交
			opener.open = func(context.Context) (ai.DeltaStream, error) {
				return &scriptedStream{deltas: []string{"ok"}}, nil
			}
			ch3, err := svc.StreamChat(ctx, "u1", &model.ChatStreamRequest{Message: "third"})
			So(err, ShouldBeNil)
			collect(ch3)
		})

		Convey("没有进行中会话时取消返回 false", func() {
			svc := NewChatService(&fakeOpener{}, &fakeStore{})
			So(svc.Cancel("nobody"), ShouldBeFalse)
		})

		Convey("重新生成：历史截断到上一条 user 轮再提交", func() {
			opener := &fakeOpener{open: func(context.Context) (ai.DeltaStream, error) {
				return &scriptedStream{deltas: []string{"better answer"}}, nil
			}}
			store := &fakeStore{
				history: []chat.Message{
					{ID: "m1", Role: chat.RoleUser, Content: "q1"},
					{ID: "m2", Role: chat.RoleAssistant, Content: "bad answer"},
				},
				saveID: "conv4",
			}
			svc := NewChatService(opener, store)

			idx := 1
			ch, err := svc.StreamChat(ctx, "u1", &model.ChatStreamRequest{
				ConversationID:  "conv4",
				RegenerateIndex: &idx,
			})
			So(err, ShouldBeNil)
			collect(ch)

			// system prompt + 截断后只剩一条 user 轮
			So(opener.gotMsgs, ShouldHaveLength, 2)
			So(store.saved, ShouldHaveLength, 2)
			So(store.saved[0].Content, ShouldEqual, "q1")
			So(store.saved[1].Content, ShouldEqual, "better answer")
		})

		Convey("截断后没有 user 轮的重新生成被拒绝", func() {
			store := &fakeStore{
				history: []chat.Message{
					{ID: "m1", Role: chat.RoleAssistant, Content: "greeting"},
				},
			}
			svc := NewChatService(&fakeOpener{}, store)

			idx := 1
			_, err := svc.StreamChat(ctx, "u1", &model.ChatStreamRequest{
				ConversationID:  "conv4",
				RegenerateIndex: &idx,
			})
			So(err, ShouldEqual, ErrNothingToRegenerate)
		})

		Convey("thinking 标记透传到流式请求", func() {
			opener := &fakeOpener{open: func(context.Context) (ai.DeltaStream, error) {
				return &scriptedStream{deltas: []string{"deep"}}, nil
			}}
			svc := NewChatService(opener, &fakeStore{saveID: "conv6"})

			ch, err := svc.StreamChat(ctx, "u1", &model.ChatStreamRequest{Message: "hi", Thinking: true})
			So(err, ShouldBeNil)
			collect(ch)

			So(opener.gotOpts.Thinking, ShouldBeTrue)
		})
	})
}

func TestTruncateForRegenerate(t *testing.T) {
	Convey("TruncateForRegenerate 截断规则", t, func() {
		msgs := []chat.Message{
			{ID: "0", Role: chat.RoleUser, Content: "q1"},
			{ID: "1", Role: chat.RoleAssistant, Content: "a1"},
			{ID: "2", Role: chat.RoleUser, Content: "q2"},
			{ID: "3", Role: chat.RoleAssistant, Content: "a2"},
		}

		Convey("截到 assistant 消息：保留到它前面的 user 轮", func() {
			out, ok := TruncateForRegenerate(msgs, 3)
			So(ok, ShouldBeTrue)
			So(out, ShouldHaveLength, 3)
			So(out[2].ID, ShouldEqual, "2")
		})

		Convey("截到第一条 assistant：只剩第一条 user 轮", func() {
			out, ok := TruncateForRegenerate(msgs, 1)
			So(ok, ShouldBeTrue)
			So(out, ShouldHaveLength, 1)
			So(out[0].ID, ShouldEqual, "0")
		})

		Convey("下标越界时按末尾截断", func() {
			out, ok := TruncateForRegenerate(msgs, 100)
			So(ok, ShouldBeTrue)
			So(out, ShouldHaveLength, 3)
		})

		Convey("下标为 0 时没有可保留的 user 轮", func() {
			_, ok := TruncateForRegenerate(msgs, 0)
			So(ok, ShouldBeFalse)
		})

		Convey("负下标无效", func() {
			_, ok := TruncateForRegenerate(msgs, -1)
			So(ok, ShouldBeFalse)
		})

		Convey("头部没有 user 消息时无效", func() {
			onlyAssistant := []chat.Message{
				{ID: "0", Role: chat.RoleAssistant, Content: "greeting"},
				{ID: "1", Role: chat.RoleUser, Content: "q"},
			}
			_, ok := TruncateForRegenerate(onlyAssistant, 1)
			So(ok, ShouldBeFalse)
		})

		Convey("返回的是副本，不共享底层数组", func() {
			out, ok := TruncateForRegenerate(msgs, 3)
			So(ok, ShouldBeTrue)
			out[0].Content = "mutated"
			So(msgs[0].Content, ShouldEqual, "q1")
		})
	})
}
