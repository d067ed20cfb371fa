package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/dayal123456/Lumico-ai/internal/model/chat"
)

// fakeChatModel 返回固定内容的 ChatModel
type fakeChatModel struct {
	content string
	err     error
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.content, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (f *fakeChatModel) BindTools(tools []*schema.ToolInfo) error {
	return nil
}

func TestTitleGenerator_Generate(t *testing.T) {
	Convey("TitleGenerator 生成对话标题", t, func() {
		ctx := context.Background()
		msgs := []chat.Message{
			{Role: chat.RoleUser, Content: "How do goroutines work in Go?"},
			{Role: chat.RoleAssistant, Content: "Goroutines are lightweight threads..."},
		}

		Convey("正常返回模型生成的标题", func() {
			g := NewTitleGeneratorWithModel(&fakeChatModel{content: "Goroutine Basics"})
			So(g.Generate(ctx, msgs), ShouldEqual, "Goroutine Basics")
		})

		Convey("标题两侧的引号被剥掉", func() {
			g := NewTitleGeneratorWithModel(&fakeChatModel{content: `"Goroutine Basics"`})
			So(g.Generate(ctx, msgs), ShouldEqual, "Goroutine Basics")
		})

		Convey("模型失败时降级为消息截断", func() {
			g := NewTitleGeneratorWithModel(&fakeChatModel{err: errors.New("model unavailable")})
			So(g.Generate(ctx, msgs), ShouldEqual, "How do goroutines work in Go?")
		})

		Convey("模型返回空串时降级为消息截断", func() {
			g := NewTitleGeneratorWithModel(&fakeChatModel{content: "  "})
			So(g.Generate(ctx, msgs), ShouldEqual, "How do goroutines work in Go?")
		})

		Convey("没有配置模型时直接走本地降级", func() {
			g := &TitleGenerator{}
			So(g.Generate(ctx, msgs), ShouldEqual, "How do goroutines work in Go?")
		})

		Convey("没有 user 消息时返回默认标题", func() {
			g := NewTitleGeneratorWithModel(&fakeChatModel{content: "whatever"})
			So(g.Generate(ctx, []chat.Message{{Role: chat.RoleAssistant, Content: "hi"}}), ShouldEqual, chat.DefaultTitle)
		})

		Convey("取的是最后一条 user 消息", func() {
			g := &TitleGenerator{}
			multi := []chat.Message{
				{Role: chat.RoleUser, Content: "first question"},
				{Role: chat.RoleAssistant, Content: "answer"},
				{Role: chat.RoleUser, Content: "second question"},
			}
			So(g.Generate(ctx, multi), ShouldEqual, "second question")
		})
	})
}

func TestFallback(t *testing.T) {
	Convey("Fallback 截断源消息做标题", t, func() {
		Convey("短消息原样返回", func() {
			So(Fallback("short"), ShouldEqual, "short")
		})

		Convey("超过 30 字符截断并加省略号", func() {
			long := "this message is definitely longer than thirty characters"
			So(Fallback(long), ShouldEqual, long[:30]+"...")
		})

		Convey("多字节字符按 rune 截断", func() {
			long := "这是一条很长很长很长很长很长很长很长很长很长很长很长很长的消息"
			got := Fallback(long)
			So([]rune(got), ShouldHaveLength, 33) // 30 + "..."
		})
	})
}

func TestShouldRefreshTitle(t *testing.T) {
	Convey("标题刷新节奏：首条刷新，之后偶数轮刷新", t, func() {
		So(ShouldRefreshTitle(1), ShouldBeTrue)
		So(ShouldRefreshTitle(2), ShouldBeTrue)
		So(ShouldRefreshTitle(3), ShouldBeFalse)
		So(ShouldRefreshTitle(4), ShouldBeTrue)
		So(ShouldRefreshTitle(5), ShouldBeFalse)
		So(ShouldRefreshTitle(6), ShouldBeTrue)
		So(ShouldRefreshTitle(0), ShouldBeTrue)
	})
}
