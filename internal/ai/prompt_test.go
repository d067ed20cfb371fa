package ai

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/dayal123456/Lumico-ai/internal/model/chat"
)

func TestBuildMessages(t *testing.T) {
	Convey("BuildMessages 组装补全端点消息列表", t, func() {
		now := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

		Convey("头部注入带日期时间的 system prompt", func() {
			msgs := BuildMessages([]chat.Message{
				{Role: chat.RoleUser, Content: "hi"},
			}, now)

			So(msgs, ShouldHaveLength, 2)
			So(msgs[0].Role, ShouldEqual, chat.RoleSystem)
			prompt, ok := msgs[0].Content.(string)
			So(ok, ShouldBeTrue)
			So(prompt, ShouldContainSubstring, "Sunday, June 15, 2025")
			So(prompt, ShouldContainSubstring, "02:30 PM")
			So(msgs[1].Role, ShouldEqual, chat.RoleUser)
			So(msgs[1].Content, ShouldEqual, "hi")
		})

		Convey("图片附件展开为文本段和图片段", func() {
			msgs := BuildMessages([]chat.Message{
				{
					Role:    chat.RoleUser,
					Content: "看看这张图",
					Attachment: &chat.Attachment{
						Type:    chat.AttachmentImage,
						Name:    "pic.png",
						Content: "data:image/png;base64,AAAA",
					},
				},
			}, now)

			So(msgs, ShouldHaveLength, 2)
			parts, ok := msgs[1].Content.([]ContentPart)
			So(ok, ShouldBeTrue)
			So(parts, ShouldHaveLength, 2)
			So(parts[0].Type, ShouldEqual, "text")
			So(parts[0].Text, ShouldEqual, "看看这张图")
			So(parts[1].Type, ShouldEqual, "image_url")
			So(parts[1].ImageURL.URL, ShouldEqual, "data:image/png;base64,AAAA")
		})

		Convey("图片附件无文字时使用默认指令", func() {
			msgs := BuildMessages([]chat.Message{
				{
					Role:       chat.RoleUser,
					Attachment: &chat.Attachment{Type: chat.AttachmentImage, Content: "data:image/png;base64,BBBB"},
				},
			}, now)

			parts := msgs[1].Content.([]ContentPart)
			So(parts[0].Text, ShouldEqual, "Analyze this image.")
		})

		Convey("文件附件的提取文本并入消息内容", func() {
			msgs := BuildMessages([]chat.Message{
				{
					Role:       chat.RoleUser,
					Content:    "总结这个文件",
					Attachment: &chat.Attachment{Type: chat.AttachmentFile, Name: "notes.txt", Content: "file body"},
				},
			}, now)

			content, ok := msgs[1].Content.(string)
			So(ok, ShouldBeTrue)
			So(content, ShouldContainSubstring, "总结这个文件")
			So(content, ShouldContainSubstring, "File: notes.txt")
			So(content, ShouldContainSubstring, "```\nfile body\n```")
		})
	})
}
