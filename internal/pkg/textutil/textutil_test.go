package textutil

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTruncate(t *testing.T) {
	Convey("Truncate 按 rune 截断文本", t, func() {
		Convey("不超长时原样返回", func() {
			So(Truncate("hello", 10), ShouldEqual, "hello")
			So(Truncate("hello", 5), ShouldEqual, "hello")
		})

		Convey("超长时截断并加省略号", func() {
			So(Truncate("hello world", 5), ShouldEqual, "hello...")
		})

		Convey("多字节字符不被切坏", func() {
			So(Truncate("你好世界再见", 4), ShouldEqual, "你好世界...")
		})

		Convey("空串原样返回", func() {
			So(Truncate("", 10), ShouldEqual, "")
		})
	})
}

func TestTokenEstimator_Estimate(t *testing.T) {
	Convey("TokenEstimator 估算 token 数", t, func() {
		e := NewTokenEstimator()

		Convey("空文本为 0", func() {
			So(e.Estimate(""), ShouldEqual, 0)
		})

		Convey("非空文本至少 1 个 token", func() {
			So(e.Estimate("hi"), ShouldBeGreaterThanOrEqualTo, 1)
		})

		Convey("更长的文本估算更多 token", func() {
			short := e.Estimate("one two")
			long := e.Estimate("one two three four five six seven eight nine ten")
			So(long, ShouldBeGreaterThan, short)
		})

		Convey("未初始化分词器时走字符估算", func() {
			var fallback TokenEstimator
			So(fallback.Estimate("你好 world"), ShouldBeGreaterThanOrEqualTo, 2)
		})
	})
}
