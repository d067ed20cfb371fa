package ai

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAccumulator(t *testing.T) {
	Convey("Accumulator 按序累积增量", t, func() {
		Convey("空累积器的快照为空串", func() {
			var acc Accumulator
			So(acc.Snapshot(), ShouldEqual, "")
			So(acc.Len(), ShouldEqual, 0)
		})

		Convey("快照是所有增量的顺序拼接", func() {
			var acc Accumulator
			acc.Append("Hel")
			acc.Append("lo, ")
			acc.Append("world")
			So(acc.Snapshot(), ShouldEqual, "Hello, world")
		})

		Convey("同样的增量序列无论如何切分结果一致", func() {
			text := "落霞与孤鹜齐飞，秋水共长天一色。"

			var whole Accumulator
			whole.Append(text)

			var byRune Accumulator
			for _, r := range text {
				byRune.Append(string(r))
			}

			So(byRune.Snapshot(), ShouldEqual, whole.Snapshot())
		})

		Convey("空增量不改变快照", func() {
			var acc Accumulator
			acc.Append("abc")
			acc.Append("")
			So(acc.Snapshot(), ShouldEqual, "abc")
		})

		Convey("Len 返回累积的字节数", func() {
			var acc Accumulator
			acc.Append("ab")
			acc.Append("中")
			So(acc.Len(), ShouldEqual, 5)
		})
	})
}
