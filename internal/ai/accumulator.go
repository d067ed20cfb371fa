package ai

import "strings"

// Accumulator 流式增量累积器
// 纯追加折叠：按接收顺序拼接增量，不重排、不去重、不丢弃。
// Snapshot 随时返回当前完整内容，每个增量到达后消息内容
// 整体替换为该快照，乱序重绘也不会显示回退的内容。
type Accumulator struct {
	buf strings.Builder
}

// Append 追加一个增量
func (a *Accumulator) Append(delta string) {
	a.buf.WriteString(delta)
}

// Snapshot 返回当前累积的完整内容
func (a *Accumulator) Snapshot() string {
	return a.buf.String()
}

// Len 返回已累积的字节数
func (a *Accumulator) Len() int {
	return a.buf.Len()
}
