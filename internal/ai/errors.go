package ai

import (
	"context"
	"errors"
	"fmt"
)

// TransportError 补全端点错误
// 覆盖非 2xx 响应和流中途的网络失败；单帧解析失败不算，直接跳过该帧
type TransportError struct {
	StatusCode int    // 0 表示网络层失败，没有HTTP状态码
	Message    string // 服务端返回的错误消息，或底层错误描述
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("completion API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("completion transport error: %s", e.Message)
}

// IsCancellation 判断错误是否来自主动取消
// 取消不是错误：不产生错误标注，已累积的内容保留
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
