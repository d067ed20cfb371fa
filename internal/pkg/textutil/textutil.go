package textutil

import (
	"strings"
	"unicode"

	"github.com/go-ego/gse"
)

// Truncate 截断文本到 max 个字符，超长时追加省略号
// 按 rune 截断，避免切坏多字节字符
func Truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

// TokenEstimator 基于分词的 token 估算器
// 没有 tiktoken 的精确计数，用 gse 分词数近似：
// 英文一个词约一个 token，CJK 按字计
type TokenEstimator struct {
	segmenter gse.Segmenter
	ready     bool
}

// NewTokenEstimator 创建 token 估算器
func NewTokenEstimator() *TokenEstimator {
	// 初始化 gse 分词器，失败时降级到字符估算
	segmenter, err := gse.New()
	if err != nil {
		return &TokenEstimator{}
	}

	return &TokenEstimator{segmenter: segmenter, ready: true}
}

// Estimate 估算文本的 token 数
func (e *TokenEstimator) Estimate(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	if !e.ready {
		// 降级：4个字符 ≈ 1个token，CJK 按字计
		return fallbackEstimate(text)
	}

	words := e.segmenter.Cut(text, false)
	count := 0
	for _, w := range words {
		if strings.TrimSpace(w) == "" {
			continue
		}
		count++
	}
	return count
}

func fallbackEstimate(text string) int {
	count := 0
	ascii := 0
	for _, r := range text {
		if r > unicode.MaxASCII {
			count++
		} else {
			ascii++
		}
	}
	total := count + ascii/4
	if total < 1 {
		total = 1
	}
	return total
}
