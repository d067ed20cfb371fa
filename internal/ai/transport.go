package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dayal123456/Lumico-ai/internal/config"
)

// scanBufSize 单帧上限，单个 data: 帧可能携带很长的增量
const scanBufSize = 1024 * 1024

// Client 补全端点客户端
// 每轮对话发起一个 POST，以 chunked 响应逐帧读取增量。
// 不设请求超时：挂起的流一直等到调用方取消或传输层报错。
type Client struct {
	cfg        *config.AIConfig
	httpClient *http.Client
}

// NewClient 创建补全客户端
func NewClient(cfg *config.AIConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

// StreamOptions 单次流式请求的选项
type StreamOptions struct {
	Thinking bool // 扩展推理模式
}

// wireRequest OpenAI 兼容请求体
type wireRequest struct {
	Model            string        `json:"model"`
	Messages         []WireMessage `json:"messages"`
	Stream           bool          `json:"stream"`
	Temperature      float64       `json:"temperature,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	IncludeReasoning bool          `json:"include_reasoning,omitempty"`
}

// wireChunk 流式帧，只关心增量文本所在的字段
type wireChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// wireError 非 2xx 响应体
type wireError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// DeltaStream 增量流
// Recv 阻塞到下一个增量、流结束或出错；实现必须按到达顺序交付
type DeltaStream interface {
	Recv() (string, error)
	Close() error
}

// OpenStream 发起一次流式补全请求
// 返回的流惰性交付增量；ctx 取消会立即中断底层读取
func (c *Client) OpenStream(ctx context.Context, msgs []WireMessage, opts StreamOptions) (DeltaStream, error) {
	body := wireRequest{
		Model:            c.cfg.Model,
		Messages:         msgs,
		Stream:           true,
		Temperature:      c.cfg.Options.Temperature,
		MaxTokens:        c.cfg.Options.MaxTokens,
		IncludeReasoning: opts.Thinking,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
		req.Header.Set("X-Title", "Lumico")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg := fmt.Sprintf("API Error %d", resp.StatusCode)
		var we wireError
		if raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
			if json.Unmarshal(raw, &we) == nil && we.Error.Message != "" {
				msg = we.Error.Message
			}
		}
		return nil, &TransportError{StatusCode: resp.StatusCode, Message: msg}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufSize)

	return &Stream{ctx: ctx, body: resp.Body, scanner: scanner}, nil
}

// Stream 一次流式补全会话
type Stream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// Recv 阻塞等待下一个文本增量
// 正常结束（[DONE] 哨兵或响应体读尽）返回 io.EOF；
// 调用方取消返回 context.Canceled；传输失败返回 *TransportError。
// 无法解析的帧直接跳过，坏帧不中断整个流。
func (s *Stream) Recv() (string, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return "", io.EOF
		}

		var chunk wireChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}

	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if err := s.scanner.Err(); err != nil {
		return "", &TransportError{Message: err.Error()}
	}
	return "", io.EOF
}

// Close 关闭底层响应体
func (s *Stream) Close() error {
	return s.body.Close()
}
