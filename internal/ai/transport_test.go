package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/dayal123456/Lumico-ai/internal/config"
)

// sseServer 返回一个按行吐 SSE 帧的测试服务器
func sseServer(lines []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			_, _ = w.Write([]byte(line + "\n"))
			flusher.Flush()
		}
	}))
}

func testClient(baseURL string) *Client {
	return NewClient(&config.AIConfig{
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: baseURL,
	})
}

func frame(content string) string {
	payload, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"delta": map[string]any{"content": content}},
		},
	})
	return "data: " + string(payload)
}

// drain 读完整个流，返回所有增量和终止错误
func drain(s DeltaStream) ([]string, error) {
	var deltas []string
	for {
		delta, err := s.Recv()
		if err != nil {
			return deltas, err
		}
		deltas = append(deltas, delta)
	}
}

func TestClient_OpenStream(t *testing.T) {
	Convey("OpenStream 解析流式补全响应", t, func() {
		ctx := context.Background()

		Convey("正常流按序交付增量，[DONE] 后返回 EOF", func() {
			srv := sseServer([]string{
				frame("Hello"),
				"",
				frame(", "),
				frame("world"),
				"data: [DONE]",
			})
			defer srv.Close()

			stream, err := testClient(srv.URL).OpenStream(ctx, nil, StreamOptions{})
			So(err, ShouldBeNil)
			defer stream.Close()

			deltas, err := drain(stream)
			So(err, ShouldEqual, io.EOF)
			So(deltas, ShouldResemble, []string{"Hello", ", ", "world"})
		})

		Convey("坏帧跳过，不中断整个流", func() {
			srv := sseServer([]string{
				frame("a"),
				"data: {not valid json",
				"data: {\"choices\":[]}",
				": keep-alive comment",
				frame("b"),
				"data: [DONE]",
			})
			defer srv.Close()

			stream, err := testClient(srv.URL).OpenStream(ctx, nil, StreamOptions{})
			So(err, ShouldBeNil)
			defer stream.Close()

			deltas, err := drain(stream)
			So(err, ShouldEqual, io.EOF)
			So(deltas, ShouldResemble, []string{"a", "b"})
		})

		Convey("空增量不交付", func() {
			srv := sseServer([]string{
				frame(""),
				frame("x"),
				"data: [DONE]",
			})
			defer srv.Close()

			stream, err := testClient(srv.URL).OpenStream(ctx, nil, StreamOptions{})
			So(err, ShouldBeNil)
			defer stream.Close()

			deltas, _ := drain(stream)
			So(deltas, ShouldResemble, []string{"x"})
		})

		Convey("响应体读尽但没有 [DONE] 也算正常结束", func() {
			srv := sseServer([]string{frame("tail")})
			defer srv.Close()

			stream, err := testClient(srv.URL).OpenStream(ctx, nil, StreamOptions{})
			So(err, ShouldBeNil)
			defer stream.Close()

			deltas, err := drain(stream)
			So(err, ShouldEqual, io.EOF)
			So(deltas, ShouldResemble, []string{"tail"})
		})

		Convey("非 2xx 响应返回 TransportError，带服务端错误消息", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"message":"Rate limit exceeded"}}`))
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).OpenStream(ctx, nil, StreamOptions{})
			var te *TransportError
			So(errors.As(err, &te), ShouldBeTrue)
			So(te.StatusCode, ShouldEqual, http.StatusTooManyRequests)
			So(te.Message, ShouldEqual, "Rate limit exceeded")
		})

		Convey("非 2xx 响应体不是 JSON 时用状态码兜底", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte("upstream gone"))
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).OpenStream(ctx, nil, StreamOptions{})
			var te *TransportError
			So(errors.As(err, &te), ShouldBeTrue)
			So(te.Message, ShouldEqual, "API Error 502")
		})

		Convey("请求头携带认证和模型信息", func() {
			var gotAuth string
			var gotBody wireRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				_ = json.NewDecoder(r.Body).Decode(&gotBody)
				_, _ = w.Write([]byte("data: [DONE]\n"))
			}))
			defer srv.Close()

			msgs := []WireMessage{{Role: "user", Content: "hi"}}
			stream, err := testClient(srv.URL).OpenStream(ctx, msgs, StreamOptions{Thinking: true})
			So(err, ShouldBeNil)
			defer stream.Close()

			So(gotAuth, ShouldEqual, "Bearer test-key")
			So(gotBody.Model, ShouldEqual, "test-model")
			So(gotBody.Stream, ShouldBeTrue)
			So(gotBody.IncludeReasoning, ShouldBeTrue)
			So(gotBody.Messages, ShouldHaveLength, 1)
		})

		Convey("取消 ctx 后 Recv 返回 context.Canceled", func() {
			started := make(chan struct{})
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				flusher := w.(http.Flusher)
				_, _ = w.Write([]byte(frame("partial") + "\n"))
				flusher.Flush()
				close(started)
				<-r.Context().Done()
			}))
			defer srv.Close()

			cancelCtx, cancel := context.WithCancel(ctx)
			stream, err := testClient(srv.URL).OpenStream(cancelCtx, nil, StreamOptions{})
			So(err, ShouldBeNil)
			defer stream.Close()

			delta, err := stream.Recv()
			So(err, ShouldBeNil)
			So(delta, ShouldEqual, "partial")

			<-started
			cancel()

			_, err = stream.Recv()
			So(IsCancellation(err), ShouldBeTrue)
		})
	})
}
