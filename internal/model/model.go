package model

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"draftsmith-backend/internal/config"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/sirupsen/logrus"
)

// NewArticleModel 创建文章生成用的流式对话模型
func NewArticleModel(ctx context.Context) einoModel.ChatModel {
	cfg := config.Get()

	switch cfg.Model.Provider {
	case "doubao":
		return createDoubaoModel(ctx, cfg.Doubao)
	case "openai":
		return createOpenAIModel(ctx, cfg.OpenAI)
	case "qwen":
		return createQwenModel(ctx, cfg.Qwen)
	default:
		log.Fatalf("Unsupported model provider: %s", cfg.Model.Provider)
		return nil
	}
}

func createDoubaoModel(ctx context.Context, cfg config.DoubaoConfig) einoModel.ChatModel {
	if len(cfg.APIKey) > 10 {
		fmt.Printf("Using Doubao API Key: %s..., Model: %s\n", cfg.APIKey[:10], cfg.Model)
	} else {
		fmt.Printf("Using Doubao API Key: %s, Model: %s\n", cfg.APIKey, cfg.Model)
	}

	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
		CustomHeader: map[string]string{
			"X-Ark-Thinking-Mode": "disable",
		},
	})
	if err != nil {
		log.Fatalf("Failed to create Doubao model: %v", err)
	}

	return chatModel
}

func createOpenAIModel(ctx context.Context, cfg config.OpenAIConfig) einoModel.ChatModel {
	fmt.Printf("Using OpenAI Model: %s\n", cfg.Model)

	chatModel, err := newOpenAIChatModel(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create OpenAI model: %v", err)
	}

	return chatModel
}

// DebugTransport 调试用 HTTP 传输层，打印请求体（脱敏）
type DebugTransport struct {
	base         http.RoundTripper
	debugEnabled bool
	logger       *logrus.Logger
}

func NewDebugTransport(base http.RoundTripper, debugEnabled bool) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}

	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)

	return &DebugTransport{
		base:         base,
		debugEnabled: debugEnabled,
		logger:       l,
	}
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.debugEnabled && req.Method == http.MethodPost {
		t.logRequest(req)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil && t.debugEnabled {
		t.logger.Errorf("[Model Debug] Request failed: %v", err)
	}

	return resp, err
}

func (t *DebugTransport) logRequest(req *http.Request) {
	t.logger.Infof("[Model Debug] %s %s", req.Method, req.URL.String())

	for name, values := range req.Header {
		if isSensitiveHeader(name) {
			t.logger.Infof("[Model Debug]   %s: [REDACTED]", name)
		} else {
			t.logger.Infof("[Model Debug]   %s: %s", name, strings.Join(values, ", "))
		}
	}

	if req.Body == nil {
		return
	}
	bodyBytes, err := io.ReadAll(req.Body)
	if err != nil {
		t.logger.Errorf("[Model Debug] Failed to read request body: %v", err)
		return
	}
	// 恢复请求体，避免影响实际请求
	req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	t.logger.Infof("[Model Debug] Request Body (%d bytes): %s", len(bodyBytes), string(bodyBytes))
}

func isSensitiveHeader(name string) bool {
	sensitiveHeaders := []string{"authorization", "x-api-key", "x-auth-token", "cookie"}
	for _, sensitive := range sensitiveHeaders {
		if strings.EqualFold(name, sensitive) {
			return true
		}
	}
	return false
}

func createQwenModel(ctx context.Context, cfg config.QwenConfig) einoModel.ChatModel {
	fmt.Printf("Using Qwen Model: %s, BaseURL: %s\n", cfg.Model, cfg.BaseURL)

	debugTransport := NewDebugTransport(nil, cfg.DebugRequest)
	httpClient := &http.Client{
		Transport: debugTransport,
		Timeout:   cfg.Timeout,
	}

	chatModel, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   &cfg.MaxTokens,
		Temperature: &cfg.Temperature,
		TopP:        &cfg.TopP,
		Timeout:     cfg.Timeout,
		HTTPClient:  httpClient,
	})
	if err != nil {
		log.Fatalf("Failed to create Qwen model: %v", err)
	}

	return chatModel
}
