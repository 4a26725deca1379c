package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"draftsmith-backend/internal/config"
	"draftsmith-backend/internal/utils"

	openai "github.com/sashabaranov/go-openai"
)

// ImageFailureReason 配图失败的类型化原因
type ImageFailureReason string

const (
	ImageFailRateLimited     ImageFailureReason = "rate_limited"
	ImageFailContentFiltered ImageFailureReason = "content_filtered"
	ImageFailNoData          ImageFailureReason = "no_data"
	ImageFailUnknown         ImageFailureReason = "unknown"
)

// ImageError 携带失败原因的配图错误，只有限流可重试
type ImageError struct {
	Reason ImageFailureReason
	Err    error
}

func (e *ImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("image generation failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("image generation failed (%s)", e.Reason)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

func (e *ImageError) Retryable() bool {
	return e.Reason == ImageFailRateLimited
}

// FailureReasonOf 提取错误的类型化原因，非 ImageError 归为 unknown
func FailureReasonOf(err error) ImageFailureReason {
	var ie *ImageError
	if errors.As(err, &ie) {
		return ie.Reason
	}
	return ImageFailUnknown
}

// ImageSynthesizer 配图生成能力，返回 base64 PNG
type ImageSynthesizer interface {
	GenerateImage(ctx context.Context, prompt, size string) (string, error)
}

// OpenAIImageClient 基于 OpenAI 兼容接口的配图客户端
type OpenAIImageClient struct {
	client *openai.Client
	model  string
}

func NewImageClient(cfg config.ImageConfig) *OpenAIImageClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = utils.NewHTTPClient(cfg.Timeout)
	}

	model := cfg.Model
	if model == "" {
		model = openai.CreateImageModelDallE3
	}

	return &OpenAIImageClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

func (c *OpenAIImageClient) GenerateImage(ctx context.Context, prompt, size string) (string, error) {
	if size == "" {
		size = openai.CreateImageSize1024x1024
	}

	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.model,
		N:              1,
		Size:           size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return "", classifyImageError(err)
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return "", &ImageError{Reason: ImageFailNoData}
	}

	return resp.Data[0].B64JSON, nil
}

// classifyImageError 将上游错误映射为类型化原因
func classifyImageError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &ImageError{Reason: ImageFailRateLimited, Err: err}
		case apiErr.Type == "invalid_request_error" && fmt.Sprint(apiErr.Code) == "content_policy_violation":
			return &ImageError{Reason: ImageFailContentFiltered, Err: err}
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &ImageError{Reason: ImageFailRateLimited, Err: err}
	}

	return &ImageError{Reason: ImageFailUnknown, Err: err}
}
