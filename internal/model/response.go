package model

import "time"

// StreamResponse 单条 SSE 负载
type StreamResponse struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Type      string `json:"type"` // status, message, meta, sources, metrics, image
	Timestamp int64  `json:"timestamp"`

	// type=status
	Stage   string `json:"stage,omitempty"` // compiling, streaming, rendering, metrics, images
	Message string `json:"message,omitempty"`

	// type=message：本次新增的 Markdown 片段与当前完整渲染结果
	Delta string `json:"delta,omitempty"`
	HTML  string `json:"html,omitempty"`

	// type=meta
	Meta *MetaBlocks `json:"meta,omitempty"`

	// type=sources
	Sources []Source `json:"sources,omitempty"`

	// type=metrics
	Metrics *ArticleMetrics `json:"metrics,omitempty"`

	// type=image
	Image *ImageSlotState `json:"image,omitempty"`
}

// MetaBlocks 从流中剥离的隐藏元数据块，未收齐的块 Available=false
type MetaBlocks struct {
	Schema           string `json:"schema,omitempty"`
	SchemaAvailable  bool   `json:"schema_available"`
	Summary          string `json:"summary,omitempty"`
	SummaryAvailable bool   `json:"summary_available"`
}

// Source 模型返回的引用来源，按 URL 去重
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

type ArticleMetrics struct {
	Readability  float64 `json:"readability"`
	QualityScore int     `json:"quality_score"`
}

// ImageSlotState 单个配图槽位的状态流转
type ImageSlotState struct {
	SlotID  string `json:"slot_id"` // img-slot-<ordinal>
	Ordinal int    `json:"ordinal"`
	Kind    string `json:"kind"`
	Caption string `json:"caption"`
	Status  string `json:"status"`            // loading, resolved, failed
	Data    string `json:"data,omitempty"`    // base64 PNG
	Reason  string `json:"reason,omitempty"`  // rate_limited, content_filtered, no_data, unknown
	Attempt int    `json:"attempt,omitempty"` // 实际请求次数
}

type SessionResponse struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Message 会话内的一条记录：用户的生成配置或助手产出的文章
type Message struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"` // 用户侧为关键词，助手侧为最终 Markdown
	Config    *GenerationConfig `json:"config,omitempty"`
	Article   *ArticleResult    `json:"article,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ArticleResult 一次生成的最终产物
type ArticleResult struct {
	Markdown string           `json:"markdown"`
	HTML     string           `json:"html"`
	Meta     MetaBlocks       `json:"meta"`
	Sources  []Source         `json:"sources,omitempty"`
	Metrics  ArticleMetrics   `json:"metrics"`
	Images   []ImageSlotState `json:"images,omitempty"`
}

type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
