package model

// GenerationConfig 一次生成请求的全部表单输入，提交后不再变更
type GenerationConfig struct {
	Keyword        string          `json:"keyword" binding:"required"`
	Tone           string          `json:"tone"`
	Audience       string          `json:"audience"`
	WordCount      int             `json:"word_count"`
	Language       string          `json:"language"`
	IncludeLinks   bool            `json:"include_links"`
	SiteURL        string          `json:"site_url"`
	FeaturedImage  bool            `json:"featured_image"`
	ImageCount     int             `json:"image_count"`
	InfographicCnt int             `json:"infographic_count"`
	DiagramCount   int             `json:"diagram_count"`
	ImageStyle     string          `json:"image_style"`             // 全局风格修饰词
	SlotPrompts    []string        `json:"slot_prompts,omitempty"`  // 按出现顺序覆盖配图提示词
	Affiliates     []AffiliateLink `json:"affiliates,omitempty"`
	UseGrounding   bool            `json:"use_grounding"` // 允许模型联网检索并返回引用
}

type AffiliateLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// PlaceholderTotal 请求的配图总数
func (c *GenerationConfig) PlaceholderTotal() int {
	total := c.ImageCount + c.InfographicCnt + c.DiagramCount
	if c.FeaturedImage {
		total++
	}
	return total
}

type GenerateRequest struct {
	SessionID string           `json:"session_id"`
	Config    GenerationConfig `json:"config" binding:"required"`
}

type CreateSessionRequest struct {
	Title string `json:"title"`
}
