package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"draftsmith-backend/internal/config"
	"draftsmith-backend/internal/model"
	"draftsmith-backend/internal/storage"
	"draftsmith-backend/pkg/logger"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// ArticleService 串起整条生成流水线：
// 编译提示词 → 流式拉取模型输出 → 剥离元数据块 → 渐进渲染 → 指标评估 → 异步配图
type ArticleService struct {
	storage   storage.Storage
	chatModel einoModel.ChatModel
	filler    *ImageFiller
	mu        sync.RWMutex
	config    *config.Config
}

func NewArticleService(cfg *config.Config) *ArticleService {
	var store storage.Storage

	if cfg.Storage.Type == "disk" {
		store = storage.NewDiskStorage(cfg.Storage.DataDir, cfg.Storage.CacheSize)
	} else {
		store = storage.NewMemoryStorage()
	}

	if err := store.Init(); err != nil {
		logger.Errorf("Failed to initialize storage: %v", err)
		store = storage.NewMemoryStorage()
		store.Init()
	}

	return NewArticleServiceWithDeps(
		store,
		model.NewArticleModel(context.Background()),
		NewImageFiller(model.NewImageClient(cfg.Image), cfg.Image),
		cfg,
	)
}

// NewArticleServiceWithDeps 按依赖注入构造服务，存储与模型可替换
func NewArticleServiceWithDeps(store storage.Storage, chatModel einoModel.ChatModel, filler *ImageFiller, cfg *config.Config) *ArticleService {
	s := &ArticleService{
		storage:   store,
		chatModel: chatModel,
		filler:    filler,
		config:    cfg,
	}

	go s.cleanupOldSessions()

	return s
}

// ValidateConfig 表单级校验，在发起任何模型请求之前同步执行
func (s *ArticleService) ValidateConfig(gen model.GenerationConfig) error {
	if strings.TrimSpace(gen.Keyword) == "" {
		return fmt.Errorf("keyword is required")
	}
	if gen.WordCount < 0 {
		return fmt.Errorf("word_count must not be negative")
	}
	if gen.ImageCount < 0 || gen.InfographicCnt < 0 || gen.DiagramCount < 0 {
		return fmt.Errorf("placeholder counts must not be negative")
	}
	if total := gen.PlaceholderTotal(); total > s.config.Article.MaxPlaceholder {
		return fmt.Errorf("requested %d visuals, limit is %d", total, s.config.Article.MaxPlaceholder)
	}
	return nil
}

// StreamArticle 执行一次完整生成。每次调用都是全新的请求级状态，
// 上一次未完成的流不取消，其迟到分片写入的是已不可达的旧状态。
func (s *ArticleService) StreamArticle(sessionID string, gen model.GenerationConfig) (<-chan model.StreamResponse, <-chan error) {
	respChan := make(chan model.StreamResponse, 100)
	errChan := make(chan error, 1)

	go func() {
		defer close(respChan)
		defer close(errChan)

		if sessionID == "" {
			errChan <- fmt.Errorf("sessionID is required")
			return
		}
		if _, err := s.GetSession(sessionID); err != nil {
			errChan <- fmt.Errorf("session not found: %s", sessionID)
			return
		}
		if err := s.ValidateConfig(gen); err != nil {
			errChan <- err
			return
		}

		ctx := context.Background()
		if s.config.Article.StreamTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.config.Article.StreamTimeout)
			defer cancel()
		}

		if _, err := s.addRequestMessage(sessionID, gen); err != nil {
			errChan <- err
			return
		}

		// 预先落一条空的助手消息，后续内容与配图结果都更新到它上面
		messageID := uuid.New().String()
		if err := s.storage.AddMessage(sessionID, &model.Message{
			ID:        messageID,
			SessionID: sessionID,
			Role:      "assistant",
			Timestamp: time.Now(),
		}); err != nil {
			errChan <- err
			return
		}

		send := func(resp model.StreamResponse) {
			resp.SessionID = sessionID
			resp.MessageID = messageID
			resp.Timestamp = time.Now().Unix()
			respChan <- resp
		}

		send(model.StreamResponse{Type: "status", Stage: "compiling", Message: "正在编译提示词..."})
		prompt := CompilePrompt(gen)

		messages := []*schema.Message{
			{Role: schema.System, Content: s.systemPrompt()},
			{Role: schema.User, Content: prompt},
		}

		send(model.StreamResponse{Type: "status", Stage: "streaming", Message: "模型生成中..."})
		stream, err := s.chatModel.Stream(ctx, messages)
		if err != nil {
			errChan <- fmt.Errorf("model stream failed: %w", err)
			return
		}
		defer stream.Close()

		demux := NewStreamDemux()
		seenURLs := make(map[string]bool)
		var sources []model.Source
		var prevDisplay string

		for {
			chunk, err := stream.Recv()
			if err != nil {
				if err == io.EOF {
					break
				}
				// 流级失败整体上抛，已渲染的部分正文由前端保留展示
				errChan <- fmt.Errorf("stream recv failed: %w", err)
				return
			}

			collectSources(chunk, seenURLs, &sources)

			if chunk.Content == "" {
				continue
			}
			display, changed := demux.Feed(chunk.Content)
			if !changed {
				continue
			}
			// 增量以剥离后的正文计算，原始分片可能夹带元数据块；
			// 正文回缩（缓冲区中段出现起始分隔符）时整段重发
			delta := display
			if strings.HasPrefix(display, prevDisplay) {
				delta = display[len(prevDisplay):]
			}
			prevDisplay = display
			send(model.StreamResponse{
				Type:  "message",
				Delta: delta,
				HTML:  RenderMarkdown(display),
			})
		}

		finalMarkdown := demux.FinalDisplay()
		meta := metaBlocksOf(demux)
		send(model.StreamResponse{Type: "meta", Meta: &meta})

		if len(sources) > 0 {
			send(model.StreamResponse{Type: "sources", Sources: sources})
		}

		send(model.StreamResponse{Type: "status", Stage: "rendering", Message: "渲染正文..."})
		markup, tokens := InjectAnchors(RenderMarkdown(finalMarkdown))
		send(model.StreamResponse{Type: "message", HTML: markup})

		send(model.StreamResponse{Type: "status", Stage: "metrics", Message: "评估内容指标..."})
		metrics := model.ArticleMetrics{
			Readability:  EstimateReadability(finalMarkdown),
			QualityScore: EstimateQualityScore(finalMarkdown, markup, gen),
		}
		send(model.StreamResponse{Type: "metrics", Metrics: &metrics})

		result := &model.ArticleResult{
			Markdown: finalMarkdown,
			HTML:     markup,
			Meta:     meta,
			Sources:  sources,
			Metrics:  metrics,
		}
		if err := s.storage.UpdateMessageArticle(sessionID, messageID, finalMarkdown, result); err != nil {
			logger.Errorf("Failed to persist article for message %s: %v", messageID, err)
		}

		if len(tokens) == 0 {
			return
		}

		send(model.StreamResponse{Type: "status", Stage: "images", Message: fmt.Sprintf("生成 %d 张配图...", len(tokens))})
		for _, tok := range tokens {
			send(model.StreamResponse{Type: "image", Image: &model.ImageSlotState{
				SlotID:  SlotID(tok.Ordinal),
				Ordinal: tok.Ordinal,
				Kind:    tok.Kind,
				Caption: tok.Caption,
				Status:  "loading",
			}})
		}

		// 配图结果按完成顺序到达，锚点按 id 定位，与文本顺序无关
		for st := range s.filler.Resolve(ctx, tokens, gen) {
			markup = ApplySlotOutcome(markup, st)
			result.Images = append(result.Images, st)
			stCopy := st
			send(model.StreamResponse{Type: "image", Image: &stCopy})
		}

		result.HTML = markup
		if err := s.storage.UpdateMessageArticle(sessionID, messageID, finalMarkdown, result); err != nil {
			logger.Errorf("Failed to persist resolved article for message %s: %v", messageID, err)
		}
	}()

	return respChan, errChan
}

func (s *ArticleService) systemPrompt() string {
	if s.config.Article.SystemPrompt != "" {
		return s.config.Article.SystemPrompt
	}
	return "You are a senior content writer. Follow the formatting contract in the user instruction exactly; output Markdown only, with no explanations around it."
}

// addRequestMessage 记录用户的生成配置，并在会话还是默认标题时用关键词命名
func (s *ArticleService) addRequestMessage(sessionID string, gen model.GenerationConfig) (*model.Message, error) {
	session, err := s.storage.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	genCopy := gen
	message := &model.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      "user",
		Content:   gen.Keyword,
		Config:    &genCopy,
		Timestamp: time.Now(),
	}

	if err := s.storage.AddMessage(sessionID, message); err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}

	if strings.HasPrefix(session.Title, "新文章") {
		session.Title = s.truncateString(gen.Keyword, 30)
		session.UpdatedAt = time.Now()
		s.storage.UpdateSession(session)
	}

	return message, nil
}

func metaBlocksOf(demux *StreamDemux) model.MetaBlocks {
	var meta model.MetaBlocks
	meta.Schema, meta.SchemaAvailable = demux.Block(BlockSchema)
	meta.Summary, meta.SummaryAvailable = demux.Block(BlockSummary)
	return meta
}

// collectSources 收集流中夹带的引用元数据（有则收，无则忽略），按 URL 去重
func collectSources(msg *schema.Message, seen map[string]bool, acc *[]model.Source) {
	if msg == nil || msg.Extra == nil {
		return
	}
	for _, key := range []string{"citations", "references", "sources"} {
		raw, ok := msg.Extra[key]
		if !ok {
			continue
		}
		items, ok := raw.([]any)
		if !ok {
			continue
		}
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			url, _ := m["url"].(string)
			if url == "" || seen[url] {
				continue
			}
			title, _ := m["title"].(string)
			seen[url] = true
			*acc = append(*acc, model.Source{URL: url, Title: title})
		}
	}
}

func (s *ArticleService) CreateSession(title string) (*model.Session, error) {
	sessionID := fmt.Sprintf("%d", time.Now().UnixNano())

	if title == "" {
		title = "新文章 " + time.Now().Format("2006-01-02 15:04")
	}

	session := &model.Session{
		ID:        sessionID,
		Title:     title,
		Messages:  make([]model.Message, 0),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.storage.CreateSession(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

func (s *ArticleService) GetSession(sessionID string) (*model.Session, error) {
	session, err := s.storage.GetSession(sessionID)
	if err != nil {
		if err == storage.ErrSessionNotFound {
			return nil, fmt.Errorf("session not found: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

func (s *ArticleService) GetSessionMessages(sessionID string) ([]model.Message, error) {
	messages, err := s.storage.GetMessages(sessionID)
	if err != nil {
		if err == storage.ErrSessionNotFound {
			return nil, fmt.Errorf("session not found: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	result := make([]model.Message, len(messages))
	for i, msg := range messages {
		result[i] = *msg
	}

	return result, nil
}

// GetArticleResult 取会话中最近一次生成的最终产物
func (s *ArticleService) GetArticleResult(sessionID string) (*model.ArticleResult, error) {
	messages, err := s.storage.GetMessages(sessionID)
	if err != nil {
		if err == storage.ErrSessionNotFound {
			return nil, fmt.Errorf("session not found: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" && messages[i].Article != nil {
			return messages[i].Article, nil
		}
	}

	return nil, fmt.Errorf("no article generated yet in session %s", sessionID)
}

func (s *ArticleService) UpdateSessionTitle(sessionID, title string) error {
	session, err := s.storage.GetSession(sessionID)
	if err != nil {
		if err == storage.ErrSessionNotFound {
			return fmt.Errorf("session not found: %s", sessionID)
		}
		return fmt.Errorf("failed to get session: %w", err)
	}

	session.Title = title
	session.UpdatedAt = time.Now()

	if err := s.storage.UpdateSession(session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	return nil
}

func (s *ArticleService) GetAllSessions() ([]*model.Session, error) {
	sessions, err := s.storage.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, nil
}

func (s *ArticleService) DeleteSession(sessionID string) error {
	if err := s.storage.DeleteSession(sessionID); err != nil {
		if err == storage.ErrSessionNotFound {
			return fmt.Errorf("session not found: %s", sessionID)
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

func (s *ArticleService) ClearAllSessions() error {
	sessions, err := s.storage.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	for _, session := range sessions {
		if err := s.storage.DeleteSession(session.ID); err != nil {
			logger.Errorf("Failed to delete session %s: %v", session.ID, err)
		}
	}

	return nil
}

func (s *ArticleService) cleanupOldSessions() {
	if s.config.Session.CleanupInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.config.Session.CleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		sessions, err := s.storage.ListSessions()
		if err != nil {
			logger.Errorf("Failed to list sessions for cleanup: %v", err)
			continue
		}

		cutoff := time.Now().Add(-s.config.Session.TTL)
		for _, session := range sessions {
			if session.UpdatedAt.Before(cutoff) {
				if err := s.storage.DeleteSession(session.ID); err != nil {
					logger.Errorf("Failed to delete expired session %s: %v", session.ID, err)
				} else {
					logger.Infof("Cleaned up expired session: %s", session.ID)
				}
			}
		}
	}
}

func (s *ArticleService) truncateString(str string, maxLen int) string {
	runes := []rune(str)
	if len(runes) <= maxLen {
		return str
	}
	return string(runes[:maxLen]) + "..."
}

// GetStorage 返回存储实例，供需要共享存储的场景使用
func (s *ArticleService) GetStorage() storage.Storage {
	return s.storage
}
