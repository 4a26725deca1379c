package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"draftsmith-backend/internal/model"
	"draftsmith-backend/internal/service"
	"draftsmith-backend/internal/utils"
	"draftsmith-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

type ArticleHandler struct {
	articleService *service.ArticleService
}

func NewArticleHandler(articleService *service.ArticleService) *ArticleHandler {
	return &ArticleHandler{
		articleService: articleService,
	}
}

func (h *ArticleHandler) StreamArticle(c *gin.Context) {
	var req model.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 表单校验失败走普通 400，不进入 SSE 流
	if err := h.articleService.ValidateConfig(req.Config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger.Infof("收到生成请求 - SessionID: %s, Keyword: %s, 配图: %d",
		req.SessionID, req.Config.Keyword, req.Config.PlaceholderTotal())

	sseWriter := utils.NewSSEWriter(c.Writer)

	// 生成加配图可能耗时较长，给整条连接一个宽松的上限
	ctx, cancel := context.WithTimeout(c.Request.Context(), 25*time.Minute)
	defer cancel()

	// 心跳goroutine，防止连接因空闲而断开
	heartbeatTicker := time.NewTicker(30 * time.Second)
	defer heartbeatTicker.Stop()

	go func() {
		for {
			select {
			case <-heartbeatTicker.C:
				heartbeatData, _ := json.Marshal(gin.H{
					"type":      "heartbeat",
					"timestamp": time.Now().Unix(),
					"message":   "连接正常",
				})
				if err := sseWriter.Write("heartbeat", string(heartbeatData)); err != nil {
					logger.Warnf("心跳发送失败: %v", err)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	respChan, errChan := h.articleService.StreamArticle(req.SessionID, req.Config)

	startData, _ := json.Marshal(gin.H{
		"type":      "processing_start",
		"message":   "开始生成文章...",
		"timestamp": time.Now().Unix(),
	})
	sseWriter.Write("status", string(startData))

	for {
		select {
		case resp, ok := <-respChan:
			if !ok {
				// 服务侧失败时两个通道几乎同时关闭，select 可能先命中
				// 已关闭的响应通道，这里补发未送达的错误帧
				select {
				case err := <-errChan:
					if err != nil {
						errorData, _ := json.Marshal(gin.H{
							"error":      err.Error(),
							"type":       "service_error",
							"timestamp":  time.Now().Unix(),
							"suggestion": "请检查模型配置或稍后重试",
						})
						sseWriter.Write("error", string(errorData))
						sseWriter.Close()
						return
					}
				default:
				}
				completeData, _ := json.Marshal(gin.H{
					"type":      "processing_complete",
					"message":   "生成完成",
					"timestamp": time.Now().Unix(),
				})
				sseWriter.Write("status", string(completeData))
				sseWriter.Close()
				return
			}

			data, err := json.Marshal(resp)
			if err != nil {
				logger.Errorf("Failed to marshal response: %v", err)
				continue
			}

			if err := sseWriter.Write(resp.Type, string(data)); err != nil {
				logger.Errorf("Failed to write SSE: %v", err)
				return
			}

		case err := <-errChan:
			if err != nil {
				errorData, _ := json.Marshal(gin.H{
					"error":      err.Error(),
					"type":       "service_error",
					"timestamp":  time.Now().Unix(),
					"suggestion": "请检查模型配置或稍后重试",
				})
				sseWriter.Write("error", string(errorData))
				sseWriter.Close()
				return
			}

		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				timeoutData, _ := json.Marshal(gin.H{
					"error":      "处理超时",
					"type":       "timeout",
					"timestamp":  time.Now().Unix(),
					"suggestion": "生成时间过长，建议减少字数或配图数量后重试",
				})
				sseWriter.Write("error", string(timeoutData))
			}
			sseWriter.Close()
			return
		}
	}
}

// GetArticleResult 返回会话中最近一次生成的最终产物
func (h *ArticleHandler) GetArticleResult(c *gin.Context) {
	sessionID := c.Param("session_id")

	result, err := h.articleService.GetArticleResult(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"article":    result,
	})
}

func (h *ArticleHandler) CreateSession(c *gin.Context) {
	var req model.CreateSessionRequest
	// 允许空的请求体，使用默认标题
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Title = ""
	}

	session, err := h.articleService.CreateSession(req.Title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *ArticleHandler) GetSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	session, err := h.articleService.GetSession(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.SessionResponse{
		SessionID:    session.ID,
		Title:        session.Title,
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
		MessageCount: len(session.Messages),
	})
}

func (h *ArticleHandler) GetMessages(c *gin.Context) {
	sessionID := c.Param("session_id")

	messages, err := h.articleService.GetSessionMessages(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   messages,
	})
}

func (h *ArticleHandler) GetSessionList(c *gin.Context) {
	sessions, err := h.articleService.GetAllSessions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
	})
}

func (h *ArticleHandler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	err := h.articleService.DeleteSession(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session deleted successfully"})
}

func (h *ArticleHandler) ClearAllSessions(c *gin.Context) {
	err := h.articleService.ClearAllSessions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "All sessions cleared successfully"})
}

func (h *ArticleHandler) UpdateSessionTitle(c *gin.Context) {
	sessionID := c.Param("session_id")

	var req struct {
		Title string `json:"title" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.articleService.UpdateSessionTitle(sessionID, req.Title)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Title updated successfully"})
}
