package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gemini_agent_api/backend/go/internal/agent"
	"gemini_agent_api/backend/go/internal/agent_api/service"
	"gemini_agent_api/backend/go/internal/config"
	"gemini_agent_api/backend/go/internal/models"
	"gemini_agent_api/backend/go/pkg/httpmiddleware"
	"gemini_agent_api/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
)

// defaultSummaryWords 是未指定 max_length 时的摘要词数上限。
const defaultSummaryWords = 200

// Handler 封装了所有 HTTP 处理函数。
type Handler struct {
	service *service.Service
	app     config.AppInfo
	log     *logger.Logger
}

// NewHandler 创建一个新的 Handler 实例。
func NewHandler(s *service.Service, app config.AppInfo, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.New("agent-api", "", "")
	}
	return &Handler{service: s, app: app, log: log}
}

// --- 请求与响应结构 ---

// MessageRequest 是发送消息的请求体。
type MessageRequest struct {
	Message      string `json:"message" binding:"required,min=1,max=10000"`
	AgentName    string `json:"agent_name"`
	SystemPrompt string `json:"system_prompt"`
}

// ContextMessageRequest 是附带上下文发送消息的请求体。
type ContextMessageRequest struct {
	Message   string               `json:"message" binding:"required,min=1,max=10000"`
	Context   []agent.ContextEntry `json:"context"`
	AgentName string               `json:"agent_name"`
}

// SummarizeRequest 是文本摘要的请求体。
type SummarizeRequest struct {
	Text      string `json:"text" binding:"required,min=1"`
	MaxLength *int   `json:"max_length" binding:"omitempty,min=10,max=1000"`
	AgentName string `json:"agent_name"`
}

// SentimentRequest 是情感分析的请求体。
type SentimentRequest struct {
	Text      string `json:"text" binding:"required,min=1,max=5000"`
	AgentName string `json:"agent_name"`
}

// QuestionRequest 是问答的请求体。
type QuestionRequest struct {
	Question  string `json:"question" binding:"required,min=1"`
	Context   string `json:"context"`
	AgentName string `json:"agent_name"`
}

// EntitiesRequest 是实体抽取的请求体。
type EntitiesRequest struct {
	Text      string `json:"text" binding:"required,min=1,max=10000"`
	AgentName string `json:"agent_name"`
}

// StructuredRequest 是结构化输出的请求体。
type StructuredRequest struct {
	Prompt    string `json:"prompt" binding:"required,min=1,max=10000"`
	Format    string `json:"format" binding:"omitempty,max=20"`
	AgentName string `json:"agent_name"`
}

// CreateAgentRequest 是创建 Agent 的请求体，未给出的参数沿用服务默认值。
type CreateAgentRequest struct {
	Name        string   `json:"name" binding:"required,min=1,max=50"`
	Temperature *float64 `json:"temperature" binding:"omitempty,gte=0,lte=1"`
	ModelName   string   `json:"model_name"`
	TopP        *float64 `json:"top_p" binding:"omitempty,gte=0,lte=1"`
	TopK        *int     `json:"top_k" binding:"omitempty,gte=0"`
	MaxTokens   *int     `json:"max_tokens" binding:"omitempty,gt=0"`
}

// MessageResponse 是所有文本类操作的响应。
type MessageResponse struct {
	Response  string `json:"response"`
	AgentName string `json:"agent_name"`
	Timestamp string `json:"timestamp"`
}

// HealthResponse 是健康检查的响应。
type HealthResponse struct {
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
	Version      string `json:"version"`
	AgentsActive int    `json:"agents_active"`
}

// HistoryResponse 是对话记录的响应。
type HistoryResponse struct {
	AgentName    string                    `json:"agent_name"`
	History      []models.ConversationTurn `json:"history"`
	MessageCount int                       `json:"message_count"`
}

func agentOrDefault(name string) string {
	if name == "" {
		return agent.DefaultAgentName
	}
	return name
}

// --- 通用 ---

// Root 返回服务横幅。
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": h.app.Name,
		"version": h.app.Version,
		"health":  "/health",
	})
}

// Health 返回服务健康状态。注册表未就绪时返回 503。
func (h *Handler) Health(c *gin.Context) {
	if !h.service.Ready() {
		h.abort(c, http.StatusServiceUnavailable, "Agent system not initialized", "")
		return
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		Timestamp:    models.Timestamp(time.Now()),
		Version:      h.app.Version,
		AgentsActive: h.service.ActiveAgents(),
	})
}

// --- 对话与 NLP ---

// SendMessage 处理发送消息的请求。
func (h *Handler) SendMessage(c *gin.Context) {
	var req MessageRequest
	if !h.bind(c, &req) {
		return
	}
	name := agentOrDefault(req.AgentName)
	reply, err := h.service.SendMessage(h.ctx(c), name, req.Message, req.SystemPrompt)
	h.reply(c, name, "processing message", reply, err)
}

// SendMessageWithContext 处理附带上下文的消息请求。
func (h *Handler) SendMessageWithContext(c *gin.Context) {
	var req ContextMessageRequest
	if !h.bind(c, &req) {
		return
	}
	name := agentOrDefault(req.AgentName)
	reply, err := h.service.SendMessageWithContext(h.ctx(c), name, req.Message, req.Context)
	h.reply(c, name, "processing message", reply, err)
}

// Summarize 处理文本摘要请求。
func (h *Handler) Summarize(c *gin.Context) {
	var req SummarizeRequest
	if !h.bind(c, &req) {
		return
	}
	maxLength := defaultSummaryWords
	if req.MaxLength != nil {
		maxLength = *req.MaxLength
	}
	name := agentOrDefault(req.AgentName)
	reply, err := h.service.Summarize(h.ctx(c), name, req.Text, maxLength)
	h.reply(c, name, "summarizing text", reply, err)
}

// AnalyzeSentiment 处理情感分析请求。
func (h *Handler) AnalyzeSentiment(c *gin.Context) {
	var req SentimentRequest
	if !h.bind(c, &req) {
		return
	}
	name := agentOrDefault(req.AgentName)
	reply, err := h.service.AnalyzeSentiment(h.ctx(c), name, req.Text)
	h.reply(c, name, "analyzing sentiment", reply, err)
}

// AnswerQuestion 处理问答请求。
func (h *Handler) AnswerQuestion(c *gin.Context) {
	var req QuestionRequest
	if !h.bind(c, &req) {
		return
	}
	name := agentOrDefault(req.AgentName)
	reply, err := h.service.AnswerQuestion(h.ctx(c), name, req.Question, req.Context)
	h.reply(c, name, "answering question", reply, err)
}

// ExtractEntities 处理实体抽取请求。
func (h *Handler) ExtractEntities(c *gin.Context) {
	var req EntitiesRequest
	if !h.bind(c, &req) {
		return
	}
	name := agentOrDefault(req.AgentName)
	reply, err := h.service.ExtractEntities(h.ctx(c), name, req.Text)
	h.reply(c, name, "extracting entities", reply, err)
}

// GenerateStructured 处理结构化输出请求。
func (h *Handler) GenerateStructured(c *gin.Context) {
	var req StructuredRequest
	if !h.bind(c, &req) {
		return
	}
	format := req.Format
	if format == "" {
		format = "json"
	}
	name := agentOrDefault(req.AgentName)
	reply, err := h.service.GenerateStructured(h.ctx(c), name, req.Prompt, format)
	h.reply(c, name, "generating structured response", reply, err)
}

// --- Agent 管理 ---

// CreateAgent 处理创建 Agent 的请求。
func (h *Handler) CreateAgent(c *gin.Context) {
	var req CreateAgentRequest
	if !h.bind(c, &req) {
		return
	}
	info, err := h.service.CreateAgent(h.ctx(c), req.Name, agent.AgentOptions{
		ModelName:   req.ModelName,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		h.fail(c, req.Name, "creating agent", err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

// ListAgents 返回所有 Agent 名称。
func (h *Handler) ListAgents(c *gin.Context) {
	names, err := h.service.ListAgents()
	if err != nil {
		h.fail(c, "", "listing agents", err)
		return
	}
	c.JSON(http.StatusOK, names)
}

// GetAgent 返回单个 Agent 的信息。
func (h *Handler) GetAgent(c *gin.Context) {
	name := c.Param("name")
	info, err := h.service.AgentInfo(name)
	if err != nil {
		h.fail(c, name, "getting agent", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// DeleteAgent 删除指定 Agent。
func (h *Handler) DeleteAgent(c *gin.Context) {
	name := c.Param("name")
	if err := h.service.RemoveAgent(h.ctx(c), name); err != nil {
		h.fail(c, name, "deleting agent", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearHistory 清空指定 Agent 的对话记录。
func (h *Handler) ClearHistory(c *gin.Context) {
	name := c.Param("name")
	if err := h.service.ClearHistory(h.ctx(c), name); err != nil {
		h.fail(c, name, "clearing history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("History cleared for agent '%s'", name)})
}

// GetHistory 返回指定 Agent 的对话记录。
func (h *Handler) GetHistory(c *gin.Context) {
	name := c.Param("name")
	history, err := h.service.History(name)
	if err != nil {
		h.fail(c, name, "getting history", err)
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{AgentName: name, History: history, MessageCount: len(history)})
}

// --- 辅助函数 ---

func (h *Handler) ctx(c *gin.Context) context.Context {
	return service.WithRequestID(c.Request.Context(), httpmiddleware.GetRequestID(c))
}

func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.abort(c, http.StatusBadRequest, "Invalid request", err.Error())
		return false
	}
	return true
}

func (h *Handler) reply(c *gin.Context, name, action, reply string, err error) {
	if err != nil {
		h.fail(c, name, action, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Response: reply, AgentName: name, Timestamp: models.Timestamp(time.Now())})
}

// fail 把业务错误映射为 HTTP 状态码。
func (h *Handler) fail(c *gin.Context, name, action string, err error) {
	switch {
	case errors.Is(err, agent.ErrRegistryNotReady):
		h.abort(c, http.StatusServiceUnavailable, "Agent system not initialized", "")
	case errors.Is(err, agent.ErrAgentNotFound):
		h.abort(c, http.StatusNotFound, fmt.Sprintf("Agent '%s' not found", name), "")
	case errors.Is(err, agent.ErrAgentExists):
		h.abort(c, http.StatusConflict, fmt.Sprintf("Agent '%s' already exists", name), "")
	case errors.Is(err, agent.ErrDefaultAgentProtected):
		h.abort(c, http.StatusForbidden, "Cannot delete the default agent", "")
	case errors.Is(err, models.ErrInvalidConfig):
		h.abort(c, http.StatusBadRequest, "Invalid agent configuration", err.Error())
	case errors.Is(err, agent.ErrInvalidArgument):
		h.abort(c, http.StatusBadRequest, "Invalid request", err.Error())
	default:
		h.log.WithTrace(httpmiddleware.GetRequestID(c)).WithField("agent_name", name).
			WithError(models.ErrorInfo{Message: err.Error(), Type: "internal", StatusCode: http.StatusInternalServerError}).
			Error("Error " + action)
		h.abort(c, http.StatusInternalServerError, fmt.Sprintf("Error %s: %v", action, err), "")
	}
}

func (h *Handler) abort(c *gin.Context, status int, message, detail string) {
	c.AbortWithStatusJSON(status, models.NewErrorResponse(message, detail))
}
