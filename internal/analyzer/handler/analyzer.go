// Package handler provides HTTP handlers for the analyzer service.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/callinsight/internal/analyzer/biz"
	"github.com/kart-io/callinsight/internal/pkg/phrasebook"
)

// AnalyzerHandler handles analyzer HTTP requests.
type AnalyzerHandler struct {
	service        biz.Service
	defaultMethod  string
	defaultChunk   int
	defaultTopK    int
	dictionaryPath string
	timeout        time.Duration
}

// HandlerConfig 处理器默认参数。
type HandlerConfig struct {
	DefaultMethod    string
	DefaultChunkSize int
	DefaultTopK      int
	DictionaryPath   string
	Timeout          time.Duration
}

// NewAnalyzerHandler creates a new AnalyzerHandler.
func NewAnalyzerHandler(service biz.Service, config *HandlerConfig) *AnalyzerHandler {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AnalyzerHandler{
		service:        service,
		defaultMethod:  config.DefaultMethod,
		defaultChunk:   config.DefaultChunkSize,
		defaultTopK:    config.DefaultTopK,
		dictionaryPath: config.DictionaryPath,
		timeout:        timeout,
	}
}

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// QueryRequest represents an analysis query request.
type QueryRequest struct {
	Question  string `json:"question" binding:"required"`
	Theme     string `json:"theme"`
	Method    string `json:"method"`
	ChunkSize int    `json:"chunk_size"`
	TopK      int    `json:"top_k"`
}

// Query runs a full retrieval and analysis pass.
func (h *AnalyzerHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	if req.Method == "" {
		req.Method = h.defaultMethod
	}
	if req.ChunkSize <= 0 {
		req.ChunkSize = h.defaultChunk
	}
	if req.TopK <= 0 {
		req.TopK = h.defaultTopK
	}

	// 分析可能涉及多次 LLM 调用，加超时控制
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result, err := h.service.Analyze(ctx, &biz.AnalysisRequest{
		Question:  req.Question,
		Theme:     req.Theme,
		Method:    req.Method,
		ChunkSize: req.ChunkSize,
		TopK:      req.TopK,
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			c.JSON(http.StatusRequestTimeout, ErrorResponse{
				Code:    408,
				Message: "Analysis timeout: the request took too long to process. Please try again or reduce top_k.",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: result})
}

// SearchRequest represents a retrieval-only request.
type SearchRequest struct {
	Question string `json:"question" binding:"required"`
	Theme    string `json:"theme"`
	TopK     int    `json:"top_k"`
}

// Search performs retrieval without analysis.
func (h *AnalyzerHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	if req.TopK <= 0 {
		req.TopK = h.defaultTopK
	}

	candidates, err := h.service.Search(c.Request.Context(), req.Question, req.Theme, req.TopK)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: candidates})
}

// Methods returns the list of available analysis methods.
func (h *AnalyzerHandler) Methods(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: h.service.Methods()})
}

// History returns recent QA records.
func (h *AnalyzerHandler) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	records, err := h.service.History(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: records})
}

// Dictionary returns the current callback phrase dictionary.
func (h *AnalyzerHandler) Dictionary(c *gin.Context) {
	dict, err := phrasebook.Load(h.dictionaryPath)
	if err != nil {
		if errors.Is(err, phrasebook.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Code: 404, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: dict})
}

// AggregateDictionary rebuilds the dictionary from verified catalog phrases.
func (h *AnalyzerHandler) AggregateDictionary(c *gin.Context) {
	dict, err := h.service.AggregateDictionary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Dictionary aggregated successfully", Data: dict})
}

// Stats returns service statistics.
func (h *AnalyzerHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: stats})
}

// Health returns a liveness response.
func (h *AnalyzerHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
