package credits

import (
	"net/http"
	"strconv"
	"time"

	response "aistudio/api/handlers/common"
	creditsSvc "aistudio/internal/credits"

	"github.com/gin-gonic/gin"
)

// Handler 积分查询处理器
type Handler struct {
	svc *creditsSvc.Service
}

// NewHandler 创建处理器
func NewHandler(svc *creditsSvc.Service) *Handler {
	return &Handler{svc: svc}
}

// GetBalance 获取当前用户余额
// @Summary 获取积分余额
// @Tags Credits
// @Produce json
// @Success 200 {object} response.APIResponse
// @Router /api/credits/balance [get]
func (h *Handler) GetBalance(c *gin.Context) {
	userID := c.GetString("user_id")

	account, err := h.svc.GetOrCreateAccount(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Fail(response.CodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: account})
}

// ListUsage 查询用量记录
// @Summary 查询工具用量
// @Tags Credits
// @Param conversationId query string false "会话ID"
// @Param tool query string false "工具名称"
// @Param since query string false "起始时间 (RFC3339 或 2006-01-02)"
// @Param limit query int false "返回数量，最大 200"
// @Produce json
// @Success 200 {object} response.APIResponse
// @Router /api/credits/usage [get]
func (h *Handler) ListUsage(c *gin.Context) {
	since, ok := parseSince(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	records, err := h.svc.ListUsage(c.Request.Context(), creditsSvc.UsageQuery{
		UserID:         c.GetString("user_id"),
		ConversationID: c.Query("conversationId"),
		ToolName:       c.Query("tool"),
		Since:          since,
		Limit:          limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Fail(response.CodeInternal, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{
		Success: true,
		Data: gin.H{
			"items": records,
			"total": len(records),
		},
	})
}

// SummarizeUsage 按工具汇总用量
// @Summary 工具用量汇总
// @Tags Credits
// @Param since query string false "起始时间"
// @Produce json
// @Success 200 {object} response.APIResponse
// @Router /api/credits/usage/summary [get]
func (h *Handler) SummarizeUsage(c *gin.Context) {
	since, ok := parseSince(c)
	if !ok {
		return
	}
	rows, err := h.svc.SummarizeUsage(c.Request.Context(), c.GetString("user_id"), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Fail(response.CodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: rows})
}

// ListTransactions 查询积分流水
// @Summary 查询积分流水
// @Tags Credits
// @Param limit query int false "返回数量"
// @Produce json
// @Success 200 {object} response.APIResponse
// @Router /api/credits/transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	txs, err := h.svc.ListTransactions(c.Request.Context(), c.GetString("user_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Fail(response.CodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{
		Success: true,
		Data: gin.H{
			"items": txs,
			"total": len(txs),
		},
	})
}

// parseSince 解析 since 参数，格式错误时直接返回 400
func parseSince(c *gin.Context) (time.Time, bool) {
	raw := c.Query("since")
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	c.JSON(http.StatusBadRequest, response.Fail(response.CodeInvalidRequest, "since 格式错误"))
	return time.Time{}, false
}
