package chat

import (
	"context"
	"errors"
	"net/http"

	response "aistudio/api/handlers/common"
	"aistudio/internal/agent"
	"aistudio/internal/agent/runtime"
	"aistudio/internal/infra/queue"

	"github.com/gin-gonic/gin"
)

// Service 对话服务接口，由 *agent.Service 实现
type Service interface {
	RunTurn(ctx context.Context, req agent.TurnRequest) runtime.ResponseEnvelope
	RunTurnAsync(ctx context.Context, req agent.TurnRequest) (agent.AsyncTicket, error)
}

var _ Service = (*agent.Service)(nil)

// Handler 对话处理器
type Handler struct {
	svc   Service
	tasks queue.TaskInspector
}

// NewHandler 创建处理器。inspector 为空时不提供异步任务查询
func NewHandler(svc Service, inspector queue.TaskInspector) *Handler {
	return &Handler{svc: svc, tasks: inspector}
}

type turnDTO struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message" binding:"required"`
	FileRef        string `json:"fileRef"`
}

func (h *Handler) bind(c *gin.Context) (agent.TurnRequest, bool) {
	var dto turnDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, response.Fail(response.CodeInvalidRequest, "参数错误: "+err.Error()))
		return agent.TurnRequest{}, false
	}
	return agent.TurnRequest{
		UserID:         c.GetString("user_id"),
		ConversationID: dto.ConversationID,
		Message:        dto.Message,
		FileRef:        dto.FileRef,
	}, true
}

// RunTurn 同步对话，直接返回响应信封
// @Summary 发送消息并等待回复
// @Tags Chat
// @Accept json
// @Produce json
// @Param body body turnDTO true "对话请求"
// @Success 200 {object} runtime.ResponseEnvelope
// @Router /api/chat/turn [post]
func (h *Handler) RunTurn(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.RunTurn(c.Request.Context(), req))
}

// RunTurnAsync 异步对话
// @Summary 提交异步对话任务
// @Tags Chat
// @Accept json
// @Produce json
// @Param body body turnDTO true "对话请求"
// @Success 202 {object} response.APIResponse
// @Router /api/chat/turn/async [post]
func (h *Handler) RunTurnAsync(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	ticket, err := h.svc.RunTurnAsync(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, agent.ErrAsyncDisabled) {
			c.JSON(http.StatusServiceUnavailable, response.Fail(response.CodeUnavailable, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, response.Fail(response.CodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusAccepted, response.APIResponse{Success: true, Data: ticket})
}

// GetTask 查询异步对话任务，只能查询自己的任务
// @Summary 查询异步对话结果
// @Tags Chat
// @Param id path string true "任务ID"
// @Produce json
// @Success 200 {object} response.APIResponse
// @Router /api/chat/turn/async/{id} [get]
func (h *Handler) GetTask(c *gin.Context) {
	if h.tasks == nil {
		c.JSON(http.StatusServiceUnavailable, response.Fail(response.CodeUnavailable, agent.ErrAsyncDisabled.Error()))
		return
	}
	st, err := h.tasks.TaskStatus(c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, response.Fail(response.CodeNotFound, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, response.Fail(response.CodeInternal, err.Error()))
		return
	}
	if st.UserID != c.GetString("user_id") {
		c.JSON(http.StatusNotFound, response.Fail(response.CodeNotFound, queue.ErrTaskNotFound.Error()))
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: st})
}
