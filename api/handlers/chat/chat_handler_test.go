package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aistudio/internal/agent"
	"aistudio/internal/agent/runtime"
	"aistudio/internal/infra/queue"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	req      agent.TurnRequest
	asyncErr error
}

func (f *fakeService) RunTurn(ctx context.Context, req agent.TurnRequest) runtime.ResponseEnvelope {
	f.req = req
	return runtime.ResponseEnvelope{Message: "hello " + req.UserID}
}

func (f *fakeService) RunTurnAsync(ctx context.Context, req agent.TurnRequest) (agent.AsyncTicket, error) {
	f.req = req
	if f.asyncErr != nil {
		return agent.AsyncTicket{}, f.asyncErr
	}
	return agent.AsyncTicket{TaskID: "task-1", ConversationID: "c1"}, nil
}

type fakeInspector struct {
	status *queue.TaskStatus
	err    error
}

func (f *fakeInspector) TaskStatus(taskID string) (*queue.TaskStatus, error) {
	return f.status, f.err
}

func (f *fakeInspector) Close() error { return nil }

func setupRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-User-ID"); id != "" {
			c.Set("user_id", id)
		}
	})
	r.POST("/turn", h.RunTurn)
	r.POST("/turn/async", h.RunTurnAsync)
	r.GET("/turn/async/:id", h.GetTask)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRunTurn(t *testing.T) {
	svc := &fakeService{}
	r := setupRouter(NewHandler(svc, nil))

	w := do(r, http.MethodPost, "/turn", `{"conversationId":"c1","message":"hi","fileRef":"f1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var env map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "hello u1", env["message"])
	// 缺失的媒体字段保持为 null
	assert.Contains(t, env, "imageUrl")
	assert.Nil(t, env["imageUrl"])
	assert.Equal(t, agent.TurnRequest{UserID: "u1", ConversationID: "c1", Message: "hi", FileRef: "f1"}, svc.req)
}

func TestRunTurnRejectsMissingMessage(t *testing.T) {
	r := setupRouter(NewHandler(&fakeService{}, nil))
	w := do(r, http.MethodPost, "/turn", `{"conversationId":"c1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

func TestRunTurnAsync(t *testing.T) {
	r := setupRouter(NewHandler(&fakeService{}, nil))
	w := do(r, http.MethodPost, "/turn/async", `{"message":"later"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"taskId":"task-1","conversationId":"c1"}}`, w.Body.String())

	r = setupRouter(NewHandler(&fakeService{asyncErr: agent.ErrAsyncDisabled}, nil))
	w = do(r, http.MethodPost, "/turn/async", `{"message":"later"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	r = setupRouter(NewHandler(&fakeService{asyncErr: errors.New("redis down")}, nil))
	w = do(r, http.MethodPost, "/turn/async", `{"message":"later"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetTask(t *testing.T) {
	inspector := &fakeInspector{status: &queue.TaskStatus{
		ID:             "task-1",
		UserID:         "u1",
		ConversationID: "c1",
		State:          "completed",
		Result:         json.RawMessage(`{"message":"done"}`),
	}}
	r := setupRouter(NewHandler(&fakeService{}, inspector))

	w := do(r, http.MethodGet, "/turn/async/task-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"id":"task-1","conversationId":"c1","state":"completed","result":{"message":"done"}}}`, w.Body.String())

	// 其他用户的任务视为不存在
	inspector.status.UserID = "u2"
	w = do(r, http.MethodGet, "/turn/async/task-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	inspector.err = queue.ErrTaskNotFound
	w = do(r, http.MethodGet, "/turn/async/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	r = setupRouter(NewHandler(&fakeService{}, nil))
	w = do(r, http.MethodGet, "/turn/async/task-1", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
