package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BerylCAtieno/taste-profiler/internal/models"
	"github.com/BerylCAtieno/taste-profiler/internal/pipeline"
)

type fakeRunner struct {
	username string
	opts     pipeline.Options
	result   *models.RunResult
	err      error
}

func (r *fakeRunner) Run(_ context.Context, username string, opts pipeline.Options) (*models.RunResult, error) {
	r.username = username
	r.opts = opts
	if r.err != nil {
		return nil, r.err
	}
	res := *r.result
	res.Username = username
	return &res, nil
}

func newRouter(runner Runner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewA2AHandler(runner, "http://localhost:8080/").Register(router)
	return router
}

func post(t *testing.T, router http.Handler, body string) JSONRPCResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/a2a/recommender", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func taskOf(t *testing.T, resp JSONRPCResponse) TaskResult {
	t.Helper()
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var task TaskResult
	require.NoError(t, json.Unmarshal(raw, &task))
	return task
}

func successRunner() *fakeRunner {
	return &fakeRunner{result: &models.RunResult{
		RunID: "run-9",
		Recommendations: []models.Recommendation{{
			RestaurantName:        "Mama Oliech",
			RestaurantLocation:    "Kilimani",
			RestaurantDescription: "Fried tilapia",
		}},
	}}
}

func TestMessageSend(t *testing.T) {
	runner := successRunner()
	router := newRouter(runner)

	resp := post(t, router, `{
		"jsonrpc": "2.0", "id": "req-1", "method": "message/send",
		"params": {"message": {"kind": "message", "role": "user", "parts": [{"kind": "text", "text": "Recommend for @foodie_jane please"}]}}
	}`)

	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-1", resp.ID)
	assert.Equal(t, "foodie_jane", runner.username)
	assert.False(t, runner.opts.Save)

	task := taskOf(t, resp)
	assert.Equal(t, StateCompleted, task.Status.State)
	assert.Equal(t, "req-1", task.Status.Message.TaskID)
	require.Len(t, task.Artifacts, 1)
	require.Len(t, task.Artifacts[0].Parts, 2)
	assert.Contains(t, task.Artifacts[0].Parts[0].Text, "1. **Mama Oliech** (Kilimani)")
	assert.Equal(t, "data", task.Artifacts[0].Parts[1].Kind)
}

func TestMessageSendMissingUsername(t *testing.T) {
	runner := successRunner()
	router := newRouter(runner)

	resp := post(t, router, `{"jsonrpc":"2.0","id":"req-2","method":"message/send","params":{"message":{"parts":[]}}}`)

	task := taskOf(t, resp)
	assert.Equal(t, StateFailed, task.Status.State)
	assert.Empty(t, runner.username)
}

func TestStageFailureBecomesFailedTask(t *testing.T) {
	runner := &fakeRunner{result: &models.RunResult{
		RunID:       "run-3",
		FailedStage: models.StageAnalysis,
		Err:         errors.New("no posts"),
	}}
	router := newRouter(runner)

	resp := post(t, router, `{"jsonrpc":"2.0","id":"req-3","method":"agent/task","params":{"message":{"parts":[{"kind":"text","text":"ghost"}]}}}`)

	task := taskOf(t, resp)
	assert.Equal(t, StateFailed, task.Status.State)
	assert.Contains(t, task.Status.Message.Parts[0].Text, "no posts")
}

func TestRPCErrors(t *testing.T) {
	router := newRouter(successRunner())

	resp := post(t, router, `{"jsonrpc":"1.0","id":"a","method":"message/send"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)

	resp = post(t, router, `{"jsonrpc":"2.0","id":"b","method":"tasks/cancel"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)

	resp = post(t, router, `not json`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
}

func TestDirectMessage(t *testing.T) {
	runner := successRunner()
	router := newRouter(runner)

	resp := post(t, router, `{"message":{"parts":[{"kind":"text","text":"natgeo"}]}}`)

	assert.Equal(t, "direct-message", resp.ID)
	assert.Equal(t, "natgeo", runner.username)
}

func TestExtractUsername(t *testing.T) {
	tests := []struct {
		name string
		msg  A2AMessage
		want string
	}{
		{name: "bare handle", msg: A2AMessage{Parts: []MessagePart{TextPart("foodie_jane")}}, want: "foodie_jane"},
		{name: "at handle in sentence", msg: A2AMessage{Parts: []MessagePart{TextPart("What would @kyliejenner eat?")}}, want: "kyliejenner"},
		{name: "html wrapped", msg: A2AMessage{Parts: []MessagePart{TextPart("<p>natgeo</p>")}}, want: "natgeo"},
		{name: "history data part", msg: A2AMessage{Parts: []MessagePart{DataPart([]map[string]interface{}{
			{"kind": "text", "text": "chef.mike"},
			{"kind": "text", "text": "Generating recommendations..."},
		})}}, want: "chef.mike"},
		{name: "nothing", msg: A2AMessage{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractUsername(tt.msg))
		})
	}
}

func TestServeAgentCard(t *testing.T) {
	router := newRouter(successRunner())

	req := httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var card AgentCard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))
	assert.Equal(t, "http://localhost:8080/a2a/recommender", card.URL)
	require.Len(t, card.Skills, 1)
}
