package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/BerylCAtieno/taste-profiler/internal/models"
	"github.com/BerylCAtieno/taste-profiler/internal/pipeline"
)

type Runner interface {
	Run(ctx context.Context, username string, opts pipeline.Options) (*models.RunResult, error)
}

type A2AHandler struct {
	runner  Runner
	baseURL string
}

func NewA2AHandler(runner Runner, baseURL string) *A2AHandler {
	return &A2AHandler{
		runner:  runner,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Register mounts the agent card and the JSON-RPC endpoint.
func (h *A2AHandler) Register(router gin.IRouter) {
	router.GET("/.well-known/agent.json", h.ServeAgentCard)
	router.POST("/a2a/recommender", h.HandleRecommender)
}

// HandleRecommender processes A2A messages
func (h *A2AHandler) HandleRecommender(c *gin.Context) {
	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Error().Err(err).Msg("failed to read request body")
		h.sendErrorResponse(c, "", "Failed to read request body", CodeParseError)
		return
	}

	var rpcReq JSONRPCRequest
	if err := json.Unmarshal(bodyBytes, &rpcReq); err != nil || rpcReq.JSONRPC == "" {
		// Some clients post the message params without the JSON-RPC wrapper.
		h.handleDirectMessage(c, bodyBytes)
		return
	}

	log.Debug().Str("id", rpcReq.ID).Str("method", rpcReq.Method).Msg("a2a request")

	if rpcReq.JSONRPC != "2.0" {
		h.sendErrorResponse(c, rpcReq.ID, "Invalid JSON-RPC version", CodeInvalidRequest)
		return
	}

	switch rpcReq.Method {
	case "agent/task", "message/send":
		h.handleTask(c, rpcReq)
	default:
		h.sendErrorResponse(c, rpcReq.ID, fmt.Sprintf("Method not found: %s", rpcReq.Method), CodeMethodNotFound)
	}
}

func (h *A2AHandler) handleDirectMessage(c *gin.Context, bodyBytes []byte) {
	var msgParams MessageParams
	if err := json.Unmarshal(bodyBytes, &msgParams); err != nil {
		log.Warn().Err(err).Msg("failed to parse direct message")
		h.sendErrorResponse(c, "", "Invalid request format", CodeParseError)
		return
	}

	h.sendSuccessResponse(c, "direct-message", h.recommend(c.Request.Context(), "direct-message", msgParams.Message))
}

func (h *A2AHandler) handleTask(c *gin.Context, rpcReq JSONRPCRequest) {
	paramsJSON, err := json.Marshal(rpcReq.Params)
	if err != nil {
		h.sendErrorResponse(c, rpcReq.ID, "Failed to parse parameters", CodeInvalidParams)
		return
	}

	var msgParams MessageParams
	if err := json.Unmarshal(paramsJSON, &msgParams); err != nil {
		log.Warn().Err(err).Str("id", rpcReq.ID).Msg("invalid a2a params")
		h.sendErrorResponse(c, rpcReq.ID, "Invalid parameters", CodeInvalidParams)
		return
	}

	h.sendSuccessResponse(c, rpcReq.ID, h.recommend(c.Request.Context(), rpcReq.ID, msgParams.Message))
}

// recommend runs the pipeline for the username in msg without saving
// artifacts and wraps the outcome in a task result.
func (h *A2AHandler) recommend(ctx context.Context, taskID string, msg A2AMessage) TaskResult {
	username := extractUsername(msg)
	if username == "" {
		return h.createErrorTaskResult(taskID, "Please provide an Instagram username to generate restaurant recommendations.")
	}

	log.Info().Str("task_id", taskID).Str("username", username).Msg("running recommendations for a2a task")

	result, err := h.runner.Run(ctx, username, pipeline.Options{Save: false})
	if err != nil {
		return h.createErrorTaskResult(taskID, fmt.Sprintf("Failed to generate recommendations: %v", err))
	}
	if result.Failed() {
		return h.createErrorTaskResult(taskID, fmt.Sprintf("Failed to generate recommendations for @%s: %v", username, result.Err))
	}

	return h.createSuccessTaskResult(taskID, result)
}

// ServeAgentCard serves the agent card using Gin
func (h *A2AHandler) ServeAgentCard(c *gin.Context) {
	c.JSON(http.StatusOK, AgentCard{
		Name:               "Restaurant Recommender",
		Description:        "Profiles an Instagram user from their latest posts and recommends restaurants they are likely to enjoy.",
		URL:                h.baseURL + "/a2a/recommender",
		Version:            "1.0.0",
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text", "data"},
		Capabilities:       Capabilities{},
		Skills: []Skill{{
			ID:          "restaurant-recommendations",
			Name:        "Restaurant recommendations",
			Description: "Given an Instagram username, returns a list of restaurants with location and description.",
			Tags:        []string{"instagram", "restaurants", "recommendations"},
			Examples:    []string{"@natgeo", "foodie_jane"},
		}},
	})
}

var (
	htmlTag         = regexp.MustCompile(`<[^>]*>`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._]{1,30}$`)
)

// extractUsername returns the handle from the most recent user text. Data
// parts carrying conversation history are searched newest first.
func extractUsername(msg A2AMessage) string {
	var texts []string

	for _, part := range msg.Parts {
		switch part.Kind {
		case "text":
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
		case "data":
			if text := lastUserText(part.Data); text != "" {
				texts = append(texts, text)
			}
		}
	}

	// An @handle anywhere wins, otherwise the last word that could be one.
	var fallback string
	for _, text := range texts {
		for _, field := range strings.Fields(htmlTag.ReplaceAllString(text, " ")) {
			field = strings.TrimRight(field, ".,!?")
			candidate := strings.TrimPrefix(field, "@")
			if !usernamePattern.MatchString(candidate) {
				continue
			}
			if candidate != field {
				return candidate
			}
			fallback = candidate
		}
	}
	return fallback
}

func lastUserText(data interface{}) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	var items []map[string]interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}

	for i := len(items) - 1; i >= 0; i-- {
		kind, _ := items[i]["kind"].(string)
		text, _ := items[i]["text"].(string)
		if kind != "text" {
			continue
		}
		text = strings.TrimSpace(htmlTag.ReplaceAllString(text, ""))
		// Progress messages echoed back by the client are not requests.
		lower := strings.ToLower(text)
		if text == "" || strings.Trim(text, ".") == "" ||
			strings.Contains(lower, "generating") || strings.Contains(lower, "analyzing") {
			continue
		}
		return text
	}
	return ""
}

func (h *A2AHandler) createSuccessTaskResult(taskID string, result *models.RunResult) TaskResult {
	responseText := formatRecommendations(result)

	return TaskResult{
		ID:   taskID,
		Kind: "task",
		Status: TaskStatus{
			State:     StateCompleted,
			Timestamp: Timestamp(),
			Message: &A2AMessage{
				Kind:      "message",
				Role:      RoleAgent,
				MessageID: uuid.New().String(),
				TaskID:    taskID,
				Parts: []MessagePart{
					TextPart(responseText),
				},
			},
		},
		Artifacts: []Artifact{
			{
				ArtifactID: uuid.New().String(),
				Name:       "Restaurant Recommendations",
				Parts: []MessagePart{
					TextPart(responseText),
					DataPart(map[string]interface{}{
						"username":        result.Username,
						"run_id":          result.RunID,
						"recommendations": result.Recommendations,
					}),
				},
			},
		},
	}
}

func (h *A2AHandler) createErrorTaskResult(taskID string, errorMsg string) TaskResult {
	return TaskResult{
		ID:   taskID,
		Kind: "task",
		Status: TaskStatus{
			State:     StateFailed,
			Timestamp: Timestamp(),
			Message: &A2AMessage{
				Kind:      "message",
				Role:      RoleAgent,
				MessageID: uuid.New().String(),
				TaskID:    taskID,
				Parts: []MessagePart{
					TextPart(errorMsg),
				},
			},
		},
	}
}

func formatRecommendations(result *models.RunResult) string {
	if len(result.Recommendations) == 0 {
		return fmt.Sprintf("No restaurant recommendations were generated for @%s.", result.Username)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("# Restaurant Recommendations for @%s\n", result.Username))

	for i, rec := range result.Recommendations {
		builder.WriteString(fmt.Sprintf("\n%d. **%s** (%s)\n", i+1, rec.RestaurantName, rec.RestaurantLocation))
		builder.WriteString(fmt.Sprintf("   %s\n", rec.RestaurantDescription))
	}

	return builder.String()
}

func (h *A2AHandler) sendSuccessResponse(c *gin.Context, id string, result interface{}) {
	c.JSON(http.StatusOK, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

func (h *A2AHandler) sendErrorResponse(c *gin.Context, id string, message string, code int) {
	log.Warn().Str("id", id).Int("code", code).Str("message", message).Msg("sending rpc error")

	// JSON-RPC errors are sent with 200 OK
	c.JSON(http.StatusOK, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
	})
}
