package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/recall-backend/internal/services"
)

type ToolHandler struct {
	toolService services.ToolService
}

func NewToolHandler(toolService services.ToolService) *ToolHandler {
	return &ToolHandler{toolService: toolService}
}

type executeToolRequest struct {
	ToolKey string         `json:"tool_key"`
	Params  map[string]any `json:"params"`
}

func (th *ToolHandler) List(c *gin.Context) {
	RespondOK(c, gin.H{"tools": th.toolService.List()})
}

func (th *ToolHandler) Execute(c *gin.Context) {
	userID, ok := ownerFrom(c)
	if !ok {
		return
	}
	var req executeToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if strings.TrimSpace(req.ToolKey) == "" {
		RespondError(c, http.StatusBadRequest, "missing_fields", fmt.Errorf("tool_key is required"))
		return
	}
	result, err := th.toolService.Execute(c.Request.Context(), userID, req.ToolKey, req.Params)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true, "result": result})
}
