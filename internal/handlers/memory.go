package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/recall-backend/internal/requestdata"
	"github.com/yungbote/recall-backend/internal/services"
)

type MemoryHandler struct {
	memoryService   services.MemoryService
	condenseService services.CondenseService
	settingsService services.SettingsService
}

func NewMemoryHandler(memoryService services.MemoryService, condenseService services.CondenseService, settingsService services.SettingsService) *MemoryHandler {
	return &MemoryHandler{
		memoryService:   memoryService,
		condenseService: condenseService,
		settingsService: settingsService,
	}
}

type createMemoryRequest struct {
	Title      string         `json:"title"`
	MemoryText string         `json:"memory_text"`
	Metadata   map[string]any `json:"metadata"`
}

type condenseRequest struct {
	Conversation string   `json:"conversation"`
	Attention    *float64 `json:"attention"`
}

type preferencesRequest struct {
	AutosaveMemories *bool `json:"autosave_memories"`
}

func ownerFrom(c *gin.Context) (uuid.UUID, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing identity"))
		return uuid.Nil, false
	}
	return rd.UserID, true
}

// ListOrSearch serves both modes of GET /api/memories: with ?q it runs
// vector retrieval ranked by similarity, without it a paged listing by
// recency.
func (mh *MemoryHandler) ListOrSearch(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}

	if q := strings.TrimSpace(c.Query("q")); q != "" {
		topK, _ := strconv.Atoi(c.Query("top_k"))
		results, err := mh.memoryService.Retrieve(c.Request.Context(), owner, q, topK)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		RespondOK(c, gin.H{"results": results})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	memories, err := mh.memoryService.List(c.Request.Context(), owner, limit, offset)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"memories": memories})
}

func (mh *MemoryHandler) Create(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}
	var req createMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.MemoryText) == "" {
		RespondError(c, http.StatusBadRequest, "missing_fields", fmt.Errorf("title and memory_text are required"))
		return
	}

	m, err := mh.memoryService.Create(c.Request.Context(), owner, req.Title, req.MemoryText, req.Metadata)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"memory": m})
}

func (mh *MemoryHandler) Get(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid memory id"))
		return
	}
	m, err := mh.memoryService.Get(c.Request.Context(), owner, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"memory": m})
}

func (mh *MemoryHandler) Delete(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid memory id"))
		return
	}
	if err := mh.memoryService.Delete(c.Request.Context(), owner, id); err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"ok": true})
}

func (mh *MemoryHandler) Condense(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}
	var req condenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	result, err := mh.condenseService.Condense(c.Request.Context(), owner, req.Conversation, req.Attention)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

func (mh *MemoryHandler) GetPreferences(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}
	autosave, err := mh.settingsService.GetAutosave(c.Request.Context(), owner)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"autosave_memories": autosave})
}

func (mh *MemoryHandler) SetPreferences(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if req.AutosaveMemories == nil {
		RespondError(c, http.StatusBadRequest, "missing_fields", fmt.Errorf("autosave_memories is required"))
		return
	}
	autosave, err := mh.settingsService.SetAutosave(c.Request.Context(), owner, *req.AutosaveMemories)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"autosave_memories": autosave})
}
