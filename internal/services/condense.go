package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/recall-backend/internal/clients/llm"
	"github.com/yungbote/recall-backend/internal/platform/apierr"
	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/repos"
	"github.com/yungbote/recall-backend/internal/types"
)

const (
	condenseMaxStatements = 3
	condenseTitleWords    = 8
	condenseMaxTokens     = 256
	condenseTemperature   = 0.2
)

// CondenseService distills raw conversation text into at most three atomic
// memory statements and feeds each through the dedup-and-create pipeline.
type CondenseService interface {
	Condense(ctx context.Context, owner uuid.UUID, conversation string, attention *float64) (*CondenseResult, error)
}

type CondenseResult struct {
	Created []*types.Memory `json:"created"`
}

type condenseService struct {
	log      *logger.Logger
	client   llm.Client
	memories MemoryService
	logRepo  repos.MemoryLogRepo

	candidates []string
	backoff    []float64
	sleep      func(time.Duration)
}

func NewCondenseService(log *logger.Logger, client llm.Client, memories MemoryService, logRepo repos.MemoryLogRepo) CondenseService {
	primary := envutil.String("MEMORY_SUMMARIZER_MODEL",
		envutil.String("LLM_CHAT_MODEL", "meta-llama/Meta-Llama-3-8B-Instruct"))
	fallbacks := envutil.Strings("MODEL_FALLBACKS", []string{
		"qwen/Qwen2.5-7B-Instruct",
		"meta-llama/Meta-Llama-3.1-8B-Instruct",
	})

	return &condenseService{
		log:        log.With("service", "CondenseService"),
		client:     client,
		memories:   memories,
		logRepo:    logRepo,
		candidates: append([]string{primary}, fallbacks...),
		backoff:    envutil.Floats("PROVIDER_RETRY_SCHEDULE", []float64{0, 1, 2, 4, 8, 16}),
		sleep:      time.Sleep,
	}
}

func (s *condenseService) Condense(ctx context.Context, owner uuid.UUID, conversation string, attention *float64) (*CondenseResult, error) {
	if strings.TrimSpace(conversation) == "" {
		return nil, apierr.New(http.StatusBadRequest, "conversation_required", fmt.Errorf("conversation is required"))
	}

	messages := []llm.Message{
		{Role: "system", Content: "You output only valid JSON."},
		{Role: "user", Content: condensePrompt(conversation)},
	}

	text, err := s.generate(ctx, messages)
	if err != nil {
		return nil, err
	}

	created := make([]*types.Memory, 0, condenseMaxStatements)
	for _, stmt := range parseStatements(text) {
		title := firstWords(stmt, condenseTitleWords)
		md := map[string]any{"source": "chat_autosave"}
		if attention != nil {
			md["attention"] = *attention
		}
		m, err := s.memories.Create(ctx, owner, title, stmt, md)
		if err != nil {
			return nil, err
		}
		created = append(created, m)
	}

	s.logCondensed(ctx, owner, len(created))
	return &CondenseResult{Created: created}, nil
}

// generate walks the candidate models in order. Transient provider errors
// retry the same model on the backoff schedule; credits exhaustion is
// terminal for the whole operation; anything else advances to the next
// candidate. The last classified error surfaces when every candidate
// fails.
func (s *condenseService) generate(ctx context.Context, messages []llm.Message) (string, error) {
	var lastErr error
	for _, model := range s.candidates {
		text, err := s.callModel(ctx, model, messages)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		pe := llm.AsProviderError(err)
		if pe.Kind == llm.KindCreditsExhausted {
			return "", err
		}
		s.log.Warn("model candidate failed, trying next", "model", model, "kind", string(pe.Kind), "error", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = &llm.ProviderError{Kind: llm.KindOther, Body: "no model candidates configured"}
	}
	return "", lastErr
}

func (s *condenseService) callModel(ctx context.Context, model string, messages []llm.Message) (string, error) {
	var lastErr error
	for _, delay := range s.backoff {
		if delay > 0 {
			s.sleep(time.Duration(delay * float64(time.Second)))
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := s.client.Chat(ctx, model, messages, llm.ChatOptions{
			Temperature: condenseTemperature,
			MaxTokens:   condenseMaxTokens,
		})
		if err == nil {
			return text, nil
		}
		pe := llm.AsProviderError(err)
		if !pe.Transient() {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

func (s *condenseService) logCondensed(ctx context.Context, owner uuid.UUID, count int) {
	err := s.logRepo.Insert(ctx, nil, &types.MemoryLog{
		UserID:  &owner,
		Action:  types.MemoryActionCondensed,
		Details: datatypes.JSONMap{"count": count},
	})
	if err != nil {
		s.log.Warn("memory log insert failed (non-blocking)", "action", types.MemoryActionCondensed, "error", err)
	}
}

func condensePrompt(conversation string) string {
	return "Condense the following conversation into up to 3 concise memory statements about the user " +
		"(preferences, facts, long-term commitments). Each statement must be one sentence, factual, and not sensitive. " +
		"If nothing to save, return empty JSON list [].\n\nConversation:\n" + conversation +
		"\n\nReturn JSON: [\"User likes X.\", \"User prefers Y.\"]"
}

// parseStatements is total: strict JSON array first, then a permissive
// first-'['/last-']' substring recovery, then an empty list. Non-string
// elements are skipped; at most condenseMaxStatements survive.
func parseStatements(text string) []string {
	var items []any
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		items = nil
		start := strings.Index(text, "[")
		end := strings.LastIndex(text, "]")
		if start >= 0 && end > start {
			if err := json.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
				items = nil
			}
		}
	}

	out := make([]string, 0, condenseMaxStatements)
	for _, item := range items {
		if len(out) == condenseMaxStatements {
			break
		}
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}
