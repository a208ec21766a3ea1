package services

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/recall-backend/internal/clients/llm"
	"github.com/yungbote/recall-backend/internal/platform/apierr"
	"github.com/yungbote/recall-backend/internal/types"
)

type chatCall struct {
	model string
}

// scriptedClient pops one response per Chat call.
type scriptedClient struct {
	responses []chatResponse
	calls     []chatCall
}

type chatResponse struct {
	text string
	err  error
}

func (c *scriptedClient) Chat(ctx context.Context, model string, messages []llm.Message, opts llm.ChatOptions) (string, error) {
	c.calls = append(c.calls, chatCall{model: model})
	if len(c.responses) == 0 {
		return "", &llm.ProviderError{Kind: llm.KindOther, Err: errors.New("script exhausted")}
	}
	r := c.responses[0]
	c.responses = c.responses[1:]
	return r.text, r.err
}

func (c *scriptedClient) Embeddings(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	return nil, errors.New("not scripted")
}

type createdMemory struct {
	title    string
	text     string
	metadata map[string]any
}

type recordingMemoryService struct {
	created   []createdMemory
	createErr error
}

func (r *recordingMemoryService) Create(ctx context.Context, owner uuid.UUID, title, text string, metadata map[string]any) (*types.Memory, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.created = append(r.created, createdMemory{title: title, text: text, metadata: metadata})
	return &types.Memory{ID: uuid.New(), Owner: owner, Title: title, MemoryText: text}, nil
}

func (r *recordingMemoryService) Get(ctx context.Context, owner, id uuid.UUID) (*types.Memory, error) {
	return nil, errors.New("not implemented")
}

func (r *recordingMemoryService) List(ctx context.Context, owner uuid.UUID, limit, offset int) ([]*types.Memory, error) {
	return nil, nil
}

func (r *recordingMemoryService) Delete(ctx context.Context, owner, id uuid.UUID) error {
	return nil
}

func (r *recordingMemoryService) Retrieve(ctx context.Context, owner uuid.UUID, query string, topK int) ([]*types.RankedMemory, error) {
	return nil, nil
}

func newTestCondenseService(t *testing.T, client llm.Client, memories MemoryService, logRepo *fakeMemoryLogRepo) *condenseService {
	t.Helper()
	return &condenseService{
		log:        testLogger(t),
		client:     client,
		memories:   memories,
		logRepo:    logRepo,
		candidates: []string{"model-a", "model-b"},
		backoff:    []float64{0, 1, 2},
		sleep:      func(time.Duration) {},
	}
}

func TestCondenseCreatesMemories(t *testing.T) {
	client := &scriptedClient{responses: []chatResponse{
		{text: `["User prefers tea over coffee in the mornings and evenings.", "User lives in Lisbon."]`},
	}}
	ms := &recordingMemoryService{}
	logRepo := &fakeMemoryLogRepo{}
	svc := newTestCondenseService(t, client, ms, logRepo)

	attention := 0.8
	result, err := svc.Condense(context.Background(), uuid.New(), "long chat transcript", &attention)
	if err != nil {
		t.Fatalf("Condense: %v", err)
	}
	if len(result.Created) != 2 || len(ms.created) != 2 {
		t.Fatalf("expected 2 memories, got %d", len(ms.created))
	}
	if ms.created[0].title != "User prefers tea over coffee in the mornings" {
		t.Fatalf("title = %q", ms.created[0].title)
	}
	if ms.created[1].title != "User lives in Lisbon." {
		t.Fatalf("title = %q", ms.created[1].title)
	}
	for _, c := range ms.created {
		if c.metadata["source"] != "chat_autosave" {
			t.Fatalf("metadata source = %v", c.metadata["source"])
		}
		if c.metadata["attention"] != attention {
			t.Fatalf("metadata attention = %v", c.metadata["attention"])
		}
	}
	if len(logRepo.entries) != 1 || logRepo.entries[0].Action != types.MemoryActionCondensed {
		t.Fatalf("expected one condensed log, got %v", logRepo.actions())
	}
	if logRepo.entries[0].Details["count"] != 2 {
		t.Fatalf("condensed count = %v", logRepo.entries[0].Details["count"])
	}
}

func TestCondenseUnparseableOutputCreatesNothing(t *testing.T) {
	client := &scriptedClient{responses: []chatResponse{
		{text: "I could not find anything worth remembering."},
	}}
	ms := &recordingMemoryService{}
	logRepo := &fakeMemoryLogRepo{}
	svc := newTestCondenseService(t, client, ms, logRepo)

	result, err := svc.Condense(context.Background(), uuid.New(), "small talk", nil)
	if err != nil {
		t.Fatalf("Condense: %v", err)
	}
	if len(result.Created) != 0 {
		t.Fatalf("expected no memories, got %d", len(result.Created))
	}
	if logRepo.entries[0].Details["count"] != 0 {
		t.Fatalf("condensed count = %v", logRepo.entries[0].Details["count"])
	}
}

func TestCondenseRejectsBlankConversation(t *testing.T) {
	svc := newTestCondenseService(t, &scriptedClient{}, &recordingMemoryService{}, &fakeMemoryLogRepo{})

	_, err := svc.Condense(context.Background(), uuid.New(), "   ", nil)
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 apierr, got %v", err)
	}
}

func TestCondenseRetriesTransientOnSameModel(t *testing.T) {
	client := &scriptedClient{responses: []chatResponse{
		{err: &llm.ProviderError{Kind: llm.KindRateLimited, Model: "model-a", StatusCode: 429}},
		{text: `["User is training for a marathon."]`},
	}}
	ms := &recordingMemoryService{}
	svc := newTestCondenseService(t, client, ms, &fakeMemoryLogRepo{})

	result, err := svc.Condense(context.Background(), uuid.New(), "chat", nil)
	if err != nil {
		t.Fatalf("Condense: %v", err)
	}
	if len(result.Created) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(result.Created))
	}
	if len(client.calls) != 2 || client.calls[0].model != "model-a" || client.calls[1].model != "model-a" {
		t.Fatalf("expected two calls to model-a, got %v", client.calls)
	}
}

func TestCondenseAdvancesToNextCandidate(t *testing.T) {
	client := &scriptedClient{responses: []chatResponse{
		{err: &llm.ProviderError{Kind: llm.KindBadRequest, Model: "model-a", StatusCode: 400}},
		{text: `["User works remotely."]`},
	}}
	ms := &recordingMemoryService{}
	svc := newTestCondenseService(t, client, ms, &fakeMemoryLogRepo{})

	result, err := svc.Condense(context.Background(), uuid.New(), "chat", nil)
	if err != nil {
		t.Fatalf("Condense: %v", err)
	}
	if len(result.Created) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(result.Created))
	}
	if len(client.calls) != 2 || client.calls[1].model != "model-b" {
		t.Fatalf("expected fallback to model-b, got %v", client.calls)
	}
}

func TestCondenseCreditsExhaustedAbortsAllCandidates(t *testing.T) {
	client := &scriptedClient{responses: []chatResponse{
		{err: &llm.ProviderError{Kind: llm.KindCreditsExhausted, Model: "model-a", StatusCode: 402}},
	}}
	svc := newTestCondenseService(t, client, &recordingMemoryService{}, &fakeMemoryLogRepo{})

	_, err := svc.Condense(context.Background(), uuid.New(), "chat", nil)
	pe := llm.AsProviderError(err)
	if pe.Kind != llm.KindCreditsExhausted {
		t.Fatalf("expected credits_exhausted, got %v", err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected no fallback after credits exhaustion, got %v", client.calls)
	}
}

func TestCondenseExhaustionReturnsLastError(t *testing.T) {
	client := &scriptedClient{responses: []chatResponse{
		{err: &llm.ProviderError{Kind: llm.KindBadRequest, Model: "model-a", StatusCode: 400}},
		{err: &llm.ProviderError{Kind: llm.KindBadRequest, Model: "model-b", StatusCode: 422}},
	}}
	svc := newTestCondenseService(t, client, &recordingMemoryService{}, &fakeMemoryLogRepo{})

	_, err := svc.Condense(context.Background(), uuid.New(), "chat", nil)
	pe := llm.AsProviderError(err)
	if pe.Kind != llm.KindBadRequest || pe.Model != "model-b" {
		t.Fatalf("expected last candidate's error, got %v", err)
	}
}

func TestParseStatements(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"strict array", `["a", "b"]`, []string{"a", "b"}},
		{"wrapped prose", `Sure! ["a", "b"] hope that helps`, []string{"a", "b"}},
		{"caps at three", `["a", "b", "c", "d"]`, []string{"a", "b", "c"}},
		{"skips non-strings", `["a", 7, null, "b"]`, []string{"a", "b"}},
		{"skips blanks", `["a", "   ", "b"]`, []string{"a", "b"}},
		{"empty array", `[]`, []string{}},
		{"no json", "nothing here", []string{}},
		{"broken json", `["a", "b"`, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseStatements(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("parseStatements(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestFirstWords(t *testing.T) {
	if got := firstWords("one two three four", 8); got != "one two three four" {
		t.Fatalf("got %q", got)
	}
	if got := firstWords("a b c d e f g h i j", 8); got != "a b c d e f g h" {
		t.Fatalf("got %q", got)
	}
	if got := firstWords("   spaced   out   ", 8); got != "spaced out" {
		t.Fatalf("got %q", got)
	}
}
