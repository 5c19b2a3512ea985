package enhancer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/callinsight/internal/model"
	"github.com/kart-io/callinsight/pkg/llm"
)

// stubChatProvider 返回固定脚本的测试桩。
type stubChatProvider struct {
	respond func(prompt string) (string, error)
}

func (s *stubChatProvider) Chat(_ context.Context, _ []llm.Message) (string, error) {
	return "", errors.New("chat is not used by the enhancer")
}

func (s *stubChatProvider) Generate(_ context.Context, prompt, _ string) (string, error) {
	return s.respond(prompt)
}

func (s *stubChatProvider) Name() string { return "stub" }

func makeCandidates(n int) []*model.RetrievalCandidate {
	candidates := make([]*model.RetrievalCandidate, n)
	for i := range candidates {
		candidates[i] = &model.RetrievalCandidate{
			Utterance:       model.Utterance{ID: int64(i + 1), Text: fmt.Sprintf("фрагмент %d", i+1)},
			SimilarityScore: 1 - float32(i)*0.1,
		}
	}
	return candidates
}

func TestExpandReplacesQuestion(t *testing.T) {
	chat := &stubChatProvider{respond: func(prompt string) (string, error) {
		if !strings.Contains(prompt, "как вернуть договор") {
			return "", errors.New("question missing from prompt")
		}
		return "  Клиент: хочу восстановить договор после расторжения  ", nil
	}}
	e := New(chat, Config{EnableHyDE: true})

	got := e.Expand(context.Background(), "как вернуть договор")
	assert.Equal(t, "Клиент: хочу восстановить договор после расторжения", got)
}

func TestExpandFailOpen(t *testing.T) {
	t.Run("禁用时原样返回", func(t *testing.T) {
		chat := &stubChatProvider{respond: func(string) (string, error) {
			t.Fatal("LLM must not be called when HyDE is disabled")
			return "", nil
		}}
		e := New(chat, Config{EnableHyDE: false})
		assert.Equal(t, "вопрос", e.Expand(context.Background(), "вопрос"))
	})

	t.Run("错误时原样返回", func(t *testing.T) {
		chat := &stubChatProvider{respond: func(string) (string, error) {
			return "", errors.New("недоступно")
		}}
		e := New(chat, Config{EnableHyDE: true})
		assert.Equal(t, "вопрос", e.Expand(context.Background(), "вопрос"))
	})

	t.Run("空响应时原样返回", func(t *testing.T) {
		chat := &stubChatProvider{respond: func(string) (string, error) {
			return "   \n  ", nil
		}}
		e := New(chat, Config{EnableHyDE: true})
		assert.Equal(t, "вопрос", e.Expand(context.Background(), "вопрос"))
	})
}

func TestRerankDisabledIsIdentity(t *testing.T) {
	chat := &stubChatProvider{respond: func(string) (string, error) {
		t.Fatal("LLM must not be called when reranking is disabled")
		return "", nil
	}}
	e := New(chat, Config{EnableRerank: false})

	candidates := makeCandidates(3)
	got := e.Rerank(context.Background(), "запрос", candidates)
	// 必须是同一切片，而不是副本
	assert.Equal(t, candidates, got)
}

func TestRerankSortsByScore(t *testing.T) {
	scores := map[string]string{
		"фрагмент 1": "0.2",
		"фрагмент 2": "0.9",
		"фрагмент 3": "0.5",
	}
	chat := &stubChatProvider{respond: func(prompt string) (string, error) {
		for text, score := range scores {
			if strings.Contains(prompt, text) {
				return score, nil
			}
		}
		return "", errors.New("unknown fragment")
	}}
	e := New(chat, Config{EnableRerank: true})

	got := e.Rerank(context.Background(), "запрос", makeCandidates(3))
	require.Len(t, got, 3)
	assert.Equal(t, int64(2), got[0].Utterance.ID)
	assert.Equal(t, int64(3), got[1].Utterance.ID)
	assert.Equal(t, int64(1), got[2].Utterance.ID)

	// 原始相似度保留以供审计
	require.NotNil(t, got[0].RerankScore)
	assert.InDelta(t, 0.9, *got[0].RerankScore, 1e-6)
	assert.InDelta(t, 0.9, float64(got[0].SimilarityScore), 1e-6)
}

func TestRerankScoringErrorReturnsOriginal(t *testing.T) {
	calls := 0
	chat := &stubChatProvider{respond: func(string) (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("сбой на середине списка")
		}
		return "0.8", nil
	}}
	e := New(chat, Config{EnableRerank: true})

	candidates := makeCandidates(3)
	got := e.Rerank(context.Background(), "запрос", candidates)

	// 失败时返回原始切片，顺序与重排分数均未被修改
	assert.Equal(t, candidates, got)
	for _, cand := range got {
		assert.Nil(t, cand.RerankScore)
	}
}

func TestRerankTopKCut(t *testing.T) {
	chat := &stubChatProvider{respond: func(string) (string, error) {
		return "0.7", nil
	}}
	e := New(chat, Config{EnableRerank: true, RerankTopK: 2})

	got := e.Rerank(context.Background(), "запрос", makeCandidates(5))
	assert.Len(t, got, 2)
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"0.85", 0.85},
		{"  0.3\n", 0.3},
		{"Оценка: 0.7", 0.7},
		{"полная ерунда", 0.5},
		{"42", 0.5},
		{"", 0.5},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, parseScore(tt.input), 1e-6, "input %q", tt.input)
	}
}
