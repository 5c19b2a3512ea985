package biz

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/callinsight/internal/model"
)

func TestCallbackExtractsVerdictFromNoisyResponse(t *testing.T) {
	chat := &scriptedChatProvider{respond: func(prompt string) (string, error) {
		// 响应里混入推理噪声，JSON 必须仍被提取
		return "Рассуждаю: клиент просил перезвонить.\n" +
			`{"category": 1, "client_phrases": ["перезвоните мне"], "operator_phrases": []}` +
			"\nКонец.", nil
	}}
	engine := NewEngine(chat, nil)

	strategy, err := engine.Strategy("callback")
	require.NoError(t, err)

	result, err := strategy.Run(context.Background(), "аудит", makeCandidates(1), 10, nil)
	require.NoError(t, err)

	var decisions []model.CallbackDecision
	require.NoError(t, json.Unmarshal([]byte(result.Answer), &decisions))
	require.Len(t, decisions, 1)
	assert.Equal(t, 1, decisions[0].Category)
	assert.Equal(t, []string{"перезвоните мне"}, decisions[0].ClientPhrases)
	assert.Empty(t, decisions[0].Error)
	assert.Contains(t, result.Context, "❌ Пропущен обязательный звонок")
}

func TestCallbackMalformedResponseYieldsSingleErrorRecord(t *testing.T) {
	chat := &scriptedChatProvider{respond: func(prompt string) (string, error) {
		return "модель ничего внятного не вернула", nil
	}}
	engine := NewEngine(chat, nil)

	strategy, err := engine.Strategy("callback")
	require.NoError(t, err)

	result, err := strategy.Run(context.Background(), "аудит", makeCandidates(1), 10, nil)
	require.NoError(t, err)

	var decisions []model.CallbackDecision
	require.NoError(t, json.Unmarshal([]byte(result.Answer), &decisions))
	require.Len(t, decisions, 1)
	assert.Equal(t, 0, decisions[0].Category)
	assert.Contains(t, decisions[0].Error, "не удалось разобрать ответ модели")
	assert.Contains(t, result.Context, "ОШИБКА АНАЛИЗА")
}

func TestCallbackInvalidCategoryRejected(t *testing.T) {
	chat := &scriptedChatProvider{respond: func(prompt string) (string, error) {
		return `{"category": 7, "client_phrases": [], "operator_phrases": []}`, nil
	}}
	engine := NewEngine(chat, nil)

	strategy, err := engine.Strategy("callback")
	require.NoError(t, err)

	result, err := strategy.Run(context.Background(), "аудит", makeCandidates(1), 10, nil)
	require.NoError(t, err)

	var decisions []model.CallbackDecision
	require.NoError(t, json.Unmarshal([]byte(result.Answer), &decisions))
	require.Len(t, decisions, 1)
	assert.Equal(t, 0, decisions[0].Category)
	assert.Contains(t, decisions[0].Error, "недопустимую категорию: 7")
}

func TestCallbackDeduplicatesByDialog(t *testing.T) {
	chat := &scriptedChatProvider{respond: func(prompt string) (string, error) {
		return `{"category": 4, "client_phrases": [], "operator_phrases": []}`, nil
	}}
	engine := NewEngine(chat, nil)

	strategy, err := engine.Strategy("callback")
	require.NoError(t, err)

	// 三条候选，但只有两个对话
	candidates := []*model.RetrievalCandidate{
		{Utterance: model.Utterance{ID: 1, DialogID: 100}, FullDialogText: "Клиент: спасибо"},
		{Utterance: model.Utterance{ID: 2, DialogID: 100}, FullDialogText: "дубликат"},
		{Utterance: model.Utterance{ID: 3, DialogID: 200}, FullDialogText: "Клиент: до свидания"},
	}

	result, err := strategy.Run(context.Background(), "аудит", candidates, 10, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, chat.callCount())

	var decisions []model.CallbackDecision
	require.NoError(t, json.Unmarshal([]byte(result.Answer), &decisions))
	require.Len(t, decisions, 2)
	assert.Equal(t, int64(100), decisions[0].DialogID)
	assert.Equal(t, int64(200), decisions[1].DialogID)
}

func TestCallbackLLMFailureProducesErrorDecision(t *testing.T) {
	chat := &scriptedChatProvider{respond: func(prompt string) (string, error) {
		return "", errors.New("провайдер недоступен")
	}}
	engine := NewEngine(chat, nil)

	strategy, err := engine.Strategy("callback")
	require.NoError(t, err)

	result, err := strategy.Run(context.Background(), "аудит", makeCandidates(2), 10, nil)
	require.NoError(t, err)

	var decisions []model.CallbackDecision
	require.NoError(t, json.Unmarshal([]byte(result.Answer), &decisions))
	require.Len(t, decisions, 2)
	for _, d := range decisions {
		assert.Equal(t, 0, d.Category)
		assert.Equal(t, "провайдер недоступен", d.Error)
	}
}

func TestCallbackMissingKeysRejected(t *testing.T) {
	// 裁决 JSON 三个键缺一不可，残缺对象按解析失败处理
	cases := map[string]string{
		"category only":       `{"category": 2}`,
		"no operator phrases": `{"category": 2, "client_phrases": ["жду звонка"]}`,
		"no category":         `{"client_phrases": [], "operator_phrases": []}`,
	}
	for name, response := range cases {
		t.Run(name, func(t *testing.T) {
			chat := &scriptedChatProvider{respond: func(prompt string) (string, error) {
				return response, nil
			}}
			engine := NewEngine(chat, nil)

			strategy, err := engine.Strategy("callback")
			require.NoError(t, err)

			result, err := strategy.Run(context.Background(), "аудит", makeCandidates(1), 10, nil)
			require.NoError(t, err)

			var decisions []model.CallbackDecision
			require.NoError(t, json.Unmarshal([]byte(result.Answer), &decisions))
			require.Len(t, decisions, 1)
			assert.Equal(t, 0, decisions[0].Category)
			assert.Contains(t, decisions[0].Error, "не удалось разобрать ответ модели")
			assert.Contains(t, decisions[0].Error, "отсутствует поле")
		})
	}
}

func TestCallbackContextOmitsEmptyPhraseLines(t *testing.T) {
	chat := &scriptedChatProvider{respond: func(prompt string) (string, error) {
		return `{"category": 2, "client_phrases": ["перезвоните"], "operator_phrases": []}`, nil
	}}
	engine := NewEngine(chat, nil)

	strategy, err := engine.Strategy("callback")
	require.NoError(t, err)

	result, err := strategy.Run(context.Background(), "аудит", makeCandidates(1), 10, nil)
	require.NoError(t, err)

	assert.Contains(t, result.Context, "Клиент: перезвоните")
	// пустой список оператора не должен порождать строку
	assert.NotContains(t, result.Context, "Оператор:")
}
