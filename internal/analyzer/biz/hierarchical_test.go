package biz

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHierarchicalChunkingCallPattern(t *testing.T) {
	chat := &scriptedChatProvider{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Ответы по группам") {
			return "итоговый ответ", nil
		}
		return "краткий вывод по группе", nil
	}}
	engine := NewEngine(chat, nil)

	strategy, err := engine.Strategy("hierarchical")
	require.NoError(t, err)

	// 23 条候选、块大小 10: три блока (10, 10, 3) и ровно одна агрегация
	result, err := strategy.Run(context.Background(), "вопрос", makeCandidates(23), 10, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, chat.callCount())
	assert.Equal(t, 1, chat.countCallsContaining("Ответы по группам"))
	assert.Equal(t, 3, chat.countCallsContaining("Краткий ответ:"))
	assert.Equal(t, "итоговый ответ", result.Answer)
	assert.Contains(t, result.Context, "Всего найдено и проанализировано: 23 диалогов.")
}

func TestHierarchicalChunkErrorContinues(t *testing.T) {
	failSecond := true
	var mapCalls int
	chat := &scriptedChatProvider{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Ответы по группам") {
			// 聚合提示词必须包含错误标记，证明失败分块没有中断处理
			if !strings.Contains(prompt, "Группа 2: ОШИБКА") {
				return "", errors.New("missing error marker in reduce prompt")
			}
			return "итог с учётом ошибки", nil
		}
		mapCalls++
		if mapCalls == 2 && failSecond {
			return "", errors.New("таймаут модели")
		}
		return "вывод группы", nil
	}}
	engine := NewEngine(chat, nil)

	strategy, err := engine.Strategy("hierarchical")
	require.NoError(t, err)

	result, err := strategy.Run(context.Background(), "вопрос", makeCandidates(25), 10, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, mapCalls)
	assert.Equal(t, "итог с учётом ошибки", result.Answer)
}

func TestHierarchicalReduceErrorEmbedsIntermediate(t *testing.T) {
	chat := &scriptedChatProvider{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Ответы по группам") {
			return "", errors.New("агрегация упала")
		}
		return "вывод группы", nil
	}}
	engine := NewEngine(chat, nil)

	strategy, err := engine.Strategy("hierarchical")
	require.NoError(t, err)

	result, err := strategy.Run(context.Background(), "вопрос", makeCandidates(5), 5, nil)
	require.NoError(t, err)

	assert.Contains(t, result.Answer, "Ошибка при финальной агрегации")
	assert.Contains(t, result.Answer, "вывод группы")
}

func TestHierarchicalProgressReporting(t *testing.T) {
	chat := &scriptedChatProvider{}
	engine := NewEngine(chat, nil)

	strategy, err := engine.Strategy("hierarchical")
	require.NoError(t, err)

	var statuses []string
	progress := func(status string) { statuses = append(statuses, status) }

	_, err = strategy.Run(context.Background(), "вопрос", makeCandidates(12), 10, progress)
	require.NoError(t, err)
	assert.NotEmpty(t, statuses)
}
