package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassificationDerivedCategories(t *testing.T) {
	chat := &scriptedChatProvider{respond: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "предложите от 3 до 5 категорий"):
			// 类别推导只看用户问题，提示词里不得夹带对话文本
			if strings.Contains(prompt, "реплика номер") {
				return "", fmt.Errorf("в запросе категорий оказался текст диалога")
			}
			return "Оплата\nДоставка\nЖалоба", nil
		case strings.Contains(prompt, "Отнесите диалог ровно к одной из категорий"):
			return "Категория: Оплата", nil
		default:
			return "итоговый вывод", nil
		}
	}}
	engine := NewEngine(chat, nil)

	strategy, err := engine.Strategy("classification")
	require.NoError(t, err)

	result, err := strategy.Run(context.Background(), "о чем звонки", makeCandidates(4), 10, nil)
	require.NoError(t, err)

	assert.Equal(t, "итоговый вывод", result.Answer)
	assert.Contains(t, result.Context, "Оплата (4 диалогов):")
	assert.Contains(t, result.Context, "... и ещё 1 диалогов.")
	assert.Contains(t, result.Context, "Не классифицировано (0 диалогов):")
	// 一次推导 + 每条候选一次归类 + 一次总结
	assert.Equal(t, 6, chat.callCount())
}

func TestClassificationFallbackCategoriesOnDeriveError(t *testing.T) {
	var classifyPrompt string
	chat := &scriptedChatProvider{respond: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "предложите от 3 до 5 категорий"):
			return "", errors.New("модель недоступна")
		case strings.Contains(prompt, "Отнесите диалог ровно к одной из категорий"):
			classifyPrompt = prompt
			return "Категория: Жалоба", nil
		default:
			return "вывод", nil
		}
	}}
	engine := NewEngine(chat, nil)

	strategy, err := engine.Strategy("classification")
	require.NoError(t, err)

	result, err := strategy.Run(context.Background(), "вопрос", makeCandidates(1), 10, nil)
	require.NoError(t, err)

	for _, category := range fallbackCategories {
		assert.Contains(t, classifyPrompt, category)
	}
	assert.Contains(t, result.Context, "Жалоба (1 диалогов):")
}

func TestClassificationRequiresVerbatimMatch(t *testing.T) {
	chat := &scriptedChatProvider{respond: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "предложите от 3 до 5 категорий"):
			return "Оплата\nДоставка\nЖалоба", nil
		case strings.Contains(prompt, "Отнесите диалог ровно к одной из категорий"):
			// 自由发挥的答案不匹配任何类别
			return "Категория: Наверное, оплата или что-то такое", nil
		default:
			return "вывод", nil
		}
	}}
	engine := NewEngine(chat, nil)

	strategy, err := engine.Strategy("classification")
	require.NoError(t, err)

	result, err := strategy.Run(context.Background(), "вопрос", makeCandidates(2), 10, nil)
	require.NoError(t, err)

	assert.Contains(t, result.Context, "Не классифицировано (2 диалогов):")
}

func TestClassificationFinalErrorKeepsDistribution(t *testing.T) {
	chat := &scriptedChatProvider{respond: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "предложите от 3 до 5 категорий"):
			return "Оплата\nДоставка\nЖалоба", nil
		case strings.Contains(prompt, "Отнесите диалог ровно к одной из категорий"):
			return "Категория: Доставка", nil
		default:
			return "", errors.New("финал упал")
		}
	}}
	engine := NewEngine(chat, nil)

	strategy, err := engine.Strategy("classification")
	require.NoError(t, err)

	result, err := strategy.Run(context.Background(), "вопрос", makeCandidates(3), 10, nil)
	require.NoError(t, err)

	assert.Contains(t, result.Answer, "Ошибка при формировании вывода")
	assert.Contains(t, result.Answer, "- Доставка: 3 диалогов")
}
