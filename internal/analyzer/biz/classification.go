package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/callinsight/internal/model"
	"github.com/kart-io/callinsight/internal/pkg/textutil"
)

// 类别推导失败时的固定兜底类别集。
var fallbackCategories = []string{
	"Восстановление договора",
	"Техническая поддержка",
	"Финансовые вопросы",
	"Жалоба",
	"Консультация",
}

const unclassifiedCategory = "Не классифицировано"

// classificationStrategy 实现两阶段分类：先从样本推导类别集，
// 再逐条把候选归入类别，最后用频率分布做总结。
type classificationStrategy struct {
	engine *Engine
}

func (s *classificationStrategy) Name() string { return "classification" }

func (s *classificationStrategy) Run(ctx context.Context, question string, candidates []*model.RetrievalCandidate, chunkSize int, progress Progress) (*model.AnalysisResult, error) {
	total := len(candidates)
	report(progress, "Классификация: определение категорий по %d диалогам...", total)

	categories := s.deriveCategories(ctx, question)

	// 分类结果按类别保序存放：先全部类别，最后未分类桶。
	order := make([]string, 0, len(categories)+1)
	order = append(order, categories...)
	order = append(order, unclassifiedCategory)
	buckets := make(map[string][]*model.RetrievalCandidate, len(order))

	for i, cand := range candidates {
		report(progress, "Классификация: диалог %d/%d...", i+1, total)
		category := s.classifyOne(ctx, question, cand, categories)
		buckets[category] = append(buckets[category], cand)
	}

	report(progress, "Классификация: формирование итогового ответа...")

	var analysis strings.Builder
	for _, category := range order {
		fmt.Fprintf(&analysis, "- %s: %d диалогов\n", category, len(buckets[category]))
	}

	finalPrompt := fmt.Sprintf(
		"Вы — аналитик call-центра. Ниже приведено распределение диалогов по категориям. "+
			"Сделайте вывод по вопросу пользователя на основе этого распределения.\n"+
			"Вопрос пользователя: %s\n"+
			"Распределение:\n%s\n"+
			"Вывод:",
		question, analysis.String())

	answer, err := s.engine.generate(ctx, finalPrompt)
	if err != nil {
		answer = fmt.Sprintf("Ошибка при формировании вывода: %v\n\nРаспределение:\n%s", err, analysis.String())
	}

	return &model.AnalysisResult{
		Answer:  answer,
		Context: s.buildContext(total, order, buckets),
	}, nil
}

// deriveCategories 仅根据用户问题让 LLM 提议 3-5 个类别，
// 失败或结果为空时回退到固定类别集。
func (s *classificationStrategy) deriveCategories(ctx context.Context, question string) []string {
	prompt := fmt.Sprintf(
		"Вы — аналитик call-центра. На основе вопроса пользователя "+
			"предложите от 3 до 5 категорий для классификации диалогов. "+
			"Формат ответа: каждая категория на отдельной строке, без нумерации и пояснений.\n"+
			"Вопрос пользователя: %s\n"+
			"Категории:",
		question)

	response, err := s.engine.generate(ctx, prompt)
	if err != nil {
		logChunkError(s.Name(), 1, err)
		return fallbackCategories
	}

	categories := textutil.SplitByLines(response, 2)
	if len(categories) == 0 {
		return fallbackCategories
	}
	return categories
}

// classifyOne 将单条候选归入一个类别。
// LLM 回答必须与某个类别逐字匹配，否则归为未分类。
func (s *classificationStrategy) classifyOne(ctx context.Context, question string, cand *model.RetrievalCandidate, categories []string) string {
	snippet := textutil.TruncateWithEllipsis(cand.Utterance.Text, classificationSnippetLen)
	prompt := fmt.Sprintf(
		"Вы — аналитик call-центра. Отнесите диалог ровно к одной из категорий. "+
			"Ответьте строго в формате 'Категория: <название>', используя точное название категории из списка.\n"+
			"Вопрос пользователя: %s\n"+
			"Категории:\n%s\n"+
			"Диалог:\n%s\n"+
			"Категория:",
		question, strings.Join(categories, "\n"), snippet)

	response, err := s.engine.generate(ctx, prompt)
	if err != nil {
		logChunkError(s.Name(), 0, err)
		return unclassifiedCategory
	}

	answer := strings.TrimSpace(strings.TrimPrefix(response, "Категория:"))
	for _, category := range categories {
		if answer == category {
			return category
		}
	}
	return unclassifiedCategory
}

// buildContext 构建分类轨迹：每个类别列出前 3 条样本与剩余计数。
func (s *classificationStrategy) buildContext(total int, order []string, buckets map[string][]*model.RetrievalCandidate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Всего классифицировано: %d диалогов.\n\n", total)
	for _, category := range order {
		members := buckets[category]
		fmt.Fprintf(&sb, "%s (%d диалогов):\n", category, len(members))
		shown := members
		if len(shown) > 3 {
			shown = shown[:3]
		}
		for _, cand := range shown {
			fmt.Fprintf(&sb, "  ID: %d (Схожесть: %.4f)\n", cand.Utterance.ID, displayScore(cand))
		}
		if rest := len(members) - len(shown); rest > 0 {
			fmt.Fprintf(&sb, "  ... и ещё %d диалогов.\n", rest)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
