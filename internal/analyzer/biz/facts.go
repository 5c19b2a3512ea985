package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/callinsight/internal/model"
)

// factsStrategy 实现关键事实抽取：每个分块映射为事实条目列表，
// 最终一次聚合调用做分析并在合适时统计频次。
type factsStrategy struct {
	engine *Engine
}

func (s *factsStrategy) Name() string { return "facts" }

func (s *factsStrategy) Run(ctx context.Context, question string, candidates []*model.RetrievalCandidate, chunkSize int, progress Progress) (*model.AnalysisResult, error) {
	total := len(candidates)
	report(progress, "Извлечение фактов: обработка %d диалогов...", total)

	chunks := chunkCandidates(candidates, chunkSize)
	allFacts := make([]string, 0, len(chunks))

	for chunkIdx, chunk := range chunks {
		chunkNum := chunkIdx + 1
		report(progress, "Извлечение фактов: обработка группы %d/%d...", chunkNum, len(chunks))

		prompt := fmt.Sprintf(
			"Вы — аналитик call-центра. Ваша задача — извлечь ключевые факты из диалогов, "+
				"которые могут быть релевантны вопросу пользователя. "+
				"Формат ответа: список пунктов, каждый пункт - один факт. "+
				"Если в диалоге нет релевантной информации, напиши 'Нет данных'.\n"+
				"Вопрос пользователя: %s\n"+
				"Диалоги:\n%s\n"+
				"Извлеченные факты:",
			question, chunkContext(chunk, factsSnippetLen))

		facts, err := s.engine.generate(ctx, prompt)
		if err != nil {
			logChunkError(s.Name(), chunkNum, err)
			allFacts = append(allFacts, fmt.Sprintf("Группа %d: ОШИБКА - %v", chunkNum, err))
		} else {
			allFacts = append(allFacts, fmt.Sprintf("Группа %d:\n%s", chunkNum, facts))
		}
	}

	if len(allFacts) == 0 {
		return &model.AnalysisResult{
			Answer:  "Не удалось извлечь факты.",
			Context: contextTrail(fmt.Sprintf("Всего обработано: %d диалогов.", total), candidates),
		}, nil
	}

	report(progress, "Извлечение фактов: агрегация и анализ...")

	factsSummary := strings.Join(allFacts, "\n\n")
	analysisPrompt := fmt.Sprintf(
		"Вы — аналитик call-центра. Ниже приведены извлеченные факты из диалогов по вопросу пользователя. "+
			"Проанализируйте эти факты и дайте структурированный ответ на вопрос. "+
			"Подсчитайте частоты, если это уместно. "+
			"Если информация отсутствует, честно скажите об этом.\n"+
			"Вопрос пользователя: %s\n"+
			"Извлеченные факты:\n%s\n"+
			"Анализ и ответ:",
		question, factsSummary)

	answer, err := s.engine.generate(ctx, analysisPrompt)
	if err != nil {
		answer = fmt.Sprintf("Ошибка при анализе фактов: %v\n\nИзвлеченные факты:\n%s", err, factsSummary)
	}

	// 上下文轨迹在候选清单之外附带全部抽取的事实。
	header := fmt.Sprintf(
		"Всего обработано: %d диалогов. Извлечены факты.\n\nВсе извлеченные факты:\n%s\n\nПолные тексты диалогов:",
		total, factsSummary)

	return &model.AnalysisResult{Answer: answer, Context: contextTrail(header, candidates)}, nil
}
