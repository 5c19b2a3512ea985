package biz

import (
	"context"
	"fmt"

	"github.com/kart-io/callinsight/internal/model"
)

// rollingStrategy 实现滚动摘要分析：维护单一运行摘要，每个分块的
// 提示词包含当前摘要与新分块文本，要求模型更新摘要。分块之间存在
// 严格的顺序依赖，不可并行。
type rollingStrategy struct {
	engine *Engine
}

func (s *rollingStrategy) Name() string { return "rolling" }

func (s *rollingStrategy) Run(ctx context.Context, question string, candidates []*model.RetrievalCandidate, chunkSize int, progress Progress) (*model.AnalysisResult, error) {
	total := len(candidates)
	report(progress, "Постепенное суммирование: обработка %d диалогов...", total)

	summary := "Начальный итог отсутствует."
	processed := 0

	for chunkIdx, chunk := range chunkCandidates(candidates, chunkSize) {
		report(progress, "Постепенное суммирование: обработано %d/%d...", processed+len(chunk), total)

		prompt := fmt.Sprintf(
			"Вы — аналитик call-центра. "+
				"Вопрос: %s\n"+
				"Текущий промежуточный итог: %s\n"+
				"Новые диалоги для учета:\n%s\n"+
				"Обнови промежуточный итог, учитывая новые диалоги. Ответь кратко.",
			question, summary, chunkContext(chunk, rollingSnippetLen))

		updated, err := s.engine.generate(ctx, prompt)
		if err != nil {
			logChunkError(s.Name(), chunkIdx+1, err)
			summary += fmt.Sprintf("\n[Ошибка на шаге %d: %v]", chunkIdx+1, err)
		} else {
			summary = updated
			processed += len(chunk)
		}
	}

	report(progress, "Постепенное суммирование: финальная формулировка ответа...")

	finalPrompt := fmt.Sprintf(
		"Вы — аналитик call-центра. На основе промежуточного итога, дай развернутый ответ на вопрос пользователя.\n"+
			"Вопрос: %s\n"+
			"Промежуточный итог: %s\n"+
			"Ответ:",
		question, summary)

	answer, err := s.engine.generate(ctx, finalPrompt)
	if err != nil {
		answer = fmt.Sprintf("Ошибка при финальной формулировке: %v\n\nПромежуточный итог:\n%s", err, summary)
	}

	contextText := contextTrail(
		fmt.Sprintf("Всего обработано: %d диалогов методом постепенного суммирования.", total), candidates)

	return &model.AnalysisResult{Answer: answer, Context: contextText}, nil
}
