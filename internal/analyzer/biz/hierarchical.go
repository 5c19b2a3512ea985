package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/callinsight/internal/model"
)

// hierarchicalStrategy 实现两级 map/reduce 分析：
// 每个分块先映射为简短小结，再用一次聚合调用归并成最终答案。
type hierarchicalStrategy struct {
	engine *Engine
}

func (s *hierarchicalStrategy) Name() string { return "hierarchical" }

func (s *hierarchicalStrategy) Run(ctx context.Context, question string, candidates []*model.RetrievalCandidate, chunkSize int, progress Progress) (*model.AnalysisResult, error) {
	total := len(candidates)
	report(progress, "Иерархический анализ: обработка %d диалогов...", total)

	chunks := chunkCandidates(candidates, chunkSize)
	summaries := make([]string, 0, len(chunks))

	offset := 0
	for chunkIdx, chunk := range chunks {
		chunkNum := chunkIdx + 1
		report(progress, "Иерархический анализ: обработка группы %d/%d...", chunkNum, len(chunks))

		prompt := fmt.Sprintf(
			"Вы — аналитик call-центра. Проанализируйте следующие фрагменты диалогов и кратко ответьте на вопрос пользователя. "+
				"Если информация отсутствует, ответьте 'Нет данных'. Отвечайте кратко и по существу.\n"+
				"Вопрос: %s\n"+
				"Фрагменты диалогов:\n%s\n"+
				"Краткий ответ:",
			question, chunkContext(chunk, hierarchicalSnippetLen))

		summary, err := s.engine.generate(ctx, prompt)
		if err != nil {
			logChunkError(s.Name(), chunkNum, err)
			summaries = append(summaries, fmt.Sprintf("Группа %d: ОШИБКА - %v", chunkNum, err))
		} else {
			summaries = append(summaries, fmt.Sprintf("Группа %d (диалоги %d-%d):\n%s",
				chunkNum, offset+1, offset+len(chunk), summary))
		}
		offset += len(chunk)
	}

	contextText := contextTrail(
		fmt.Sprintf("Всего найдено и проанализировано: %d диалогов.", total), candidates)

	if len(summaries) == 0 {
		return &model.AnalysisResult{
			Answer:  "Не удалось получить промежуточные результаты.",
			Context: contextText,
		}, nil
	}

	report(progress, "Иерархический анализ: финальная агрегация...")

	groupContext := strings.Join(summaries, "\n\n")
	finalPrompt := fmt.Sprintf(
		"Вы — аналитик call-центра. Ниже приведены краткие ответы по группам диалогов, относящихся к вопросу пользователя. "+
			"Проанализируйте эти ответы и дайте общий, развернутый и структурированный ответ на вопрос. "+
			"Если информация отсутствует, честно скажите об этом.\n"+
			"Вопрос пользователя: %s\n"+
			"Ответы по группам:\n%s\n"+
			"Общий ответ:",
		question, groupContext)

	answer, err := s.engine.generate(ctx, finalPrompt)
	if err != nil {
		answer = fmt.Sprintf("Ошибка при финальной агрегации: %v\n\nПромежуточные результаты:\n%s", err, groupContext)
	}

	return &model.AnalysisResult{Answer: answer, Context: contextText}, nil
}
