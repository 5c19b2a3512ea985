package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kart-io/callinsight/internal/model"
	"github.com/kart-io/callinsight/internal/pkg/textutil"
)

// callbackCategoryNames 回拨判定类别的人类可读名称。
var callbackCategoryNames = map[int]string{
	1: "❌ Пропущен обязательный звонок",
	2: "✅ Корректно предложенный звонок",
	3: "⚠️ Ненужный звонок назначен",
	4: "✔️ Звонок не требовался и не назначен",
	0: "❓ Не удалось определить категорию",
}

// callbackVerdict LLM 单行 JSON 裁决的解析目标。
// 三个字段都必须出现，用指针区分缺失与空值。
type callbackVerdict struct {
	Category        *int      `json:"category"`
	ClientPhrases   *[]string `json:"client_phrases"`
	OperatorPhrases *[]string `json:"operator_phrases"`
}

// missingKey 返回裁决 JSON 里第一个缺失的必需键，没有缺失返回空串。
func (v *callbackVerdict) missingKey() string {
	switch {
	case v.Category == nil:
		return "category"
	case v.ClientPhrases == nil:
		return "client_phrases"
	case v.OperatorPhrases == nil:
		return "operator_phrases"
	}
	return ""
}

// callbackStrategy 实现回拨政策审计：对每个去重后的对话做一次
// LLM 裁决，要求严格的单行 JSON 输出，任何解析失败都恰好产生一条
// 类别 0 的记录。
type callbackStrategy struct {
	engine *Engine
}

func (s *callbackStrategy) Name() string { return "callback" }

func (s *callbackStrategy) Run(ctx context.Context, question string, candidates []*model.RetrievalCandidate, chunkSize int, progress Progress) (*model.AnalysisResult, error) {
	dialogs := dedupeByDialog(candidates)
	report(progress, "Аудит обратных звонков: %d уникальных диалогов...", len(dialogs))

	decisions := make([]model.CallbackDecision, 0, len(dialogs))
	var contextLines []string

	for i, dialog := range dialogs {
		report(progress, "Аудит обратных звонков: диалог %d/%d...", i+1, len(dialogs))

		decision := s.judgeDialog(ctx, question, dialog)
		decisions = append(decisions, decision)

		if decision.Error != "" {
			contextLines = append(contextLines,
				fmt.Sprintf("ID: %d | ❌ ОШИБКА АНАЛИЗА: %s", decision.DialogID, decision.Error))
			continue
		}
		contextLines = append(contextLines,
			fmt.Sprintf("ID: %d | %s", decision.DialogID, callbackCategoryNames[decision.Category]))
		if len(decision.ClientPhrases) > 0 {
			contextLines = append(contextLines,
				fmt.Sprintf("  Клиент: %s", strings.Join(decision.ClientPhrases, "; ")))
		}
		if len(decision.OperatorPhrases) > 0 {
			contextLines = append(contextLines,
				fmt.Sprintf("  Оператор: %s", strings.Join(decision.OperatorPhrases, "; ")))
		}
		contextLines = append(contextLines, "---")
	}

	answer, err := json.MarshalIndent(decisions, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal callback decisions: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Проанализировано диалогов: %d.\n\n", len(dialogs))
	sb.WriteString(strings.Join(contextLines, "\n"))

	return &model.AnalysisResult{Answer: string(answer), Context: sb.String()}, nil
}

// judgeDialog 对单个对话执行一次裁决。
// LLM 调用失败或 JSON 无法解析时返回类别 0 的错误记录。
func (s *callbackStrategy) judgeDialog(ctx context.Context, question string, dialog *model.RetrievalCandidate) model.CallbackDecision {
	dialogID := dialog.Utterance.DialogID

	prompt := fmt.Sprintf(
		"Ты — строгий контролёр качества call-центра. Твоя задача — проверить соблюдение "+
			"регламента обратных звонков в диалоге.\n"+
			"Правила:\n"+
			"1. Если клиент просил перезвонить или вопрос не решён, а оператор не назначил звонок — категория 1.\n"+
			"2. Если оператор корректно предложил и назначил обратный звонок — категория 2.\n"+
			"3. Если оператор назначил звонок, хотя он не требовался — категория 3.\n"+
			"4. Если звонок не требовался и не был назначен — категория 4.\n"+
			"Ответь СТРОГО одной строкой JSON без пояснений, в формате: "+
			"{\"category\": N, \"client_phrases\": [\"...\"], \"operator_phrases\": [\"...\"]}. "+
			"В client_phrases и operator_phrases приведи дословные цитаты из диалога, подтверждающие решение.\n"+
			"Контекст задачи: %s\n"+
			"Диалог:\n%s",
		question, dialog.FullDialogText)

	response, err := s.engine.generate(ctx, prompt)
	if err != nil {
		logChunkError(s.Name(), 0, err)
		return model.CallbackDecision{DialogID: dialogID, Category: 0, Error: err.Error()}
	}

	raw, err := textutil.ExtractJSONObject(response)
	if err != nil {
		return model.CallbackDecision{DialogID: dialogID, Category: 0,
			Error: fmt.Sprintf("не удалось разобрать ответ модели: %v", err)}
	}

	var verdict callbackVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return model.CallbackDecision{DialogID: dialogID, Category: 0,
			Error: fmt.Sprintf("не удалось разобрать ответ модели: %v", err)}
	}
	if key := verdict.missingKey(); key != "" {
		return model.CallbackDecision{DialogID: dialogID, Category: 0,
			Error: fmt.Sprintf("не удалось разобрать ответ модели: отсутствует поле %q", key)}
	}
	if *verdict.Category < 1 || *verdict.Category > 4 {
		return model.CallbackDecision{DialogID: dialogID, Category: 0,
			Error: fmt.Sprintf("модель вернула недопустимую категорию: %d", *verdict.Category)}
	}

	return model.CallbackDecision{
		DialogID:        dialogID,
		Category:        *verdict.Category,
		ClientPhrases:   *verdict.ClientPhrases,
		OperatorPhrases: *verdict.OperatorPhrases,
	}
}
