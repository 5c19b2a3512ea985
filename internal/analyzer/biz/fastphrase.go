package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kart-io/callinsight/internal/model"
	"github.com/kart-io/callinsight/internal/pkg/textutil"
)

// 转写文本里客户前缀的已知写法变体。
var clientPrefixes = []string{"Клиент", "клиент", "КЛИЕНТ"}

// fastPhraseStrategy 实现零 LLM 调用的短语词典分类器。
// 每条候选各产生一条判定记录；结果完全由词典与对话文本决定，
// 同样的输入永远产生同样的输出。
type fastPhraseStrategy struct {
	engine *Engine
}

func (s *fastPhraseStrategy) Name() string { return "fast_phrase" }

func (s *fastPhraseStrategy) Run(ctx context.Context, question string, candidates []*model.RetrievalCandidate, chunkSize int, progress Progress) (*model.AnalysisResult, error) {
	report(progress, "Быстрая классификация по словарю: %d диалогов...", len(candidates))

	decisions := make([]model.CallbackDecision, 0, len(candidates))
	for _, cand := range candidates {
		decisions = append(decisions, model.CallbackDecision{
			DialogID:        cand.Utterance.DialogID,
			Category:        s.classify(cand.FullDialogText),
			ClientPhrases:   []string{},
			OperatorPhrases: []string{},
		})
	}

	answer, err := json.MarshalIndent(decisions, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal fast phrase decisions: %w", err)
	}

	return &model.AnalysisResult{
		Answer:  string(answer),
		Context: "Классификация завершена по словарю.",
	}, nil
}

// classify 按客户发言逐行匹配词典短语，短语匹配区分大小写。
//
// 默认类别 4。首条命中类别 1 客户短语的行决定结果：该行同时含
// 类别 3 客户短语则升级为 3，否则该行含类别 2 操作员短语则为 2。
// 注意最后一条规则在客户行上匹配的是操作员短语，这是历史行为，
// 修正会改变已有报表的分布。
func (s *fastPhraseStrategy) classify(dialogText string) int {
	dict := s.engine.dictionary
	if dict == nil {
		return 4
	}

	cat1 := dict.Category(1)
	cat2 := dict.Category(2)
	cat3 := dict.Category(3)

	category := 4
	for _, line := range textutil.SpeakerLines(dialogText, clientPrefixes...) {
		if !containsAnyPhrase(line, cat1.Client) {
			continue
		}
		category = 1
		if containsAnyPhrase(line, cat3.Client) {
			category = 3
		} else if containsAnyPhrase(line, cat2.Operator) {
			category = 2
		}
		break
	}
	return category
}

// containsAnyPhrase 检查文本是否包含任一非空短语（区分大小写）。
func containsAnyPhrase(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
