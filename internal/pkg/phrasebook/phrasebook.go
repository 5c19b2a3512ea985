// Package phrasebook 管理回访策略短语词典。
//
// 词典按固定的四个策略类别组织（1=漏掉必要回访，2=正确提议回访，
// 3=安排了不必要的回访，4=无需也未安排回访），每个类别分别保存
// 客户与坐席的短语列表。离线由已验证短语聚合生成，服务只读加载。
package phrasebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/kart-io/callinsight/internal/model"
)

// CategoryCount 策略类别数量，类别编号为 1..CategoryCount。
const CategoryCount = 4

// ErrNotFound 表示词典文件不存在。
var ErrNotFound = errors.New("phrase dictionary not found")

// CategoryPhrases 单个类别下的客户与坐席短语列表。
type CategoryPhrases struct {
	Client   []string `json:"client"`
	Operator []string `json:"operator"`
}

// Dictionary 是完整的回访策略短语词典。
type Dictionary struct {
	Categories map[int]CategoryPhrases
}

// Category 返回指定类别的短语，越界类别返回空列表。
func (d *Dictionary) Category(n int) CategoryPhrases {
	if d == nil {
		return CategoryPhrases{}
	}
	return d.Categories[n]
}

// fileFormat 词典文件的持久化结构。
type fileFormat struct {
	Category1 CategoryPhrases `json:"category_1_phrases"`
	Category2 CategoryPhrases `json:"category_2_phrases"`
	Category3 CategoryPhrases `json:"category_3_phrases"`
	Category4 CategoryPhrases `json:"category_4_phrases"`
}

// Load 从文件加载词典。文件不存在时返回 ErrNotFound，
// 快速分类器的调用方据此退化为"全部类别 4"。
func Load(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read phrase dictionary: %w", err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("failed to parse phrase dictionary: %w", err)
	}

	return &Dictionary{
		Categories: map[int]CategoryPhrases{
			1: ff.Category1,
			2: ff.Category2,
			3: ff.Category3,
			4: ff.Category4,
		},
	}, nil
}

// Save 将词典写入文件。
func (d *Dictionary) Save(path string) error {
	ff := fileFormat{
		Category1: d.Category(1),
		Category2: d.Category(2),
		Category3: d.Category(3),
		Category4: d.Category(4),
	}
	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal phrase dictionary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write phrase dictionary: %w", err)
	}
	return nil
}

// Aggregate 从已验证短语行构建词典。
// 每个列表先按出现顺序去重，再做大小写不敏感排序，保证构建可复现。
func Aggregate(phrases []model.CallbackPhrase) *Dictionary {
	categories := make(map[int]CategoryPhrases, CategoryCount)
	for n := 1; n <= CategoryCount; n++ {
		categories[n] = CategoryPhrases{
			Client:   []string{},
			Operator: []string{},
		}
	}

	for _, p := range phrases {
		if p.Category < 1 || p.Category > CategoryCount {
			continue
		}
		cat := categories[p.Category]
		switch p.Source {
		case string(model.SpeakerClient):
			cat.Client = append(cat.Client, p.Phrase)
		case string(model.SpeakerOperator):
			cat.Operator = append(cat.Operator, p.Phrase)
		}
		categories[p.Category] = cat
	}

	for n, cat := range categories {
		cat.Client = dedupeAndSort(cat.Client)
		cat.Operator = dedupeAndSort(cat.Operator)
		categories[n] = cat
	}

	return &Dictionary{Categories: categories}
}

// dedupeAndSort 按出现顺序去重后做大小写不敏感排序。
func dedupeAndSort(phrases []string) []string {
	seen := make(map[string]struct{}, len(phrases))
	result := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		result = append(result, p)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return strings.ToLower(result[i]) < strings.ToLower(result[j])
	})
	return result
}
