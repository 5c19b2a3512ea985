// Package textutil 提供对话分析相关的文本处理工具函数。
package textutil

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// CosineSimilarity 计算两个向量的余弦相似度。
// 返回值范围为 [-1, 1]，1 表示完全相同，-1 表示完全相反。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// HashString 计算字符串的 MD5 哈希值。
func HashString(s string) string {
	hash := md5.Sum([]byte(s))
	return hex.EncodeToString(hash[:])
}

// TruncateString 截断字符串到指定的最大 Unicode 字符数。
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// TruncateWithEllipsis 截断字符串并在截断处追加 "..." 标记。
// 未截断时原样返回，提示词构造用它保证每条候选的长度可预测。
func TruncateWithEllipsis(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}

// ExtractJSONObject 从含噪声文本中提取第一个可解析的 JSON 对象子串。
//
// 这是一个刻意保守的启发式：从第一个 '{' 开始逐个右花括号尝试，
// 直到某个子串能解析为 JSON 对象为止，不做通用括号配对。
func ExtractJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in text")
	}

	rest := s[start:]
	offset := 0
	for {
		end := strings.IndexByte(rest[offset:], '}')
		if end < 0 {
			return "", fmt.Errorf("no parsable JSON object found in text")
		}
		offset += end + 1

		candidate := rest[:offset]
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
			return candidate, nil
		}
	}
}

// ParseJSONArray 从文本中提取并解析 JSON 数组。
// 如果解析失败，返回 nil 和错误。
func ParseJSONArray(s string) ([]string, error) {
	re := regexp.MustCompile(`\[[\s\S]*\]`)
	match := re.FindString(s)
	if match == "" {
		return nil, fmt.Errorf("no JSON array found in text")
	}

	var result []string
	if err := json.Unmarshal([]byte(match), &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SplitByLines 按行分割文本，移除列表标记和空行。
// 仅返回长度大于 minLen 的行。
func SplitByLines(s string, minLen int) []string {
	if minLen <= 0 {
		minLen = 5
	}

	var result []string
	lines := strings.Split(s, "\n")
	listMarkerRegex := regexp.MustCompile(`^[\d\.\-\*\)]+\s*`)

	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = listMarkerRegex.ReplaceAllString(line, "")
		line = strings.Trim(line, `"'`)
		if line != "" && len(line) > minLen {
			result = append(result, line)
		}
	}
	return result
}

// SpeakerLines 提取以任一 "<prefix>:" 开头的行，返回去掉前缀后的内容。
// 用于从完整对话文本中取出某一方（如 "Клиент"）的发言，
// 转写文本里前缀大小写不统一，所以允许传多个变体。
func SpeakerLines(dialogText string, prefixes ...string) []string {
	var result []string
	for _, line := range strings.Split(dialogText, "\n") {
		line = strings.TrimSpace(line)
		for _, prefix := range prefixes {
			marker := prefix + ":"
			if strings.HasPrefix(line, marker) {
				result = append(result, strings.TrimSpace(strings.TrimPrefix(line, marker)))
				break
			}
		}
	}
	return result
}

// ContainsString 检查字符串切片是否包含指定元素。
func ContainsString(slice []string, item string) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}
