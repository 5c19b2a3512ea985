package phrasebook

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/callinsight/internal/model"
)

func TestAggregate(t *testing.T) {
	phrases := []model.CallbackPhrase{
		{Phrase: "перезвоните мне", Source: "client", Category: 1},
		{Phrase: "Жду звонка", Source: "client", Category: 1},
		{Phrase: "перезвоните мне", Source: "client", Category: 1}, // дубликат
		{Phrase: "я вам перезвоню", Source: "operator", Category: 2},
		{Phrase: "мимо", Source: "client", Category: 9}, // 越界类别被丢弃
		{Phrase: "неизвестный источник", Source: "bot", Category: 1},
	}

	dict := Aggregate(phrases)

	// 去重后做大小写不敏感排序
	assert.Equal(t, []string{"Жду звонка", "перезвоните мне"}, dict.Category(1).Client)
	assert.Equal(t, []string{"я вам перезвоню"}, dict.Category(2).Operator)
	assert.Equal(t, []string{}, dict.Category(3).Client)
	assert.Equal(t, []string{}, dict.Category(4).Operator)
}

func TestAggregateCaseInsensitiveSort(t *testing.T) {
	phrases := []model.CallbackPhrase{
		{Phrase: "Б фраза", Source: "client", Category: 1},
		{Phrase: "а фраза", Source: "client", Category: 1},
		{Phrase: "В фраза", Source: "client", Category: 1},
	}

	dict := Aggregate(phrases)
	assert.Equal(t, []string{"а фраза", "Б фраза", "В фраза"}, dict.Category(1).Client)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dict := Aggregate([]model.CallbackPhrase{
		{Phrase: "перезвоните", Source: "client", Category: 1},
		{Phrase: "я перезвоню", Source: "operator", Category: 2},
	})

	path := filepath.Join(t.TempDir(), "phrases.json")
	require.NoError(t, dict.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dict.Category(1).Client, loaded.Category(1).Client)
	assert.Equal(t, dict.Category(2).Operator, loaded.Category(2).Operator)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCategoryNilSafety(t *testing.T) {
	var dict *Dictionary
	cat := dict.Category(1)
	assert.Empty(t, cat.Client)
	assert.Empty(t, cat.Operator)

	// 越界类别返回空短语集
	populated := Aggregate(nil)
	assert.Empty(t, populated.Category(0).Client)
	assert.Empty(t, populated.Category(5).Client)
}
