package store

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kart-io/callinsight/internal/model"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Dialog{},
		&model.Utterance{},
		&model.QARecord{},
		&model.CallbackPhrase{},
	))
	return NewCatalogWithDB(db)
}

func seedDialog(t *testing.T, c *Catalog, dialog *model.Dialog, utterances ...*model.Utterance) {
	t.Helper()
	require.NoError(t, c.db.Create(dialog).Error)
	for _, u := range utterances {
		u.DialogID = dialog.ID
		require.NoError(t, c.db.Create(u).Error)
	}
}

func TestCatalogGetUtterances(t *testing.T) {
	c := newTestCatalog(t)
	seedDialog(t, c,
		&model.Dialog{ID: 1, FullText: "Клиент: перезвоните мне\nОператор: хорошо", Theme: "billing"},
		&model.Utterance{ID: 100, Speaker: model.SpeakerClient, Text: "перезвоните мне", TurnOrder: 1},
		&model.Utterance{ID: 101, Speaker: model.SpeakerOperator, Text: "хорошо", TurnOrder: 2},
	)

	hydrated, err := c.GetUtterances(context.Background(), []int64{100, 101})
	require.NoError(t, err)
	require.Len(t, hydrated, 2)

	cand := hydrated[100]
	assert.Equal(t, "перезвоните мне", cand.Utterance.Text)
	assert.Equal(t, "billing", cand.Theme)
	assert.Equal(t, int64(1), cand.Utterance.DialogID)
	assert.Contains(t, cand.FullDialogText, "Оператор: хорошо")
}

func TestCatalogGetUtterancesDropsMissing(t *testing.T) {
	c := newTestCatalog(t)
	seedDialog(t, c,
		&model.Dialog{ID: 1, FullText: "текст", Theme: "support"},
		&model.Utterance{ID: 100, Speaker: model.SpeakerClient, Text: "вопрос", TurnOrder: 1},
	)

	// 索引里可能有目录没有的 ID，水合时静默跳过
	hydrated, err := c.GetUtterances(context.Background(), []int64{100, 999})
	require.NoError(t, err)
	assert.Len(t, hydrated, 1)
	assert.Contains(t, hydrated, int64(100))
	assert.NotContains(t, hydrated, int64(999))
}

func TestCatalogGetUtterancesEmpty(t *testing.T) {
	c := newTestCatalog(t)

	hydrated, err := c.GetUtterances(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, hydrated)
}

func TestCatalogQARecords(t *testing.T) {
	c := newTestCatalog(t)

	require.NoError(t, c.SaveQARecord(context.Background(), &model.QARecord{
		ID:       "01J0000000000000000000000A",
		Question: "первый вопрос",
		Method:   "hierarchical",
		Answer:   "ответ",
	}))
	require.NoError(t, c.SaveQARecord(context.Background(), &model.QARecord{
		ID:       "01J0000000000000000000000B",
		Question: "второй вопрос",
		Method:   "rolling",
		Answer:   "ответ",
	}))

	records, err := c.ListQARecords(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = c.ListQARecords(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCatalogVerifiedPhrases(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.db.Create(&model.CallbackPhrase{
		Phrase: "перезвоните", Source: "client", Category: 1, Verified: true,
	}).Error)
	require.NoError(t, c.db.Create(&model.CallbackPhrase{
		Phrase: "черновик", Source: "client", Category: 1, Verified: false,
	}).Error)

	phrases, err := c.VerifiedPhrases(context.Background())
	require.NoError(t, err)
	require.Len(t, phrases, 1)
	assert.Equal(t, "перезвоните", phrases[0].Phrase)
}

func TestCatalogDialogCountByTheme(t *testing.T) {
	c := newTestCatalog(t)
	seedDialog(t, c, &model.Dialog{ID: 1, FullText: "a", Theme: "billing"})
	seedDialog(t, c, &model.Dialog{ID: 2, FullText: "b", Theme: "billing"})
	seedDialog(t, c, &model.Dialog{ID: 3, FullText: "c", Theme: "support"})

	counts, err := c.DialogCountByTheme(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["billing"])
	assert.Equal(t, int64(1), counts["support"])
}
