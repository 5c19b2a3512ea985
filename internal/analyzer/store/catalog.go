package store

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/kart-io/logger"
	"gorm.io/gorm"

	"github.com/kart-io/callinsight/internal/model"
)

// Catalog 提供话语/对话目录的只读查询和问答历史持久化。
//
// 表结构由外部摄取管道创建并填充，这里只负责读取；
// qa_pairs 是服务自己写入的问答审计记录。
type Catalog struct {
	db *gorm.DB
}

// NewCatalog 打开 SQLite 目录数据库。
func NewCatalog(path string) (*Catalog, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database %s: %w", path, err)
	}

	// qa_pairs 由服务写入，确保表存在；其余表归摄取管道所有。
	if err := db.AutoMigrate(&model.QARecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate qa_pairs: %w", err)
	}

	return &Catalog{db: db}, nil
}

// NewCatalogWithDB 基于已有连接创建目录，便于测试注入。
func NewCatalogWithDB(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// hydratedRow 话语与所属对话的联接结果。
type hydratedRow struct {
	model.Utterance
	Theme    string
	FullText string
}

// GetUtterances 按 ID 水合话语，返回以 ID 为键的映射。
// 找不到的 ID 被跳过：索引和目录可能基于不同的语料快照构建。
func (c *Catalog) GetUtterances(ctx context.Context, ids []int64) (map[int64]*model.RetrievalCandidate, error) {
	if len(ids) == 0 {
		return map[int64]*model.RetrievalCandidate{}, nil
	}

	var rows []hydratedRow
	err := c.db.WithContext(ctx).
		Table("utterances").
		Select("utterances.*, dialogs.theme AS theme, dialogs.full_text AS full_text").
		Joins("JOIN dialogs ON dialogs.id = utterances.dialog_id").
		Where("utterances.id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate utterances: %w", err)
	}

	hydrated := make(map[int64]*model.RetrievalCandidate, len(rows))
	for _, row := range rows {
		hydrated[row.Utterance.ID] = &model.RetrievalCandidate{
			Utterance:      row.Utterance,
			Theme:          row.Theme,
			FullDialogText: row.FullText,
		}
	}

	if len(hydrated) < len(ids) {
		logger.Debugw("some utterance ids did not hydrate",
			"requested", len(ids), "hydrated", len(hydrated))
	}
	return hydrated, nil
}

// SaveQARecord 持久化一条问答历史。
func (c *Catalog) SaveQARecord(ctx context.Context, record *model.QARecord) error {
	if err := c.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to save qa record: %w", err)
	}
	return nil
}

// ListQARecords 返回最近的问答历史，按时间倒序。
func (c *Catalog) ListQARecords(ctx context.Context, limit int) ([]model.QARecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []model.QARecord
	err := c.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list qa records: %w", err)
	}
	return records, nil
}

// VerifiedPhrases 返回全部已验证的回访短语，按类别和来源分组前的原始行。
// 排序保证聚合结果可复现。
func (c *Catalog) VerifiedPhrases(ctx context.Context) ([]model.CallbackPhrase, error) {
	var phrases []model.CallbackPhrase
	err := c.db.WithContext(ctx).
		Where("verified = ?", true).
		Order("category ASC, source ASC, id ASC").
		Find(&phrases).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load verified phrases: %w", err)
	}
	return phrases, nil
}

// DialogCountByTheme 统计每个主题的对话数量。
func (c *Catalog) DialogCountByTheme(ctx context.Context) (map[string]int64, error) {
	type themeCount struct {
		Theme string
		Count int64
	}
	var rows []themeCount
	err := c.db.WithContext(ctx).
		Model(&model.Dialog{}).
		Select("theme, COUNT(*) AS count").
		Group("theme").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count dialogs by theme: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Theme] = row.Count
	}
	return counts, nil
}
