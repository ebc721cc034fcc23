package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"benchvault/pkg/core"
	"benchvault/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrConcurrentUpdate = fmt.Errorf("%w detected (CAS failed)", core.ErrConcurrentUpdate)
)

// documentRowID 是账本头信息所在的行
const documentRowID = 1

// Repository 把账本持久化到 SQL 数据库，实现 history.Persister
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

type runKey struct {
	Suite    string
	CommitID string
}

// -----------------------------------------------------------------------------
// 1. 保存
// -----------------------------------------------------------------------------

// Save 把账本写入数据库 (单个事务)
//
// base 是写者加载账本时看到的状态 (nil 表示数据库里还没有账本)。
// 账本头行上的指纹充当版本号：只有数据库中的指纹仍等于 base 的指纹时才允许写入，
// 否则说明有其它写者抢先提交，返回 ErrConcurrentUpdate，数据库保持不变。
//
// 账本只追加：数据库中已有的记录不会被修改，只插入新记录。
func (r *Repository) Save(ctx context.Context, base, doc *core.Document) error {
	// 空 Suite 在表里没有任何行，指纹按去掉空 Suite 之后的账本计算
	digest, err := doc.ContentDigest()
	if err != nil {
		return err
	}
	var expected types.Digest
	baseBranches := map[types.BranchName]types.CommitID{}
	if base != nil {
		if expected, err = base.ContentDigest(); err != nil {
			return err
		}
		baseBranches = base.Branches
	}

	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 账本头 CAS，失败的写者在这里就退出
		head := DocumentModel{
			ID:         documentRowID,
			RepoURL:    doc.RepoURL,
			LastUpdate: doc.LastUpdate,
			Digest:     digest.String(),
		}
		if err := swapHead(tx, expected, head); err != nil {
			return err
		}

		// 2. 找出已经入库的记录
		var existing []runKey
		if err := tx.Model(&RunModel{}).Select("suite", "commit_id").Find(&existing).Error; err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		stored := make(map[runKey]struct{}, len(existing))
		for _, k := range existing {
			if _, ok := doc.Entries[types.SuiteName(k.Suite)][types.CommitID(k.CommitID)]; !ok {
				return fmt.Errorf("%w: run %s@%s is in the database but not in the document",
					ErrConcurrentUpdate, k.Suite, k.CommitID)
			}
			stored[k] = struct{}{}
		}

		// 3. 插入新记录
		var runs []RunModel
		var benches []BenchModel
		for _, suite := range doc.Suites() {
			for id, rec := range doc.Entries[suite] {
				if _, ok := stored[runKey{Suite: suite.String(), CommitID: id.String()}]; ok {
					continue
				}
				run, bs, err := toModels(suite, rec)
				if err != nil {
					return err
				}
				runs = append(runs, run)
				benches = append(benches, bs...)
			}
		}
		if len(runs) > 0 {
			// 幂等写入：主键冲突时什么都不做
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "suite"}, {Name: "commit_id"}},
				DoNothing: true,
			}).CreateInBatches(&runs, 100).Error
			if err != nil {
				return fmt.Errorf("failed to insert runs: %w", err)
			}
		}
		if len(benches) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "suite"}, {Name: "commit_id"}, {Name: "position"}},
				DoNothing: true,
			}).CreateInBatches(&benches, 200).Error
			if err != nil {
				return fmt.Errorf("failed to insert benches: %w", err)
			}
		}

		// 4. 分支指针
		for name, id := range doc.Branches {
			if err := moveBranch(tx, name.String(), baseBranches[name].String(), id.String()); err != nil {
				return err
			}
		}
		return nil
	})
}

// swapHead 按指纹对账本头行做 CAS
// expected 为空表示首次写入，此时头行必须还不存在
func swapHead(tx *gorm.DB, expected types.Digest, head DocumentModel) error {
	if expected == "" {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&head)
		if result.Error != nil {
			return fmt.Errorf("failed to create document head: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: document was created by another writer", ErrConcurrentUpdate)
		}
		return nil
	}

	// UPDATE documents SET ... WHERE id = 1 AND digest = <expected>
	result := tx.Model(&DocumentModel{}).
		Where("id = ? AND digest = ?", documentRowID, expected.String()).
		Updates(map[string]any{
			"repo_url":    head.RepoURL,
			"last_update": head.LastUpdate,
			"digest":      head.Digest,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update document head: %w", result.Error)
	}
	// 影响行数为 0 说明指纹已经变了
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: document changed since it was loaded", ErrConcurrentUpdate)
	}
	return nil
}

// moveBranch 创建或移动分支指针 (CAS)
// expected 是写者加载时看到的指向，为空表示当时分支还不存在
func moveBranch(tx *gorm.DB, name, expected, commitID string) error {
	var cur BranchModel
	err := tx.Where("name = ?", name).First(&cur).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if expected != "" {
			return fmt.Errorf("%w: branch %q was removed", ErrConcurrentUpdate, name)
		}
		if err := tx.Create(&BranchModel{Name: name, CommitID: commitID, Version: 1}).Error; err != nil {
			return fmt.Errorf("failed to create branch: %w", err)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if cur.CommitID == commitID {
		return nil
	}
	if cur.CommitID != expected {
		return fmt.Errorf("%w: branch %q points to %s, expected %s",
			ErrConcurrentUpdate, name, cur.CommitID, expected)
	}

	// UPDATE branches SET commit_id = ?, version = version + 1 WHERE name = ? AND version = ?
	result := tx.Model(&BranchModel{}).
		Where("name = ? AND version = ?", name, cur.Version).
		Updates(map[string]any{
			"commit_id":  commitID,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	// 影响行数为 0 说明 version 不匹配
	if result.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

func toModels(suite types.SuiteName, rec core.RunRecord) (RunModel, []BenchModel, error) {
	digest, err := rec.Digest()
	if err != nil {
		return RunModel{}, nil, err
	}
	commitJSON, err := json.Marshal(rec.Commit)
	if err != nil {
		return RunModel{}, nil, fmt.Errorf("failed to marshal commit: %w", err)
	}

	run := RunModel{
		Suite:    suite.String(),
		CommitID: rec.Commit.ID.String(),
		Date:     rec.Date,
		Tool:     rec.Tool,
		Commit:   datatypes.JSON(commitJSON),
		Digest:   digest.String(),
	}

	benches := make([]BenchModel, 0, len(rec.Benches))
	for i, b := range rec.Benches {
		rangeJSON, err := json.Marshal(b.Range)
		if err != nil {
			return RunModel{}, nil, fmt.Errorf("failed to marshal range: %w", err)
		}
		benches = append(benches, BenchModel{
			Suite:    run.Suite,
			CommitID: run.CommitID,
			Position: i,
			Name:     b.Name,
			Value:    b.Value,
			Unit:     b.Unit,
			Range:    datatypes.JSON(rangeJSON),
		})
	}
	return run, benches, nil
}

// -----------------------------------------------------------------------------
// 2. 读取
// -----------------------------------------------------------------------------

// Load 从数据库重建账本，并校验每条记录的指纹
// 尚未保存过时返回包装了 core.ErrNotFound 的错误
func (r *Repository) Load(ctx context.Context) (*core.Document, error) {
	conn := r.db.GetConn().WithContext(ctx)

	// 1. 头信息
	var head DocumentModel
	err := conn.First(&head, documentRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	doc := core.NewDocument(head.RepoURL)
	doc.LastUpdate = head.LastUpdate

	// 2. 指标，按记录分组
	var benches []BenchModel
	if err := conn.Order("suite, commit_id, position").Find(&benches).Error; err != nil {
		return nil, fmt.Errorf("failed to load benches: %w", err)
	}
	grouped := make(map[runKey][]core.Bench)
	for _, b := range benches {
		var rg core.Range
		if len(b.Range) > 0 {
			if err := json.Unmarshal(b.Range, &rg); err != nil {
				return nil, fmt.Errorf("%w: bench %s@%s/%s: %v", core.ErrMalformedRecord, b.Suite, b.CommitID, b.Name, err)
			}
		}
		k := runKey{Suite: b.Suite, CommitID: b.CommitID}
		grouped[k] = append(grouped[k], core.Bench{Name: b.Name, Value: b.Value, Unit: b.Unit, Range: rg})
	}

	// 3. 记录
	var runs []RunModel
	if err := conn.Order("suite, commit_id").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}
	for _, run := range runs {
		rec := core.RunRecord{
			Date:    run.Date,
			Tool:    run.Tool,
			Benches: grouped[runKey{Suite: run.Suite, CommitID: run.CommitID}],
		}
		if rec.Benches == nil {
			rec.Benches = []core.Bench{}
		}
		if err := json.Unmarshal(run.Commit, &rec.Commit); err != nil {
			return nil, fmt.Errorf("%w: run %s@%s: %v", core.ErrMalformedRecord, run.Suite, run.CommitID, err)
		}

		digest, err := rec.Digest()
		if err != nil {
			return nil, err
		}
		if digest.String() != run.Digest {
			return nil, fmt.Errorf("%w: run %s@%s: digest mismatch (stored %s, computed %s)",
				core.ErrMalformedRecord, run.Suite, run.CommitID, run.Digest, digest)
		}

		suite := types.SuiteName(run.Suite)
		if doc.Entries[suite] == nil {
			doc.Entries[suite] = make(map[types.CommitID]core.RunRecord)
		}
		doc.Entries[suite][types.CommitID(run.CommitID)] = rec
	}

	// 4. 分支指针
	var branches []BranchModel
	if err := conn.Find(&branches).Error; err != nil {
		return nil, fmt.Errorf("failed to load branches: %w", err)
	}
	for _, b := range branches {
		doc.Branches[types.BranchName(b.Name)] = types.CommitID(b.CommitID)
	}

	// 5. 整体指纹
	digest, err := doc.Digest()
	if err != nil {
		return nil, err
	}
	if head.Digest != "" && digest.String() != head.Digest {
		return nil, fmt.Errorf("%w: document digest mismatch (stored %s, computed %s)",
			core.ErrMalformedRecord, head.Digest, digest)
	}
	return doc, nil
}

// GetBranch 读取分支指针的当前状态 (包括 CAS 版本号)
func (r *Repository) GetBranch(ctx context.Context, name types.BranchName) (*BranchModel, error) {
	var b BranchModel
	err := r.db.GetConn().WithContext(ctx).Where("name = ?", name.String()).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("branch %q: %w", name, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// SeriesPoint 是某个指标在一次运行中的值
type SeriesPoint struct {
	CommitID string
	Date     int64
	Value    float64
	Unit     string
}

// Series 用 SQL 直接查询某个指标的时间序列 (按 date 升序)
func (r *Repository) Series(ctx context.Context, suite types.SuiteName, bench string) ([]SeriesPoint, error) {
	var points []SeriesPoint
	err := r.db.GetConn().WithContext(ctx).
		Table("benches").
		Select("benches.commit_id, runs.date, benches.value, benches.unit").
		Joins("JOIN runs ON runs.suite = benches.suite AND runs.commit_id = benches.commit_id").
		Where("benches.suite = ? AND benches.name = ?", suite.String(), bench).
		Order("runs.date, benches.commit_id").
		Scan(&points).Error
	return points, err
}
