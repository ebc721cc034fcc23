package meta

import (
	"time"

	"gorm.io/datatypes"
)

// RunModel 是 core.RunRecord 在关系型数据库中的投影
// (suite, commit_id) 是联合主键，对应账本的唯一性约束
type RunModel struct {
	Suite    string `gorm:"primaryKey;type:varchar(255)"`
	CommitID string `gorm:"primaryKey;type:varchar(255)"`

	// 入库时间 (epoch ms)，GetHistory 按它排序
	Date int64  `gorm:"index"`
	Tool string `gorm:"type:varchar(100)"`

	// Commit 保存完整的 core.CommitInfo (作者、消息、parent 等)
	Commit datatypes.JSON

	// Digest 是写入时计算的记录指纹，读出时用来校验数据没有被改动
	Digest string `gorm:"type:char(64);not null"`

	CreatedAt time.Time
}

func (RunModel) TableName() string {
	return "runs"
}

// BenchModel 是记录里的单个指标，Position 保留原始顺序
type BenchModel struct {
	Suite    string `gorm:"primaryKey;type:varchar(255)"`
	CommitID string `gorm:"primaryKey;type:varchar(255)"`
	Position int    `gorm:"primaryKey"`

	Name  string `gorm:"index;type:varchar(255)"`
	Value float64
	Unit  string `gorm:"type:varchar(64)"`

	// Range 按 JSON 原样保存：数字就是数字，字符串就是字符串
	Range datatypes.JSON `gorm:"column:range_json"`
}

func (BenchModel) TableName() string {
	return "benches"
}

// BranchModel 存储分支指针
type BranchModel struct {
	Name     string `gorm:"primaryKey;type:varchar(255)"`
	CommitID string `gorm:"type:varchar(255);not null"`

	// Version 用于乐观锁并发控制 (CAS)，每次移动指针时 +1
	Version int64 `gorm:"default:1"`

	UpdatedAt time.Time
}

func (BranchModel) TableName() string {
	return "branches"
}

// DocumentModel 是账本头信息，只有一行 (ID = 1)
type DocumentModel struct {
	ID         uint `gorm:"primaryKey"`
	RepoURL    string
	LastUpdate int64

	// 整个账本的指纹
	Digest string `gorm:"type:char(64)"`

	UpdatedAt time.Time
}

func (DocumentModel) TableName() string {
	return "documents"
}

// Models 是需要迁移的全部表
func Models() []any {
	return []any{&RunModel{}, &BenchModel{}, &BranchModel{}, &DocumentModel{}}
}
