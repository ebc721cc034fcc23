package core

import (
	"fmt"
	"slices"
	"time"

	"benchvault/pkg/types"
)

// Person 是提交的作者或提交者
type Person struct {
	Name     string `json:"name" cbor:"name"`
	Username string `json:"username,omitempty" cbor:"username,omitempty"`
	Email    string `json:"email,omitempty" cbor:"email,omitempty"`
}

// CommitInfo 是被测仓库中一次提交的元数据
type CommitInfo struct {
	Author      Person         `json:"author" cbor:"author"`
	Committer   Person         `json:"committer" cbor:"committer"`
	ID          types.CommitID `json:"id" cbor:"id"`
	Message     string         `json:"message" cbor:"message"`
	Timestamp   string         `json:"timestamp" cbor:"timestamp"` // ISO-8601，原样保存
	URL         string         `json:"url" cbor:"url"`
	OriginalRef string         `json:"original_ref,omitempty" cbor:"original_ref,omitempty"`
	Distinct    *bool          `json:"distinct,omitempty" cbor:"distinct,omitempty"`
	TreeID      string         `json:"tree_id,omitempty" cbor:"tree_id,omitempty"`

	// Parent 是显式的祖先边 (可选)
	// 数据里不保证祖先链连通，只能做尽力而为的线性回溯
	Parent types.CommitID `json:"parent,omitempty" cbor:"parent,omitempty"`
}

// Time 解析 ISO-8601 提交时间
func (c CommitInfo) Time() (time.Time, error) {
	return time.Parse(time.RFC3339, c.Timestamp)
}

// Bench 是一条记录里的单个指标
type Bench struct {
	Name  string  `json:"name" cbor:"name"`
	Value float64 `json:"value" cbor:"value"`
	Unit  string  `json:"unit" cbor:"unit"`
	Range Range   `json:"range" cbor:"range"`
}

// RunRecord 是某个 Suite 在某个 commit 上的完整结果
// 写入账本之后不再修改
type RunRecord struct {
	Commit  CommitInfo `json:"commit" cbor:"commit"`
	Date    int64      `json:"date" cbor:"date"` // 入库时间 (epoch ms)，可能与提交时间不同
	Tool    string     `json:"tool" cbor:"tool"`
	Benches []Bench    `json:"benches" cbor:"benches"`
}

// DateTime 把 epoch ms 转成 time.Time
func (r RunRecord) DateTime() time.Time {
	return time.UnixMilli(r.Date)
}

// Validate 检查必填字段以及 bench 名唯一性
func (r RunRecord) Validate() error {
	if r.Commit.ID.IsZero() {
		return fmt.Errorf("%w: commit.id is required", ErrMalformedRecord)
	}
	if r.Commit.Timestamp == "" {
		return fmt.Errorf("%w: commit %s: commit.timestamp is required", ErrMalformedRecord, r.Commit.ID)
	}
	if _, err := r.Commit.Time(); err != nil {
		return fmt.Errorf("%w: commit %s: commit.timestamp is not ISO-8601: %v", ErrMalformedRecord, r.Commit.ID, err)
	}
	if r.Date <= 0 {
		return fmt.Errorf("%w: commit %s: date is required", ErrMalformedRecord, r.Commit.ID)
	}
	if r.Tool == "" {
		return fmt.Errorf("%w: commit %s: tool is required", ErrMalformedRecord, r.Commit.ID)
	}

	seen := make(map[string]struct{}, len(r.Benches))
	for i, b := range r.Benches {
		if b.Name == "" {
			return fmt.Errorf("%w: commit %s: benches[%d].name is required", ErrMalformedRecord, r.Commit.ID, i)
		}
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("%w: commit %s: bench name %q appears twice", ErrMalformedRecord, r.Commit.ID, b.Name)
		}
		seen[b.Name] = struct{}{}
	}
	return nil
}

// Bench 按名字查找指标
func (r RunRecord) Bench(name string) (Bench, bool) {
	for _, b := range r.Benches {
		if b.Name == name {
			return b, true
		}
	}
	return Bench{}, false
}

// Clone 返回不共享底层切片的副本
func (r RunRecord) Clone() RunRecord {
	out := r
	out.Benches = slices.Clone(r.Benches)
	if r.Commit.Distinct != nil {
		d := *r.Commit.Distinct
		out.Commit.Distinct = &d
	}
	return out
}

// Digest 返回记录的规范化指纹
func (r RunRecord) Digest() (types.Digest, error) {
	d, _, err := CalculateDigest(r)
	return d, err
}
