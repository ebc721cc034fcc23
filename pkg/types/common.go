// pkg/types/common.go
package types

import "strings"

// CommitID 是被测仓库的提交哈希 (git SHA-1 / SHA-256 hex)
// 在整个文档中全局唯一，是每个 Suite 内 Run Record 的唯一键
type CommitID string

func (c CommitID) String() string { return string(c) }
func (c CommitID) IsZero() bool   { return c == "" }

// Short 返回前 8 位，用于终端输出 (类似 git log --oneline)
func (c CommitID) Short() string {
	if len(c) <= 8 {
		return string(c)
	}
	return string(c[:8])
}

// SuiteName 是一组由同一工具测量的基准的名称 (如 "Rust Benchmark")
type SuiteName string

func (s SuiteName) String() string { return string(s) }
func (s SuiteName) IsZero() bool   { return strings.TrimSpace(string(s)) == "" }

// BranchName 是分支引用名 (如 "main" 或 "refs/heads/main")
type BranchName string

func (b BranchName) String() string { return string(b) }
func (b BranchName) IsZero() bool   { return strings.TrimSpace(string(b)) == "" }

// Digest 是对象内容的 SHA-256 指纹 (Hex String)
type Digest string

func (d Digest) String() string { return string(d) }
func (d Digest) IsValid() bool  { return len(d) == 64 }
