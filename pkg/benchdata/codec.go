// Package benchdata 负责账本的对外表示：
// 一条赋值语句 `<identifier> = <JSON object>`，供看板页面直接 <script> 引入
package benchdata

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"benchvault/pkg/core"
	"benchvault/pkg/types"
)

// DefaultIdentifier 是看板页面读取的全局变量
const DefaultIdentifier = "window.BENCHMARK_DATA"

// EncodeOptions 控制输出格式
type EncodeOptions struct {
	Identifier string // 为空时使用 DefaultIdentifier
	Indent     string // 为空时输出紧凑 JSON
}

// Encode 输出 `<identifier> = <JSON>`
func Encode(w io.Writer, doc *core.Document, opts EncodeOptions) error {
	ident := opts.Identifier
	if ident == "" {
		ident = DefaultIdentifier
	}

	var (
		data []byte
		err  error
	)
	if opts.Indent != "" {
		data, err = json.MarshalIndent(toWire(doc), "", opts.Indent)
	} else {
		data, err = json.Marshal(toWire(doc))
	}
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(ident)
	bw.WriteString(" = ")
	bw.Write(data)
	bw.WriteString("\n")
	return bw.Flush()
}

// Marshal 是 Encode 的 []byte 版本
func Marshal(doc *core.Document, opts EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, doc, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode 读取赋值语句形式或裸 JSON 形式的账本
func Decode(r io.Reader) (*core.Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return Unmarshal(raw)
}

// Unmarshal 是 Decode 的 []byte 版本
func Unmarshal(raw []byte) (*core.Document, error) {
	body, err := stripAssignment(raw)
	if err != nil {
		return nil, err
	}

	var w wireDocument
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedRecord, err)
	}
	return fromWire(&w)
}

// stripAssignment 去掉 `xxx = ` 前缀和末尾的分号
func stripAssignment(raw []byte) ([]byte, error) {
	body := bytes.TrimSpace(raw)
	// 去掉 UTF-8 BOM
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))

	if len(body) > 0 && body[0] != '{' {
		eq := bytes.IndexByte(body, '=')
		brace := bytes.IndexByte(body, '{')
		if eq < 0 || brace < 0 || brace < eq {
			return nil, fmt.Errorf("%w: expected `<identifier> = {...}`", core.ErrMalformedRecord)
		}
		body = bytes.TrimSpace(body[eq+1:])
	}

	body = bytes.TrimSuffix(body, []byte(";"))
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty document", core.ErrMalformedRecord)
	}
	return body, nil
}

// -----------------------------------------------------------------------------
// 线上格式 (Wire Format)
// -----------------------------------------------------------------------------

// wireDocument 与 core.Document 的区别在于 entries：
// 每个 Suite 可以是 {commitId: record} (当前格式)，也可以是 [record, ...] (上游 action 的旧格式)
type wireDocument struct {
	LastUpdate *int64                              `json:"lastUpdate"`
	RepoURL    string                              `json:"repoUrl"`
	Entries    map[types.SuiteName]json.RawMessage `json:"entries"`
	Branches   map[types.BranchName]types.CommitID `json:"branches"`
}

// wireOut 用于输出，保证 entries / branches 永远不是 null
type wireOut struct {
	LastUpdate int64                                                 `json:"lastUpdate"`
	RepoURL    string                                                `json:"repoUrl"`
	Entries    map[types.SuiteName]map[types.CommitID]core.RunRecord `json:"entries"`
	Branches   map[types.BranchName]types.CommitID                   `json:"branches"`
}

func toWire(doc *core.Document) wireOut {
	out := wireOut{
		LastUpdate: doc.LastUpdate,
		RepoURL:    doc.RepoURL,
		Entries:    make(map[types.SuiteName]map[types.CommitID]core.RunRecord, len(doc.Entries)),
		Branches:   doc.Branches,
	}
	if out.Branches == nil {
		out.Branches = map[types.BranchName]types.CommitID{}
	}
	for suite, runs := range doc.Entries {
		cp := make(map[types.CommitID]core.RunRecord, len(runs))
		for id, rec := range runs {
			// 看板页面期望 benches 是数组
			if rec.Benches == nil {
				rec.Benches = []core.Bench{}
			}
			cp[id] = rec
		}
		out.Entries[suite] = cp
	}
	return out
}

func fromWire(w *wireDocument) (*core.Document, error) {
	if w.LastUpdate == nil {
		return nil, fmt.Errorf("%w: lastUpdate is required", core.ErrMalformedRecord)
	}

	doc := core.NewDocument(w.RepoURL)
	doc.LastUpdate = *w.LastUpdate

	for suite, raw := range w.Entries {
		runs, err := decodeSuite(suite, raw)
		if err != nil {
			return nil, err
		}
		// 每条记录都要带齐必填字段，且 key 与 commit.id 一致
		for id, rec := range runs {
			if rec.Commit.ID != id {
				return nil, fmt.Errorf("%w: suite %q: key %s does not match commit.id %q",
					core.ErrMalformedRecord, suite, id, rec.Commit.ID)
			}
			if err := rec.Validate(); err != nil {
				return nil, fmt.Errorf("suite %q: %w", suite, err)
			}
		}
		doc.Entries[suite] = runs
	}
	for branch, id := range w.Branches {
		doc.Branches[branch] = id
	}
	return doc, nil
}

func decodeSuite(suite types.SuiteName, raw json.RawMessage) (map[types.CommitID]core.RunRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[types.CommitID]core.RunRecord{}, nil
	}

	// 旧格式：数组，按 commit id 重新建索引
	if trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("%w: suite %q: %v", core.ErrMalformedRecord, suite, err)
		}
		runs := make(map[types.CommitID]core.RunRecord, len(list))
		for i, item := range list {
			rec, err := decodeRecord(item)
			if err != nil {
				return nil, fmt.Errorf("suite %q: entries[%d]: %w", suite, i, err)
			}
			if rec.Commit.ID.IsZero() {
				return nil, fmt.Errorf("%w: suite %q: entries[%d]: commit.id is required", core.ErrMalformedRecord, suite, i)
			}
			if _, dup := runs[rec.Commit.ID]; dup {
				return nil, fmt.Errorf("%w: suite %q: commit %s appears twice", core.ErrMalformedRecord, suite, rec.Commit.ID)
			}
			runs[rec.Commit.ID] = rec
		}
		return runs, nil
	}

	var items map[types.CommitID]json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: suite %q: %v", core.ErrMalformedRecord, suite, err)
	}
	runs := make(map[types.CommitID]core.RunRecord, len(items))
	for id, item := range items {
		rec, err := decodeRecord(item)
		if err != nil {
			return nil, fmt.Errorf("suite %q: %s: %w", suite, id, err)
		}
		runs[id] = rec
	}
	return runs, nil
}

// decodeRecord 解码单条记录
// 缺失和 null 在 Go 结构体里都是零值，所以必填键要在 JSON 层面检查
func decodeRecord(raw json.RawMessage) (core.RunRecord, error) {
	var rec core.RunRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("%w: %v", core.ErrMalformedRecord, err)
	}

	var req requiredRecord
	if err := json.Unmarshal(raw, &req); err != nil {
		return rec, fmt.Errorf("%w: %v", core.ErrMalformedRecord, err)
	}
	if req.Commit == nil {
		return rec, fmt.Errorf("%w: commit is required", core.ErrMalformedRecord)
	}
	if err := req.Commit.check(); err != nil {
		return rec, err
	}
	for i, b := range req.Benches {
		switch {
		case b.Value == nil:
			return rec, fmt.Errorf("%w: benches[%d].value is required", core.ErrMalformedRecord, i)
		case b.Unit == nil:
			return rec, fmt.Errorf("%w: benches[%d].unit is required", core.ErrMalformedRecord, i)
		case b.Range == nil:
			return rec, fmt.Errorf("%w: benches[%d].range is required", core.ErrMalformedRecord, i)
		}
	}
	return rec, nil
}

// DecodeCommit 解析 CI 事件里的 commit 对象 (比如 GitHub push 事件的 head_commit)
// 必填字段规则与账本中的记录一致
func DecodeCommit(raw []byte) (core.CommitInfo, error) {
	var commit core.CommitInfo
	if err := json.Unmarshal(raw, &commit); err != nil {
		return commit, fmt.Errorf("%w: %v", core.ErrMalformedRecord, err)
	}
	var req requiredCommit
	if err := json.Unmarshal(raw, &req); err != nil {
		return commit, fmt.Errorf("%w: %v", core.ErrMalformedRecord, err)
	}
	if err := req.check(); err != nil {
		return commit, err
	}
	if commit.ID.IsZero() {
		return commit, fmt.Errorf("%w: commit.id is required", core.ErrMalformedRecord)
	}
	return commit, nil
}

// requiredRecord 只描述必填键，指针为 nil 表示键缺失或值为 null
type requiredRecord struct {
	Commit  *requiredCommit `json:"commit"`
	Benches []struct {
		Value *float64         `json:"value"`
		Unit  *string          `json:"unit"`
		Range *json.RawMessage `json:"range"`
	} `json:"benches"`
}

type requiredCommit struct {
	Author    *requiredPerson `json:"author"`
	Committer *requiredPerson `json:"committer"`
	Message   *string         `json:"message"`
	URL       *string         `json:"url"`
}

type requiredPerson struct {
	Name *string `json:"name"`
}

func (c *requiredCommit) check() error {
	switch {
	case c.Author == nil:
		return fmt.Errorf("%w: commit.author is required", core.ErrMalformedRecord)
	case c.Author.Name == nil:
		return fmt.Errorf("%w: commit.author.name is required", core.ErrMalformedRecord)
	case c.Committer == nil:
		return fmt.Errorf("%w: commit.committer is required", core.ErrMalformedRecord)
	case c.Committer.Name == nil:
		return fmt.Errorf("%w: commit.committer.name is required", core.ErrMalformedRecord)
	case c.Message == nil:
		return fmt.Errorf("%w: commit.message is required", core.ErrMalformedRecord)
	case c.URL == nil:
		return fmt.Errorf("%w: commit.url is required", core.ErrMalformedRecord)
	}
	return nil
}
