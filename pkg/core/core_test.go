package core

import (
	"encoding/json"
	"testing"

	"benchvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 1. Range 测试
// -----------------------------------------------------------------------------

func TestRange_Float(t *testing.T) {
	tests := []struct {
		name    string
		input   Range
		want    float64
		wantErr bool
	}{
		{"Numeric", NumericRange(12), 12, false},
		{"Negative numeric", NumericRange(-3.5), 3.5, false},
		{"Plus-minus string", TextRange("± 81246"), 81246, false},
		{"Ascii plus-minus", TextRange("+/- 1.5"), 1.5, false},
		{"Percent", TextRange("± 2.3%"), 2.3, false},
		{"Thousands separator", TextRange("± 1,234"), 1234, false},
		{"Exponent", TextRange("±1.2e+03"), 1200, false},
		{"No number", TextRange("n/a"), 0, true},
		{"Empty", Range{}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.input.Float()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnparsableRange)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRange_JSON_PreservesForm(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantNumeric bool
		wantRaw     string
	}{
		{"Integer", `81246`, true, "81246"},
		{"Trailing zero kept", `1.50`, true, "1.50"},
		{"Formatted string", `"± 81246"`, false, "± 81246"},
		{"Empty string", `""`, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Range
			require.NoError(t, json.Unmarshal([]byte(tt.input), &r))
			assert.Equal(t, tt.wantNumeric, r.IsNumeric())
			assert.Equal(t, tt.wantRaw, r.Raw())

			// 原样写回
			out, err := json.Marshal(r)
			require.NoError(t, err)
			assert.Equal(t, tt.input, string(out))
		})
	}
}

func TestRange_JSON_RejectsGarbage(t *testing.T) {
	var r Range
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &r))
	assert.Error(t, json.Unmarshal([]byte(`true`), &r))
	assert.Error(t, json.Unmarshal([]byte(`null`), &r), "null 没有原始形式可以写回")
}

// -----------------------------------------------------------------------------
// 2. RunRecord 测试
// -----------------------------------------------------------------------------

func TestRunRecord_Validate(t *testing.T) {
	valid := newRecord("aaa", 1000, bench("x", 10), bench("y", 20))
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(r *RunRecord)
		errMsg string
	}{
		{"Missing id", func(r *RunRecord) { r.Commit.ID = "" }, "commit.id"},
		{"Missing timestamp", func(r *RunRecord) { r.Commit.Timestamp = "" }, "timestamp"},
		{"Bad timestamp", func(r *RunRecord) { r.Commit.Timestamp = "yesterday" }, "ISO-8601"},
		{"Missing date", func(r *RunRecord) { r.Date = 0 }, "date"},
		{"Missing tool", func(r *RunRecord) { r.Tool = "" }, "tool"},
		{"Empty bench name", func(r *RunRecord) { r.Benches[0].Name = "" }, "benches[0].name"},
		{"Duplicate bench name", func(r *RunRecord) { r.Benches[1].Name = "x" }, "appears twice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid.Clone()
			tt.mutate(&rec)
			err := rec.Validate()
			assert.ErrorIs(t, err, ErrMalformedRecord)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRunRecord_CloneIsIndependent(t *testing.T) {
	distinct := true
	rec := newRecord("aaa", 1000, bench("x", 10))
	rec.Commit.Distinct = &distinct

	cp := rec.Clone()
	cp.Benches[0].Value = 99
	*cp.Commit.Distinct = false

	assert.Equal(t, 10.0, rec.Benches[0].Value, "修改副本不应影响原记录")
	assert.True(t, *rec.Commit.Distinct)
}

func TestRunRecord_Bench(t *testing.T) {
	rec := newRecord("aaa", 1000, bench("x", 10))
	b, ok := rec.Bench("x")
	require.True(t, ok)
	assert.Equal(t, 10.0, b.Value)

	_, ok = rec.Bench("missing")
	assert.False(t, ok)
}

func TestRunRecord_Digest(t *testing.T) {
	a := newRecord("aaa", 1000, bench("x", 10))
	b := a.Clone()

	da, err := a.Digest()
	require.NoError(t, err)
	db, err := b.Digest()
	require.NoError(t, err)
	assert.Equal(t, da, db)
	assert.True(t, da.IsValid())

	// 数字 12 与字符串 "12" 是不同的 Range
	b.Benches[0].Range = NumericRange(10)
	c := a.Clone()
	c.Benches[0].Range = TextRange("10")
	db, _ = b.Digest()
	dc, _ := c.Digest()
	assert.NotEqual(t, db, dc)

	// nil 与空切片指纹一致
	empty := newRecord("bbb", 1000)
	empty.Benches = []Bench{}
	nilBenches := newRecord("bbb", 1000)
	de, _ := empty.Digest()
	dn, _ := nilBenches.Digest()
	assert.Equal(t, de, dn)
}

// -----------------------------------------------------------------------------
// 3. Document 测试
// -----------------------------------------------------------------------------

func TestDocument_Validate(t *testing.T) {
	build := func() *Document {
		d := NewDocument("https://github.com/example/project")
		d.LastUpdate = 2000
		d.Entries["Rust Benchmark"] = map[types.CommitID]RunRecord{
			"aaa": newRecord("aaa", 1000, bench("x", 10)),
			"bbb": newRecord("bbb", 2000, bench("x", 11)),
		}
		d.Branches["main"] = "bbb"
		return d
	}
	require.NoError(t, build().Validate())

	t.Run("Key mismatch", func(t *testing.T) {
		d := build()
		d.Entries["Rust Benchmark"]["ccc"] = newRecord("ddd", 1000)
		assert.ErrorIs(t, d.Validate(), ErrMalformedRecord)
	})

	t.Run("LastUpdate behind record", func(t *testing.T) {
		d := build()
		d.LastUpdate = 1500
		assert.ErrorIs(t, d.Validate(), ErrMalformedRecord)
	})

	t.Run("Dangling branch", func(t *testing.T) {
		d := build()
		d.Branches["dev"] = "zzz"
		assert.ErrorIs(t, d.Validate(), ErrDanglingReference)
	})

	t.Run("Broken record", func(t *testing.T) {
		d := build()
		rec := newRecord("eee", 1000, bench("x", 1), bench("x", 2))
		d.Entries["Other"] = map[types.CommitID]RunRecord{"eee": rec}
		assert.ErrorIs(t, d.Validate(), ErrMalformedRecord)
	})
}

func TestDocument_CloneAndDigest(t *testing.T) {
	d := NewDocument("https://github.com/example/project")
	d.LastUpdate = 1000
	d.Entries["A"] = map[types.CommitID]RunRecord{"aaa": newRecord("aaa", 1000, bench("x", 10))}
	d.Entries["B"] = map[types.CommitID]RunRecord{"aaa": newRecord("aaa", 900, bench("y", 1))}
	d.Branches["main"] = "aaa"

	cp := d.Clone()
	assert.Equal(t, mustDigest(t, d), mustDigest(t, cp), "深拷贝的指纹必须一致")

	// 修改副本
	cp.Branches["main"] = "bbb"
	cp.Entries["A"]["aaa"].Benches[0].Value = 42
	assert.Equal(t, "aaa", string(d.Branches["main"]))
	assert.Equal(t, 10.0, d.Entries["A"]["aaa"].Benches[0].Value)
	assert.NotEqual(t, mustDigest(t, d), mustDigest(t, cp))

	assert.Equal(t, []types.SuiteName{"A", "B"}, d.Suites())
	assert.Equal(t, 2, d.RunCount())
	assert.True(t, d.HasCommit("aaa"))
	assert.False(t, d.HasCommit("bbb"))
}
