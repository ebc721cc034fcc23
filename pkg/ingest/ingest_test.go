package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"benchvault/pkg/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestdata(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestParseGoBench(t *testing.T) {
	benches, err := ParseGoBench(openTestdata(t, "go.txt"))
	require.NoError(t, err)

	names := make([]string, len(benches))
	for i, b := range benches {
		names[i] = b.Name
	}
	assert.Equal(t, []string{
		"BenchmarkEncode",
		"BenchmarkEncode - B/op",
		"BenchmarkEncode - allocs/op",
		"BenchmarkDecode/small",
		"BenchmarkDecode/small - MB/s",
	}, names)

	// -count=2：取平均，range 为最大偏差百分比
	enc := benches[0]
	assert.Equal(t, 1100.0, enc.Value)
	assert.Equal(t, "ns/op", enc.Unit)
	assert.Equal(t, "± 9.09%", enc.Range.Raw())
	assert.False(t, enc.Range.IsNumeric())

	assert.Equal(t, 256.0, benches[1].Value)
	assert.Equal(t, "B/op", benches[1].Unit)
	assert.Equal(t, "± 0.00%", benches[1].Range.Raw())

	// 只跑了一次：range 为数字 0
	dec := benches[3]
	assert.Equal(t, 250.5, dec.Value)
	assert.True(t, dec.Range.IsNumeric())
	assert.Equal(t, "0", dec.Range.Raw())
	assert.Equal(t, 10.0, benches[4].Value)
}

func TestParseGoBench_NoLines(t *testing.T) {
	_, err := ParseGoBench(strings.NewReader("PASS\nok  \tpkg\t0.1s\n"))
	assert.ErrorIs(t, err, core.ErrMalformedRecord)
}

func TestParseCargo(t *testing.T) {
	benches, err := ParseCargo(openTestdata(t, "cargo.txt"))
	require.NoError(t, err)
	require.Len(t, benches, 2)

	assert.Equal(t, "tests::bench_fib", benches[0].Name)
	assert.Equal(t, 1234.0, benches[0].Value)
	assert.Equal(t, "ns/iter", benches[0].Unit)
	assert.Equal(t, "± 81,246", benches[0].Range.Raw())

	v, err := benches[0].Range.Float()
	require.NoError(t, err)
	assert.Equal(t, 81246.0, v)

	assert.Equal(t, 56.0, benches[1].Value)
}

func TestParseCustom(t *testing.T) {
	benches, err := ParseCustom(openTestdata(t, "custom.json"))
	require.NoError(t, err)
	require.Len(t, benches, 3)

	assert.Equal(t, core.Bench{Name: "rewrites", Value: 1024, Unit: "rwts", Range: core.NumericRange(0)}, benches[0])
	assert.Equal(t, core.NumericRange(0.25), benches[1].Range)
	assert.Equal(t, core.TextRange("± 3%"), benches[2].Range)
}

func TestParseCustom_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Not json", `rewrites: 10`},
		{"Object instead of array", `{"name": "x", "value": 1}`},
		{"Missing name", `[{"value": 1, "unit": "x"}]`},
		{"Missing value", `[{"name": "x", "unit": "x"}]`},
		{"Bad range", `[{"name": "x", "value": 1, "range": [1]}]`},
	}

	// range 为 null 与缺省相同
	benches, err := ParseCustom(strings.NewReader(`[{"name": "x", "value": 1, "unit": "x", "range": null}]`))
	require.NoError(t, err)
	assert.Equal(t, core.NumericRange(0), benches[0].Range)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCustom(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, core.ErrMalformedRecord)
		})
	}
}

func TestParse_Dispatch(t *testing.T) {
	_, err := Parse("go", openTestdata(t, "go.txt"))
	assert.NoError(t, err)

	_, err = Parse(ToolCustomBiggerIsBetter, openTestdata(t, "custom.json"))
	assert.NoError(t, err)

	_, err = Parse("pytest", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrUnknownTool)
}
