// Package ingest 把 CI 工具的原始输出转换成 RunRecord 的 benches
package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"benchvault/pkg/core"
)

// 支持的工具名
const (
	ToolGo                    = "go"
	ToolCargo                 = "cargo"
	ToolCustomSmallerIsBetter = "customSmallerIsBetter"
	ToolCustomBiggerIsBetter  = "customBiggerIsBetter"
)

var ErrUnknownTool = errors.New("unknown tool")

// Tools 返回所有可识别的工具名
func Tools() []string {
	return []string{ToolGo, ToolCargo, ToolCustomSmallerIsBetter, ToolCustomBiggerIsBetter}
}

// Parse 按工具名选择解析器
func Parse(tool string, r io.Reader) ([]core.Bench, error) {
	switch tool {
	case ToolGo:
		return ParseGoBench(r)
	case ToolCargo:
		return ParseCargo(r)
	case ToolCustomSmallerIsBetter, ToolCustomBiggerIsBetter:
		return ParseCustom(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, tool)
	}
}

// -----------------------------------------------------------------------------
// go test -bench
// -----------------------------------------------------------------------------

var (
	// BenchmarkName-8   1000000   1000 ns/op   100 B/op   10 allocs/op
	goBenchLine = regexp.MustCompile(`^(Benchmark\S+?)(?:-\d+)?\s+(\d+)\s+(.+)$`)
	// 指标部分成对出现：<数值> <单位>
	goMetricPair = regexp.MustCompile(`([\d.]+(?:[eE][-+]?\d+)?)\s+(\S+)`)
)

type goSample struct {
	name   string
	unit   string
	values []float64
}

// ParseGoBench 解析标准 go test -bench 输出
//
// 每行的第一个指标 (通常是 ns/op) 作为主 bench；其余指标 (B/op, allocs/op, MB/s)
// 作为额外的 bench，名字为 "<name> - <unit>"。
// 同一个 benchmark 出现多次 (-count=N) 时取平均值，range 记为最大偏差百分比。
func ParseGoBench(r io.Reader) ([]core.Bench, error) {
	var order []string
	samples := make(map[string]*goSample)

	add := func(name, unit string, v float64) {
		s, ok := samples[name]
		if !ok {
			s = &goSample{name: name, unit: unit}
			samples[name] = s
			order = append(order, name)
		}
		s.values = append(s.values, v)
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		m := goBenchLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := m[1]

		// 1. 拆出所有 <数值 单位> 对
		pairs := goMetricPair.FindAllStringSubmatch(m[3], -1)
		for i, p := range pairs {
			v, err := strconv.ParseFloat(p[1], 64)
			if err != nil {
				continue
			}
			if i == 0 {
				add(name, p[2], v)
			} else {
				add(name+" - "+p[2], p[2], v)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read go bench output: %w", err)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: no benchmark lines found", core.ErrMalformedRecord)
	}

	// 2. 汇总
	benches := make([]core.Bench, 0, len(order))
	for _, name := range order {
		s := samples[name]
		benches = append(benches, core.Bench{
			Name:  s.name,
			Value: mean(s.values),
			Unit:  s.unit,
			Range: spread(s.values),
		})
	}
	return benches, nil
}

func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// spread 返回 "± x%" 形式的最大偏差；只有一个样本时为数值 0
func spread(vs []float64) core.Range {
	if len(vs) < 2 {
		return core.NumericRange(0)
	}
	avg := mean(vs)
	if avg == 0 {
		return core.TextRange("± 0%")
	}
	var dev float64
	for _, v := range vs {
		dev = max(dev, math.Abs(v-avg))
	}
	return core.TextRange(fmt.Sprintf("± %s%%", strconv.FormatFloat(dev/avg*100, 'f', 2, 64)))
}

// -----------------------------------------------------------------------------
// cargo bench (libtest)
// -----------------------------------------------------------------------------

// test bench_fib ... bench:      1,234 ns/iter (+/- 81,246)
var cargoLine = regexp.MustCompile(`^test\s+(\S+)\s+\.\.\.\s+bench:\s+([\d,.]+)\s+(\S+)\s+\(\+/-\s+([\d,.]+)\)`)

// ParseCargo 解析 cargo bench 输出，range 保留为 "± <原文>"
func ParseCargo(r io.Reader) ([]core.Bench, error) {
	var benches []core.Bench
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m := cargoLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bench %q: bad value %q", core.ErrMalformedRecord, m[1], m[2])
		}
		benches = append(benches, core.Bench{
			Name:  m[1],
			Value: v,
			Unit:  m[3],
			Range: core.TextRange("± " + m[4]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cargo bench output: %w", err)
	}
	if len(benches) == 0 {
		return nil, fmt.Errorf("%w: no benchmark lines found", core.ErrMalformedRecord)
	}
	return benches, nil
}

// -----------------------------------------------------------------------------
// custom JSON
// -----------------------------------------------------------------------------

type customBench struct {
	Name  string     `json:"name"`
	Value *float64   `json:"value"`
	Unit  string     `json:"unit"`
	Range *core.Range `json:"range"`
}

// ParseCustom 解析 [{name, value, unit, range?}] 形式的 JSON 数组
func ParseCustom(r io.Reader) ([]core.Bench, error) {
	var raw []customBench
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: invalid custom bench json: %v", core.ErrMalformedRecord, err)
	}

	benches := make([]core.Bench, 0, len(raw))
	for i, b := range raw {
		if b.Name == "" {
			return nil, fmt.Errorf("%w: [%d].name is required", core.ErrMalformedRecord, i)
		}
		if b.Value == nil {
			return nil, fmt.Errorf("%w: [%d] %q: value is required", core.ErrMalformedRecord, i, b.Name)
		}
		// 账本里 range 必填，工具没给就记为 0
		rg := core.NumericRange(0)
		if b.Range != nil {
			rg = *b.Range
		}
		benches = append(benches, core.Bench{
			Name:  b.Name,
			Value: *b.Value,
			Unit:  b.Unit,
			Range: rg,
		})
	}
	return benches, nil
}
