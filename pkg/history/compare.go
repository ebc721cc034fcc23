package history

import (
	"fmt"

	"benchvault/pkg/core"
	"benchvault/pkg/types"
)

// Comparison 是同名指标在两次运行之间的变化
type Comparison struct {
	Name  string
	Unit  string
	Base  core.Bench
	Head  core.Bench
	Delta float64 // 百分比变化，正数表示数值变大
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s: %+.2f%% %s", c.Name, c.Delta, c.Unit)
}

// Compare 比较两条记录，只返回两边都有的指标，顺序与 head 中一致
func Compare(base, head core.RunRecord) []Comparison {
	prev := make(map[string]core.Bench, len(base.Benches))
	for _, b := range base.Benches {
		prev[b.Name] = b
	}

	var out []Comparison
	for _, h := range head.Benches {
		b, ok := prev[h.Name]
		if !ok {
			continue
		}
		c := Comparison{Name: h.Name, Unit: h.Unit, Base: b, Head: h}
		if b.Value != 0 {
			c.Delta = (h.Value - b.Value) / b.Value * 100
		}
		out = append(out, c)
	}
	return out
}

// Compare 比较同一 Suite 中两个 commit 的结果
func (s *Store) Compare(suite types.SuiteName, base, head types.CommitID) ([]Comparison, error) {
	b, err := s.Get(suite, base)
	if err != nil {
		return nil, err
	}
	h, err := s.Get(suite, head)
	if err != nil {
		return nil, err
	}
	return Compare(b, h), nil
}
