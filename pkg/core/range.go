package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrUnparsableRange = errors.New("range carries no number")

// 匹配 "± 81246"、"+/- 1.5%"、"±2.3e+04" 里的数值部分
var rangeNumber = regexp.MustCompile(`\d+(?:\.\d+)?(?:[eE][-+]?\d+)?`)

// Range 是 bench 的误差范围
// 不同工具给出的形式不一致：有的是数字 (12)，有的是格式化字符串 ("± 81246")
// 这里保留原始文本和形式，序列化时原样输出，数值通过 Float() 解析
type Range struct {
	raw     string
	numeric bool
}

// NumericRange 构造数字形式的 Range
func NumericRange(v float64) Range {
	return Range{raw: strconv.FormatFloat(v, 'f', -1, 64), numeric: true}
}

// TextRange 构造字符串形式的 Range
func TextRange(s string) Range {
	return Range{raw: s}
}

func (r Range) Raw() string     { return r.raw }
func (r Range) IsNumeric() bool { return r.numeric }
func (r Range) IsZero() bool    { return r.raw == "" && !r.numeric }

func (r Range) String() string { return r.raw }

// Float 返回误差的绝对值
func (r Range) Float() (float64, error) {
	if r.numeric {
		v, err := strconv.ParseFloat(r.raw, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrUnparsableRange, r.raw)
		}
		if v < 0 {
			v = -v
		}
		return v, nil
	}

	// 千分位逗号 ("± 1,234") 先去掉
	text := strings.ReplaceAll(r.raw, ",", "")
	m := rangeNumber.FindString(text)
	if m == "" {
		return 0, fmt.Errorf("%w: %q", ErrUnparsableRange, r.raw)
	}
	return strconv.ParseFloat(m, 64)
}

// MarshalJSON 按原始形式输出：数字就是数字，字符串就是字符串
func (r Range) MarshalJSON() ([]byte, error) {
	if r.numeric {
		return []byte(r.raw), nil
	}
	return json.Marshal(r.raw)
}

func (r *Range) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		return errors.New("range must be a number or a string, got null")
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = TextRange(s)
		return nil
	default:
		// json.Number 会校验字面量是否是合法数字，同时保留原始写法 ("1.50")
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("range must be a number or a string: %w", err)
		}
		*r = Range{raw: n.String(), numeric: true}
		return nil
	}
}

// rangeCBOR 是 Range 参与指纹计算时的形态
type rangeCBOR struct {
	Raw     string `cbor:"r"`
	Numeric bool   `cbor:"n"`
}

// MarshalCBOR 让两种形式产生不同的指纹 (12 与 "12" 不是同一个值)
func (r Range) MarshalCBOR() ([]byte, error) {
	return em.Marshal(rangeCBOR{Raw: r.raw, Numeric: r.numeric})
}
