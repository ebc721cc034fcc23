package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"benchvault/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// 规范化 (Canonical) CBOR 编码选项
// 相同的记录必须生成唯一的指纹，与 Go map 的遍历顺序无关
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序
	Sort: cbor.SortCanonical,

	// 2. 浮点数固定使用 64 位表示，避免 1.0 与 1 编码不同
	ShortestFloat: cbor.ShortestFloatNone,

	// 3. NaN / Inf 原样编码 (JSON 里本来也不会出现)
	NaNConvert: cbor.NaNConvertNone,
	InfConvert: cbor.InfConvertNone,

	// 4. 禁止不定长编码
	IndefLength: cbor.IndefLengthForbidden,

	// 5. nil 切片与空切片视为同一个值 (JSON 往返后 [] 与 null 不应产生不同指纹)
	NilContainers: cbor.NilContainerAsEmpty,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

// CalculateDigest 计算任意值的规范化 CBOR 编码及其 SHA-256 指纹
func CalculateDigest(v any) (types.Digest, []byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal object: %w", err)
	}

	sum := sha256.Sum256(data)
	return types.Digest(hex.EncodeToString(sum[:])), data, nil
}
