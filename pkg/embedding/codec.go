package embedding

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeVector 把向量编码为小端 float32 字节序列，用于缓存与本地向量库存储。
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector 是 EncodeVector 的逆操作，长度不是 4 的倍数时返回错误。
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("encoded vector has invalid length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
