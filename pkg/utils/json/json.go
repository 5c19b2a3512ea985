// Package json 是项目统一的 JSON 编解码入口。
// amd64/arm64 架构走 sonic，其余架构退回标准库 encoding/json。
package json

import (
	stdjson "encoding/json"
	"io"
	"runtime"

	"github.com/bytedance/sonic"
)

var (
	// Marshal 将 v 编码为 JSON 字节。
	Marshal func(v interface{}) ([]byte, error)

	// Unmarshal 将 JSON 字节解码到 v。
	Unmarshal func(data []byte, v interface{}) error

	// NewEncoder 创建面向 w 的 JSON 编码器。
	NewEncoder func(w io.Writer) Encoder

	// NewDecoder 创建面向 r 的 JSON 解码器。
	NewDecoder func(r io.Reader) Decoder
)

// Encoder JSON 编码器接口。
type Encoder interface {
	Encode(v interface{}) error
}

// Decoder JSON 解码器接口。
type Decoder interface {
	Decode(v interface{}) error
}

func init() {
	// sonic 只支持 amd64 和 arm64
	if runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64" {
		Marshal = sonic.Marshal
		Unmarshal = sonic.Unmarshal
		NewEncoder = func(w io.Writer) Encoder {
			return sonic.ConfigDefault.NewEncoder(w)
		}
		NewDecoder = func(r io.Reader) Decoder {
			return sonic.ConfigDefault.NewDecoder(r)
		}
	} else {
		Marshal = stdjson.Marshal
		Unmarshal = stdjson.Unmarshal
		NewEncoder = func(w io.Writer) Encoder {
			return stdjson.NewEncoder(w)
		}
		NewDecoder = func(r io.Reader) Decoder {
			return stdjson.NewDecoder(r)
		}
	}
}
