// Package options 定义配置项的通用接口与工具。
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// Join 用 "." 拼接前缀，非空时补一个尾部 "."。
// 用来构造 "milvus.address" 或 "prefix.milvus.address" 这类标志名。
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" {
		joined += "."
	}
	return joined
}

// IOptions 配置项的通用接口。
type IOptions interface {
	// Validate 校验配置，返回所有错误。
	Validate() []error

	// AddFlags 向 flagset 注册标志，可选前缀。
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}
