package app

import "github.com/spf13/pflag"

// CliOptions 命令行选项。任何实现该接口的选项结构都可以交给 App。
type CliOptions interface {
	// AddFlags 注册命令行参数。
	AddFlags(fs *pflag.FlagSet)
	// Complete 填充默认值。
	Complete() error
	// Validate 校验选项。
	Validate() error
}
