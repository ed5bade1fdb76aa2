package config

import "github.com/ceyewan/seckill/xerrors"

var (
	// ErrNameEmpty 配置文件名为空
	ErrNameEmpty = xerrors.New("config: name is empty")

	// ErrValidationFailed 配置校验失败
	ErrValidationFailed = xerrors.New("config: validation failed")

	// ErrNotLoaded 尚未调用 Load
	ErrNotLoaded = xerrors.New("config: not loaded")
)
