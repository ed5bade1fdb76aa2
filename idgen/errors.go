package idgen

import "github.com/ceyewan/seckill/xerrors"

var (
	// ErrConnectorNil 连接器为空
	ErrConnectorNil = xerrors.New("idgen: connector is nil")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = xerrors.New("idgen: invalid config")

	// ErrInvalidSequence 业务序列名为空
	ErrInvalidSequence = xerrors.New("idgen: sequence is empty")

	// ErrSequenceOverflow 当日序号超出 32 位
	ErrSequenceOverflow = xerrors.New("idgen: daily sequence overflow")

	// ErrClockBeforeEpoch 当前时间早于起始时间
	ErrClockBeforeEpoch = xerrors.New("idgen: clock is before epoch")
)
