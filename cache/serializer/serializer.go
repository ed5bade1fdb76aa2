// Package serializer 缓存值的编解码。
package serializer

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/seckill/xerrors"
)

// 支持的序列化器
const (
	JSON    = "json"
	MsgPack = "msgpack"
)

// ErrUnsupportedSerializer 不支持的序列化器类型
var ErrUnsupportedSerializer = xerrors.New("serializer: unsupported type")

// Serializer 定义序列化接口
type Serializer interface {
	Name() string
	Marshal(value any) ([]byte, error)
	Unmarshal(data []byte, dest any) error
}

// JSONSerializer JSON 序列化器
type JSONSerializer struct{}

func (JSONSerializer) Name() string { return JSON }

func (JSONSerializer) Marshal(value any) ([]byte, error) {
	return json.Marshal(value)
}

func (JSONSerializer) Unmarshal(data []byte, dest any) error {
	return json.Unmarshal(data, dest)
}

// MessagePackSerializer MessagePack 序列化器，体积更小，但 redis-cli 里不可读
type MessagePackSerializer struct{}

func (MessagePackSerializer) Name() string { return MsgPack }

func (MessagePackSerializer) Marshal(value any) ([]byte, error) {
	return msgpack.Marshal(value)
}

func (MessagePackSerializer) Unmarshal(data []byte, dest any) error {
	return msgpack.Unmarshal(data, dest)
}

// New 创建序列化器
//
// 支持的序列化器类型:
//   - "json": 默认，envelope 与 Hash 字段始终使用 JSON
//   - "msgpack": 仅用于普通 String 值与 Hash envelope 的 data 字段
func New(name string) (Serializer, error) {
	switch name {
	case JSON, "":
		return JSONSerializer{}, nil
	case MsgPack:
		return MessagePackSerializer{}, nil
	default:
		return nil, xerrors.Wrapf(ErrUnsupportedSerializer, "%q", name)
	}
}
