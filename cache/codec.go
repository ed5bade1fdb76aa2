package cache

import (
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/ceyewan/seckill/cache/serializer"
	"github.com/ceyewan/seckill/xerrors"
)

// NullMarker 缓存穿透防护的空值标记
const NullMarker = "_NULL_"

// Hash envelope 字段
const (
	fieldData       = "data"
	fieldExpireTime = "expireTime"
)

// expireLayout envelope 中 expireTime 的格式
const expireLayout = time.DateTime

type entryState int

const (
	entryMiss entryState = iota
	entryNull
	entryValue
)

// entry 解析后的条目
type entry struct {
	state entryState
	data  []byte
	codec serializer.Serializer

	// expireAt 逻辑过期时间，零值表示没有 envelope
	expireAt time.Time

	// legacy 逻辑过期策略下读到的旧格式条目，需要迁移
	legacy bool
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// stringEnvelope String 编码的逻辑过期 envelope，始终为 JSON
type stringEnvelope struct {
	Data       json.RawMessage `json:"data"`
	ExpireTime string          `json:"expireTime"`
}

type codec struct {
	values serializer.Serializer
	loc    *time.Location
}

func (c codec) formatExpire(t time.Time) string {
	return t.In(c.loc).Format(expireLayout)
}

func (c codec) parseExpire(s string) (time.Time, error) {
	return time.ParseInLocation(expireLayout, s, c.loc)
}

// parse 将原始条目解析为 entry，logical 表示按逻辑过期 envelope 解读
func (c codec) parse(raw Raw, logical bool) (entry, error) {
	switch raw.Type {
	case typeString:
		return c.parseString(raw.String, logical)
	case typeHash:
		return c.parseHash(raw.Fields, logical)
	default:
		return entry{state: entryMiss}, nil
	}
}

func (c codec) parseString(b []byte, logical bool) (entry, error) {
	if string(b) == NullMarker {
		return entry{state: entryNull}, nil
	}
	if !logical {
		return entry{state: entryValue, data: b, codec: c.values}, nil
	}

	var env stringEnvelope
	if err := json.Unmarshal(b, &env); err == nil && env.ExpireTime != "" && len(env.Data) > 0 {
		at, err := c.parseExpire(env.ExpireTime)
		if err != nil {
			return entry{}, xerrors.Wrapf(ErrDecode, "expireTime %q", env.ExpireTime)
		}
		return entry{state: entryValue, data: env.Data, codec: serializer.JSONSerializer{}, expireAt: at}, nil
	}
	return entry{state: entryValue, data: b, codec: c.values, legacy: true}, nil
}

func (c codec) parseHash(fields map[string]string, logical bool) (entry, error) {
	if _, ok := fields[NullMarker]; ok {
		return entry{state: entryNull}, nil
	}
	if logical {
		data, hasData := fields[fieldData]
		expire, hasExpire := fields[fieldExpireTime]
		if hasData && hasExpire {
			at, err := c.parseExpire(expire)
			if err != nil {
				return entry{}, xerrors.Wrapf(ErrDecode, "expireTime %q", expire)
			}
			return entry{state: entryValue, data: []byte(data), codec: c.values, expireAt: at}, nil
		}
	}
	return entry{
		state:  entryValue,
		data:   unflatten(fields),
		codec:  serializer.JSONSerializer{},
		legacy: logical,
	}, nil
}

// encoded 一次写入的内容，String 或 Hash 二选一
type encoded struct {
	str    []byte
	fields map[string]string
	ent    entry
}

func (c codec) encodePlain(value any, enc Encoding) (encoded, error) {
	if enc == EncodingHash {
		fields, data, err := flatten(value)
		if err != nil {
			return encoded{}, err
		}
		return encoded{fields: fields, ent: entry{state: entryValue, data: data, codec: serializer.JSONSerializer{}}}, nil
	}
	b, err := c.values.Marshal(value)
	if err != nil {
		return encoded{}, xerrors.Wrap(err, "cache: marshal")
	}
	return encoded{str: b, ent: entry{state: entryValue, data: b, codec: c.values}}, nil
}

func (c codec) encodeLogical(value any, expireAt time.Time, enc Encoding) (encoded, error) {
	// 写入的 expireTime 精度为秒，返回的 entry 与读回的保持一致
	stamp := c.formatExpire(expireAt)
	expireAt, _ = c.parseExpire(stamp)

	if enc == EncodingHash {
		b, err := c.values.Marshal(value)
		if err != nil {
			return encoded{}, xerrors.Wrap(err, "cache: marshal")
		}
		return encoded{
			fields: map[string]string{fieldData: string(b), fieldExpireTime: stamp},
			ent:    entry{state: entryValue, data: b, codec: c.values, expireAt: expireAt},
		}, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return encoded{}, xerrors.Wrap(err, "cache: marshal")
	}
	b, err := json.Marshal(stringEnvelope{Data: data, ExpireTime: stamp})
	if err != nil {
		return encoded{}, xerrors.Wrap(err, "cache: marshal envelope")
	}
	return encoded{str: b, ent: entry{state: entryValue, data: data, codec: serializer.JSONSerializer{}, expireAt: expireAt}}, nil
}

func encodeNull(enc Encoding) encoded {
	if enc == EncodingHash {
		return encoded{fields: map[string]string{NullMarker: "1"}, ent: entry{state: entryNull}}
	}
	return encoded{str: []byte(NullMarker), ent: entry{state: entryNull}}
}

// flatten 将对象展开为 Hash 字段，每个字段值为其 JSON 文本
func flatten(value any) (map[string]string, []byte, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, nil, xerrors.Wrap(err, "cache: marshal")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil || obj == nil {
		return nil, nil, ErrNotObject
	}
	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		fields[k] = string(v)
	}
	return fields, b, nil
}

// unflatten 将 Hash 字段还原为 JSON 对象
// 不是合法 JSON 的字段值按普通字符串处理，兼容直接写入的明文字段
func unflatten(fields map[string]string) []byte {
	obj := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		if json.Valid([]byte(v)) {
			obj[k] = json.RawMessage(v)
			continue
		}
		quoted, _ := json.Marshal(v)
		obj[k] = quoted
	}
	b, _ := json.Marshal(obj)
	return b
}

// decodeInto 解码 entry 到 dst
func decodeInto(ent entry, dst any) error {
	if ent.codec == nil {
		return xerrors.Wrap(ErrDecode, "no codec")
	}
	if err := ent.codec.Unmarshal(ent.data, dst); err != nil {
		return xerrors.Wrapf(ErrDecode, "%s: %v", ent.codec.Name(), err)
	}
	return nil
}

// jitter 返回 base + rand[0, base/2)
func jitter(base time.Duration) time.Duration {
	if base <= 1 {
		return base
	}
	return base + rand.N(base/2)
}

