package seckill

import (
	"encoding/json"
	"time"

	"github.com/ceyewan/seckill/xerrors"
)

// DefaultTopic 下单意图主题
const DefaultTopic = "seckill.orders"

// OrderIntent 准入成功后发往 broker 的下单意图
type OrderIntent struct {
	OrderID   int64     `json:"orderId"`
	UserID    int64     `json:"userId"`
	VoucherID int64     `json:"voucherId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Marshal 编码为 JSON
func (i OrderIntent) Marshal() ([]byte, error) {
	return json.Marshal(i)
}

// ParseIntent 解码并校验下单意图
func ParseIntent(data []byte) (OrderIntent, error) {
	var i OrderIntent
	if err := json.Unmarshal(data, &i); err != nil {
		return i, xerrors.Wrap(xerrors.ErrInvalidInput, "seckill: decode intent: "+err.Error())
	}
	if i.OrderID <= 0 || i.UserID <= 0 || i.VoucherID <= 0 {
		return i, xerrors.Wrap(xerrors.ErrInvalidInput, "seckill: intent requires order, user and voucher id")
	}
	return i, nil
}
