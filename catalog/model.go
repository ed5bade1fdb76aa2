package catalog

import "time"

// Voucher 优惠券基础信息
type Voucher struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ShopID      int64     `gorm:"index" json:"shopId"`
	Title       string    `gorm:"size:255" json:"title"`
	SubTitle    string    `gorm:"size:255" json:"subTitle"`
	Rules       string    `gorm:"size:1024" json:"rules"`
	PayValue    int64     `json:"payValue"`    // 支付金额，单位分
	ActualValue int64     `json:"actualValue"` // 抵扣金额，单位分
	Type        int       `json:"type"`        // 0 普通券，1 秒杀券
	Status      int       `gorm:"default:1" json:"status"`
	CreateTime  time.Time `gorm:"autoCreateTime" json:"createTime"`
	UpdateTime  time.Time `gorm:"autoUpdateTime" json:"updateTime"`
}

func (Voucher) TableName() string { return "tb_voucher" }

// VoucherTypeSeckill 秒杀券
const VoucherTypeSeckill = 1

// SeckillVoucher 秒杀券的库存与有效期，与 Voucher 一对一
type SeckillVoucher struct {
	VoucherID  int64     `gorm:"primaryKey;autoIncrement:false" json:"voucherId"`
	Stock      int       `json:"stock"`
	BeginTime  time.Time `json:"beginTime"`
	EndTime    time.Time `json:"endTime"`
	CreateTime time.Time `gorm:"autoCreateTime" json:"createTime"`
	UpdateTime time.Time `gorm:"autoUpdateTime" json:"updateTime"`
}

func (SeckillVoucher) TableName() string { return "tb_seckill_voucher" }

// Started 判断 now 是否已到开始时间
func (v *SeckillVoucher) Started(now time.Time) bool {
	return !now.Before(v.BeginTime)
}

// Ended 判断 now 是否已过结束时间
func (v *SeckillVoucher) Ended(now time.Time) bool {
	return now.After(v.EndTime)
}

// 订单状态
const (
	OrderStatusUnpaid = 1
	OrderStatusPaid   = 2
)

// VoucherOrder 优惠券订单，同一用户同一张券只能有一单
type VoucherOrder struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserID     int64     `gorm:"uniqueIndex:uk_user_voucher" json:"userId"`
	VoucherID  int64     `gorm:"uniqueIndex:uk_user_voucher" json:"voucherId"`
	PayType    int       `gorm:"default:1" json:"payType"`
	Status     int       `gorm:"default:1" json:"status"`
	CreateTime time.Time `json:"createTime"`
	UpdateTime time.Time `gorm:"autoUpdateTime" json:"updateTime"`
}

func (VoucherOrder) TableName() string { return "tb_voucher_order" }

// Shop 店铺
type Shop struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string    `gorm:"size:128" json:"name"`
	TypeID     int64     `json:"typeId"`
	Images     string    `gorm:"size:1024" json:"images"`
	Area       string    `gorm:"size:128" json:"area"`
	Address    string    `gorm:"size:255" json:"address"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	AvgPrice   int64     `json:"avgPrice"`
	Sold       int       `json:"sold"`
	Comments   int       `json:"comments"`
	Score      int       `json:"score"`
	OpenHours  string    `gorm:"size:32" json:"openHours"`
	CreateTime time.Time `gorm:"autoCreateTime" json:"createTime"`
	UpdateTime time.Time `gorm:"autoUpdateTime" json:"updateTime"`
}

func (Shop) TableName() string { return "tb_shop" }

// User 用户，只用于布隆过滤器的启动填充
type User struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Phone    string `gorm:"size:11;uniqueIndex" json:"phone"`
	NickName string `gorm:"size:32" json:"nickName"`
	Icon     string `gorm:"size:255" json:"icon"`
}

func (User) TableName() string { return "tb_user" }

// Models 返回全部模型，用于 AutoMigrate
func Models() []any {
	return []any{&Voucher{}, &SeckillVoucher{}, &VoucherOrder{}, &Shop{}, &User{}}
}
