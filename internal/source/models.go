//-------------------------------------------------------------------------
//
// HotDog 2030 Warehouse Sync
//
// Copyright (c) 2026, HotDog 2030 contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package source reads the point-of-sale and mini-program transactional
// databases. Access is read-only; the structs below are the binding
// contract with the source schemas and extra source columns are ignored.
package source

import (
	"time"

	"github.com/shopspring/decimal"
)

// System identifies a source database.
type System string

const (
	POS  System = "pos"
	Mini System = "mini"
)

// Shop is a store row in the POS database.
type Shop struct {
	ID            int64               `gorm:"column:Id;primaryKey"`
	ShopName      string              `gorm:"column:ShopName"`
	ShopAddress   *string             `gorm:"column:ShopAddress"`
	Director      *string             `gorm:"column:Director"`
	DirectorPhone *string             `gorm:"column:DirectorPhone"`
	Province      *string             `gorm:"column:province"`
	City          *string             `gorm:"column:city"`
	District      *string             `gorm:"column:district"`
	Location      *string             `gorm:"column:location"`
	State         *int                `gorm:"column:state"`
	IsSelf        *int                `gorm:"column:isSelf"`
	OpenTime      *string             `gorm:"column:openTime"`
	CloseTime     *string             `gorm:"column:closeTime"`
	RentAmount    decimal.NullDecimal `gorm:"column:rentAmount;type:decimal(12,2)"`
	PassengerFlow *int                `gorm:"column:passengerFlow"`
	MeituanID     *string             `gorm:"column:meituanId"`
	ElemeID       *string             `gorm:"column:elemeId"`
	DianpingID    *string             `gorm:"column:dianpingId"`
	DouyinID      *string             `gorm:"column:douyinId"`
	DelFlag       *int                `gorm:"column:delflag"`
	RecordTime    time.Time           `gorm:"column:recordTime"`
}

func (Shop) TableName() string { return "Shop" }

// Goods is a product row in the POS database.
type Goods struct {
	ID          int64               `gorm:"column:Id;primaryKey"`
	GoodsName   string              `gorm:"column:goodsName"`
	CategoryID  *int64              `gorm:"column:categoryId"`
	MarketPrice decimal.NullDecimal `gorm:"column:marketPrice;type:decimal(12,2)"`
	SalePrice   decimal.NullDecimal `gorm:"column:salePrice;type:decimal(12,2)"`
	CostPrice   decimal.NullDecimal `gorm:"column:costPrice;type:decimal(12,2)"`
	GoodsStock  *int                `gorm:"column:goodsStock"`
	IsSale      *int                `gorm:"column:isSale"`
	IsHot       *int                `gorm:"column:isHot"`
	IsRecom     *int                `gorm:"column:isRecom"`
	IsPackage   *int                `gorm:"column:isPackage"`
	IsXcx       *int                `gorm:"column:isXcx"`
	ShopID      int64               `gorm:"column:shopId"`
	DelFlag     *int                `gorm:"column:delflag"`
	RecordTime  time.Time           `gorm:"column:recordTime"`
}

func (Goods) TableName() string { return "goods" }

// Category is a product category row in the POS database.
type Category struct {
	ID       int64  `gorm:"column:Id;primaryKey"`
	CatName  string `gorm:"column:catName"`
	ParentID *int64 `gorm:"column:parentId"`
	DelFlag  *int   `gorm:"column:delflag"`
}

func (Category) TableName() string { return "Category" }

// XcxUser is a WeChat member row. Both sources carry the table; the POS
// database may also keep an archived copy under ArchivedCustomerTable.
type XcxUser struct {
	ID         int64     `gorm:"column:Id;primaryKey"`
	OpenID     *string   `gorm:"column:openId"`
	NickName   *string   `gorm:"column:nickName"`
	RealName   *string   `gorm:"column:realName"`
	Tel        *string   `gorm:"column:tel"`
	ShopID     *int64    `gorm:"column:shopId"`
	DelFlag    *int      `gorm:"column:delflag"`
	RecordTime time.Time `gorm:"column:recordTime"`
}

func (XcxUser) TableName() string { return "XcxUser" }

// ArchivedCustomerTable is the optional archive of XcxUser in the POS
// database.
const ArchivedCustomerTable = "XcxUser_bak"

// Order is an order header row. Every money column is nullable in the
// sources.
type Order struct {
	ID                int64               `gorm:"column:Id;primaryKey"`
	OrderNo           *string             `gorm:"column:orderNo"`
	OpenID            *string             `gorm:"column:openId"`
	VipTel            *string             `gorm:"column:vipTel"`
	ShopID            int64               `gorm:"column:shopId"`
	PayState          *int                `gorm:"column:payState"`
	PayMode           *string             `gorm:"column:payMode"`
	DelFlag           *int                `gorm:"column:delflag"`
	DelState          *string             `gorm:"column:delState"`
	OrderValue        decimal.NullDecimal `gorm:"column:orderValue;type:decimal(12,2)"`
	Cash              decimal.NullDecimal `gorm:"column:cash;type:decimal(12,2)"`
	VipAmount         decimal.NullDecimal `gorm:"column:vipAmount;type:decimal(12,2)"`
	VipAmountZengSong decimal.NullDecimal `gorm:"column:vipAmountZengSong;type:decimal(12,2)"`
	CardAmount        decimal.NullDecimal `gorm:"column:cardAmount;type:decimal(12,2)"`
	CardZengSong      decimal.NullDecimal `gorm:"column:cardZengSong;type:decimal(12,2)"`
	CouponAmount      decimal.NullDecimal `gorm:"column:couponAmount;type:decimal(12,2)"`
	DiscountAmount    decimal.NullDecimal `gorm:"column:discountAmount;type:decimal(12,2)"`
	RollsRealIncome   decimal.NullDecimal `gorm:"column:rollsRealIncome;type:decimal(12,2)"`
	RefundMoney       decimal.NullDecimal `gorm:"column:refundMoney;type:decimal(12,2)"`
	Total             decimal.NullDecimal `gorm:"column:total;type:decimal(12,2)"`
	RecordTime        time.Time           `gorm:"column:recordTime"`
}

func (Order) TableName() string { return "Orders" }

// OrderGoods is an order line row.
type OrderGoods struct {
	ID          int64               `gorm:"column:Id;primaryKey"`
	OrderID     int64               `gorm:"column:orderId"`
	GoodsID     *int64              `gorm:"column:goodsId"`
	GoodsName   *string             `gorm:"column:goodsName"`
	GoodsNumber decimal.NullDecimal `gorm:"column:goodsNumber;type:decimal(12,2)"`
	GoodsPrice  decimal.NullDecimal `gorm:"column:goodsPrice;type:decimal(12,2)"`
	GoodsTotal  decimal.NullDecimal `gorm:"column:goodsTotal;type:decimal(12,2)"`
	ProfitPrice decimal.NullDecimal `gorm:"column:profitPrice;type:decimal(12,2)"`
	DelFlag     *int                `gorm:"column:delflag"`
}

func (OrderGoods) TableName() string { return "OrderGoods" }

// SeekShop is a prospective site submitted through the site-scouting
// programme (Rg_SeekShop).
type SeekShop struct {
	ID            int64               `gorm:"column:Id;primaryKey"`
	ShopName      string              `gorm:"column:ShopName"`
	ShopAddress   *string             `gorm:"column:ShopAddress"`
	Location      *string             `gorm:"column:location"`
	ApprovalState *int                `gorm:"column:approvalState"`
	Amount        decimal.NullDecimal `gorm:"column:amount;type:decimal(12,2)"`
	DelFlag       *int                `gorm:"column:delflag"`
	RecordTime    time.Time           `gorm:"column:recordTime"`
}

func (SeekShop) TableName() string { return "Rg_SeekShop" }

// Approval states of a SeekShop.
const (
	ApprovalUnreviewed = 0
	ApprovalApproved   = 1
	ApprovalRejected   = 2
)

// Deleted reports whether a delflag marks the row as soft-deleted.
// NULL counts as not deleted.
func Deleted(delflag *int) bool {
	return delflag != nil && *delflag != 0
}

// Str dereferences an optional string column.
func Str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Dec returns the decimal value of a nullable column, zero when NULL.
func Dec(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}
