package source

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
)

// DeletedBySystem is the del_state marker the POS writes when it voids an
// order on its own.
const DeletedBySystem = "系统删除"

// PaidState is the pay_state of a settled order.
const PaidState = 2

// Range bounds a read on recordTime. Zero values are unbounded; To is
// exclusive.
type Range struct {
	From time.Time
	To   time.Time
}

// IsZero reports whether the range is unbounded on both ends.
func (r Range) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// Reader streams rows out of one source database.
type Reader struct {
	db     *gorm.DB
	system System
}

// NewReader returns a Reader bound to db.
func NewReader(db *gorm.DB, system System) *Reader {
	return &Reader{db: db, system: system}
}

// System returns the source this reader is bound to.
func (r *Reader) System() System {
	return r.system
}

// HasTable reports whether the source carries the given table.
func (r *Reader) HasTable(name string) bool {
	return r.db.Migrator().HasTable(name)
}

// HasColumn reports whether table carries column.
func (r *Reader) HasColumn(table, column string) bool {
	return r.db.Migrator().HasColumn(table, column)
}

// CheckContract verifies the required tables and columns of this source.
func (r *Reader) CheckContract(ctx context.Context) error {
	return CheckContract(r.system, r.db.WithContext(ctx).Migrator())
}

// stream runs q and hands each row to fn without materializing the result.
func stream[T any](ctx context.Context, q *gorm.DB, fn func(*T) error) error {
	q = q.WithContext(ctx)
	rows, err := q.Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var v T
		if err := q.ScanRows(rows, &v); err != nil {
			return err
		}
		if err := fn(&v); err != nil {
			return err
		}
	}
	return rows.Err()
}

// nullFlags counts rows whose delflag was NULL and logs the total once.
type nullFlags struct {
	system System
	table  string
	n      int
}

func (c *nullFlags) see(delflag *int) {
	if delflag == nil {
		c.n++
	}
}

func (c *nullFlags) report() {
	if c.n > 0 {
		logging.Warn().
			Str("source", string(c.system)).
			Str("table", c.table).
			Int("rows", c.n).
			Msg("NULL delflag treated as 0")
	}
}

func notDeleted(q *gorm.DB) *gorm.DB {
	return q.Where("delflag = 0 OR delflag IS NULL")
}

func (r *Reader) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := etlerr.KindOf(err)
	if kind == etlerr.Unknown {
		kind = etlerr.Connection
		if db.Classify(err) != db.Permanent {
			kind = etlerr.Transient
		}
	}
	return etlerr.New(kind, fmt.Sprintf("%s.%s", r.system, op), err)
}

// Shops streams the non-deleted stores.
func (r *Reader) Shops(ctx context.Context, fn func(*Shop) error) error {
	flags := &nullFlags{system: r.system, table: Shop{}.TableName()}
	err := stream(ctx, notDeleted(r.db.Model(&Shop{})).Order("Id"), func(s *Shop) error {
		flags.see(s.DelFlag)
		return fn(s)
	})
	flags.report()
	return r.wrap("shops", err)
}

// Directors returns the director names and phones of every store,
// deleted ones included.
func (r *Reader) Directors(ctx context.Context) (names, phones map[string]struct{}, err error) {
	names = make(map[string]struct{})
	phones = make(map[string]struct{})
	err = stream(ctx, r.db.Model(&Shop{}).Select("Id", "Director", "DirectorPhone"), func(s *Shop) error {
		if v := Str(s.Director); v != "" {
			names[v] = struct{}{}
		}
		if v := Str(s.DirectorPhone); v != "" {
			phones[v] = struct{}{}
		}
		return nil
	})
	return names, phones, r.wrap("directors", err)
}

// Categories streams the non-deleted product categories.
func (r *Reader) Categories(ctx context.Context, fn func(*Category) error) error {
	flags := &nullFlags{system: r.system, table: Category{}.TableName()}
	err := stream(ctx, notDeleted(r.db.Model(&Category{})).Order("Id"), func(c *Category) error {
		flags.see(c.DelFlag)
		return fn(c)
	})
	flags.report()
	return r.wrap("categories", err)
}

// Goods streams the non-deleted products.
func (r *Reader) Goods(ctx context.Context, fn func(*Goods) error) error {
	flags := &nullFlags{system: r.system, table: Goods{}.TableName()}
	err := stream(ctx, notDeleted(r.db.Model(&Goods{})).Order("Id"), func(g *Goods) error {
		flags.see(g.DelFlag)
		return fn(g)
	})
	flags.report()
	return r.wrap("goods", err)
}

// Customers streams the non-deleted members of table, which is either
// XcxUser or the archived copy.
func (r *Reader) Customers(ctx context.Context, table string, fn func(*XcxUser) error) error {
	flags := &nullFlags{system: r.system, table: table}
	err := stream(ctx, notDeleted(r.db.Table(table)).Order("Id"), func(u *XcxUser) error {
		flags.see(u.DelFlag)
		return fn(u)
	})
	flags.report()
	return r.wrap("customers", err)
}

// SeekShops streams the non-deleted prospective sites.
func (r *Reader) SeekShops(ctx context.Context, fn func(*SeekShop) error) error {
	flags := &nullFlags{system: r.system, table: SeekShop{}.TableName()}
	err := stream(ctx, notDeleted(r.db.Model(&SeekShop{})).Order("Id"), func(s *SeekShop) error {
		flags.see(s.DelFlag)
		return fn(s)
	})
	flags.report()
	return r.wrap("seek_shops", err)
}

func paidOrders(q *gorm.DB, rng Range) *gorm.DB {
	q = notDeleted(q).
		Where("payState = ?", PaidState).
		Where("delState IS NULL OR delState <> ?", DeletedBySystem)
	if !rng.From.IsZero() {
		q = q.Where("recordTime >= ?", rng.From)
	}
	if !rng.To.IsZero() {
		q = q.Where("recordTime < ?", rng.To)
	}
	return q
}

// PaidOrders streams the non-deleted, paid orders inside rng. The
// plausibility band is applied by the caller so it can count exclusions.
func (r *Reader) PaidOrders(ctx context.Context, rng Range, fn func(*Order) error) error {
	flags := &nullFlags{system: r.system, table: Order{}.TableName()}
	err := stream(ctx, paidOrders(r.db.Model(&Order{}), rng).Order("Id"), func(o *Order) error {
		flags.see(o.DelFlag)
		return fn(o)
	})
	flags.report()
	return r.wrap("orders", err)
}

// OrderCustomers streams the customer columns of paid orders that carry
// an openId. Only Id, openId, vipTel, shopId and recordTime are read.
func (r *Reader) OrderCustomers(ctx context.Context, fn func(*Order) error) error {
	q := paidOrders(r.db.Model(&Order{}), Range{}).
		Select("Id", "openId", "vipTel", "shopId", "recordTime").
		Where("openId IS NOT NULL AND openId <> ''")
	return r.wrap("order_customers", stream(ctx, q, fn))
}

// ItemColumns lists the OrderGoods columns read by OrderItems. The profit
// column is optional in the sources.
var ItemColumns = []string{"Id", "orderId", "goodsId", "goodsName", "goodsNumber", "goodsPrice", "goodsTotal", "delflag"}

// HasItemProfit reports whether OrderGoods carries profitPrice.
func (r *Reader) HasItemProfit() bool {
	return r.HasColumn(OrderGoods{}.TableName(), "profitPrice")
}

// OrderItems streams the non-deleted items of paid orders inside rng.
// Whether the item belongs to a loaded order is decided by the caller.
func (r *Reader) OrderItems(ctx context.Context, rng Range, withProfit bool, fn func(*OrderGoods) error) error {
	cols := ItemColumns
	if withProfit {
		cols = append(append([]string{}, ItemColumns...), "profitPrice")
	}
	q := notDeleted(r.db.Model(&OrderGoods{})).Select(cols)
	if !rng.IsZero() {
		sub := paidOrders(r.db.Model(&Order{}), rng).Select("Id")
		q = q.Where("orderId IN (?)", sub)
	}
	flags := &nullFlags{system: r.system, table: OrderGoods{}.TableName()}
	err := stream(ctx, q.Order("Id"), func(it *OrderGoods) error {
		flags.see(it.DelFlag)
		return fn(it)
	})
	flags.report()
	return r.wrap("order_items", err)
}
