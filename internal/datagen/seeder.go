package datagen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/source"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
)

// Options sizes the generated sources.
type Options struct {
	Shops     int
	Goods     int
	Customers int
	Orders    int

	// Days is how far back order times reach.
	Days int

	// Overlap is the number of mini-program order ids that repeat POS
	// order ids.
	Overlap int

	// Seed makes a run reproducible when non-zero.
	Seed uint64

	// Force drops existing source tables instead of refusing to run.
	Force bool

	BatchSize        int
	ProgressInterval int64
}

// DefaultOptions returns a small data set that loads in seconds.
func DefaultOptions() Options {
	return Options{
		Shops:            12,
		Goods:            30,
		Customers:        500,
		Orders:           5000,
		Days:             90,
		Overlap:          20,
		BatchSize:        500,
		ProgressInterval: 10000,
	}
}

var (
	posTables  = []any{&source.Shop{}, &source.Category{}, &source.Goods{}, &source.XcxUser{}, &source.Order{}, &source.OrderGoods{}, &source.SeekShop{}}
	miniTables = []any{&source.XcxUser{}, &source.Order{}, &source.OrderGoods{}}
)

// Seeder writes synthetic rows into the POS and mini-program databases.
type Seeder struct {
	pos   *gorm.DB
	mini  *gorm.DB
	faker *Faker
	opts  Options
	now   time.Time

	shops     []source.Shop
	goods     []source.Goods
	customers []source.XcxUser
}

// NewSeeder creates a Seeder.
func NewSeeder(pos, mini *gorm.DB, opts Options) *Seeder {
	f := NewFaker()
	if opts.Seed != 0 {
		f = NewFakerWithSeed(opts.Seed)
	}
	return &Seeder{pos: pos, mini: mini, faker: f, opts: opts, now: time.Now()}
}

// Seed recreates the source tables and fills them. A source that
// already holds orders is refused unless Force is set.
func (s *Seeder) Seed(ctx context.Context) error {
	for _, target := range []struct {
		db     *gorm.DB
		system source.System
		tables []any
	}{{s.pos, source.POS, posTables}, {s.mini, source.Mini, miniTables}} {
		if err := s.prepare(ctx, target.db, target.system, target.tables); err != nil {
			return err
		}
	}

	s.buildShops()
	s.buildGoods()
	s.buildCustomers()

	pos := s.pos.WithContext(ctx)
	if err := create(pos, s.opts.BatchSize, "Shop", s.shops); err != nil {
		return err
	}
	if err := create(pos, s.opts.BatchSize, "Category", s.categories()); err != nil {
		return err
	}
	if err := create(pos, s.opts.BatchSize, "goods", s.goods); err != nil {
		return err
	}
	if err := create(pos, s.opts.BatchSize, "Rg_SeekShop", s.seekShops()); err != nil {
		return err
	}

	half := len(s.customers) / 2
	if err := create(pos, s.opts.BatchSize, "XcxUser", s.customers[:half]); err != nil {
		return err
	}
	if err := create(s.mini.WithContext(ctx), s.opts.BatchSize, "XcxUser", s.customers[half:]); err != nil {
		return err
	}

	posOrders := s.opts.Orders * 7 / 10
	if err := s.seedOrders(ctx, s.pos, source.POS, 1, posOrders); err != nil {
		return err
	}
	firstMini := int64(posOrders-s.opts.Overlap) + 1
	if firstMini < 1 {
		firstMini = 1
	}
	return s.seedOrders(ctx, s.mini, source.Mini, firstMini, s.opts.Orders-posOrders)
}

func (s *Seeder) prepare(ctx context.Context, db *gorm.DB, system source.System, tables []any) error {
	var n int64
	err := db.WithContext(ctx).Model(&source.Order{}).Count(&n).Error
	var myErr *mysql.MySQLError
	switch {
	case errors.As(err, &myErr) && myErr.Number == 1146:
		// no such table
	case err != nil:
		return etlerr.New(etlerr.Connection, "seed-sources", err)
	case n > 0 && !s.opts.Force:
		return etlerr.Newf(etlerr.Config, "seed-sources",
			"%s source already holds %d orders; pass --force to replace it", system, n)
	}

	m := db.WithContext(ctx).Migrator()
	if err := m.DropTable(tables...); err != nil {
		return fmt.Errorf("drop %s tables: %w", system, err)
	}
	if err := m.AutoMigrate(tables...); err != nil {
		return fmt.Errorf("create %s tables: %w", system, err)
	}
	logging.Info().Str("system", string(system)).Int("tables", len(tables)).Msg("Source tables ready")
	return nil
}

func create[T any](db *gorm.DB, batch int, table string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	if err := db.CreateInBatches(rows, batch).Error; err != nil {
		return fmt.Errorf("seed %s: %w", table, err)
	}
	logging.Info().Str("table", table).Int("rows", len(rows)).Msg("Seeded")
	return nil
}

func ptr[T any](v T) *T { return &v }

func nullDec(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func (s *Seeder) since() time.Time {
	return s.now.AddDate(0, 0, -s.opts.Days)
}

func (s *Seeder) buildShops() {
	f := s.faker
	s.shops = make([]source.Shop, s.opts.Shops)
	for i := range s.shops {
		p := Choose(f, Places)
		s.shops[i] = source.Shop{
			ID:            int64(i + 1),
			ShopName:      f.ShopName(p),
			ShopAddress:   ptr(f.Address(p)),
			Director:      ptr(f.PersonName()),
			DirectorPhone: ptr(f.Phone()),
			Province:      ptr(p.Province),
			City:          ptr(p.City),
			District:      ptr(p.District),
			Location:      f.Location(p),
			State:         ptr(ChooseWeighted(f, []int{1, 0, 2}, []int{8, 1, 1})),
			IsSelf:        ptr(ChooseWeighted(f, []int{1, 0}, []int{6, 4})),
			OpenTime:      ptr("09:00"),
			CloseTime:     ptr("22:00"),
			RentAmount:    nullDec(f.Money(8000, 40000)),
			PassengerFlow: ptr(f.Int(200, 3000)),
			DelFlag:       ptr(0),
			RecordTime:    f.DateRange(s.since().AddDate(-1, 0, 0), s.since()),
		}
	}
}

func (s *Seeder) categories() []source.Category {
	rows := make([]source.Category, len(categories))
	for i, name := range categories {
		rows[i] = source.Category{ID: int64(i + 1), CatName: name, DelFlag: ptr(0)}
	}
	return rows
}

func (s *Seeder) buildGoods() {
	f := s.faker
	s.goods = make([]source.Goods, s.opts.Goods)
	for i := range s.goods {
		sale := f.Money(6, 38)
		s.goods[i] = source.Goods{
			ID:         int64(i + 1),
			GoodsName:  f.MenuItem(),
			CategoryID: ptr(int64(f.Int(1, len(categories)))),
			SalePrice:  nullDec(sale),
			CostPrice:  nullDec(sale.Mul(decimal.NewFromFloat(f.Float64(0.25, 0.55))).Round(2)),
			IsSale:     ptr(1),
			IsXcx:      ptr(ChooseWeighted(f, []int{1, 0}, []int{7, 3})),
			ShopID:     s.shops[f.Int(0, len(s.shops)-1)].ID,
			DelFlag:    ptr(0),
			RecordTime: s.since(),
		}
	}
}

func (s *Seeder) buildCustomers() {
	f := s.faker
	s.customers = make([]source.XcxUser, s.opts.Customers)
	for i := range s.customers {
		u := source.XcxUser{
			ID:         int64(i + 1),
			OpenID:     ptr(f.OpenID()),
			NickName:   ptr(f.Nickname()),
			DelFlag:    ptr(0),
			RecordTime: f.DateRange(s.since(), s.now),
		}
		if f.Bool() {
			u.RealName = ptr(f.PersonName())
			u.Tel = ptr(f.Phone())
		}
		s.customers[i] = u
	}
}

func (s *Seeder) seekShops() []source.SeekShop {
	f := s.faker
	rows := make([]source.SeekShop, s.opts.Shops/2+1)
	for i := range rows {
		p := Choose(f, Places)
		rows[i] = source.SeekShop{
			ID:            int64(i + 1),
			ShopName:      f.ShopName(p),
			ShopAddress:   ptr(f.Address(p)),
			Location:      f.Location(p),
			ApprovalState: ptr(f.Int(source.ApprovalUnreviewed, source.ApprovalRejected)),
			Amount:        nullDec(f.Money(100000, 600000)),
			DelFlag:       ptr(0),
			RecordTime:    f.DateRange(s.since(), s.now),
		}
	}
	return rows
}

var (
	posPayModes  = []string{"收银", "外卖美团", "外卖饿了么", "团购抖音", "赠送"}
	posPayWeight = []int{60, 15, 10, 10, 5}
)

// seedOrders writes n orders starting at id first, with one to four
// lines each.
func (s *Seeder) seedOrders(ctx context.Context, db *gorm.DB, system source.System, first int64, n int) error {
	db = db.WithContext(ctx)
	progress := stats.NewProgress(string(system)+".Orders", s.opts.ProgressInterval)

	itemID := (first - 1) * 4
	orders := make([]source.Order, 0, s.opts.BatchSize)
	var items []source.OrderGoods
	flush := func() error {
		if err := db.CreateInBatches(orders, s.opts.BatchSize).Error; err != nil {
			return fmt.Errorf("seed %s orders: %w", system, err)
		}
		if err := db.CreateInBatches(items, s.opts.BatchSize).Error; err != nil {
			return fmt.Errorf("seed %s order items: %w", system, err)
		}
		progress.Update(int64(len(orders)))
		orders, items = orders[:0], items[:0]
		return nil
	}

	for id := first; id < first+int64(n); id++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		o, lines := s.order(system, id, &itemID)
		orders = append(orders, o)
		items = append(items, lines...)
		if len(orders) == s.opts.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if len(orders) > 0 {
		if err := flush(); err != nil {
			return err
		}
	}
	logging.Info().Str("system", string(system)).Int64("orders", progress.Rows()).Msg("Orders seeded")
	return nil
}

func (s *Seeder) order(system source.System, id int64, itemID *int64) (source.Order, []source.OrderGoods) {
	f := s.faker
	shop := Choose(f, s.shops)
	at := f.DateRange(s.since(), s.now)

	var lines []source.OrderGoods
	value := decimal.Zero
	for range f.Int(1, 4) {
		g := Choose(f, s.goods)
		qty := decimal.NewFromInt(int64(f.Int(1, 3)))
		total := g.SalePrice.Decimal.Mul(qty)
		value = value.Add(total)
		*itemID++
		lines = append(lines, source.OrderGoods{
			ID:          *itemID,
			OrderID:     id,
			GoodsID:     ptr(g.ID),
			GoodsName:   ptr(g.GoodsName),
			GoodsNumber: nullDec(qty),
			GoodsPrice:  g.SalePrice,
			GoodsTotal:  nullDec(total),
			DelFlag:     ptr(0),
		})
	}

	o := source.Order{
		ID:         id,
		OrderNo:    ptr(fmt.Sprintf("%s%s%06d", system, at.Format("20060102"), id)),
		ShopID:     shop.ID,
		PayState:   ptr(ChooseWeighted(f, []int{source.PaidState, 0, 3}, []int{90, 5, 5})),
		DelFlag:    ptr(0),
		OrderValue: nullDec(value),
		Total:      nullDec(value),
		RecordTime: at,
	}
	if system == source.POS {
		mode := ChooseWeighted(f, posPayModes, posPayWeight)
		o.PayMode = ptr(mode)
		if mode == "收银" {
			o.Cash = nullDec(value)
		}
	} else {
		c := Choose(f, s.customers)
		o.OpenID = c.OpenID
		o.VipTel = c.Tel
		o.PayMode = ptr("小程序")
		if f.Int(1, 4) == 1 {
			o.VipAmount = nullDec(value)
		} else {
			o.Cash = nullDec(value)
		}
	}
	if f.Int(1, 50) == 1 {
		o.RefundMoney = nullDec(value)
		o.DelState = ptr("refunded")
	}
	return o, lines
}
