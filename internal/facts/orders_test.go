package facts

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hotdog2030/hotdog-etl/internal/identity"
	"github.com/hotdog2030/hotdog-etl/internal/source"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

var orderCols = []string{"Id", "orderNo", "openId", "shopId", "payState", "payMode", "delflag", "orderValue", "cash", "total", "refundMoney", "recordTime"}

func setupMockSource(t *testing.T, system source.System) (sqlmock.Sqlmock, *source.Reader) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	return mock, source.NewReader(gdb, system)
}

func newTestLoader(ids *identity.Resolver) *Loader {
	l := NewLoader(nil, nil, ids, Options{BatchSize: 10, Workers: 1})
	l.loaded = map[int64]loadedOrder{}
	return l
}

type emitted struct {
	ids  []int64
	rows [][]any
}

func (e *emitted) emit(id int64, row []any) error {
	e.ids = append(e.ids, id)
	e.rows = append(e.rows, row)
	return nil
}

func column(row []any, name string) any {
	for i, c := range orderColumns {
		if c == name {
			return row[i]
		}
	}
	return nil
}

func TestStreamOrders_Scenarios(t *testing.T) {
	mock, r := setupMockSource(t, source.POS)
	when := time.Date(2025, 3, 14, 12, 30, 15, 123000000, time.Local)

	rows := sqlmock.NewRows(orderCols).
		AddRow(1, "A1", "oA", 10, 2, "cashier", 0, "25.50", "0", "0", "0", when).
		AddRow(2, "A2", nil, 10, 2, "mini-program", 0, "40.00", nil, nil, "10.00", when).
		AddRow(3, "A3", nil, 10, 2, "gift", 0, "30.00", "30.00", "30.00", nil, when).
		AddRow(4, "A4", nil, 10, 2, "cashier", 0, "5000", "0", "0", nil, when).
		AddRow(5, "A5", nil, 9999, 2, "cashier", 0, "12", "0", "0", nil, when).
		AddRow(6, "A6", nil, 10, 2, "cashier", 0, "8", "0", "0", nil, when)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `Orders`")).WillReturnRows(rows)

	ids := identity.New()
	require.NoError(t, ids.Register(identity.Store, 10, 10))
	l := newTestLoader(ids)
	counts := stats.NewCounts(warehouse.TableOrders)
	out := &emitted{}

	err := l.streamOrders(context.Background(), r, source.Range{}, counts, out.emit)

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 6}, out.ids)
	assert.Equal(t, int64(2), counts.Skipped())
	assert.Equal(t, int64(1), l.SkipReasons()[SkipOutOfBand])
	assert.Equal(t, int64(1), l.SkipReasons()[SkipUnmappedStore])

	amount := func(i int) string {
		n := column(out.rows[i], "total_amount").(pgtype.Numeric)
		return warehouse.Decimal(n).StringFixed(2)
	}
	assert.Equal(t, "25.50", amount(0))
	assert.Equal(t, "30.00", amount(1))
	assert.Equal(t, "0.00", amount(2))

	created := column(out.rows[0], "created_at").(time.Time)
	assert.True(t, created.Equal(when), "created_at must carry the source time")
	assert.Equal(t, created, column(out.rows[0], "updated_at"))
	assert.Equal(t, "oA", column(out.rows[0], "customer_id"))
	assert.Nil(t, column(out.rows[1], "customer_id"))
	assert.Equal(t, "pos", column(out.rows[0], "source"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStreamOrders_POSWinsCollisions(t *testing.T) {
	ids := identity.New()
	require.NoError(t, ids.Register(identity.Store, 10, 10))
	l := newTestLoader(ids)
	when := time.Now()

	posMock, pos := setupMockSource(t, source.POS)
	posMock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `Orders`")).
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow(7, "P7", nil, 10, 2, "cashier", 0, "10", "0", "0", nil, when))

	miniMock, mini := setupMockSource(t, source.Mini)
	miniMock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `Orders`")).
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow(7, "M7", nil, 10, 2, "mini-program", 0, "20", "0", "0", nil, when).
			AddRow(8, "M8", nil, 10, 2, "mini-program", 0, "20", "0", "0", nil, when))

	counts := stats.NewCounts(warehouse.TableOrders)
	out := &emitted{}
	require.NoError(t, l.streamOrders(context.Background(), pos, source.Range{}, counts, out.emit))
	require.NoError(t, l.streamOrders(context.Background(), mini, source.Range{}, counts, out.emit))

	assert.Equal(t, []int64{7, 8}, out.ids)
	assert.Equal(t, int64(1), l.SkipReasons()[SkipCollision])
	assert.True(t, ids.Owned(identity.Order, source.POS, 7))
	assert.True(t, ids.Owned(identity.Order, source.Mini, 8))
	assert.Equal(t, source.Mini, l.loaded[8].system)
}

func TestStreamItems_FollowOwningOrder(t *testing.T) {
	ids := identity.New()
	require.NoError(t, ids.Register(identity.Product, 100, 100))
	l := newTestLoader(ids)
	when := time.Date(2025, 3, 14, 9, 0, 0, 0, time.Local)
	orders := map[int64]loadedOrder{
		7: {system: source.POS, at: when},
		8: {system: source.Mini, at: when},
	}

	mock, pos := setupMockSource(t, source.POS)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `Id`,`orderId`,`goodsId`,`goodsName`,`goodsNumber`,`goodsPrice`,`goodsTotal`,`delflag` FROM `OrderGoods`")).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "orderId", "goodsId", "goodsName", "goodsNumber", "goodsPrice", "goodsTotal", "delflag"}).
			AddRow(1, 7, 100, "热狗", "2", "9.50", nil, 0).
			AddRow(2, 7, 555, "可乐", "1", "4", "4", 0).
			AddRow(3, 8, 100, "热狗", "1", "9.50", "9.50", 0).
			AddRow(4, 99, 100, "热狗", "1", "9.50", "9.50", 0))

	counts := stats.NewCounts(warehouse.TableOrderItems)
	profits := newProfitSums()
	out := &emitted{}
	err := l.streamItems(context.Background(), pos, source.Range{}, false, orders, profits, counts, out.emit)

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, out.ids)
	assert.Equal(t, int64(2), l.SkipReasons()[SkipOrphanItem])

	first := out.rows[0]
	assert.Equal(t, int64(100), first[2])
	assert.Equal(t, "19.00", warehouse.Decimal(first[6].(pgtype.Numeric)).StringFixed(2))
	assert.Equal(t, when, first[10])
	assert.Nil(t, out.rows[1][2], "unknown product keeps a NULL product_id")
}

func TestItemTotal(t *testing.T) {
	it := &source.OrderGoods{
		GoodsNumber: decimal.NewNullDecimal(d("3")),
		GoodsPrice:  decimal.NewNullDecimal(d("2.35")),
	}
	if got := ItemTotal(it); !got.Equal(d("7.05")) {
		t.Errorf("Expected 7.05, got %s", got)
	}

	it.GoodsTotal = decimal.NewNullDecimal(d("7.00"))
	if got := ItemTotal(it); !got.Equal(d("7")) {
		t.Errorf("Expected source total 7.00, got %s", got)
	}
}

func TestRangeClause(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local)
	to := time.Date(2025, 2, 1, 0, 0, 0, 0, time.Local)

	where, args := rangeClause("created_at", source.Range{From: from, To: to})
	if where != "true AND created_at >= $1 AND created_at < $2" {
		t.Errorf("Unexpected clause: %s", where)
	}
	if len(args) != 2 {
		t.Errorf("Expected 2 args, got %d", len(args))
	}

	where, args = rangeClause("created_at", source.Range{To: to})
	if where != "true AND created_at < $1" || len(args) != 1 {
		t.Errorf("Unexpected clause: %s %v", where, args)
	}
}

func TestProfitSums_RejectedItemGivesBackProfit(t *testing.T) {
	p := newProfitSums()
	p.add(1, 7, decimal.NewNullDecimal(d("3.20")))
	p.add(2, 7, decimal.NewNullDecimal(d("1.80")))
	p.add(3, 8, decimal.NewNullDecimal(d("4.00")))
	p.add(4, 8, decimal.NullDecimal{})

	// Item 2 fails its insert; item 3 was the only profitable line of order 8.
	p.drop(2)
	p.drop(3)

	sums := p.totals()
	assert.Len(t, sums, 1)
	assert.Equal(t, "3.20", sums[7].StringFixed(2))
	_, ok := sums[8]
	assert.False(t, ok, "an order whose profitable items were all rejected gets no profit")
}

func TestItemTable_ReleaseDropsProfit(t *testing.T) {
	ids := identity.New()
	l := newTestLoader(ids)
	require.True(t, ids.Claim(identity.OrderItem, source.POS, 12))

	p := newProfitSums()
	p.add(11, 5, decimal.NewNullDecimal(d("2.50")))
	p.add(12, 5, decimal.NewNullDecimal(d("2.50")))

	table := l.itemTable(stats.NewCounts(warehouse.TableOrderItems), p)
	skipAll(table, batch{ids: []int64{12}})

	assert.Equal(t, "2.50", p.totals()[5].StringFixed(2))
	assert.Equal(t, int64(1), table.counts.Skipped())
	assert.Equal(t, int64(1), l.SkipReasons()[SkipWriteFailed])
	assert.False(t, ids.Owned(identity.OrderItem, source.POS, 12))
}
