package dimensions

import (
	"context"

	"github.com/hotdog2030/hotdog-etl/internal/identity"
	"github.com/hotdog2030/hotdog-etl/internal/logging"
	"github.com/hotdog2030/hotdog-etl/internal/source"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

const upsertCategorySQL = `
INSERT INTO categories (id, category_name, parent_id, delflag, created_at, updated_at)
VALUES ($1, $2, $3, 0, now(), now())
ON CONFLICT (id) DO UPDATE SET
    category_name = EXCLUDED.category_name,
    parent_id     = EXCLUDED.parent_id,
    delflag       = 0,
    updated_at    = now()`

const upsertProductSQL = `
INSERT INTO products (id, product_name, category_id, market_price, sale_price, cost_price,
                      goods_stock, is_sale, is_hot, is_recommended, is_package, is_mini_program,
                      shop_id, delflag, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 0, $14, now())
ON CONFLICT (id) DO UPDATE SET
    product_name    = EXCLUDED.product_name,
    category_id     = EXCLUDED.category_id,
    market_price    = EXCLUDED.market_price,
    sale_price      = EXCLUDED.sale_price,
    cost_price      = EXCLUDED.cost_price,
    goods_stock     = EXCLUDED.goods_stock,
    is_sale         = EXCLUDED.is_sale,
    is_hot          = EXCLUDED.is_hot,
    is_recommended  = EXCLUDED.is_recommended,
    is_package      = EXCLUDED.is_package,
    is_mini_program = EXCLUDED.is_mini_program,
    shop_id         = EXCLUDED.shop_id,
    delflag         = 0,
    updated_at      = now()`

// LoadProducts loads the categories and then the goods whose shop is a
// known store. Goods of unknown shops are skipped and counted.
func (l *Loader) LoadProducts(ctx context.Context) ([]*stats.Counts, error) {
	catCounts := stats.NewCounts(warehouse.TableCategories)
	cw := l.writer(catCounts)
	cw.OnApplied = func(id int64) error {
		return l.ids.Register(identity.Category, id, id)
	}
	err := l.pos.Categories(ctx, func(c *source.Category) error {
		return cw.Add(ctx, c.ID, upsertCategorySQL, c.ID, c.CatName, c.ParentID)
	})
	if err == nil {
		err = cw.Flush(ctx)
	}
	if err != nil {
		return []*stats.Counts{catCounts}, err
	}

	prodCounts := stats.NewCounts(warehouse.TableProducts)
	pw := l.writer(prodCounts)
	pw.OnApplied = func(id int64) error {
		return l.ids.Register(identity.Product, id, id)
	}

	err = l.pos.Goods(ctx, func(g *source.Goods) error {
		shopID, ok := l.ids.Resolve(identity.Store, g.ShopID)
		if !ok {
			prodCounts.Skip(1)
			logging.Warn().Int64("goods_id", g.ID).Int64("shop_id", g.ShopID).Msg("Product skipped: unknown shop")
			return nil
		}

		market, sale, cost := source.Dec(g.MarketPrice), source.Dec(g.SalePrice), source.Dec(g.CostPrice)
		if market.IsNegative() || sale.IsNegative() || cost.IsNegative() {
			prodCounts.Skip(1)
			logging.Warn().Int64("goods_id", g.ID).Msg("Product skipped: negative price")
			return nil
		}

		var categoryID *int64
		if g.CategoryID != nil {
			if id, ok := l.ids.Resolve(identity.Category, *g.CategoryID); ok {
				categoryID = &id
			}
		}

		return pw.Add(ctx, g.ID, upsertProductSQL,
			g.ID, g.GoodsName, categoryID,
			warehouse.Numeric(market), warehouse.Numeric(sale), warehouse.Numeric(cost),
			g.GoodsStock, flag(g.IsSale), flag(g.IsHot), flag(g.IsRecom), flag(g.IsPackage), flag(g.IsXcx),
			shopID, g.RecordTime)
	})
	if err == nil {
		err = pw.Flush(ctx)
	}
	return []*stats.Counts{catCounts, prodCounts}, err
}
