//-------------------------------------------------------------------------
//
// HotDog 2030 Warehouse Sync
//
// Copyright (c) 2026, HotDog 2030 contributors
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package warehouse owns the analytical warehouse schema: tables, the
// droppable secondary indexes used by the bulk loaders, and the numeric
// conversions shared by every writer.
package warehouse

// Table names.
const (
	TableStores          = "stores"
	TableCategories      = "categories"
	TableProducts        = "products"
	TableCustomers       = "customer_profiles"
	TableOrders          = "orders"
	TableOrderItems      = "order_items"
	TableRegions         = "regions"
	TableCities          = "cities"
	TableSeekShops       = "rg_seek_shop"
	TableProfitDaily     = "fact_profit_daily"
	TableSegments        = "customer_segments"
	TableSiteScores      = "fact_site_score"
	TableAlerts          = "fact_alerts"
	TableOperatingExpDay = "operating_expense_daily"
	ViewReconciliation   = "v_profit_reconciliation"
)

// Tables lists every base table in creation order. Drops run in reverse.
var Tables = []string{
	TableStores,
	TableRegions,
	TableCities,
	TableCategories,
	TableProducts,
	TableCustomers,
	TableSeekShops,
	TableOrders,
	TableOrderItems,
	TableOperatingExpDay,
	TableProfitDaily,
	TableSegments,
	TableSiteScores,
	TableAlerts,
}

// Schema SQL for the warehouse. Every statement is idempotent so the same
// text serves both provisioning modes.
const createSchemaSQL = `
-- Stores: migrated outlets keep their source id; prospective sites get
-- identity values above the migrated range.
CREATE TABLE IF NOT EXISTS stores (
    id              BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    store_code      VARCHAR(32) NOT NULL,
    store_name      TEXT NOT NULL,
    store_type      VARCHAR(16) NOT NULL DEFAULT 'direct'
                    CHECK (store_type IN ('direct', 'franchise')),
    status          VARCHAR(16) NOT NULL
                    CHECK (status IN ('open', 'preparing', 'prospecting', 'suspended', 'closed', 'unknown')),
    state           SMALLINT CHECK (state IN (0, 1, 2)),
    province        TEXT,
    city            TEXT,
    district        TEXT,
    address         TEXT,
    location        TEXT,
    longitude       NUMERIC(10,6),
    latitude        NUMERIC(10,6),
    open_time       VARCHAR(16),
    close_time      VARCHAR(16),
    rent_amount     NUMERIC(12,2),
    passenger_flow  INTEGER,
    meituan_id      TEXT,
    eleme_id        TEXT,
    dianping_id     TEXT,
    douyin_id       TEXT,
    is_self         BOOLEAN NOT NULL DEFAULT true,
    delflag         SMALLINT NOT NULL DEFAULT 0,
    created_at      TIMESTAMP NOT NULL DEFAULT now(),
    updated_at      TIMESTAMP NOT NULL DEFAULT now(),
    CHECK ((longitude IS NULL) = (latitude IS NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_stores_store_code ON stores (store_code) WHERE delflag = 0;

-- Administrative regions: province (1), city (2), district (3)
CREATE TABLE IF NOT EXISTS regions (
    code         VARCHAR(16) PRIMARY KEY,
    name         TEXT NOT NULL,
    parent_code  VARCHAR(16) REFERENCES regions(code),
    level        SMALLINT NOT NULL CHECK (level IN (1, 2, 3)),
    delflag      SMALLINT NOT NULL DEFAULT 0,
    created_at   TIMESTAMP NOT NULL DEFAULT now(),
    updated_at   TIMESTAMP NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cities (
    id           BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    city_name    TEXT NOT NULL,
    province     TEXT NOT NULL,
    region_code  VARCHAR(16) REFERENCES regions(code),
    delflag      SMALLINT NOT NULL DEFAULT 0,
    created_at   TIMESTAMP NOT NULL DEFAULT now(),
    updated_at   TIMESTAMP NOT NULL DEFAULT now(),
    UNIQUE (province, city_name)
);

CREATE TABLE IF NOT EXISTS categories (
    id             BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    category_name  TEXT NOT NULL,
    parent_id      BIGINT,
    delflag        SMALLINT NOT NULL DEFAULT 0,
    created_at     TIMESTAMP NOT NULL DEFAULT now(),
    updated_at     TIMESTAMP NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
    id               BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    product_name     TEXT NOT NULL,
    category_id      BIGINT,
    market_price     NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (market_price >= 0),
    sale_price       NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (sale_price >= 0),
    cost_price       NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (cost_price >= 0),
    goods_stock      INTEGER,
    is_sale          BOOLEAN NOT NULL DEFAULT false,
    is_hot           BOOLEAN NOT NULL DEFAULT false,
    is_recommended   BOOLEAN NOT NULL DEFAULT false,
    is_package       BOOLEAN NOT NULL DEFAULT false,
    is_mini_program  BOOLEAN NOT NULL DEFAULT false,
    shop_id          BIGINT NOT NULL REFERENCES stores(id),
    delflag          SMALLINT NOT NULL DEFAULT 0,
    created_at       TIMESTAMP NOT NULL DEFAULT now(),
    updated_at       TIMESTAMP NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS customer_profiles (
    id                BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    customer_id       VARCHAR(64) NOT NULL,
    customer_name     TEXT,
    phone             VARCHAR(32),
    vip_tel           VARCHAR(32),
    shop_id           BIGINT REFERENCES stores(id),
    source            VARCHAR(8) NOT NULL,
    first_order_date  TIMESTAMP,
    last_order_date   TIMESTAMP,
    order_count       INTEGER NOT NULL DEFAULT 0,
    total_amount      NUMERIC(14,2) NOT NULL DEFAULT 0,
    avg_order_amount  NUMERIC(12,2) NOT NULL DEFAULT 0,
    customer_segment  VARCHAR(16)
                      CHECK (customer_segment IN ('VIP', 'loyal', 'active', 'at_risk', 'lost', 'new')),
    delflag           SMALLINT NOT NULL DEFAULT 0,
    created_at        TIMESTAMP NOT NULL DEFAULT now(),
    updated_at        TIMESTAMP NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_customer_profiles_customer_id ON customer_profiles (customer_id) WHERE delflag = 0;

-- Prospective sites, projected into stores as RG_<id>
CREATE TABLE IF NOT EXISTS rg_seek_shop (
    id              BIGINT PRIMARY KEY,
    shop_name       TEXT NOT NULL,
    address         TEXT,
    location        TEXT,
    longitude       NUMERIC(10,6),
    latitude        NUMERIC(10,6),
    approval_state  VARCHAR(16) NOT NULL
                    CHECK (approval_state IN ('unreviewed', 'approved', 'rejected')),
    amount          NUMERIC(12,2),
    store_id        BIGINT REFERENCES stores(id),
    delflag         SMALLINT NOT NULL DEFAULT 0,
    created_at      TIMESTAMP NOT NULL,
    updated_at      TIMESTAMP NOT NULL DEFAULT now()
);

-- Orders keep the source id and the source event time in created_at
CREATE TABLE IF NOT EXISTS orders (
    id                 BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    order_no           VARCHAR(64),
    customer_id        VARCHAR(64),
    store_id           BIGINT NOT NULL REFERENCES stores(id),
    source             VARCHAR(8) NOT NULL,
    pay_state          SMALLINT NOT NULL CHECK (pay_state IN (0, 2)),
    pay_mode           VARCHAR(32),
    total_amount       NUMERIC(12,2) NOT NULL CHECK (total_amount >= 0),
    cash               NUMERIC(12,2),
    vip_amount         NUMERIC(12,2),
    vip_gift           NUMERIC(12,2),
    card_amount        NUMERIC(12,2),
    card_gift          NUMERIC(12,2),
    coupon_amount      NUMERIC(12,2),
    discount_amount    NUMERIC(12,2),
    rolls_real_income  NUMERIC(12,2),
    refund_money       NUMERIC(12,2),
    order_value        NUMERIC(12,2),
    total_profit       NUMERIC(12,2),
    vip_tel            VARCHAR(32),
    del_state          VARCHAR(32),
    delflag            SMALLINT NOT NULL DEFAULT 0,
    created_at         TIMESTAMP NOT NULL,
    updated_at         TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS order_items (
    id            BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    order_id      BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    product_id    BIGINT REFERENCES products(id),
    product_name  TEXT,
    quantity      NUMERIC(10,2) NOT NULL DEFAULT 0,
    price         NUMERIC(12,2) NOT NULL DEFAULT 0,
    total_price   NUMERIC(12,2) NOT NULL DEFAULT 0,
    profit_price  NUMERIC(12,2),
    source        VARCHAR(8) NOT NULL,
    delflag       SMALLINT NOT NULL DEFAULT 0,
    created_at    TIMESTAMP NOT NULL,
    updated_at    TIMESTAMP NOT NULL
);

-- Imported daily operating expenses
CREATE TABLE IF NOT EXISTS operating_expense_daily (
    date_key     INTEGER NOT NULL,
    store_id     BIGINT NOT NULL REFERENCES stores(id),
    amount       NUMERIC(14,2) NOT NULL CHECK (amount >= 0),
    source_file  TEXT,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (date_key, store_id)
);

CREATE TABLE IF NOT EXISTS fact_profit_daily (
    date_key       INTEGER NOT NULL,
    store_id       BIGINT NOT NULL REFERENCES stores(id),
    revenue        NUMERIC(14,2) NOT NULL DEFAULT 0,
    cogs           NUMERIC(14,2) NOT NULL DEFAULT 0,
    operating_exp  NUMERIC(14,2) NOT NULL DEFAULT 0,
    net_profit     NUMERIC(14,2) GENERATED ALWAYS AS (revenue - cogs - operating_exp) STORED,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (date_key, store_id)
);

CREATE TABLE IF NOT EXISTS customer_segments (
    customer_id    VARCHAR(64) PRIMARY KEY,
    recency_days   INTEGER NOT NULL,
    frequency      INTEGER NOT NULL,
    monetary       NUMERIC(14,2) NOT NULL,
    r_score        SMALLINT NOT NULL CHECK (r_score BETWEEN 1 AND 5),
    f_score        SMALLINT NOT NULL CHECK (f_score BETWEEN 1 AND 5),
    m_score        SMALLINT NOT NULL CHECK (m_score BETWEEN 1 AND 5),
    segment_code   SMALLINT NOT NULL CHECK (segment_code BETWEEN 111 AND 555),
    segment_label  VARCHAR(16) NOT NULL,
    computed_at    TIMESTAMPTZ NOT NULL,
    CHECK (segment_code = r_score * 100 + f_score * 10 + m_score)
);

CREATE TABLE IF NOT EXISTS fact_site_score (
    candidate_id    BIGINT PRIMARY KEY REFERENCES stores(id),
    match_score     NUMERIC(10,6) NOT NULL,
    cannibal_score  NUMERIC(10,6) NOT NULL,
    total_score     NUMERIC(10,6) NOT NULL,
    rationale       TEXT NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- Alerts are append-only; consumers de-duplicate on (date_key, store_id, alert_type)
CREATE TABLE IF NOT EXISTS fact_alerts (
    id              BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    date_key        INTEGER NOT NULL,
    store_id        BIGINT NOT NULL,
    alert_type      VARCHAR(16) NOT NULL,
    metric          VARCHAR(32) NOT NULL,
    current_value   NUMERIC(14,2) NOT NULL,
    baseline_value  NUMERIC(14,2),
    delta_pct       NUMERIC(8,4),
    message         TEXT NOT NULL,
    severity        SMALLINT NOT NULL DEFAULT 2,
    run_id          UUID,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_fact_alerts_key ON fact_alerts (date_key, store_id, alert_type);
`

// Reconciliation view over fact_profit_daily. net_receipt_total is what
// actually reached the till on paid orders that day.
const createViewSQL = `
CREATE OR REPLACE VIEW v_profit_reconciliation AS
SELECT f.date_key,
       f.store_id,
       f.revenue,
       f.cogs,
       f.operating_exp,
       f.revenue - f.cogs AS gross_profit,
       CASE WHEN f.revenue > 0 THEN round((f.revenue - f.cogs) / f.revenue, 4) END AS gross_margin,
       f.net_profit,
       COALESCE(r.net_receipt_total, 0) AS net_receipt_total
FROM fact_profit_daily f
LEFT JOIN (
    SELECT to_char(o.created_at, 'YYYYMMDD')::integer AS date_key,
           o.store_id,
           SUM(COALESCE(o.cash, 0) + COALESCE(o.vip_amount, 0) + COALESCE(o.card_amount, 0)
               + COALESCE(o.rolls_real_income, 0) - COALESCE(o.refund_money, 0)) AS net_receipt_total
    FROM orders o
    WHERE o.pay_state = 2 AND o.delflag = 0
    GROUP BY 1, 2
) r ON r.date_key = f.date_key AND r.store_id = f.store_id
`

const dropSchemaSQL = `
DROP VIEW IF EXISTS v_profit_reconciliation;
DROP TABLE IF EXISTS fact_alerts CASCADE;
DROP TABLE IF EXISTS fact_site_score CASCADE;
DROP TABLE IF EXISTS customer_segments CASCADE;
DROP TABLE IF EXISTS fact_profit_daily CASCADE;
DROP TABLE IF EXISTS operating_expense_daily CASCADE;
DROP TABLE IF EXISTS order_items CASCADE;
DROP TABLE IF EXISTS orders CASCADE;
DROP TABLE IF EXISTS rg_seek_shop CASCADE;
DROP TABLE IF EXISTS customer_profiles CASCADE;
DROP TABLE IF EXISTS products CASCADE;
DROP TABLE IF EXISTS categories CASCADE;
DROP TABLE IF EXISTS cities CASCADE;
DROP TABLE IF EXISTS regions CASCADE;
DROP TABLE IF EXISTS stores CASCADE;
DROP TABLE IF EXISTS etl_metadata CASCADE;
`

// Index is a non-unique secondary index the bulk loaders may drop before a
// load and must recreate afterwards.
type Index struct {
	Name    string
	Table   string
	Columns string
}

// CreateSQL returns the statement that (re)creates the index.
func (i Index) CreateSQL() string {
	return "CREATE INDEX IF NOT EXISTS " + i.Name + " ON " + i.Table + " (" + i.Columns + ")"
}

// DropSQL returns the statement that drops the index.
func (i Index) DropSQL() string {
	return "DROP INDEX IF EXISTS " + i.Name
}

// Indexes is the declared secondary index set.
var Indexes = []Index{
	{"idx_orders_store_id", TableOrders, "store_id"},
	{"idx_orders_customer_id", TableOrders, "customer_id"},
	{"idx_orders_created_at", TableOrders, "created_at"},
	{"idx_orders_pay_state", TableOrders, "pay_state"},
	{"idx_orders_pay_mode", TableOrders, "pay_mode"},
	{"idx_order_items_order_id", TableOrderItems, "order_id"},
	{"idx_order_items_product_id", TableOrderItems, "product_id"},
	{"idx_products_category_id", TableProducts, "category_id"},
	{"idx_products_shop_id", TableProducts, "shop_id"},
	{"idx_customer_profiles_vip_tel", TableCustomers, "vip_tel"},
}

// IndexesOn returns the declared indexes of the given tables.
func IndexesOn(tables ...string) []Index {
	var out []Index
	for _, idx := range Indexes {
		for _, t := range tables {
			if idx.Table == t {
				out = append(out, idx)
				break
			}
		}
	}
	return out
}
