package source

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
)

// Inspector is the part of gorm.Migrator the contract check needs.
type Inspector interface {
	HasTable(dst interface{}) bool
	HasColumn(dst interface{}, field string) bool
}

// Contract maps required tables to the columns read from them.
type Contract map[string][]string

var (
	orderColumns = []string{
		"Id", "orderNo", "openId", "vipTel", "shopId", "payState", "payMode", "delflag", "delState",
		"orderValue", "cash", "vipAmount", "vipAmountZengSong", "cardAmount", "cardZengSong",
		"couponAmount", "discountAmount", "rollsRealIncome", "refundMoney", "total", "recordTime",
	}
	customerColumns = []string{"Id", "openId", "nickName", "realName", "tel", "delflag"}
)

// Contracts returns the binding contract of each source system.
func Contracts() map[System]Contract {
	return map[System]Contract{
		POS: {
			"Shop": {"Id", "ShopName", "Director", "DirectorPhone", "province", "city", "district",
				"location", "state", "delflag", "recordTime"},
			"Orders":      orderColumns,
			"OrderGoods":  ItemColumns,
			"goods":       {"Id", "goodsName", "categoryId", "salePrice", "costPrice", "shopId", "delflag"},
			"Category":    {"Id", "catName", "delflag"},
			"XcxUser":     customerColumns,
			"Rg_SeekShop": {"Id", "ShopName", "location", "approvalState", "delflag", "recordTime"},
		},
		Mini: {
			"Orders":     orderColumns,
			"OrderGoods": ItemColumns,
			"XcxUser":    customerColumns,
		},
	}
}

// CheckContract verifies every required table and column of system. All
// misses are reported together as one fatal schema error.
func CheckContract(system System, in Inspector) error {
	contract, ok := Contracts()[system]
	if !ok {
		return etlerr.Newf(etlerr.Config, "contract", "unknown source system %q", system)
	}

	var missing []string
	for _, table := range slices.Sorted(maps.Keys(contract)) {
		if !in.HasTable(table) {
			missing = append(missing, table)
			continue
		}
		for _, col := range contract[table] {
			if !in.HasColumn(table, col) {
				missing = append(missing, table+"."+col)
			}
		}
	}
	if len(missing) > 0 {
		return etlerr.New(etlerr.FatalSchema, "contract",
			fmt.Errorf("source %s is missing %s", system, strings.Join(missing, ", ")))
	}
	return nil
}
