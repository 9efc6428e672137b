package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
)

type fakeInspector struct {
	tables  map[string]bool
	columns map[string]bool
}

func fullInspector(system System) *fakeInspector {
	in := &fakeInspector{tables: map[string]bool{}, columns: map[string]bool{}}
	for table, cols := range Contracts()[system] {
		in.tables[table] = true
		for _, c := range cols {
			in.columns[table+"."+c] = true
		}
	}
	return in
}

func (f *fakeInspector) HasTable(dst interface{}) bool {
	return f.tables[dst.(string)]
}

func (f *fakeInspector) HasColumn(dst interface{}, field string) bool {
	return f.columns[dst.(string)+"."+field]
}

func TestCheckContract_Complete(t *testing.T) {
	for _, system := range []System{POS, Mini} {
		t.Run(string(system), func(t *testing.T) {
			require.NoError(t, CheckContract(system, fullInspector(system)))
		})
	}
}

func TestCheckContract_MissingTable(t *testing.T) {
	in := fullInspector(POS)
	delete(in.tables, "Rg_SeekShop")

	err := CheckContract(POS, in)

	require.Error(t, err)
	assert.Equal(t, etlerr.FatalSchema, etlerr.KindOf(err))
	assert.Contains(t, err.Error(), "Rg_SeekShop")
}

func TestCheckContract_ReportsEveryMissingColumn(t *testing.T) {
	in := fullInspector(Mini)
	delete(in.columns, "Orders.payMode")
	delete(in.columns, "XcxUser.tel")

	err := CheckContract(Mini, in)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Orders.payMode")
	assert.Contains(t, err.Error(), "XcxUser.tel")
}

func TestCheckContract_MiniDoesNotNeedShop(t *testing.T) {
	assert.NotContains(t, Contracts()[Mini], "Shop")
	assert.Contains(t, Contracts()[POS], "Shop")
}

func TestCheckContract_UnknownSystem(t *testing.T) {
	err := CheckContract(System("erp"), fullInspector(POS))
	assert.Equal(t, etlerr.Config, etlerr.KindOf(err))
}
