package tenantdb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/tenantdb"
)

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	cases := map[string]tenantdb.Strategy{
		"database_per_tenant": tenantdb.DatabasePerTenant,
		"schema_per_tenant":   tenantdb.SchemaPerTenant,
		"row_level":           tenantdb.RowLevel,
	}
	for name, want := range cases {
		got, err := tenantdb.ParseStrategy(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, name, got.String())
		assert.True(t, got.Valid())
	}

	_, err := tenantdb.ParseStrategy("multi_master")
	assert.ErrorIs(t, err, tenantdb.ErrUnknownStrategy)

	_, err = tenantdb.ParseStrategy("")
	assert.ErrorIs(t, err, tenantdb.ErrUnknownStrategy)

	assert.False(t, tenantdb.Strategy(0).Valid())
}
