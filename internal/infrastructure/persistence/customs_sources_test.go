package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/customs/internal/domain/customs"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func pct(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func smartphone(t *testing.T) *customs.TaxClassification {
	t.Helper()
	c, err := customs.NewTaxClassification("8517.12", "Smartphones", pct("10"), true,
		customs.TaxRates{
			CustomsPct: decimal.NewFromInt(20),
			GSTPct:     pct("18"),
			VATPct:     pct("25"),
		}, 0.95)
	require.NoError(t, err)
	return c
}

func TestGormTaxClassificationSource_SaveAndGet(t *testing.T) {
	db := newSQLiteDatabase(t)
	source := NewGormTaxClassificationSource(db.DB, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, source.Save(ctx, smartphone(t)))

	got, err := source.GetClassification(ctx, "8517.12")
	require.NoError(t, err)
	assert.Equal(t, "Smartphones", got.Category)
	assert.True(t, got.NeedsMinimumValuation())
	assert.True(t, got.MinimumValuationUSD.Equal(decimal.NewFromInt(10)))
	assert.True(t, got.Rates.CustomsPct.Equal(decimal.NewFromInt(20)))
	assert.True(t, got.Rates.RateFor(customs.TaxSystemVAT).Equal(decimal.NewFromInt(25)))
	assert.Nil(t, got.Rates.SalesTaxPct, "undefined rate stays undefined")
	assert.InDelta(t, 0.95, got.Confidence, 1e-9)
}

func TestGormTaxClassificationSource_SaveReplaces(t *testing.T) {
	db := newSQLiteDatabase(t)
	source := NewGormTaxClassificationSource(db.DB, nil)
	ctx := context.Background()

	c := smartphone(t)
	require.NoError(t, source.Save(ctx, c))
	c.Rates.CustomsPct = decimal.NewFromInt(15)
	require.NoError(t, source.Save(ctx, c))

	got, err := source.GetClassification(ctx, "8517.12")
	require.NoError(t, err)
	assert.True(t, got.Rates.CustomsPct.Equal(decimal.NewFromInt(15)))

	n, err := source.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGormTaxClassificationSource_NotFound(t *testing.T) {
	db := newSQLiteDatabase(t)
	source := NewGormTaxClassificationSource(db.DB, nil)

	_, err := source.GetClassification(context.Background(), "0000.00")

	assert.ErrorIs(t, err, customs.ErrClassificationNotFound)
	assert.Contains(t, err.Error(), "0000.00")
}

func TestGormTaxClassificationSource_MalformedRows(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{
			name: "conversion without minimum",
			sql: `INSERT INTO tax_classifications (code, category, requires_currency_conversion, customs_pct, classification_confidence, created_at, updated_at)
				VALUES ('bad', '', 1, 10, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		},
		{
			name: "negative customs rate",
			sql: `INSERT INTO tax_classifications (code, category, requires_currency_conversion, customs_pct, classification_confidence, created_at, updated_at)
				VALUES ('bad', '', 0, -5, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		},
		{
			name: "confidence out of range",
			sql: `INSERT INTO tax_classifications (code, category, requires_currency_conversion, customs_pct, classification_confidence, created_at, updated_at)
				VALUES ('bad', '', 0, 5, 1.5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newSQLiteDatabase(t)
			require.NoError(t, db.DB.Exec(tt.sql).Error)
			source := NewGormTaxClassificationSource(db.DB, zaptest.NewLogger(t))

			_, err := source.GetClassification(context.Background(), "bad")

			assert.ErrorIs(t, err, customs.ErrInvalidClassification)
		})
	}
}

func TestGormTaxClassificationSource_QueryError(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()
	source := NewGormTaxClassificationSource(db.DB, nil)

	mock.ExpectQuery(`SELECT \* FROM "tax_classifications" WHERE code = \$1`).
		WithArgs("8517.12", 1).
		WillReturnError(errors.New("connection reset"))

	_, err := source.GetClassification(context.Background(), "8517.12")

	require.Error(t, err)
	assert.NotErrorIs(t, err, customs.ErrClassificationNotFound, "outages are not permanent")
	assert.False(t, customs.IsPermanentItemError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormDestinationTaxRegimeSource(t *testing.T) {
	db := newSQLiteDatabase(t)
	source := NewGormDestinationTaxRegimeSource(db.DB, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, source.Save(ctx, "GB", customs.TaxSystemVAT))
	require.NoError(t, source.Save(ctx, "IN", customs.TaxSystemGST))

	tests := []struct {
		country string
		want    customs.TaxSystem
	}{
		{"GB", customs.TaxSystemVAT},
		{"IN", customs.TaxSystemGST},
		{"NP", customs.TaxSystemNone},
	}
	for _, tt := range tests {
		t.Run(tt.country, func(t *testing.T) {
			got, err := source.GetRegime(ctx, valueobject.CountryCode(tt.country))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("save replaces", func(t *testing.T) {
		require.NoError(t, source.Save(ctx, "GB", customs.TaxSystemSalesTax))
		got, err := source.GetRegime(ctx, "GB")
		require.NoError(t, err)
		assert.Equal(t, customs.TaxSystemSalesTax, got)
	})

	t.Run("save rejects unknown system", func(t *testing.T) {
		err := source.Save(ctx, "FR", customs.TaxSystem("excise"))
		assert.ErrorIs(t, err, customs.ErrInvalidRegime)
	})

	t.Run("malformed row", func(t *testing.T) {
		require.NoError(t, db.DB.Exec(`INSERT INTO destination_tax_regimes (country_code, tax_system, created_at, updated_at)
			VALUES ('DE', 'excise', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`).Error)
		_, err := source.GetRegime(ctx, "DE")
		assert.ErrorIs(t, err, customs.ErrInvalidRegime)
	})
}

func TestGormDestinationTaxRegimeSource_QueryError(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()
	source := NewGormDestinationTaxRegimeSource(db.DB, nil)

	mock.ExpectQuery(`SELECT \* FROM "destination_tax_regimes" WHERE country_code = \$1`).
		WithArgs("GB", 1).
		WillReturnError(errors.New("too many connections"))

	_, err := source.GetRegime(context.Background(), "GB")

	assert.ErrorContains(t, err, "too many connections")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormDestinationTaxRegimeSource_SaveUpsertsOnPostgres(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()
	source := NewGormDestinationTaxRegimeSource(db.DB, nil)

	mock.ExpectExec(`INSERT INTO "destination_tax_regimes" .*ON CONFLICT \("country_code"\) DO UPDATE SET "tax_system"="excluded"\."tax_system"`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "GB", "vat").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, source.Save(context.Background(), "gb", customs.TaxSystemVAT))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormDestinationTaxRegimeSource_SaveError(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()
	source := NewGormDestinationTaxRegimeSource(db.DB, nil)

	mock.ExpectExec(`INSERT INTO "destination_tax_regimes"`).
		WillReturnError(errors.New("read-only transaction"))

	err := source.Save(context.Background(), "GB", customs.TaxSystemVAT)

	assert.ErrorContains(t, err, "read-only transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}
