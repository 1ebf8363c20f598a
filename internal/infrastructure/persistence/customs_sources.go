package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/customs/internal/domain/customs"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/erp/customs/internal/infrastructure/persistence/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTaxClassificationSource implements customs.TaxClassificationSource on the tax_classifications table
type GormTaxClassificationSource struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormTaxClassificationSource creates a new GormTaxClassificationSource
func NewGormTaxClassificationSource(db *gorm.DB, logger *zap.Logger) *GormTaxClassificationSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormTaxClassificationSource{db: db, logger: logger.Named("classifications")}
}

// WithTx returns a source bound to the given transaction
func (s *GormTaxClassificationSource) WithTx(tx *gorm.DB) *GormTaxClassificationSource {
	return &GormTaxClassificationSource{db: tx, logger: s.logger}
}

// GetClassification loads and validates one classification.
// Malformed rows are reported as customs.ErrInvalidClassification.
func (s *GormTaxClassificationSource) GetClassification(ctx context.Context, code string) (*customs.TaxClassification, error) {
	var model models.TaxClassificationModel
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, customs.ErrClassificationNotFound.WithMessage(fmt.Sprintf("no classification for code %s", code))
	}
	if err != nil {
		return nil, fmt.Errorf("query classification %s: %w", code, err)
	}

	classification, err := model.ToDomain()
	if err != nil {
		s.logger.Warn("Rejected malformed classification row",
			zap.String("code", code),
			zap.Error(err),
		)
		return nil, err
	}
	return classification, nil
}

// Save inserts or replaces a classification
func (s *GormTaxClassificationSource) Save(ctx context.Context, c *customs.TaxClassification) error {
	model := models.TaxClassificationModelFromDomain(c)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// Count returns the number of stored classifications
func (s *GormTaxClassificationSource) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.TaxClassificationModel{}).Count(&n).Error
	return n, err
}

// GormDestinationTaxRegimeSource implements customs.DestinationTaxRegimeSource on the
// destination_tax_regimes table. Countries without a row resolve to TaxSystemNone.
type GormDestinationTaxRegimeSource struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormDestinationTaxRegimeSource creates a new GormDestinationTaxRegimeSource
func NewGormDestinationTaxRegimeSource(db *gorm.DB, logger *zap.Logger) *GormDestinationTaxRegimeSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormDestinationTaxRegimeSource{db: db, logger: logger.Named("regimes")}
}

// WithTx returns a source bound to the given transaction
func (s *GormDestinationTaxRegimeSource) WithTx(tx *gorm.DB) *GormDestinationTaxRegimeSource {
	return &GormDestinationTaxRegimeSource{db: tx, logger: s.logger}
}

// GetRegime returns the destination's tax system
func (s *GormDestinationTaxRegimeSource) GetRegime(ctx context.Context, country valueobject.CountryCode) (customs.TaxSystem, error) {
	var model models.DestinationTaxRegimeModel
	err := s.db.WithContext(ctx).Where("country_code = ?", string(country)).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return customs.TaxSystemNone, nil
	}
	if err != nil {
		return "", fmt.Errorf("query tax regime for %s: %w", country, err)
	}

	system, err := model.ToDomain()
	if err != nil {
		s.logger.Warn("Rejected malformed tax regime row",
			zap.String("country", string(country)),
			zap.Error(err),
		)
		return "", err
	}
	return system, nil
}

// Save inserts or replaces a country's regime
func (s *GormDestinationTaxRegimeSource) Save(ctx context.Context, country valueobject.CountryCode, system customs.TaxSystem) error {
	if !system.IsValid() {
		return customs.ErrInvalidRegime.WithMessage(fmt.Sprintf("unknown tax system %q", system))
	}
	model := models.DestinationTaxRegimeModelFromDomain(country, system)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "country_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"tax_system", "updated_at"}),
		}).
		Create(model).Error
}

var (
	_ customs.TaxClassificationSource    = (*GormTaxClassificationSource)(nil)
	_ customs.DestinationTaxRegimeSource = (*GormDestinationTaxRegimeSource)(nil)
)
