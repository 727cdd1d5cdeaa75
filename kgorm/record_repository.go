package kgorm

import (
	"context"
	"fmt"

	"github.com/srmgate/srmgate/core/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordRepository is a domain.RecordStore over the identity_records table.
type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Create(ctx context.Context, id int64, payload []byte) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&gormRecord{ID: id, Payload: payload})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("gorm: record %d: %w", id, domain.ErrRecordExists)
	}
	return nil
}

func (r *RecordRepository) Read(ctx context.Context, id int64) ([]byte, error) {
	var rec gormRecord
	res := r.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&rec)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	// Some drivers hand back an empty BLOB as nil.
	if rec.Payload == nil {
		return []byte{}, nil
	}
	return rec.Payload, nil
}

func (r *RecordRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&gormRecord{}, "id = ?", id).Error
}

// Count returns the number of stored records.
func (r *RecordRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&gormRecord{}).Count(&n).Error
	return n, err
}
