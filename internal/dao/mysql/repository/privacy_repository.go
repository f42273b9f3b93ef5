package repository

import (
	"context"

	"kama_realtime/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type privacyRepository struct {
	db *gorm.DB
}

// NewPrivacyRepository 创建隐私设置 Repository
func NewPrivacyRepository(db *gorm.DB) PrivacyRepository {
	return &privacyRepository{db: db}
}

func (r *privacyRepository) FindByUserId(ctx context.Context, userId string) (*model.PrivacySettings, error) {
	var settings model.PrivacySettings
	if err := r.db.WithContext(ctx).First(&settings, "user_id = ?", userId).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询隐私设置 user_id=%s", userId)
	}
	return &settings, nil
}

// Upsert user_id 冲突时覆盖所有开关
func (r *privacyRepository) Upsert(ctx context.Context, settings *model.PrivacySettings) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_searchable", "is_invitable_to_group", "is_addable_from_group",
			"is_addable_by_anyone", "profile_visibility", "updated_at",
		}),
	}).Create(settings).Error
	if err != nil {
		return wrapDBErrorf(err, "保存隐私设置 user_id=%s", settings.UserId)
	}
	return nil
}
