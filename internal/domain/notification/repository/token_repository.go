package repository

import (
	"context"

	"snapfeed/internal/domain/notification/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenRepository 通知 token 存储
type TokenRepository interface {
	Upsert(ctx context.Context, token *model.Token) error
	DisableByFID(ctx context.Context, fid int64) (int64, error)
	DisableTokens(ctx context.Context, tokens []string) (int64, error)
	ListEnabled(ctx context.Context) ([]model.Token, error)
	List(ctx context.Context, offset, limit int) ([]model.Token, int64, error)
}

type tokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

// Upsert 按 token 去重；已存在时更新归属和投递地址并重新启用
func (r *tokenRepository) Upsert(ctx context.Context, token *model.Token) error {
	token.Enabled = true
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"fid", "app_key", "url", "enabled", "updated_at"}),
	}).Create(token).Error
}

// DisableByFID 停用某个 fid 的全部 token
func (r *tokenRepository) DisableByFID(ctx context.Context, fid int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Token{}).
		Where("fid = ? AND enabled = ?", fid, true).
		Update("enabled", false)
	return res.RowsAffected, res.Error
}

// DisableTokens 停用投递端返回的失效 token
func (r *tokenRepository) DisableTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&model.Token{}).
		Where("token IN ?", tokens).
		Update("enabled", false)
	return res.RowsAffected, res.Error
}

func (r *tokenRepository) ListEnabled(ctx context.Context) ([]model.Token, error) {
	var tokens []model.Token
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("url, created_at").
		Find(&tokens).Error
	return tokens, err
}

// List 分页列出全部 token，管理后台使用
func (r *tokenRepository) List(ctx context.Context, offset, limit int) ([]model.Token, int64, error) {
	var tokens []model.Token
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&model.Token{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&tokens).Error; err != nil {
		return nil, 0, err
	}
	return tokens, total, nil
}
