package repository

import (
	"context"
	"errors"
	"time"

	"github.com/SzJasonHuang/PaperCuts/internal/model"

	"gorm.io/gorm"
)

// ErrSessionNotFound 会话不存在 (Handler 层据此返回 404)。
var ErrSessionNotFound = errors.New("会话不存在")

// SessionRepository 会话记录的存取接口。
// Service 层只依赖这个接口，测试时用内存实现替换。
type SessionRepository interface {
	Create(ctx context.Context, s *model.PdfSession) error
	FindByID(ctx context.Context, id string) (*model.PdfSession, error)
	Save(ctx context.Context, s *model.PdfSession) error
	Delete(ctx context.Context, id string) error
	FindExpired(ctx context.Context, before time.Time) ([]*model.PdfSession, error)
}

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, s *model.PdfSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sessionRepository) FindByID(ctx context.Context, id string) (*model.PdfSession, error) {
	var s model.PdfSession
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Save 整条记录覆盖落库 (不做字段级局部更新)。
func (r *sessionRepository) Save(ctx context.Context, s *model.PdfSession) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&model.PdfSession{}, "id = ?", id).Error
}

func (r *sessionRepository) FindExpired(ctx context.Context, before time.Time) ([]*model.PdfSession, error) {
	var list []*model.PdfSession
	err := r.db.WithContext(ctx).Where("expires_at < ?", before).Find(&list).Error
	return list, err
}
