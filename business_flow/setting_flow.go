// Package businessflow contains the core business logic and use cases for sequence step management
package businessflow

import (
	"context"

	"github.com/sepehrad/broadcastd/app/dto"
	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/repository"
	"github.com/sepehrad/broadcastd/schedule"
	"gorm.io/gorm"
)

// SettingFlow manages the sequence steps of a broadcast. Every mutation
// recalculates priorities synchronously in the same transaction, so
// scheduling never observes a half-ranked chain.
type SettingFlow interface {
	AddSetting(ctx context.Context, req *dto.AddSettingRequest, metadata *ClientMetadata) (*dto.AddSettingResponse, error)
	DeleteSetting(ctx context.Context, req *dto.DeleteSettingRequest, metadata *ClientMetadata) (*dto.DeleteSettingResponse, error)
}

// SettingFlowImpl implements the sequence step business flow
type SettingFlowImpl struct {
	broadcastRepo repository.BroadcastRepository
	settingRepo   repository.BroadcastSettingRepository
	db            *gorm.DB
}

// NewSettingFlow creates a new setting flow instance
func NewSettingFlow(
	broadcastRepo repository.BroadcastRepository,
	settingRepo repository.BroadcastSettingRepository,
	db *gorm.DB,
) SettingFlow {
	return &SettingFlowImpl{
		broadcastRepo: broadcastRepo,
		settingRepo:   settingRepo,
		db:            db,
	}
}

// AddSetting appends one sequence step and re-ranks the chain
func (s *SettingFlowImpl) AddSetting(ctx context.Context, req *dto.AddSettingRequest, metadata *ClientMetadata) (*dto.AddSettingResponse, error) {
	broadcast, err := s.ownedBroadcast(ctx, req.BroadcastUUID, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if broadcast.Status.IsTerminal() {
		return nil, NewBusinessError("BROADCAST_TERMINAL", "Broadcast is in a terminal status", ErrBroadcastTerminal)
	}

	setting, err := s.buildSetting(broadcast.ID, req)
	if err != nil {
		return nil, err
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.settingRepo.Save(txCtx, setting); err != nil {
			return err
		}
		ranked, err := s.rerank(txCtx, broadcast.ID)
		if err != nil {
			return err
		}
		for _, r := range ranked {
			if r.ID == setting.ID {
				setting.Priority = r.Priority
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewBusinessError("SETTING_CREATE_FAILED", "Failed to add setting", err)
	}

	return &dto.AddSettingResponse{
		Message:  "Setting added successfully",
		ID:       setting.ID,
		Priority: setting.Priority,
	}, nil
}

// buildSetting validates the request fields per setting type
func (s *SettingFlowImpl) buildSetting(broadcastID uint, req *dto.AddSettingRequest) (*models.BroadcastSetting, error) {
	if req.Type == nil {
		return nil, NewBusinessError("INVALID_SETTING_TYPE", "Setting type is required", ErrInvalidSettingType)
	}
	settingType := models.SettingType(*req.Type)
	if !settingType.Valid() {
		return nil, NewBusinessErrorf("INVALID_SETTING_TYPE", "Unknown setting type %q", ErrInvalidSettingType, *req.Type)
	}

	if req.Content == nil || *req.Content == "" {
		return nil, NewBusinessError("CONTENT_REQUIRED", "Setting content is required", ErrContentRequired)
	}

	switch settingType {
	case models.SettingTypeSchedule:
		if req.Day == nil || *req.Day < 0 {
			return nil, NewBusinessError("DAY_REQUIRED", "Scheduled steps need a non-negative day offset", ErrDayRequired)
		}
	case models.SettingTypeRecurring:
		if req.Day == nil {
			return nil, NewBusinessError("DAY_REQUIRED", "Recurring steps need a day interval", ErrDayRequired)
		}
		if *req.Day < 1 {
			return nil, NewBusinessError("INVALID_DAY_INTERVAL", "Recurring day interval must be at least 1", ErrInvalidDayInterval)
		}
	}

	if req.Time != nil {
		if _, err := schedule.ParseTimeOfDay(*req.Time); err != nil {
			return nil, NewBusinessErrorf("INVALID_SETTING_TYPE", "Malformed time of day %q", err, *req.Time)
		}
	}

	return &models.BroadcastSetting{
		BroadcastID: broadcastID,
		Type:        settingType,
		Day:         req.Day,
		Time:        req.Time,
		Content:     *req.Content,
		Status:      models.SettingStatusActive,
	}, nil
}

// DeleteSetting soft-deletes one step and re-ranks the remaining chain.
// Queue entries already built for the step are rejected at dispatch by the
// setting-active check, never retroactively removed here.
func (s *SettingFlowImpl) DeleteSetting(ctx context.Context, req *dto.DeleteSettingRequest, metadata *ClientMetadata) (*dto.DeleteSettingResponse, error) {
	broadcast, err := s.ownedBroadcast(ctx, req.BroadcastUUID, req.CustomerID)
	if err != nil {
		return nil, err
	}

	setting, err := s.settingRepo.ByID(ctx, req.SettingID)
	if err != nil {
		return nil, NewBusinessError("SETTING_LOOKUP_FAILED", "Failed to lookup setting", err)
	}
	if setting == nil || setting.BroadcastID != broadcast.ID {
		return nil, NewBusinessError("SETTING_NOT_FOUND", "Setting not found", ErrSettingNotFound)
	}
	if setting.Status != models.SettingStatusActive {
		return nil, NewBusinessError("SETTING_NOT_ACTIVE", "Setting is already deleted", ErrSettingNotActive)
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.settingRepo.SoftDelete(txCtx, setting.ID); err != nil {
			return err
		}
		_, err := s.rerank(txCtx, broadcast.ID)
		return err
	})
	if err != nil {
		return nil, NewBusinessError("SETTING_DELETE_FAILED", "Failed to delete setting", err)
	}

	return &dto.DeleteSettingResponse{Message: "Setting deleted successfully"}, nil
}

// rerank recomputes the priority chain from the active settings and persists
// it inside the caller's transaction
func (s *SettingFlowImpl) rerank(ctx context.Context, broadcastID uint) ([]*models.BroadcastSetting, error) {
	active, err := s.settingRepo.ListActive(ctx, broadcastID)
	if err != nil {
		return nil, err
	}
	ranked := schedule.Rank(active)
	if err := s.settingRepo.UpdatePriorities(ctx, ranked); err != nil {
		return nil, err
	}
	return ranked, nil
}

// ownedBroadcast resolves a broadcast by UUID and enforces ownership
func (s *SettingFlowImpl) ownedBroadcast(ctx context.Context, broadcastUUID string, customerID uint) (*models.Broadcast, error) {
	broadcast, err := s.broadcastRepo.ByUUID(ctx, broadcastUUID)
	if err != nil {
		return nil, NewBusinessError("BROADCAST_LOOKUP_FAILED", "Failed to lookup broadcast", err)
	}
	if broadcast == nil || broadcast.CustomerID != customerID {
		return nil, NewBusinessError("BROADCAST_NOT_FOUND", "Broadcast not found", ErrBroadcastNotFound)
	}
	return broadcast, nil
}
