// Package businessflow contains the core business logic and use cases for broadcast management
package businessflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sepehrad/broadcastd/app/dto"
	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/repository"
	"github.com/sepehrad/broadcastd/schedule"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// BroadcastFlow defines the control-plane interface for broadcast management:
// creating broadcasts, enqueueing control requests, and registering bulk
// enrollment sources. The engine itself only ever reads the rows these
// operations produce.
type BroadcastFlow interface {
	CreateBroadcast(ctx context.Context, req *dto.CreateBroadcastRequest, metadata *ClientMetadata) (*dto.CreateBroadcastResponse, error)
	SubmitControl(ctx context.Context, req *dto.SubmitControlRequest, metadata *ClientMetadata) (*dto.SubmitControlResponse, error)
	RegisterSource(ctx context.Context, req *dto.RegisterSourceRequest, metadata *ClientMetadata) (*dto.RegisterSourceResponse, error)
}

// BroadcastFlowImpl implements the broadcast management business flow
type BroadcastFlowImpl struct {
	broadcastRepo  repository.BroadcastRepository
	customerRepo   repository.CustomerRepository
	lineNumberRepo repository.LineNumberRepository
	controlRepo    repository.ControlRequestRepository
	sourceRepo     repository.EnrollmentSourceRepository
	db             *gorm.DB
}

// NewBroadcastFlow creates a new broadcast flow instance
func NewBroadcastFlow(
	broadcastRepo repository.BroadcastRepository,
	customerRepo repository.CustomerRepository,
	lineNumberRepo repository.LineNumberRepository,
	controlRepo repository.ControlRequestRepository,
	sourceRepo repository.EnrollmentSourceRepository,
	db *gorm.DB,
) BroadcastFlow {
	return &BroadcastFlowImpl{
		broadcastRepo:  broadcastRepo,
		customerRepo:   customerRepo,
		lineNumberRepo: lineNumberRepo,
		controlRepo:    controlRepo,
		sourceRepo:     sourceRepo,
		db:             db,
	}
}

// CreateBroadcast validates the delivery window and creates the broadcast in
// active status. Nothing is scheduled until a resume control request moves it
// to running.
func (s *BroadcastFlowImpl) CreateBroadcast(ctx context.Context, req *dto.CreateBroadcastRequest, metadata *ClientMetadata) (*dto.CreateBroadcastResponse, error) {
	customer, err := s.customerRepo.ByID(ctx, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}
	if customer == nil {
		return nil, NewBusinessError("CUSTOMER_NOT_FOUND", "Customer not found", ErrCustomerNotFound)
	}
	if !utils.IsTrue(customer.IsActive) {
		return nil, NewBusinessError("ACCOUNT_INACTIVE", "Customer account is inactive", ErrAccountInactive)
	}

	broadcast, err := s.buildBroadcast(req)
	if err != nil {
		return nil, err
	}

	lineNumber, err := s.lineNumberRepo.ByID(ctx, broadcast.LineNumberID)
	if err != nil {
		return nil, NewBusinessError("LINE_NUMBER_LOOKUP_FAILED", "Failed to lookup line number", err)
	}
	if lineNumber == nil {
		return nil, NewBusinessError("LINE_NUMBER_NOT_FOUND", "Line number not found", ErrLineNumberNotFound)
	}
	if !utils.IsTrue(lineNumber.IsVerified) || !utils.IsTrue(lineNumber.IsActive) {
		return nil, NewBusinessError("LINE_NUMBER_NOT_USABLE", "Line number is not verified or not active", ErrLineNumberNotUsable)
	}

	if err := s.broadcastRepo.Save(ctx, broadcast); err != nil {
		return nil, NewBusinessError("BROADCAST_CREATE_FAILED", "Failed to create broadcast", err)
	}

	return &dto.CreateBroadcastResponse{
		Message:   "Broadcast created successfully",
		UUID:      broadcast.UUID.String(),
		Status:    broadcast.Status.String(),
		CreatedAt: broadcast.CreatedAt.Format(time.RFC3339),
	}, nil
}

// buildBroadcast validates the request fields and assembles the model. The
// window is validated by compiling it the same way scheduling will.
func (s *BroadcastFlowImpl) buildBroadcast(req *dto.CreateBroadcastRequest) (*models.Broadcast, error) {
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		return nil, NewBusinessError("TITLE_REQUIRED", "Broadcast title is required", ErrTitleRequired)
	}
	if req.StartTime == nil || req.EndTime == nil {
		return nil, NewBusinessError("INVALID_WINDOW", "Start and end time are required", ErrInvalidWindow)
	}
	if req.LineNumberID == nil {
		return nil, NewBusinessError("LINE_NUMBER_REQUIRED", "Line number is required", ErrLineNumberNotFound)
	}
	if req.FromDate != nil && req.ToDate != nil && req.ToDate.Before(*req.FromDate) {
		return nil, NewBusinessError("INVALID_WINDOW", "Date range end precedes its start", ErrInvalidWindow)
	}
	for _, name := range req.Weekdays {
		if _, ok := schedule.ParseWeekday(name); !ok {
			return nil, NewBusinessErrorf("INVALID_WEEKDAY", "Unknown weekday %q", ErrInvalidWeekday, name)
		}
	}

	timezone := "UTC"
	if req.Timezone != nil && *req.Timezone != "" {
		timezone = *req.Timezone
	}

	broadcast := &models.Broadcast{
		CustomerID:   req.CustomerID,
		Title:        strings.TrimSpace(*req.Title),
		Status:       models.BroadcastStatusActive,
		FromDate:     req.FromDate,
		ToDate:       req.ToDate,
		Weekdays:     pq.StringArray(req.Weekdays),
		StartTime:    *req.StartTime,
		EndTime:      *req.EndTime,
		Timezone:     timezone,
		LineNumberID: *req.LineNumberID,
	}

	if _, err := schedule.WindowOf(broadcast); err != nil {
		return nil, NewBusinessError("INVALID_WINDOW", fmt.Sprintf("Delivery window is invalid: %v", err), ErrInvalidWindow)
	}

	return broadcast, nil
}

// SubmitControl enqueues one pause/resume/stop/opt-out/unsubscribe request as
// a pending row for the control poller. The scope is contact when the request
// carries a contact ID, broadcast otherwise.
func (s *BroadcastFlowImpl) SubmitControl(ctx context.Context, req *dto.SubmitControlRequest, metadata *ClientMetadata) (*dto.SubmitControlResponse, error) {
	broadcast, err := s.ownedBroadcast(ctx, req.BroadcastUUID, req.CustomerID)
	if err != nil {
		return nil, err
	}

	if req.Action == nil {
		return nil, NewBusinessError("INVALID_ACTION", "Control action is required", ErrInvalidAction)
	}
	action := models.ControlAction(*req.Action)
	if !action.Valid() {
		return nil, NewBusinessErrorf("INVALID_ACTION", "Unknown control action %q", ErrInvalidAction, *req.Action)
	}

	scope := models.ControlScopeBroadcast
	if req.ContactID != nil {
		scope = models.ControlScopeContact
	}
	if !action.ValidForScope(scope) {
		return nil, NewBusinessErrorf("INVALID_ACTION", "Action %q is not valid for %s scope", ErrInvalidAction, action, scope)
	}

	request := &models.ControlRequest{
		Scope:       scope,
		Action:      action,
		BroadcastID: broadcast.ID,
		ContactID:   req.ContactID,
		Status:      models.ControlRequestStatusPending,
	}
	if err := s.controlRepo.Save(ctx, request); err != nil {
		return nil, NewBusinessError("CONTROL_REQUEST_CREATE_FAILED", "Failed to enqueue control request", err)
	}

	return &dto.SubmitControlResponse{
		Message:   "Control request accepted",
		RequestID: request.ID,
		Status:    string(request.Status),
	}, nil
}

// RegisterSource records one bulk enrollment source as a pending row for the
// contact-entry poller
func (s *BroadcastFlowImpl) RegisterSource(ctx context.Context, req *dto.RegisterSourceRequest, metadata *ClientMetadata) (*dto.RegisterSourceResponse, error) {
	broadcast, err := s.ownedBroadcast(ctx, req.BroadcastUUID, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if broadcast.Status.IsTerminal() {
		return nil, NewBusinessError("BROADCAST_TERMINAL", "Broadcast is in a terminal status", ErrBroadcastTerminal)
	}

	if req.Type == nil {
		return nil, NewBusinessError("INVALID_SOURCE_TYPE", "Source type is required", ErrInvalidSourceType)
	}
	sourceType := models.SourceType(*req.Type)
	if !sourceType.Valid() {
		return nil, NewBusinessErrorf("INVALID_SOURCE_TYPE", "Unknown source type %q", ErrInvalidSourceType, *req.Type)
	}
	if req.SourceRef == nil || strings.TrimSpace(*req.SourceRef) == "" {
		return nil, NewBusinessError("SOURCE_REF_REQUIRED", "Source reference is required", ErrInvalidSourceType)
	}

	source := &models.EnrollmentSource{
		BroadcastID: broadcast.ID,
		Type:        sourceType,
		SourceRef:   strings.TrimSpace(*req.SourceRef),
		Status:      models.SourceStatusPending,
	}
	if err := s.sourceRepo.Save(ctx, source); err != nil {
		return nil, NewBusinessError("SOURCE_CREATE_FAILED", "Failed to register enrollment source", err)
	}

	return &dto.RegisterSourceResponse{
		Message:  "Enrollment source registered",
		SourceID: source.ID,
		Status:   string(source.Status),
	}, nil
}

// ownedBroadcast resolves a broadcast by UUID and enforces ownership
func (s *BroadcastFlowImpl) ownedBroadcast(ctx context.Context, broadcastUUID string, customerID uint) (*models.Broadcast, error) {
	broadcast, err := s.broadcastRepo.ByUUID(ctx, broadcastUUID)
	if err != nil {
		return nil, NewBusinessError("BROADCAST_LOOKUP_FAILED", "Failed to lookup broadcast", err)
	}
	if broadcast == nil || broadcast.CustomerID != customerID {
		return nil, NewBusinessError("BROADCAST_NOT_FOUND", "Broadcast not found", ErrBroadcastNotFound)
	}
	return broadcast, nil
}
