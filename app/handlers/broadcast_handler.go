// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/sepehrad/broadcastd/app/dto"
	businessflow "github.com/sepehrad/broadcastd/business_flow"
	"github.com/sepehrad/broadcastd/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// BroadcastHandlerInterface defines the contract for broadcast handlers
type BroadcastHandlerInterface interface {
	CreateBroadcast(c fiber.Ctx) error
	AddSetting(c fiber.Ctx) error
	DeleteSetting(c fiber.Ctx) error
	SubmitControl(c fiber.Ctx) error
	SubmitContactControl(c fiber.Ctx) error
	RegisterSource(c fiber.Ctx) error
}

// BroadcastHandler handles broadcast-related HTTP requests
type BroadcastHandler struct {
	broadcastFlow businessflow.BroadcastFlow
	settingFlow   businessflow.SettingFlow
	validator     *validator.Validate
}

// NewBroadcastHandler creates a new broadcast handler
func NewBroadcastHandler(broadcastFlow businessflow.BroadcastFlow, settingFlow businessflow.SettingFlow) *BroadcastHandler {
	return &BroadcastHandler{
		broadcastFlow: broadcastFlow,
		settingFlow:   settingFlow,
		validator:     validator.New(),
	}
}

func (h *BroadcastHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *BroadcastHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateBroadcast handles the broadcast creation process
func (h *BroadcastHandler) CreateBroadcast(c fiber.Ctx) error {
	var req dto.CreateBroadcastRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	customerID, ok := customerIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}
	req.CustomerID = customerID

	result, err := h.broadcastFlow.CreateBroadcast(h.createRequestContext(c, "/api/v1/broadcasts"), &req, metadata)
	if err != nil {
		if businessflow.IsCustomerNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer not found", "CUSTOMER_NOT_FOUND", nil)
		}
		if businessflow.IsAccountInactive(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer account is inactive", "ACCOUNT_INACTIVE", nil)
		}
		if errors.Is(err, businessflow.ErrTitleRequired) || errors.Is(err, businessflow.ErrInvalidWindow) ||
			errors.Is(err, businessflow.ErrInvalidWeekday) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_BROADCAST", nil)
		}
		if errors.Is(err, businessflow.ErrLineNumberNotFound) || errors.Is(err, businessflow.ErrLineNumberNotUsable) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_LINE_NUMBER", nil)
		}

		log.Println("Broadcast creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Broadcast creation failed", "BROADCAST_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Broadcast created successfully", fiber.Map{
		"message":    result.Message,
		"uuid":       result.UUID,
		"status":     result.Status,
		"created_at": result.CreatedAt,
	})
}

// AddSetting handles appending a sequence step to a broadcast
func (h *BroadcastHandler) AddSetting(c fiber.Ctx) error {
	broadcastUUID := c.Params("uuid")
	if broadcastUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Broadcast UUID is required", "MISSING_BROADCAST_UUID", nil)
	}

	var req dto.AddSettingRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.BroadcastUUID = broadcastUUID

	customerID, ok := customerIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}
	req.CustomerID = customerID

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.settingFlow.AddSetting(h.createRequestContext(c, "/api/v1/broadcasts/"+broadcastUUID+"/settings"), &req, metadata)
	if err != nil {
		if businessflow.IsBroadcastNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Broadcast not found", "BROADCAST_NOT_FOUND", nil)
		}
		if errors.Is(err, businessflow.ErrBroadcastTerminal) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Broadcast is in a terminal status", "BROADCAST_TERMINAL", nil)
		}
		if errors.Is(err, businessflow.ErrInvalidSettingType) || errors.Is(err, businessflow.ErrContentRequired) ||
			errors.Is(err, businessflow.ErrDayRequired) || errors.Is(err, businessflow.ErrInvalidDayInterval) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_SETTING", nil)
		}

		log.Println("Setting creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Setting creation failed", "SETTING_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Setting added successfully", fiber.Map{
		"message":  result.Message,
		"id":       result.ID,
		"priority": result.Priority,
	})
}

// DeleteSetting handles soft-deleting a sequence step
func (h *BroadcastHandler) DeleteSetting(c fiber.Ctx) error {
	broadcastUUID := c.Params("uuid")
	if broadcastUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Broadcast UUID is required", "MISSING_BROADCAST_UUID", nil)
	}
	settingID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid setting ID", "INVALID_SETTING_ID", nil)
	}

	customerID, ok := customerIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	req := dto.DeleteSettingRequest{
		BroadcastUUID: broadcastUUID,
		CustomerID:    customerID,
		SettingID:     uint(settingID),
	}
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.settingFlow.DeleteSetting(h.createRequestContext(c, "/api/v1/broadcasts/"+broadcastUUID+"/settings"), &req, metadata)
	if err != nil {
		if businessflow.IsBroadcastNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Broadcast not found", "BROADCAST_NOT_FOUND", nil)
		}
		if errors.Is(err, businessflow.ErrSettingNotFound) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Setting not found", "SETTING_NOT_FOUND", nil)
		}
		if errors.Is(err, businessflow.ErrSettingNotActive) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Setting is already deleted", "SETTING_NOT_ACTIVE", nil)
		}

		log.Println("Setting deletion failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Setting deletion failed", "SETTING_DELETION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Setting deleted successfully", fiber.Map{
		"message": result.Message,
	})
}

// SubmitControl handles broadcast-scoped control requests
func (h *BroadcastHandler) SubmitControl(c fiber.Ctx) error {
	return h.submitControl(c, nil)
}

// SubmitContactControl handles contact-scoped control requests
func (h *BroadcastHandler) SubmitContactControl(c fiber.Ctx) error {
	contactID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid contact ID", "INVALID_CONTACT_ID", nil)
	}
	id := uint(contactID)
	return h.submitControl(c, &id)
}

func (h *BroadcastHandler) submitControl(c fiber.Ctx, contactID *uint) error {
	broadcastUUID := c.Params("uuid")
	if broadcastUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Broadcast UUID is required", "MISSING_BROADCAST_UUID", nil)
	}

	var req dto.SubmitControlRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.BroadcastUUID = broadcastUUID
	req.ContactID = contactID

	customerID, ok := customerIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}
	req.CustomerID = customerID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.broadcastFlow.SubmitControl(h.createRequestContext(c, "/api/v1/broadcasts/"+broadcastUUID+"/control"), &req, metadata)
	if err != nil {
		if businessflow.IsBroadcastNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Broadcast not found", "BROADCAST_NOT_FOUND", nil)
		}
		if businessflow.IsInvalidAction(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_ACTION", nil)
		}

		log.Println("Control request failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Control request failed", "CONTROL_REQUEST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusAccepted, "Control request accepted", fiber.Map{
		"message":    result.Message,
		"request_id": result.RequestID,
		"status":     result.Status,
	})
}

// RegisterSource handles registering a bulk enrollment source
func (h *BroadcastHandler) RegisterSource(c fiber.Ctx) error {
	broadcastUUID := c.Params("uuid")
	if broadcastUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Broadcast UUID is required", "MISSING_BROADCAST_UUID", nil)
	}

	var req dto.RegisterSourceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.BroadcastUUID = broadcastUUID

	customerID, ok := customerIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}
	req.CustomerID = customerID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.broadcastFlow.RegisterSource(h.createRequestContext(c, "/api/v1/broadcasts/"+broadcastUUID+"/sources"), &req, metadata)
	if err != nil {
		if businessflow.IsBroadcastNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Broadcast not found", "BROADCAST_NOT_FOUND", nil)
		}
		if errors.Is(err, businessflow.ErrBroadcastTerminal) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Broadcast is in a terminal status", "BROADCAST_TERMINAL", nil)
		}
		if errors.Is(err, businessflow.ErrInvalidSourceType) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_SOURCE", nil)
		}

		log.Println("Source registration failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Source registration failed", "SOURCE_REGISTRATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Enrollment source registered", fiber.Map{
		"message":   result.Message,
		"source_id": result.SourceID,
		"status":    result.Status,
	})
}

func customerIDFromContext(c fiber.Ctx) (uint, bool) {
	customerID, ok := c.Locals("customer_id").(uint)
	return customerID, ok
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *BroadcastHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, _ := context.WithTimeout(context.Background(), 30*time.Second)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	return ctx
}
