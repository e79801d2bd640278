// Package testing provides test utilities and database setup for testing the broadcast engine
package testing

import (
	"fmt"
	"math/rand"

	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestCustomer creates an active customer with a funded wallet
func (tf *TestFixtures) CreateTestCustomer(balance int64) (*models.Customer, error) {
	customer := &models.Customer{
		Name:     fmt.Sprintf("Test Customer %d", rand.Intn(1000000)),
		IsActive: utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(customer).Error; err != nil {
		return nil, fmt.Errorf("failed to create test customer: %w", err)
	}

	wallet := &models.Wallet{
		CustomerID: customer.ID,
		Balance:    balance,
	}
	if err := tf.DB.DB.Create(wallet).Error; err != nil {
		return nil, fmt.Errorf("failed to create test wallet: %w", err)
	}

	return customer, nil
}

// CreateTestLineNumber creates a verified, active line number for the customer
func (tf *TestFixtures) CreateTestLineNumber(customerID uint) (*models.LineNumber, error) {
	lineNumber := &models.LineNumber{
		CustomerID: customerID,
		Number:     fmt.Sprintf("+9830%07d", rand.Intn(10000000)),
		IsVerified: utils.ToPtr(true),
		IsActive:   utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(lineNumber).Error; err != nil {
		return nil, fmt.Errorf("failed to create test line number: %w", err)
	}
	return lineNumber, nil
}

// CreateTestContact creates an active contact for the customer
func (tf *TestFixtures) CreateTestContact(customerID uint, listID *uint) (*models.Contact, error) {
	contact := &models.Contact{
		CustomerID:  customerID,
		PhoneNumber: fmt.Sprintf("+989%09d", rand.Intn(1000000000)),
		IsActive:    utils.ToPtr(true),
		ListID:      listID,
	}
	if err := tf.DB.DB.Create(contact).Error; err != nil {
		return nil, fmt.Errorf("failed to create test contact: %w", err)
	}
	return contact, nil
}

// CreateTestBroadcast creates a broadcast with a wide-open delivery window
func (tf *TestFixtures) CreateTestBroadcast(customerID, lineNumberID uint, status models.BroadcastStatus) (*models.Broadcast, error) {
	broadcast := &models.Broadcast{
		CustomerID:   customerID,
		Title:        fmt.Sprintf("Test Broadcast %d", rand.Intn(1000000)),
		Status:       status,
		StartTime:    "00:00",
		EndTime:      "23:59",
		Timezone:     "UTC",
		LineNumberID: lineNumberID,
	}
	if err := tf.DB.DB.Create(broadcast).Error; err != nil {
		return nil, fmt.Errorf("failed to create test broadcast: %w", err)
	}
	return broadcast, nil
}

// CreateTestSetting creates one sequence step on the broadcast
func (tf *TestFixtures) CreateTestSetting(broadcastID uint, settingType models.SettingType, day *int, priority int) (*models.BroadcastSetting, error) {
	setting := &models.BroadcastSetting{
		BroadcastID: broadcastID,
		Type:        settingType,
		Day:         day,
		Content:     fmt.Sprintf("Test message %d", rand.Intn(1000000)),
		Priority:    priority,
		Status:      models.SettingStatusActive,
	}
	if err := tf.DB.DB.Create(setting).Error; err != nil {
		return nil, fmt.Errorf("failed to create test setting: %w", err)
	}
	return setting, nil
}

// CreateTestEnrollment enrolls the contact in the broadcast
func (tf *TestFixtures) CreateTestEnrollment(broadcastID, contactID uint, status models.EnrollmentStatus) (*models.BroadcastContact, error) {
	enrollment := &models.BroadcastContact{
		BroadcastID: broadcastID,
		ContactID:   contactID,
		Status:      status,
		EntryDate:   utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(enrollment).Error; err != nil {
		return nil, fmt.Errorf("failed to create test enrollment: %w", err)
	}
	return enrollment, nil
}

// CreateTestQueueEntry creates a pending queue entry due at the given instant
func (tf *TestFixtures) CreateTestQueueEntry(broadcastID, contactID, settingID uint) (*models.QueueEntry, error) {
	entry := &models.QueueEntry{
		BroadcastID: broadcastID,
		ContactID:   contactID,
		SettingID:   settingID,
		ScheduledAt: utils.UTCNow(),
		Status:      models.QueueEntryStatusPending,
	}
	if err := tf.DB.DB.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create test queue entry: %w", err)
	}
	return entry, nil
}
