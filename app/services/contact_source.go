package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/repository"
	"github.com/xuri/excelize/v2"
)

// ContactSourceService expands a bulk enrollment source into contact IDs in
// cursor batches: every call returns active contact IDs strictly greater than
// afterID, ascending, at most limit of them. An empty batch means the source
// is exhausted.
type ContactSourceService interface {
	FindActiveBatch(ctx context.Context, source *models.EnrollmentSource, afterID uint, limit int) ([]uint, error)
}

// ContactSourceServiceImpl implements ContactSourceService over the contact
// repository for list/segment/tag sources and over spreadsheet files for
// imported sources
type ContactSourceServiceImpl struct {
	contactRepo repository.ContactRepository
}

// NewContactSourceService creates a new contact source service
func NewContactSourceService(contactRepo repository.ContactRepository) ContactSourceService {
	return &ContactSourceServiceImpl{contactRepo: contactRepo}
}

// FindActiveBatch dispatches on the source type
func (s *ContactSourceServiceImpl) FindActiveBatch(ctx context.Context, source *models.EnrollmentSource, afterID uint, limit int) ([]uint, error) {
	switch source.Type {
	case models.SourceTypeList, models.SourceTypeSegment, models.SourceTypeTag:
		return s.findGroupedBatch(ctx, source, afterID, limit)
	case models.SourceTypeSpreadsheet:
		return s.findSpreadsheetBatch(source.SourceRef, afterID, limit)
	default:
		return nil, fmt.Errorf("unknown source type %q", source.Type)
	}
}

func (s *ContactSourceServiceImpl) findGroupedBatch(ctx context.Context, source *models.EnrollmentSource, afterID uint, limit int) ([]uint, error) {
	ref, err := strconv.ParseUint(source.SourceRef, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed source ref %q: %w", source.SourceRef, err)
	}
	groupID := uint(ref)

	var filter models.ContactFilter
	switch source.Type {
	case models.SourceTypeList:
		filter.ListID = &groupID
	case models.SourceTypeSegment:
		filter.SegmentID = &groupID
	case models.SourceTypeTag:
		filter.TagID = &groupID
	}

	contacts, err := s.contactRepo.ListActiveBatch(ctx, filter, afterID, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// findSpreadsheetBatch reads contact IDs from the first column of the first
// sheet. IDs are sorted so the cursor contract holds regardless of row order
// in the file; a header row or malformed cell is skipped, not an error.
func (s *ContactSourceServiceImpl) findSpreadsheetBatch(path string, afterID uint, limit int) ([]uint, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet %q: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet %q has no sheets", path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read spreadsheet %q: %w", path, err)
	}

	var ids []uint
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		v, err := strconv.ParseUint(row[0], 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(v))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	batch := make([]uint, 0, limit)
	for _, id := range ids {
		if id <= afterID {
			continue
		}
		batch = append(batch, id)
		if len(batch) == limit {
			break
		}
	}
	return batch, nil
}
