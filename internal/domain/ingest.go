package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefaultMaxBatchReports caps the number of reports in one sync batch.
const DefaultMaxBatchReports = 100

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("lat", func(fl validator.FieldLevel) bool {
		lat := fl.Field().Float()
		return lat >= -90 && lat <= 90
	})
	_ = v.RegisterValidation("lng", func(fl validator.FieldLevel) bool {
		lng := fl.Field().Float()
		return lng >= -180 && lng <= 180
	})
	return v
}

// wireBatch is the JSON shape published by the API layer.
type wireBatch struct {
	BatchID string       `json:"batch_id"`
	Reports []wireReport `json:"reports"`
}

// wireReport uses pointers for coordinates so a missing field is
// distinguishable from the equator or the prime meridian.
type wireReport struct {
	ID           string     `json:"id"`
	Latitude     *float64   `json:"latitude"`
	Longitude    *float64   `json:"longitude"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	DisasterType string     `json:"disaster_type"`
	Needs        []string   `json:"needs"`
	Priority     int        `json:"priority"`
	SubmittedAt  *time.Time `json:"submitted_at"`
}

// ParseBatch decodes a RawBatch into a Batch. It assigns missing ids, stamps
// every report with the batch id, fills missing timestamps and validates each
// report. Reports failing field validation are moved to Batch.Rejected;
// reports with out-of-range coordinates are kept so they can still be scored.
func ParseBatch(raw RawBatch, maxReports int) (Batch, error) {
	var wb wireBatch
	if err := json.Unmarshal(raw.Value, &wb); err != nil {
		return Batch{}, fmt.Errorf("parse report batch: %w", err)
	}
	if maxReports <= 0 {
		maxReports = DefaultMaxBatchReports
	}
	if len(wb.Reports) > maxReports {
		return Batch{}, fmt.Errorf("%w: %d reports, max %d", ErrBatchTooLarge, len(wb.Reports), maxReports)
	}

	batch := Batch{
		ID:      strings.TrimSpace(wb.BatchID),
		Reports: make([]Report, 0, len(wb.Reports)),
	}
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}

	fallback := raw.Timestamp
	if fallback.IsZero() {
		fallback = clock.Now()
	}

	seen := make(map[string]bool, len(wb.Reports))
	for _, wr := range wb.Reports {
		r := wr.toReport(batch.ID, fallback)
		if seen[r.ID] {
			batch.reject(r.ID, fmt.Errorf("%w: duplicate report id %q", ErrInvalidReport, r.ID))
			continue
		}
		seen[r.ID] = true

		if err := ValidateReport(r); err != nil && !errors.Is(err, ErrInvalidCoordinate) {
			batch.reject(r.ID, err)
			continue
		}
		batch.Reports = append(batch.Reports, r)
	}
	return batch, nil
}

func (b *Batch) reject(id string, err error) {
	if b.Rejected == nil {
		b.Rejected = make(map[string]error)
	}
	b.Rejected[id] = err
}

func (wr wireReport) toReport(batchID string, fallback time.Time) Report {
	r := Report{
		ID:            strings.TrimSpace(wr.ID),
		Latitude:      math.NaN(),
		Longitude:     math.NaN(),
		Title:         strings.TrimSpace(wr.Title),
		Description:   strings.TrimSpace(wr.Description),
		DisasterType:  strings.ToLower(strings.TrimSpace(wr.DisasterType)),
		Needs:         wr.Needs,
		Priority:      wr.Priority,
		SubmittedAt:   fallback.UTC(),
		SourceBatchID: batchID,
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if wr.Latitude != nil {
		r.Latitude = *wr.Latitude
	}
	if wr.Longitude != nil {
		r.Longitude = *wr.Longitude
	}
	if wr.SubmittedAt != nil && !wr.SubmittedAt.IsZero() {
		r.SubmittedAt = wr.SubmittedAt.UTC()
	}
	return r
}

// ValidateReport checks a report's fields. Coordinate failures wrap
// ErrInvalidCoordinate; every other failure wraps ErrInvalidReport and takes
// precedence.
func ValidateReport(r Report) error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidReport)
	}
	if r.SubmittedAt.IsZero() {
		return fmt.Errorf("%w: submitted_at is required", ErrInvalidReport)
	}

	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}

	var coordErr error
	for _, fe := range verrs {
		switch fe.Tag() {
		case "lat", "lng":
			if coordErr == nil {
				coordErr = fmt.Errorf("%w: %s=%v", ErrInvalidCoordinate, strings.ToLower(fe.Field()), fe.Value())
			}
		default:
			return fmt.Errorf("%w: %s failed %q", ErrInvalidReport, strings.ToLower(fe.Field()), fe.Tag())
		}
	}
	return coordErr
}

// ValidateContent checks only the free-text fields and priority of a report,
// against the same rules as ValidateReport. It suits single submissions that
// carry no id, timestamp or location yet.
func ValidateContent(r Report) error {
	err := validate.StructPartial(r, "Title", "Description", "DisasterType", "Priority")
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed %q", ErrInvalidReport, strings.ToLower(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidReport, err)
}
