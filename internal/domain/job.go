package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"
	// JobStatusRejected marks a source that failed the quality gate.
	JobStatusRejected = "rejected"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"

	maxSKULength = 128
)

type CreateJobRequest struct {
	SKU        string               `json:"sku"`
	EAN        string               `json:"ean,omitempty"`
	SourceType string               `json:"source_type"`
	WebhookURL string               `json:"webhook_url,omitempty"`
	ObjectKey  string               `json:"object_key,omitempty"`
	Options    NormalizationOptions `json:"options"`
}

// NormalizationOptions override the golden-record defaults per job. Zero
// values mean "use the configured default".
type NormalizationOptions struct {
	TargetWidth          int   `json:"target_width,omitempty"`
	TargetHeight         int   `json:"target_height,omitempty"`
	Quality              int   `json:"quality,omitempty"`
	ForceWhiteBackground *bool `json:"force_white_background,omitempty"`
	EnforceQualityGate   bool  `json:"enforce_quality_gate,omitempty"`
	MinWidth             int   `json:"min_width,omitempty"`
	MinHeight            int   `json:"min_height,omitempty"`
}

type Job struct {
	ID            string
	SKU           string
	EAN           string
	Status        string
	SourceType    string
	WebhookURL    string
	ObjectKey     string
	Options       NormalizationOptions
	OutputKey     string
	PublicURL     string
	ContentID     string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Finished reports whether the job reached a terminal status.
func (j Job) Finished() bool {
	switch j.Status {
	case JobStatusSucceeded, JobStatusFailed, JobStatusRejected:
		return true
	default:
		return false
	}
}

func (r CreateJobRequest) Validate() error {
	sku := strings.TrimSpace(r.SKU)
	if sku == "" {
		return errors.New("sku is required")
	}
	if len(sku) > maxSKULength {
		return fmt.Errorf("sku must be at most %d characters", maxSKULength)
	}
	if err := validateEAN(r.EAN); err != nil {
		return err
	}

	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	return r.Options.Validate()
}

// maxTargetSide is the largest side a baseline JPEG can carry.
const maxTargetSide = 65535

func (o NormalizationOptions) Validate() error {
	if o.TargetWidth < 0 || o.TargetHeight < 0 {
		return errors.New("options.target_width and options.target_height must not be negative")
	}
	if o.TargetWidth > maxTargetSide || o.TargetHeight > maxTargetSide {
		return fmt.Errorf("options.target_width and options.target_height must not exceed %d", maxTargetSide)
	}
	if (o.TargetWidth == 0) != (o.TargetHeight == 0) {
		return errors.New("options.target_width and options.target_height must be set together")
	}
	if o.Quality < 0 || o.Quality > 100 {
		return fmt.Errorf("options.quality must be within 1..100, got %d", o.Quality)
	}
	if o.MinWidth < 0 || o.MinHeight < 0 {
		return errors.New("options.min_width and options.min_height must not be negative")
	}
	return nil
}

// validateEAN accepts an empty value or a GTIN-8/12/13/14 with a valid
// check digit.
func validateEAN(ean string) error {
	ean = strings.TrimSpace(ean)
	if ean == "" {
		return nil
	}
	switch len(ean) {
	case 8, 12, 13, 14:
	default:
		return fmt.Errorf("ean must have 8, 12, 13 or 14 digits, got %d", len(ean))
	}
	sum := 0
	for i, r := range ean {
		if !unicode.IsDigit(r) {
			return errors.New("ean must contain digits only")
		}
		if i == len(ean)-1 {
			break
		}
		d := int(r - '0')
		// Weights alternate 3,1 starting from the digit next to the check digit.
		if (len(ean)-1-i)%2 == 1 {
			d *= 3
		}
		sum += d
	}
	check := (10 - sum%10) % 10
	if int(ean[len(ean)-1]-'0') != check {
		return errors.New("ean check digit mismatch")
	}
	return nil
}
