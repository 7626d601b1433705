package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shortforge/trending-pipeline/internal/models"
)

var jobIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

// ValidateJobID checks a caller-supplied job identifier.
func ValidateJobID(jobID string) error {
	if !jobIDRegex.MatchString(jobID) {
		return &ValidationError{Message: fmt.Sprintf("invalid jobId format: %q", jobID)}
	}
	return nil
}

// ValidatePayload checks that payload carries the fields required by kind.
func ValidatePayload(kind models.JobKind, payload json.RawMessage) error {
	if !kind.Valid() {
		return &ValidationError{Message: fmt.Sprintf("unknown job kind: %q", kind)}
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &ValidationError{Message: "payload is required"}
	}

	switch kind {
	case models.JobKindRemix:
		var p models.RemixPayload
		if err := decodePayload(trimmed, &p); err != nil {
			return err
		}
		if p.Source == nil {
			return &ValidationError{Message: "remix payload requires source"}
		}
		if strings.TrimSpace(p.Source.Title) == "" && strings.TrimSpace(p.Source.Permalink) == "" {
			return &ValidationError{Message: "remix source requires title or permalink"}
		}
		if p.Source.Platform != "" && !p.Source.Platform.Valid() {
			return &ValidationError{Message: fmt.Sprintf("unknown source platform: %q", p.Source.Platform)}
		}

	case models.JobKindVideoGeneration:
		var p models.VideoGenerationPayload
		if err := decodePayload(trimmed, &p); err != nil {
			return err
		}
		if strings.TrimSpace(p.ProjectID) == "" {
			return &ValidationError{Message: "video generation payload requires projectId"}
		}

	case models.JobKindExport:
		var p models.ExportPayload
		if err := decodePayload(trimmed, &p); err != nil {
			return err
		}
		if strings.TrimSpace(p.VideoURL) == "" {
			return &ValidationError{Message: "export payload requires videoUrl"}
		}
		if len(p.Formats) == 0 {
			return &ValidationError{Message: "export payload requires at least one format"}
		}
		for _, f := range p.Formats {
			switch f {
			case models.ExportFormatVertical, models.ExportFormatSquare, models.ExportFormatLandscape:
			default:
				return &ValidationError{Message: fmt.Sprintf("unsupported export format: %q", f)}
			}
		}
	}

	return nil
}

func decodePayload(raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ValidationError{Message: "payload is not a valid object: " + err.Error()}
	}
	return nil
}
