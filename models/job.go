package models

import (
	"time"
)

type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusSuccess  JobStatus = "success"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

type JobStage string

const (
	StageExtracting  JobStage = "extracting"
	StageUsers       JobStage = "users"
	StageChannels    JobStage = "channels"
	StageMessages    JobStage = "messages"
	StageEmojis      JobStage = "emojis"
	StageReactions   JobStage = "reactions"
	StageAttachments JobStage = "attachments"
	StageExporting   JobStage = "exporting"
	StageDone        JobStage = "done"
)

// ImportStages are the stages during which file-level progress applies.
var ImportStages = []JobStage{
	StageExtracting, StageUsers, StageChannels, StageMessages,
	StageEmojis, StageReactions, StageAttachments,
}

// AllStages is the full pipeline order, persisted into job meta so clients
// can render progress without hardcoding the sequence.
var AllStages = []JobStage{
	StageExtracting, StageUsers, StageChannels, StageMessages,
	StageEmojis, StageReactions, StageAttachments, StageExporting, StageDone,
}

// StageNames returns AllStages as plain strings for JSON meta storage.
func StageNames() []string {
	out := make([]string, 0, len(AllStages))
	for _, s := range AllStages {
		out = append(out, string(s))
	}
	return out
}

func (s JobStage) IsImportStage() bool {
	for _, st := range ImportStages {
		if s == st {
			return true
		}
	}
	return false
}

// Meta keys used by the pipeline and the jobs endpoint.
const (
	MetaZipPath              = "zip_path"
	MetaExtractDir           = "extract_dir"
	MetaTotals               = "totals"
	MetaStages               = "stages"
	MetaJSONFilesTotal       = "json_files_total"
	MetaJSONFilesProcessed   = "json_files_processed"
	MetaMessagesProcessed    = "messages_processed"
	MetaReactionsProcessed   = "reactions_processed"
	MetaAttachmentsProcessed = "attachments_processed"
	MetaEmojisProcessed      = "emojis_processed"
)

type ImportJob struct {
	ID           int64     `json:"id" db:"id"`
	Status       JobStatus `json:"status" db:"status"`
	CurrentStage JobStage  `json:"current_stage" db:"current_stage"`
	Meta         JSONMap   `json:"meta" db:"meta"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Totals are the per-job entity counts computed by the import pre-pass.
type Totals struct {
	Messages    int64 `json:"messages"`
	Reactions   int64 `json:"reactions"`
	Attachments int64 `json:"attachments"`
	Emojis      int64 `json:"emojis"`
}

func (t Totals) AsMap() JSONMap {
	return JSONMap{
		"messages":    t.Messages,
		"reactions":   t.Reactions,
		"attachments": t.Attachments,
		"emojis":      t.Emojis,
	}
}
