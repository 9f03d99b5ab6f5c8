package models

import (
	"time"
)

type EntityType string

const (
	EntityTypeUser        EntityType = "user"
	EntityTypeChannel     EntityType = "channel"
	EntityTypeMessage     EntityType = "message"
	EntityTypeReaction    EntityType = "reaction"
	EntityTypeAttachment  EntityType = "attachment"
	EntityTypeCustomEmoji EntityType = "custom_emoji"
)

// JobScoped reports whether rows of this type are duplicated per import job.
// Global types (user, channel, custom_emoji) are shared across jobs and
// always carry a NULL job_id.
func (t EntityType) JobScoped() bool {
	switch t {
	case EntityTypeMessage, EntityTypeReaction, EntityTypeAttachment:
		return true
	}
	return false
}

// ExportOrder is the type-barrier sequence: every type is fully exported
// before the next one starts.
var ExportOrder = []EntityType{
	EntityTypeUser,
	EntityTypeCustomEmoji,
	EntityTypeChannel,
	EntityTypeAttachment,
	EntityTypeMessage,
	EntityTypeReaction,
}

type MappingStatus string

const (
	MappingStatusPending MappingStatus = "pending"
	MappingStatusSkipped MappingStatus = "skipped"
	MappingStatusFailed  MappingStatus = "failed"
	MappingStatusSuccess MappingStatus = "success"
)

// ExportableStatuses are the statuses an export pass picks up. Rows already
// in success are never re-exported.
var ExportableStatuses = []MappingStatus{MappingStatusPending, MappingStatusSkipped, MappingStatusFailed}

type Entity struct {
	ID           int64         `json:"id" db:"id"`
	EntityType   EntityType    `json:"entity_type" db:"entity_type"`
	SlackID      string        `json:"slack_id" db:"slack_id"`
	MattermostID string        `json:"mattermost_id,omitempty" db:"mattermost_id"`
	RawData      JSONMap       `json:"raw_data" db:"raw_data"`
	Status       MappingStatus `json:"status" db:"status"`
	ErrorMessage string        `json:"error_message,omitempty" db:"error_message"`
	JobID        *int64        `json:"job_id,omitempty" db:"job_id"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}
