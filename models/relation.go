package models

import (
	"time"
)

type RelationType string

const (
	RelationPostedIn        RelationType = "posted_in"
	RelationPostedBy        RelationType = "posted_by"
	RelationThreadReply     RelationType = "thread_reply"
	RelationAttachedTo      RelationType = "attached_to"
	RelationReactedBy       RelationType = "reacted_by"
	RelationReactedTo       RelationType = "reacted_to"
	RelationCustomEmojiUsed RelationType = "custom_emoji_used"
	RelationMemberOf        RelationType = "member_of"
)

type EntityRelation struct {
	ID           int64        `json:"id" db:"id"`
	FromEntityID int64        `json:"from_entity_id" db:"from_entity_id"`
	ToEntityID   int64        `json:"to_entity_id" db:"to_entity_id"`
	RelationType RelationType `json:"relation_type" db:"relation_type"`
	JobID        *int64       `json:"job_id,omitempty" db:"job_id"`
	RawData      JSONMap      `json:"raw_data,omitempty" db:"raw_data"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}
