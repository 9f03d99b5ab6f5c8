package entity

import (
	"context"

	"github.com/insoln/slack-mm2/models"
)

// Relation-walk helpers used by exporters. Each returns nil without error
// when the relation or its endpoint does not exist.

// MessageChannel returns the channel a message was posted in.
func (s *Service) MessageChannel(ctx context.Context, message *models.Entity) (*models.Entity, error) {
	found, err := s.relations.GetTargetEntity(ctx, message.ID, models.RelationPostedIn, models.EntityTypeChannel)
	if err != nil {
		return nil, err
	}
	if e, ok := found.Get(); ok {
		return e, nil
	}
	return nil, nil
}

// MessageAuthor returns the user that posted a message.
func (s *Service) MessageAuthor(ctx context.Context, message *models.Entity) (*models.Entity, error) {
	found, err := s.relations.GetSourceEntity(ctx, message.ID, models.RelationPostedBy, models.EntityTypeUser)
	if err != nil {
		return nil, err
	}
	if e, ok := found.Get(); ok {
		return e, nil
	}
	return nil, nil
}

// ThreadParent returns the root message of a reply's thread.
func (s *Service) ThreadParent(ctx context.Context, message *models.Entity) (*models.Entity, error) {
	found, err := s.relations.GetTargetEntity(ctx, message.ID, models.RelationThreadReply, models.EntityTypeMessage)
	if err != nil {
		return nil, err
	}
	if e, ok := found.Get(); ok {
		return e, nil
	}
	return nil, nil
}

// MessageAttachments returns the attachments linked to a message, oldest
// row first.
func (s *Service) MessageAttachments(ctx context.Context, message *models.Entity) ([]*models.Entity, error) {
	return s.relations.ListSourceEntities(ctx, message.ID, models.RelationAttachedTo)
}

// AttachmentMessage returns the message an attachment belongs to.
func (s *Service) AttachmentMessage(ctx context.Context, attachment *models.Entity) (*models.Entity, error) {
	found, err := s.relations.GetTargetEntity(ctx, attachment.ID, models.RelationAttachedTo, models.EntityTypeMessage)
	if err != nil {
		return nil, err
	}
	if e, ok := found.Get(); ok {
		return e, nil
	}
	return nil, nil
}

// ReactionMessage returns the message a reaction targets.
func (s *Service) ReactionMessage(ctx context.Context, reaction *models.Entity) (*models.Entity, error) {
	found, err := s.relations.GetTargetEntity(ctx, reaction.ID, models.RelationReactedTo, models.EntityTypeMessage)
	if err != nil {
		return nil, err
	}
	if e, ok := found.Get(); ok {
		return e, nil
	}
	return nil, nil
}

// ReactionUser returns the user that reacted.
func (s *Service) ReactionUser(ctx context.Context, reaction *models.Entity) (*models.Entity, error) {
	found, err := s.relations.GetSourceEntity(ctx, reaction.ID, models.RelationReactedBy, models.EntityTypeUser)
	if err != nil {
		return nil, err
	}
	if e, ok := found.Get(); ok {
		return e, nil
	}
	return nil, nil
}

// ReactionEmoji returns the custom emoji entity a reaction uses, when the
// shortcode resolved to one.
func (s *Service) ReactionEmoji(ctx context.Context, reaction *models.Entity) (*models.Entity, error) {
	found, err := s.relations.GetTargetEntity(ctx, reaction.ID, models.RelationCustomEmojiUsed, models.EntityTypeCustomEmoji)
	if err != nil {
		return nil, err
	}
	if e, ok := found.Get(); ok {
		return e, nil
	}
	return nil, nil
}
