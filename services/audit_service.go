package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/repository"
)

// AuditService records and lists moderation events.
type AuditService interface {
	// Record is best-effort: a failed audit write is logged, never
	// propagated, so moderation actions don't fail on logging.
	Record(ctx context.Context, actorID, action, targetID string, detail any)
	List(ctx context.Context, limit, offset int) ([]models.AuditEntry, error)
}

type auditService struct {
	guildID   string
	auditRepo repository.AuditRepository
	metaRepo  repository.MetaRepository
}

// NewAuditService creates the audit logger.
func NewAuditService(guildID string, auditRepo repository.AuditRepository, metaRepo repository.MetaRepository) AuditService {
	return &auditService{guildID: guildID, auditRepo: auditRepo, metaRepo: metaRepo}
}

func (s *auditService) Record(ctx context.Context, actorID, action, targetID string, detail any) {
	var detailJSON string
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err != nil {
			log.Printf("[audit] failed to marshal detail for %s: %v", action, err)
		} else {
			detailJSON = string(raw)
		}
	}

	settings, err := s.metaRepo.GetSettings(ctx)
	if err != nil {
		log.Printf("[audit] failed to read settings, using defaults: %v", err)
		settings = models.DefaultSettings()
	}

	entry := &models.AuditEntry{
		ID:       uuid.NewString(),
		GuildID:  s.guildID,
		ActorID:  actorID,
		Action:   action,
		TargetID: targetID,
		Detail:   detailJSON,
	}
	if err := s.auditRepo.Add(ctx, entry, settings.AuditMaxEntries); err != nil {
		log.Printf("[audit] failed to record %s: %v", action, err)
	}
}

func (s *auditService) List(ctx context.Context, limit, offset int) ([]models.AuditEntry, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := s.auditRepo.List(ctx, s.guildID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return entries, nil
}
