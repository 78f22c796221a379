package service

import (
	"context"
	"errors"

	"github.com/noah-isme/attendance-ledger-api/internal/models"
	"github.com/noah-isme/attendance-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/attendance-ledger-api/pkg/errors"
)

// RosterReader is the read-only roster provider.
type RosterReader interface {
	ListClasses(ctx context.Context) ([]models.Class, error)
	GetClass(ctx context.Context, classID string) (*models.Class, error)
	ListSubjects(ctx context.Context, classID string) ([]models.Subject, error)
	GetSubject(ctx context.Context, subjectID string) (*models.Subject, error)
	ListParticipants(ctx context.Context, classID string) ([]models.Participant, error)
	GetParticipant(ctx context.Context, classID, participantID string) (*models.Participant, error)
}

// RosterService exposes the roster to handlers.
type RosterService struct {
	roster RosterReader
}

// NewRosterService constructs a roster service.
func NewRosterService(roster RosterReader) *RosterService {
	return &RosterService{roster: roster}
}

// ListClasses returns every class.
func (s *RosterService) ListClasses(ctx context.Context) ([]models.Class, error) {
	return s.roster.ListClasses(ctx)
}

// ListSubjects returns the subjects of an existing class.
func (s *RosterService) ListSubjects(ctx context.Context, classID string) ([]models.Subject, error) {
	if err := s.ensureClass(ctx, classID); err != nil {
		return nil, err
	}
	return s.roster.ListSubjects(ctx, classID)
}

// ListParticipants returns the participants of an existing class in roster order.
func (s *RosterService) ListParticipants(ctx context.Context, classID string) ([]models.Participant, error) {
	if err := s.ensureClass(ctx, classID); err != nil {
		return nil, err
	}
	return s.roster.ListParticipants(ctx, classID)
}

func (s *RosterService) ensureClass(ctx context.Context, classID string) error {
	if _, err := s.roster.GetClass(ctx, classID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return err
	}
	return nil
}
