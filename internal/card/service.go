package card

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/cardscan/internal/scanning"
	"github.com/zombor/cardscan/internal/statement"
)

// ErrInvalidCard is returned when a new card fails validation
var ErrInvalidCard = errors.New("invalid card")

// Processor runs the statement pipeline on one image
type Processor interface {
	Process(ctx context.Context, img scanning.Image, observe statement.Observer) (*statement.Result, error)
}

// IDGenerator generates unique IDs for cards
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles card operations
type Service struct {
	db          DB
	processor   Processor
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, processor Processor) *Service {
	return NewServiceWithDeps(db, processor, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, processor Processor, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		processor:   processor,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// CreateCard validates and stores a new card. ID and timestamps are assigned here.
func (s *Service) CreateCard(card *Card) (*Card, error) {
	card.BankName = strings.TrimSpace(card.BankName)
	if card.BankName == "" {
		return nil, fmt.Errorf("%w: bank name is required", ErrInvalidCard)
	}
	if len(card.LastFourDigits) != 4 || strings.Trim(card.LastFourDigits, "0123456789") != "" {
		return nil, fmt.Errorf("%w: last four digits must be 4 digits", ErrInvalidCard)
	}
	if card.CardType == "" {
		card.CardType = "other"
	}
	if !ValidCardType(card.CardType) {
		return nil, fmt.Errorf("%w: unknown card type %q", ErrInvalidCard, card.CardType)
	}

	now := s.timeSource.Now()
	card.ID = s.idGenerator.Generate()
	card.CreatedAt = now
	card.UpdatedAt = now

	if err := s.db.SaveCard(card); err != nil {
		return nil, fmt.Errorf("saving card to database: %w", err)
	}
	return card, nil
}

// GetCard retrieves a card by ID
func (s *Service) GetCard(id string) (*Card, error) {
	card, err := s.db.GetCard(id)
	if err != nil {
		return nil, fmt.Errorf("getting card: %w", err)
	}
	return card, nil
}

// ListCards returns all cards
func (s *Service) ListCards() ([]*Card, error) {
	cards, err := s.db.ListCards()
	if err != nil {
		return nil, fmt.Errorf("listing cards: %w", err)
	}
	return cards, nil
}

// DeleteCard removes a card
func (s *Service) DeleteCard(id string) error {
	if err := s.db.DeleteCard(id); err != nil {
		return fmt.Errorf("deleting card from database: %w", err)
	}
	return nil
}

// ScanStatement runs the pipeline on an uploaded statement without touching any card,
// so the caller can review what was found before applying it
func (s *Service) ScanStatement(ctx context.Context, filename string, data []byte, contentType string) (*statement.Result, error) {
	result, err := s.processor.Process(ctx, scanning.Image{Data: data, ContentType: contentType}, func(p statement.Progress) {
		slog.Debug("Statement progress", "filename", filename, "state", p.State, "fraction", p.Fraction)
	})
	if err != nil {
		slog.Error("Failed to scan statement",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("scanning statement: %w", err)
	}
	return result, nil
}

// ApplyStatement merges confirmed statement fields into a stored card
func (s *Service) ApplyStatement(id string, fields statement.Fields) (*Card, error) {
	card, err := s.db.GetCard(id)
	if err != nil {
		return nil, fmt.Errorf("getting card: %w", err)
	}

	if !card.Apply(fields, s.timeSource.Now()) {
		return card, nil
	}

	if err := s.db.SaveCard(card); err != nil {
		return nil, fmt.Errorf("saving card to database: %w", err)
	}
	return card, nil
}

// ScanAndApply scans a statement and merges whatever was found into the card
func (s *Service) ScanAndApply(ctx context.Context, id string, filename string, data []byte, contentType string) (*Card, *statement.Result, error) {
	// Fail fast on an unknown card before paying for recognition
	if _, err := s.db.GetCard(id); err != nil {
		return nil, nil, fmt.Errorf("getting card: %w", err)
	}

	result, err := s.ScanStatement(ctx, filename, data, contentType)
	if err != nil {
		return nil, nil, err
	}

	card, err := s.ApplyStatement(id, result.Fields)
	if err != nil {
		return nil, nil, err
	}
	return card, result, nil
}
