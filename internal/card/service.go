package card

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/karthikbanoor/cardvault/internal/scanning"
)

// IDGenerator generates unique IDs for cards and folders
type IDGenerator interface {
	Generate() string
}

// TokenGenerator generates unguessable public share tokens
type TokenGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates IDs using UnixNano timestamp
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// defaultTokenGenerator generates UUID share tokens
type defaultTokenGenerator struct{}

func (g *defaultTokenGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Filter narrows a card listing. Zero values mean "no constraint".
type Filter struct {
	FolderID     string
	Tag          string
	FavoriteOnly bool
	Query        string
}

// CardPatch is a partial update; nil fields are left untouched.
type CardPatch struct {
	Fields   *scanning.ContactRecord `json:"extracted_data"`
	Notes    *string                 `json:"notes"`
	Tags     *[]string               `json:"tags"`
	FolderID *string                 `json:"folder_id"`
	Favorite *bool                   `json:"favorite"`
}

// Service handles card operations
type Service struct {
	db        DB
	extractor scanning.Extractor
	storage   Storage
	orgID     string
	idGen     IDGenerator
	tokenGen  TokenGenerator
	timeSrc   TimeSource
}

// NewService creates a new Service with default generators and time source
func NewService(db DB, extractor scanning.Extractor, storage Storage, orgID string) *Service {
	return NewServiceWithDeps(db, extractor, storage, orgID,
		&defaultIDGenerator{}, &defaultTokenGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor scanning.Extractor, storage Storage, orgID string,
	idGen IDGenerator, tokenGen TokenGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:        db,
		extractor: extractor,
		storage:   storage,
		orgID:     orgID,
		idGen:     idGen,
		tokenGen:  tokenGen,
		timeSrc:   timeSrc,
	}
}

// ScanCard runs one scan attempt over an uploaded image: normalize,
// extract, parse. The normalized image is stored and an unsaved draft
// card is returned for review; nothing is written to the database until
// the caller accepts the draft with CreateCard.
func (s *Service) ScanCard(ctx context.Context, filename string, data []byte, contentType string) (*Card, error) {
	orch := scanning.NewOrchestrator(s.extractor)
	attempt := orch.Scan(ctx, data, contentType)
	if attempt.State == scanning.StateFailed {
		slog.Error("Failed to scan card",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", attempt.Err,
		)
		return nil, attempt.Err
	}

	id := s.idGen.Generate()
	now := s.timeSrc.Now()

	savedPath, err := s.storage.Save(id+".jpg", attempt.Image.Bytes())
	if err != nil {
		return nil, fmt.Errorf("saving image: %w", err)
	}

	return &Card{
		ID:             id,
		OrganizationID: s.orgID,
		Fields:         attempt.Record,
		ImagePath:      savedPath,
		ContentType:    attempt.Image.MIMEType(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ExtractFields implements the scan-proxy boundary over an already
// normalized base64 payload: one extraction call, one parse, no
// persistence. The payload must be the stripped base64 body, never a
// data URI.
func (s *Service) ExtractFields(ctx context.Context, payload string) (scanning.ContactRecord, error) {
	if payload == "" {
		return scanning.ContactRecord{}, fmt.Errorf("no image provided")
	}

	text, err := s.extractor.Extract(ctx, payload, "image/jpeg")
	if err != nil {
		return scanning.ContactRecord{}, err
	}
	return scanning.ParseContact(text), nil
}

// CreateCard persists a card: either a reviewed scan draft or a manual
// entry. Manual entries get a fresh ID and timestamps.
func (s *Service) CreateCard(card *Card) (*Card, error) {
	now := s.timeSrc.Now()
	if card.ID == "" {
		card.ID = s.idGen.Generate()
		card.CreatedAt = now
	}
	card.OrganizationID = s.orgID
	card.UpdatedAt = now

	if card.FolderID != "" {
		if _, err := s.db.GetFolder(card.FolderID); err != nil {
			return nil, fmt.Errorf("resolving folder: %w", err)
		}
	}

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

// ListCards returns the organization's cards matching the filter,
// newest first.
func (s *Service) ListCards(filter Filter) ([]*Card, error) {
	cards, err := s.db.ListCards()
	if err != nil {
		return nil, fmt.Errorf("listing cards: %w", err)
	}

	filtered := make([]*Card, 0, len(cards))
	for _, c := range cards {
		if c.OrganizationID != s.orgID {
			continue
		}
		if filter.FolderID != "" && c.FolderID != filter.FolderID {
			continue
		}
		if filter.Tag != "" && !c.HasTag(filter.Tag) {
			continue
		}
		if filter.FavoriteOnly && !c.Favorite {
			continue
		}
		if filter.Query != "" && !matchesQuery(c, filter.Query) {
			continue
		}
		filtered = append(filtered, c)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})
	return filtered, nil
}

// matchesQuery does the dashboard search: a case-insensitive substring
// match over name, company and job title.
func matchesQuery(c *Card, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(c.Fields.Name), q) ||
		strings.Contains(strings.ToLower(c.Fields.CompanyName), q) ||
		strings.Contains(strings.ToLower(c.Fields.JobTitle), q)
}

// UpdateCard applies a partial update to a card
func (s *Service) UpdateCard(id string, patch CardPatch) (*Card, error) {
	card, err := s.db.GetCard(id)
	if err != nil {
		return nil, fmt.Errorf("getting card for update: %w", err)
	}

	if patch.Fields != nil {
		card.Fields = *patch.Fields
	}
	if patch.Notes != nil {
		card.Notes = *patch.Notes
	}
	if patch.Tags != nil {
		card.Tags = normalizeTags(*patch.Tags)
	}
	if patch.FolderID != nil {
		if *patch.FolderID != "" {
			if _, err := s.db.GetFolder(*patch.FolderID); err != nil {
				return nil, fmt.Errorf("resolving folder: %w", err)
			}
		}
		card.FolderID = *patch.FolderID
	}
	if patch.Favorite != nil {
		card.Favorite = *patch.Favorite
	}
	card.UpdatedAt = s.timeSrc.Now()

	if err := s.db.SaveCard(card); err != nil {
		return nil, fmt.Errorf("updating card: %w", err)
	}
	return card, nil
}

// normalizeTags trims tags and drops empties, the way the entry form's
// comma-separated field is cleaned up.
func normalizeTags(tags []string) []string {
	cleaned := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return cleaned
}

// DeleteCard removes a card and its stored image
func (s *Service) DeleteCard(id string) error {
	card, err := s.db.GetCard(id)
	if err != nil {
		return fmt.Errorf("getting card for deletion: %w", err)
	}

	if card.ImagePath != "" {
		if err := s.storage.Delete(card.ImagePath); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete image", "path", card.ImagePath, "error", err)
		}
	}

	if err := s.db.DeleteCard(id); err != nil {
		return fmt.Errorf("deleting card from database: %w", err)
	}
	return nil
}

// GetCardImage retrieves the stored image for a card
func (s *Service) GetCardImage(id string) ([]byte, string, error) {
	card, err := s.db.GetCard(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting card: %w", err)
	}
	if card.ImagePath == "" {
		return nil, "", fmt.Errorf("card has no stored image")
	}

	data, err := s.storage.Get(card.ImagePath)
	if err != nil {
		return nil, "", fmt.Errorf("getting card image: %w", err)
	}
	return data, card.ContentType, nil
}

// CardVCard returns a card's vCard payload and download filename
func (s *Service) CardVCard(id string) (string, string, error) {
	card, err := s.db.GetCard(id)
	if err != nil {
		return "", "", fmt.Errorf("getting card: %w", err)
	}
	return VCard(card), VCardFilename(card), nil
}

// CardQR returns a PNG QR code of a card's vCard payload
func (s *Service) CardQR(id string, size int) ([]byte, error) {
	card, err := s.db.GetCard(id)
	if err != nil {
		return nil, fmt.Errorf("getting card: %w", err)
	}
	return QRCode(card, size)
}

// ShareCard mints a public share token for a card. Sharing twice reuses
// the existing token.
func (s *Service) ShareCard(id string) (*Card, error) {
	card, err := s.db.GetCard(id)
	if err != nil {
		return nil, fmt.Errorf("getting card: %w", err)
	}

	if card.ShareToken == "" {
		card.ShareToken = s.tokenGen.Generate()
		card.UpdatedAt = s.timeSrc.Now()
		if err := s.db.SaveCard(card); err != nil {
			return nil, fmt.Errorf("saving share token: %w", err)
		}
	}
	return card, nil
}

// SharedCard resolves a public card share token
func (s *Service) SharedCard(token string) (*Card, error) {
	card, err := s.db.GetCardByShareToken(token)
	if err != nil {
		return nil, fmt.Errorf("resolving shared card: %w", err)
	}
	return card, nil
}

// CreateFolder creates a new folder
func (s *Service) CreateFolder(name string) (*Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("folder name is required")
	}

	now := s.timeSrc.Now()
	folder := &Folder{
		ID:             s.idGen.Generate(),
		OrganizationID: s.orgID,
		Name:           name,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.SaveFolder(folder); err != nil {
		return nil, fmt.Errorf("saving folder: %w", err)
	}
	return folder, nil
}

// ListFolders returns the organization's folders sorted by name
func (s *Service) ListFolders() ([]*Folder, error) {
	folders, err := s.db.ListFolders()
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}

	owned := make([]*Folder, 0, len(folders))
	for _, f := range folders {
		if f.OrganizationID == s.orgID {
			owned = append(owned, f)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].Name < owned[j].Name
	})
	return owned, nil
}

// DeleteFolder removes a folder; its cards fall back to unfiled
func (s *Service) DeleteFolder(id string) error {
	if _, err := s.db.GetFolder(id); err != nil {
		return fmt.Errorf("getting folder for deletion: %w", err)
	}

	cards, err := s.db.ListCards()
	if err != nil {
		return fmt.Errorf("listing cards: %w", err)
	}
	for _, c := range cards {
		if c.FolderID != id {
			continue
		}
		c.FolderID = ""
		c.UpdatedAt = s.timeSrc.Now()
		if err := s.db.SaveCard(c); err != nil {
			return fmt.Errorf("unfiling card %s: %w", c.ID, err)
		}
	}

	if err := s.db.DeleteFolder(id); err != nil {
		return fmt.Errorf("deleting folder: %w", err)
	}
	return nil
}

// ShareFolder mints a public share token for a folder
func (s *Service) ShareFolder(id string) (*Folder, error) {
	folder, err := s.db.GetFolder(id)
	if err != nil {
		return nil, fmt.Errorf("getting folder: %w", err)
	}

	if folder.ShareToken == "" {
		folder.ShareToken = s.tokenGen.Generate()
		folder.UpdatedAt = s.timeSrc.Now()
		if err := s.db.SaveFolder(folder); err != nil {
			return nil, fmt.Errorf("saving share token: %w", err)
		}
	}
	return folder, nil
}

// SharedFolder resolves a public folder share token and returns the
// folder with its cards, newest first.
func (s *Service) SharedFolder(token string) (*Folder, []*Card, error) {
	folder, err := s.db.GetFolderByShareToken(token)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving shared folder: %w", err)
	}

	cards, err := s.db.ListCards()
	if err != nil {
		return nil, nil, fmt.Errorf("listing cards: %w", err)
	}
	filed := make([]*Card, 0)
	for _, c := range cards {
		if c.FolderID == folder.ID {
			filed = append(filed, c)
		}
	}
	sort.Slice(filed, func(i, j int) bool {
		return filed[i].CreatedAt.After(filed[j].CreatedAt)
	})
	return folder, filed, nil
}
