package card

import (
	"time"

	"github.com/karthikbanoor/cardvault/internal/scanning"
)

// Card represents one digitized business card
type Card struct {
	ID             string                 `json:"id"`
	OrganizationID string                 `json:"organization_id"`
	Fields         scanning.ContactRecord `json:"extracted_data"`
	Notes          string                 `json:"notes,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
	FolderID       string                 `json:"folder_id,omitempty"`
	Favorite       bool                   `json:"favorite"`
	ShareToken     string                 `json:"share_token,omitempty"`
	ImagePath      string                 `json:"image_path,omitempty"`
	ContentType    string                 `json:"content_type,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Folder groups cards inside one organization
type Folder struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	ShareToken     string    `json:"share_token,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasTag reports whether the card carries the given tag.
func (c *Card) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
