package scanning

// ContactRecord contains the fields extracted from one business card.
// The JSON keys mirror the field names the model is prompted for, so a
// well-formed response unmarshals directly into this shape. RawText is
// populated only when the response could not be parsed as structured
// JSON at all; in that case every other field is empty.
type ContactRecord struct {
	Name        string `json:"Name,omitempty"`
	JobTitle    string `json:"Job Title,omitempty"`
	CompanyName string `json:"Company Name,omitempty"`
	Email       string `json:"Email,omitempty"`
	Phone       string `json:"Phone,omitempty"`
	Website     string `json:"Website,omitempty"`
	Address     string `json:"Address,omitempty"`
	RawText     string `json:"raw_text,omitempty"`
}

// IsFallback reports whether the record is the unparsed-response fallback.
func (c ContactRecord) IsFallback() bool {
	return c.RawText != ""
}

// DisplayName returns the contact's name, or "Unknown" when the card had
// no readable name.
func (c ContactRecord) DisplayName() string {
	if c.Name == "" {
		return "Unknown"
	}
	return c.Name
}
