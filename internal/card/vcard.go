package card

import (
	"regexp"
	"strings"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// VCard serializes a card as a vCard 3.0 payload, the format phone
// contact apps import. Only present fields are emitted.
func VCard(c *Card) string {
	fields := c.Fields
	name := fields.DisplayName()

	parts := strings.SplitN(name, " ", 2)
	firstName := parts[0]
	lastName := ""
	if len(parts) > 1 {
		lastName = parts[1]
	}

	var b strings.Builder
	b.WriteString("BEGIN:VCARD\n")
	b.WriteString("VERSION:3.0\n")
	b.WriteString("FN:" + name + "\n")
	b.WriteString("N:" + lastName + ";" + firstName + ";;;\n")

	if fields.CompanyName != "" {
		b.WriteString("ORG:" + fields.CompanyName + "\n")
	}
	if fields.JobTitle != "" {
		b.WriteString("TITLE:" + fields.JobTitle + "\n")
	}
	if fields.Phone != "" {
		b.WriteString("TEL;TYPE=CELL:" + fields.Phone + "\n")
	}
	if fields.Email != "" {
		b.WriteString("EMAIL;TYPE=WORK:" + fields.Email + "\n")
	}
	if fields.Website != "" {
		b.WriteString("URL:" + fields.Website + "\n")
	}
	if fields.Address != "" {
		b.WriteString("ADR;TYPE=WORK:;;" + strings.ReplaceAll(fields.Address, ",", ";") + ";;;;\n")
	}
	if c.Notes != "" {
		b.WriteString("NOTE:" + c.Notes + "\n")
	}

	b.WriteString("END:VCARD")
	return b.String()
}

// VCardFilename returns the download filename for a card's vCard.
func VCardFilename(c *Card) string {
	return whitespacePattern.ReplaceAllString(c.Fields.DisplayName(), "_") + ".vcf"
}
