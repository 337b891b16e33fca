package scanning

import "context"

// cardScanPrompt is the shared instruction sent to every extraction
// backend. It enumerates the target fields and asks for bare JSON; the
// parser still tolerates fenced output because models ignore the last
// instruction often enough.
const cardScanPrompt = "Extract the following fields from the business card image: " +
	"Name, Job Title, Company Name, Email, Phone, Website, Address. " +
	"Return ONLY raw JSON. Do not include markdown formatting like ```json."

// Extractor defines the interface for card extraction backends.
type Extractor interface {
	// Extract sends one base64-encoded image (no data-URI prefix) to the
	// backend and returns the raw text of the model's answer.
	Extract(ctx context.Context, payload string, mimeType string) (string, error)
	// Close closes the extractor and releases resources.
	Close() error
}
