package scanning

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Extractor instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// Extract sends the card image to Gemini with the fixed extraction
// prompt and returns the raw text of the first candidate.
func (g *Gemini) Extract(ctx context.Context, payload string, mimeType string) (string, error) {
	imageData, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", &DecodeError{Err: fmt.Errorf("invalid base64 image payload: %w", err)}
	}

	// genai.ImageData expects just the format suffix (e.g., "jpeg"), not
	// the full MIME type (e.g., "image/jpeg").
	format := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
	if format == "" || format == mimeType {
		format = "jpeg"
	}

	parts := []genai.Part{
		genai.Text(cardScanPrompt),
		genai.ImageData(format, imageData),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return "", &UpstreamError{
				Message: apiErr.Message,
				Details: g.modelListingHint(ctx),
			}
		}
		return "", &NetworkError{Err: err}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &ProtocolError{Reason: "no response from gemini"}
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}
	if responseText.Len() == 0 {
		return "", &ProtocolError{Reason: "gemini response contained no text parts"}
	}

	return responseText.String(), nil
}

// modelListingHint enumerates the model names available to the key, as a
// debugging aid for "model not found" failures. Best effort: listing
// failures just leave the hint empty and never change the outcome.
func (g *Gemini) modelListingHint(ctx context.Context) string {
	it := g.client.ListModels(ctx)
	var names []string
	for {
		m, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return ""
		}
		names = append(names, m.Name)
	}
	if len(names) == 0 {
		return ""
	}
	return "If you see 'model not found', here are the available models for your key: " + strings.Join(names, ", ")
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
