package card

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/karthikbanoor/cardvault/internal/scanning"
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// jsonError writes a JSON error body with CORS headers set
func jsonError(w http.ResponseWriter, code int, message string, details string) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	body := map[string]string{"error": message}
	if details != "" {
		body["details"] = details
	}
	json.NewEncoder(w).Encode(body)
}

// errorDetails pulls the optional debug detail off an upstream failure.
func errorDetails(err error) string {
	var upstreamErr *scanning.UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Details
	}
	return ""
}

// handleIndex reports service identity
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"service": "cardvault"})
}

// handleScanProxy implements the scan-proxy boundary: {"image": <base64>}
// in, extracted fields out. Failures are embedded in the body under an
// "error" key and the status is ALWAYS 200 — existing callers inspect
// the body, not the status code, and depend on that.
func (s *Server) handleScanProxy(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")

	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid request body"})
		return
	}

	record, err := s.service.ExtractFields(r.Context(), req.Image)
	if err != nil {
		slog.Error("Scan proxy extraction failed", "error", err)
		body := map[string]string{"error": err.Error()}
		if details := errorDetails(err); details != "" {
			body["details"] = details
		}
		json.NewEncoder(w).Encode(body)
		return
	}

	if err := json.NewEncoder(w).Encode(record); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleScanUpload handles a card image upload and returns an unsaved
// draft card for review
func (s *Server) handleScanUpload(w http.ResponseWriter, r *http.Request) {
	// Parse multipart form (max 50MB to handle high-resolution phone photos)
	maxFormSize := int64(50 << 20) // 50MB
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		jsonError(w, http.StatusBadRequest, errorMsg, "")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if err.Error() == "http: no such file" {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, http.StatusBadRequest, errorMsg, "")
		return
	}
	defer f.Close()

	if header.Size > maxFormSize {
		jsonError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB. Please compress or resize your image.", "")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, http.StatusInternalServerError, "Error reading file. Please try again.", "")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFromExtension(header.Filename)
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	card, err := s.service.ScanCard(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error scanning card", "filename", header.Filename, "error", err)
		jsonError(w, http.StatusBadRequest, err.Error(), errorDetails(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(card); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// contentTypeFromExtension guesses a MIME type for browsers that omit it
func contentTypeFromExtension(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleCreateCard saves a reviewed draft or a manual entry
func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var card Card
	if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	saved, err := s.service.CreateCard(&card)
	if err != nil {
		slog.Error("Error creating card", "error", err)
		jsonError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(saved); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleListCards returns the cards matching the query filters
func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	filter := Filter{
		FolderID: r.URL.Query().Get("folder"),
		Tag:      r.URL.Query().Get("tag"),
		Query:    r.URL.Query().Get("q"),
	}
	if r.URL.Query().Get("favorite") == "true" {
		filter.FavoriteOnly = true
	}

	cards, err := s.service.ListCards(filter)
	if err != nil {
		slog.Error("Error listing cards", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cards); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleGetCard returns a single card
func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.service.GetCard(r.PathValue("id"))
	if err != nil {
		corsError(w, "Card not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(card); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleUpdateCard applies a partial update
func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var patch CardPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	card, err := s.service.UpdateCard(r.PathValue("id"), patch)
	if err != nil {
		slog.Error("Error updating card", "error", err)
		jsonError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(card); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleDeleteCard deletes a card
func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteCard(r.PathValue("id")); err != nil {
		corsError(w, "Error deleting card", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetCardImage returns the stored image for a card
func (s *Server) handleGetCardImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetCardImage(r.PathValue("id"))
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleGetCardVCard returns a card as a downloadable vCard
func (s *Server) handleGetCardVCard(w http.ResponseWriter, r *http.Request) {
	payload, filename, err := s.service.CardVCard(r.PathValue("id"))
	if err != nil {
		corsError(w, "Card not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/vcard; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Write([]byte(payload))
}

// handleGetCardQR returns a QR code encoding the card's vCard
func (s *Server) handleGetCardQR(w http.ResponseWriter, r *http.Request) {
	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			corsError(w, "Invalid size", http.StatusBadRequest)
			return
		}
		size = parsed
	}

	png, err := s.service.CardQR(r.PathValue("id"), size)
	if err != nil {
		corsError(w, "Card not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// handleShareCard mints (or returns) a card's public share token
func (s *Server) handleShareCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.service.ShareCard(r.PathValue("id"))
	if err != nil {
		corsError(w, "Card not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(card); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleCreateFolder creates a folder
func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	folder, err := s.service.CreateFolder(req.Name)
	if err != nil {
		slog.Error("Error creating folder", "error", err)
		jsonError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(folder); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleListFolders returns all folders
func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.service.ListFolders()
	if err != nil {
		slog.Error("Error listing folders", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(folders); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleDeleteFolder deletes a folder; its cards become unfiled
func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteFolder(r.PathValue("id")); err != nil {
		corsError(w, "Error deleting folder", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleShareFolder mints (or returns) a folder's public share token
func (s *Server) handleShareFolder(w http.ResponseWriter, r *http.Request) {
	folder, err := s.service.ShareFolder(r.PathValue("id"))
	if err != nil {
		corsError(w, "Folder not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(folder); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// sharedCardView is the public projection of a card: no notes, no tags,
// no organization internals.
type sharedCardView struct {
	ID        string                 `json:"id"`
	Fields    scanning.ContactRecord `json:"extracted_data"`
	CreatedAt time.Time              `json:"created_at"`
}

func publicView(c *Card) sharedCardView {
	return sharedCardView{
		ID:        c.ID,
		Fields:    c.Fields,
		CreatedAt: c.CreatedAt,
	}
}

// handleSharedCard resolves a public card link
func (s *Server) handleSharedCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.service.SharedCard(r.PathValue("token"))
	if err != nil {
		corsError(w, "Card not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(publicView(card)); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleSharedCardImage serves the image of a publicly shared card
func (s *Server) handleSharedCardImage(w http.ResponseWriter, r *http.Request) {
	card, err := s.service.SharedCard(r.PathValue("token"))
	if err != nil {
		corsError(w, "Card not found", http.StatusNotFound)
		return
	}

	data, contentType, err := s.service.GetCardImage(card.ID)
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleSharedCardVCard exports a publicly shared card as a vCard
func (s *Server) handleSharedCardVCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.service.SharedCard(r.PathValue("token"))
	if err != nil {
		corsError(w, "Card not found", http.StatusNotFound)
		return
	}

	// Notes stay private even on export from a shared link.
	shared := *card
	shared.Notes = ""

	w.Header().Set("Content-Type", "text/vcard; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+VCardFilename(&shared)+`"`)
	w.Write([]byte(VCard(&shared)))
}

// handleSharedFolder resolves a public folder link and returns the
// folder with its cards
func (s *Server) handleSharedFolder(w http.ResponseWriter, r *http.Request) {
	folder, cards, err := s.service.SharedFolder(r.PathValue("token"))
	if err != nil {
		corsError(w, "Folder not found", http.StatusNotFound)
		return
	}

	views := make([]sharedCardView, 0, len(cards))
	for _, c := range cards {
		views = append(views, publicView(c))
	}

	response := map[string]interface{}{
		"folder": map[string]string{"id": folder.ID, "name": folder.Name},
		"cards":  views,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}
