package card

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/karthikbanoor/cardvault/internal/scanning"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		extractor   *mockExtractor
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	rebuild := func() {
		service = NewServiceWithDeps(db, extractor, storage, "org-1",
			&mockIDGenerator{id: "test-id-123"},
			&mockTokenGenerator{token: "share-token-abc"},
			&mockTimeSource{now: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		setupServer()
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		extractor = newMockExtractor()
		auth = BasicAuth{}
		rebuild()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleIndex", func() {
		It("should return status OK", func() {
			resp, err := http.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})

	Describe("handleScanProxy", func() {
		post := func(body string) *http.Response {
			resp, err := http.Post(ghttpServer.URL()+"/api/scan", "application/json", bytes.NewBufferString(body))
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("extraction succeeds", func() {
			It("should return the extracted fields with status OK", func() {
				resp := post(`{"image": "aGVsbG8="}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var record scanning.ContactRecord
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &record)).NotTo(HaveOccurred())
				Expect(record.Name).To(Equal("Jane Vault"))
			})
		})

		When("extraction fails", func() {
			BeforeEach(func() {
				extractor.err = &scanning.UpstreamError{
					Message: "model not found",
					Details: "available: gemini-2.0-flash",
				}
				rebuild()
			})

			It("should still return status OK", func() {
				resp := post(`{"image": "aGVsbG8="}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})

			It("should embed the error and details in the body", func() {
				resp := post(`{"image": "aGVsbG8="}`)
				defer resp.Body.Close()

				var response map[string]string
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &response)).NotTo(HaveOccurred())
				Expect(response["error"]).To(ContainSubstring("model not found"))
				Expect(response["details"]).To(Equal("available: gemini-2.0-flash"))
			})
		})

		When("the body is not JSON", func() {
			It("should return an error body with status OK", func() {
				resp := post("not json")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var response map[string]string
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &response)).NotTo(HaveOccurred())
				Expect(response["error"]).NotTo(BeEmpty())
			})
		})

		When("the image is empty", func() {
			It("should return an error body with status OK", func() {
				resp := post(`{"image": ""}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var response map[string]string
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &response)).NotTo(HaveOccurred())
				Expect(response["error"]).To(ContainSubstring("no image provided"))
			})
		})
	})

	Describe("handleScanUpload", func() {
		uploadPNG := func() *http.Response {
			var b bytes.Buffer
			writer := multipart.NewWriter(&b)
			part, _ := writer.CreateFormFile("file", "card.png")
			part.Write(encodePNG(400, 300))
			writer.Close()

			resp, err := http.Post(ghttpServer.URL()+"/api/cards/scan", writer.FormDataContentType(), &b)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("upload succeeds", func() {
			It("should return status OK with a draft card", func() {
				resp := uploadPNG()
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var card Card
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &card)).NotTo(HaveOccurred())
				Expect(card.ID).To(Equal("test-id-123"))
				Expect(card.Fields.Name).To(Equal("Jane Vault"))
			})

			It("should not persist the draft", func() {
				resp := uploadPNG()
				resp.Body.Close()
				Expect(db.cards).To(BeEmpty())
			})
		})

		When("no file is provided", func() {
			It("should return status Bad Request", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/cards/scan", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("the file is not a decodable image", func() {
			It("should return the decode error as JSON", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				part, _ := writer.CreateFormFile("file", "card.jpg")
				part.Write([]byte("not an image"))
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/cards/scan", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var response map[string]string
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &response)).NotTo(HaveOccurred())
				Expect(response["error"]).NotTo(BeEmpty())
			})
		})

		When("the upstream fails with details", func() {
			BeforeEach(func() {
				extractor.err = &scanning.UpstreamError{
					Message: "quota exceeded",
					Details: "available: gemini-2.0-flash",
				}
				rebuild()
			})

			It("should surface the details in the error body", func() {
				resp := uploadPNG()
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var response map[string]string
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &response)).NotTo(HaveOccurred())
				Expect(response["error"]).To(ContainSubstring("quota exceeded"))
				Expect(response["details"]).To(Equal("available: gemini-2.0-flash"))
			})
		})
	})

	Describe("handleCreateCard", func() {
		When("creation succeeds", func() {
			It("should return status Created", func() {
				body, _ := json.Marshal(Card{Fields: scanning.ContactRecord{Name: "Jane Vault"}})
				resp, err := http.Post(ghttpServer.URL()+"/api/cards", "application/json", bytes.NewBuffer(body))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var saved Card
				respBody, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(respBody, &saved)).NotTo(HaveOccurred())
				Expect(saved.ID).To(Equal("test-id-123"))
			})
		})

		When("invalid JSON body", func() {
			It("should return status Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/cards", "application/json", bytes.NewBufferString("invalid json"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("the referenced folder does not exist", func() {
			It("should return status Bad Request", func() {
				body, _ := json.Marshal(Card{FolderID: "nope"})
				resp, err := http.Post(ghttpServer.URL()+"/api/cards", "application/json", bytes.NewBuffer(body))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})

	Describe("handleListCards", func() {
		BeforeEach(func() {
			db.cards["a"] = &Card{
				ID:             "a",
				OrganizationID: "org-1",
				Fields:         scanning.ContactRecord{Name: "Alice Smith"},
				Favorite:       true,
			}
			db.cards["b"] = &Card{
				ID:             "b",
				OrganizationID: "org-1",
				Fields:         scanning.ContactRecord{Name: "Bob Jones"},
			}
			rebuild()
		})

		It("should return all cards", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/cards")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var cards []*Card
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &cards)).NotTo(HaveOccurred())
			Expect(cards).To(HaveLen(2))
		})

		It("should apply the search query", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/cards?q=alice")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			var cards []*Card
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &cards)).NotTo(HaveOccurred())
			Expect(cards).To(HaveLen(1))
			Expect(cards[0].ID).To(Equal("a"))
		})

		It("should apply the favorite filter", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/cards?favorite=true")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			var cards []*Card
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &cards)).NotTo(HaveOccurred())
			Expect(cards).To(HaveLen(1))
			Expect(cards[0].ID).To(Equal("a"))
		})
	})

	Describe("handleGetCard", func() {
		When("card exists", func() {
			BeforeEach(func() {
				db.cards["test-id"] = &Card{ID: "test-id", Fields: scanning.ContactRecord{Name: "Jane Vault"}}
				rebuild()
			})

			It("should return the card", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/cards/test-id")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var got Card
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &got)).NotTo(HaveOccurred())
				Expect(got.Fields.Name).To(Equal("Jane Vault"))
			})
		})

		When("card does not exist", func() {
			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/cards/nonexistent")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	Describe("handleUpdateCard", func() {
		BeforeEach(func() {
			db.cards["test-id"] = &Card{ID: "test-id", OrganizationID: "org-1"}
			rebuild()
		})

		It("should apply the patch", func() {
			req, err := http.NewRequest("PUT", ghttpServer.URL()+"/api/cards/test-id",
				bytes.NewBufferString(`{"notes": "met at the expo", "favorite": true}`))
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var got Card
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &got)).NotTo(HaveOccurred())
			Expect(got.Notes).To(Equal("met at the expo"))
			Expect(got.Favorite).To(BeTrue())
		})

		It("should reject an invalid body", func() {
			req, err := http.NewRequest("PUT", ghttpServer.URL()+"/api/cards/test-id",
				bytes.NewBufferString("invalid json"))
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("handleDeleteCard", func() {
		BeforeEach(func() {
			db.cards["test-id"] = &Card{ID: "test-id"}
			rebuild()
		})

		It("should return status No Content", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/cards/test-id", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp.Body.Close()
			Expect(db.cards).NotTo(HaveKey("test-id"))
		})
	})

	Describe("handleGetCardVCard", func() {
		BeforeEach(func() {
			db.cards["test-id"] = &Card{ID: "test-id", Fields: scanning.ContactRecord{Name: "Jane Vault"}}
			rebuild()
		})

		It("should return the vCard as a download", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/cards/test-id/vcard")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/vcard; charset=utf-8"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("Jane_Vault.vcf"))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("BEGIN:VCARD"))
		})
	})

	Describe("handleGetCardQR", func() {
		BeforeEach(func() {
			db.cards["test-id"] = &Card{ID: "test-id", Fields: scanning.ContactRecord{Name: "Jane Vault"}}
			rebuild()
		})

		It("should return a PNG", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/cards/test-id/qr")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
		})

		It("should reject a non-numeric size", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/cards/test-id/qr?size=huge")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("sharing", func() {
		BeforeEach(func() {
			db.cards["test-id"] = &Card{ID: "test-id", Fields: scanning.ContactRecord{Name: "Jane Vault"}, Notes: "private"}
			db.folders["f1"] = &Folder{ID: "f1", Name: "Leads"}
			rebuild()
		})

		It("should mint a share token on POST", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/cards/test-id/share", "application/json", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var card Card
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &card)).NotTo(HaveOccurred())
			Expect(card.ShareToken).To(Equal("share-token-abc"))
		})

		When("a card is shared", func() {
			BeforeEach(func() {
				db.cards["test-id"].ShareToken = "share-token-abc"
				rebuild()
			})

			It("should serve the shared card without notes", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/shared/cards/share-token-abc")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("Jane Vault"))
				Expect(string(body)).NotTo(ContainSubstring("private"))
			})

			It("should reject an unknown token", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/shared/cards/bogus")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})

		When("a folder is shared", func() {
			BeforeEach(func() {
				db.folders["f1"].ShareToken = "folder-token"
				db.cards["test-id"].FolderID = "f1"
				rebuild()
			})

			It("should serve the folder and its cards", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/shared/folders/folder-token")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var response map[string]json.RawMessage
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &response)).NotTo(HaveOccurred())
				Expect(response).To(HaveKey("folder"))
				Expect(response).To(HaveKey("cards"))
			})
		})
	})

	Describe("folders", func() {
		It("should create a folder", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/folders", "application/json",
				bytes.NewBufferString(`{"name": "Leads"}`))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var folder Folder
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &folder)).NotTo(HaveOccurred())
			Expect(folder.Name).To(Equal("Leads"))
		})

		It("should reject an empty name", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/folders", "application/json",
				bytes.NewBufferString(`{"name": "  "}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})

		It("should list folders", func() {
			db.folders["f1"] = &Folder{ID: "f1", OrganizationID: "org-1", Name: "Leads"}
			rebuild()

			resp, err := http.Get(ghttpServer.URL() + "/api/folders")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			var folders []*Folder
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &folders)).NotTo(HaveOccurred())
			Expect(folders).To(HaveLen(1))
		})

		It("should delete a folder", func() {
			db.folders["f1"] = &Folder{ID: "f1", Name: "Leads"}
			rebuild()

			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/folders/f1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp.Body.Close()
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
			db.cards["test-id"] = &Card{ID: "test-id", ShareToken: "share-token-abc"}
			rebuild()
		})

		It("should reject API requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/cards")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).NotTo(BeEmpty())
			resp.Body.Close()
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/cards", nil)
			Expect(err).NotTo(HaveOccurred())
			credentials := base64.StdEncoding.EncodeToString([]byte("user:pass"))
			req.Header.Set("Authorization", "Basic "+credentials)
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})

		It("should reject wrong credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/cards", nil)
			Expect(err).NotTo(HaveOccurred())
			credentials := base64.StdEncoding.EncodeToString([]byte("user:wrong"))
			req.Header.Set("Authorization", "Basic "+credentials)
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			resp.Body.Close()
		})

		It("should leave shared links public", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/shared/cards/share-token-abc")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})
})

var _ = Describe("errorDetails", func() {
	It("extracts details from an upstream error", func() {
		err := &scanning.UpstreamError{Message: "boom", Details: "hint"}
		Expect(errorDetails(err)).To(Equal("hint"))
	})

	It("returns empty for other errors", func() {
		Expect(errorDetails(errors.New("plain"))).To(BeEmpty())
	})
})
