package scanning

import (
	"context"
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Proxy", func() {
	var (
		server *ghttp.Server
		proxy  *Proxy
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var err error
		proxy, err = NewProxy(server.URL() + "/scan")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("NewProxy", func() {
		It("should require a url", func() {
			_, err := NewProxy("")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Extract", func() {
		When("the proxy answers with extracted fields", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("POST", "/scan"),
					ghttp.VerifyJSON(`{"image":"aGVsbG8="}`),
					ghttp.RespondWith(http.StatusOK, `{"Name":"Jane Doe"}`),
				))
			})

			It("should return the body text", func() {
				text, err := proxy.Extract(context.Background(), "aGVsbG8=", "image/jpeg")
				Expect(err).NotTo(HaveOccurred())
				Expect(text).To(Equal(`{"Name":"Jane Doe"}`))
			})
		})

		When("the proxy embeds an error in an HTTP 200 body", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusOK,
					`{"error":"Gemini API Error: model not found","details":"available models: a, b"}`))
			})

			It("should return an UpstreamError with the message and details", func() {
				_, err := proxy.Extract(context.Background(), "aGVsbG8=", "image/jpeg")
				var upstreamErr *UpstreamError
				Expect(errors.As(err, &upstreamErr)).To(BeTrue())
				Expect(upstreamErr.Message).To(Equal("Gemini API Error: model not found"))
				Expect(upstreamErr.Details).To(Equal("available models: a, b"))
			})
		})

		When("the body is not JSON", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "<html>oops</html>"))
			})

			It("should return a ProtocolError", func() {
				_, err := proxy.Extract(context.Background(), "aGVsbG8=", "image/jpeg")
				var protoErr *ProtocolError
				Expect(errors.As(err, &protoErr)).To(BeTrue())
			})
		})

		When("the proxy answers a non-200 status", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusBadGateway, "bad gateway"))
			})

			It("should return a ProtocolError", func() {
				_, err := proxy.Extract(context.Background(), "aGVsbG8=", "image/jpeg")
				var protoErr *ProtocolError
				Expect(errors.As(err, &protoErr)).To(BeTrue())
			})
		})

		When("the proxy is unreachable", func() {
			It("should return a NetworkError", func() {
				server.Close()
				_, err := proxy.Extract(context.Background(), "aGVsbG8=", "image/jpeg")
				var netErr *NetworkError
				Expect(errors.As(err, &netErr)).To(BeTrue())
			})
		})
	})
})
