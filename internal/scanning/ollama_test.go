package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server *ghttp.Server
		ctx    context.Context
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		ctx = context.Background()
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("OllamaStrategy", func() {
		When("the model is pulled", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodGet, "/api/tags"),
					ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
						"models": []map[string]string{{"name": "llava:latest", "model": "llava:latest"}},
					}),
				))
			})

			It("returns a backend", func() {
				backend, err := OllamaStrategy(server.URL(), "llava").Init(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(backend.Name()).To(Equal("ollama"))
			})
		})

		When("the model is missing", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"models": []map[string]string{{"name": "mistral:latest"}},
				}))
			})

			It("fails initialization", func() {
				_, err := OllamaStrategy(server.URL(), "llava").Init(ctx)
				Expect(err).To(MatchError(ContainSubstring(`"llava" is not pulled`)))
			})
		})

		When("the server is down", func() {
			It("fails initialization", func() {
				_, err := OllamaStrategy("http://127.0.0.1:1", "llava").Init(ctx)
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Recognize", func() {
		var (
			backend *Ollama
			image   []byte
		)

		BeforeEach(func() {
			backend = NewOllama(server.URL()+"/", "llava")
			image = []byte("png-bytes")
		})

		When("the API answers", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
					ghttp.VerifyContentType("application/json"),
					func(w http.ResponseWriter, r *http.Request) {
						var req ollamaChatRequest
						Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
						Expect(req.Model).To(Equal("llava"))
						Expect(req.Stream).To(BeFalse())
						Expect(req.Messages).To(HaveLen(2))
						Expect(req.Messages[1].Images).To(ConsistOf(base64.StdEncoding.EncodeToString(image)))
					},
					ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
						Message: ollamaMessage{Role: "assistant", Content: "Saldo actual $45.000"},
						Done:    true,
					}),
				))
			})

			It("returns the transcription", func() {
				text, err := backend.Recognize(ctx, image, "image/png")
				Expect(err).NotTo(HaveOccurred())
				Expect(text).To(Equal("Saldo actual $45.000"))
			})
		})

		When("the API errors", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model crashed"))
			})

			It("returns the status and body", func() {
				_, err := backend.Recognize(ctx, image, "image/png")
				Expect(err).To(MatchError(ContainSubstring("status 500")))
				Expect(err).To(MatchError(ContainSubstring("model crashed")))
			})
		})
	})
})
