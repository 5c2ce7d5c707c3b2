package header

import (
	"net/http"
	"net/http/httptest"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SetUpstreamRequestHeaders", func() {
	var hh *Handler

	BeforeEach(func() {
		hh = NewHandler()
	})

	It("sets the bearer credential and content type", func() {
		req, err := http.NewRequest(http.MethodPost, "http://upstream/chat/completions", nil)
		Expect(err).NotTo(HaveOccurred())

		hh.SetUpstreamRequestHeaders(req, "sk-test")

		Expect(req.Header.Get("Authorization")).To(Equal("Bearer sk-test"))
		Expect(req.Header.Get("Content-Type")).To(Equal("application/json"))
		Expect(req.Header.Get("Accept")).To(Equal("text/event-stream"))
	})

	It("leaves Accept-Encoding to the transport", func() {
		req, err := http.NewRequest(http.MethodPost, "http://upstream/chat/completions", nil)
		Expect(err).NotTo(HaveOccurred())

		hh.SetUpstreamRequestHeaders(req, "sk-test")

		Expect(req.Header.Get("Accept-Encoding")).To(BeEmpty())
	})
})

var _ = Describe("caller response headers", func() {
	var (
		app *fiber.App
		hh  *Handler
	)

	BeforeEach(func() {
		app = fiber.New()
		hh = NewHandler()
	})

	AfterEach(func() {
		app.Shutdown()
	})

	It("sets the CORS headers", func() {
		app.Get("/test", func(c *fiber.Ctx) error {
			hh.SetCORSHeaders(c)
			return c.SendStatus(fiber.StatusNoContent)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		Expect(resp.Header.Get("Access-Control-Allow-Headers")).To(Equal("authorization, x-client-info, apikey, content-type"))
	})

	It("marks a response as an uncached event stream", func() {
		app.Get("/test", func(c *fiber.Ctx) error {
			hh.SetStreamHeaders(c)
			return c.SendString("data: [DONE]\n")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
		Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
	})
})
