package sse

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// chunk builds one OpenAI-style streaming data line with its blank-line
// record separator.
func chunk(content string) string {
	return fmt.Sprintf("data: {\"id\":\"chatcmpl-1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", content)
}

// decodeBuffers feeds each buffer to a fresh Decoder in order, finishes the
// source, and returns every delta emitted plus whether the sentinel was seen.
func decodeBuffers(buffers ...string) ([]string, bool) {
	d := NewDecoder()
	deltas := []string{}

	drain := func() bool {
		for {
			res := d.Next()
			switch res.Kind {
			case KindDelta:
				deltas = append(deltas, res.Delta)
			case KindDone:
				return true
			default:
				return false
			}
		}
	}

	for _, b := range buffers {
		d.Feed([]byte(b))
		if drain() {
			return deltas, d.SawSentinel()
		}
	}

	d.Finish()
	Expect(drain()).To(BeTrue(), "decoder must complete after Finish")
	return deltas, d.SawSentinel()
}

// splitAt cuts s at the given ascending byte offsets.
func splitAt(s string, offsets ...int) []string {
	parts := []string{}
	prev := 0
	for _, off := range offsets {
		parts = append(parts, s[prev:off])
		prev = off
	}
	return append(parts, s[prev:])
}

var _ = Describe("Decoder", func() {
	stream := ": keep-alive\n\n" +
		chunk("Hel") +
		chunk("lo, ") +
		chunk("wörld 🌍") +
		"data: {\"choices\":\n[{\"delta\":{\"content\":\"!\"}}]}\n\n" +
		chunk("") +
		"data: [DONE]\n\n"

	Describe("with a single buffer", func() {
		It("emits deltas in order and stops at the sentinel", func() {
			deltas, sentinel := decodeBuffers(stream)
			Expect(deltas).To(Equal([]string{"Hel", "lo, ", "wörld 🌍", "!"}))
			Expect(sentinel).To(BeTrue())
		})
	})

	Describe("reassembly under fragmentation", func() {
		var expected []string

		BeforeEach(func() {
			expected, _ = decodeBuffers(stream)
		})

		It("yields the same deltas for every two-way split", func() {
			for i := 1; i < len(stream); i++ {
				deltas, sentinel := decodeBuffers(splitAt(stream, i)...)
				Expect(deltas).To(Equal(expected), "split at offset %d", i)
				Expect(sentinel).To(BeTrue())
			}
		})

		It("yields the same deltas when delivered one byte at a time", func() {
			buffers := make([]string, 0, len(stream))
			for i := range len(stream) {
				buffers = append(buffers, stream[i:i+1])
			}

			deltas, _ := decodeBuffers(buffers...)
			Expect(deltas).To(Equal(expected))
		})

		It("yields the same deltas for random splits", func() {
			rng := rand.New(rand.NewPCG(7, 11))
			for range 500 {
				offsets := []int{}
				for i := 1; i < len(stream); i++ {
					if rng.IntN(8) == 0 {
						offsets = append(offsets, i)
					}
				}

				deltas, _ := decodeBuffers(splitAt(stream, offsets...)...)
				Expect(deltas).To(Equal(expected), "split at offsets %v", offsets)
			}
		})

		It("never emits replacement characters when a multi-byte character is split", func() {
			idx := strings.Index(stream, "🌍")
			Expect(idx).To(BeNumerically(">", 0))

			for i := 1; i < utf8.RuneLen('🌍'); i++ {
				deltas, _ := decodeBuffers(splitAt(stream, idx+i)...)
				Expect(strings.Join(deltas, "")).NotTo(ContainSubstring(string(utf8.RuneError)))
				Expect(deltas).To(ContainElement("wörld 🌍"))
			}
		})
	})

	Describe("split JSON recovery", func() {
		payload := "data: {\"choices\":[{\"delta\":{\"content\":\"X\"}}]}\n"

		It("yields exactly one delta for any split inside the payload", func() {
			start := len(dataPrefix)
			for i := start + 1; i < len(payload)-1; i++ {
				deltas, _ := decodeBuffers(splitAt(payload, i)...)
				Expect(deltas).To(Equal([]string{"X"}), "split at offset %d", i)
			}
		})

		It("puts back a line truncated at an embedded newline and waits for more input", func() {
			d := NewDecoder()
			d.Feed([]byte("data: {\"choices\":\n"))
			Expect(d.Next().Kind).To(Equal(KindNeedMoreInput))

			d.Feed([]byte("[{\"delta\":{\"content\":\"X\"}}]}\n"))
			Expect(d.Next()).To(Equal(Result{Kind: KindDelta, Delta: "X"}))
			Expect(d.Next().Kind).To(Equal(KindNeedMoreInput))
			Expect(d.Dropped()).To(BeZero())
		})

		It("drops a put-back line when a complete record follows it", func() {
			d := NewDecoder()
			d.Feed([]byte("data: {\"choices\":\n" + chunk("later")))
			Expect(d.Next()).To(Equal(Result{Kind: KindDelta, Delta: "later"}))
			Expect(d.Dropped()).To(Equal(1))

			d.Finish()
			Expect(d.Next().Kind).To(Equal(KindDone))
		})

		It("drops a line that never becomes valid JSON instead of stalling", func() {
			deltas, sentinel := decodeBuffers("data: not json\n\n", chunk("X"), "data: [DONE]\n\n")
			Expect(deltas).To(Equal([]string{"X"}))
			Expect(sentinel).To(BeTrue())
		})

		It("counts dropped lines", func() {
			d := NewDecoder()
			d.Feed([]byte("data: nope\n\n" + chunk("X") + "data: [DONE]\n"))
			Expect(d.Next()).To(Equal(Result{Kind: KindDelta, Delta: "X"}))
			Expect(d.Next().Kind).To(Equal(KindDone))
			Expect(d.Dropped()).To(Equal(1))
		})

		It("drops a held line left over at the end of the source", func() {
			d := NewDecoder()
			d.Feed([]byte("data: {\"choices\":[\n"))
			Expect(d.Next().Kind).To(Equal(KindNeedMoreInput))

			d.Finish()
			Expect(d.Next().Kind).To(Equal(KindDone))
			Expect(d.Dropped()).To(Equal(1))
		})
	})

	Describe("termination", func() {
		It("ignores bytes after the sentinel in the same buffer", func() {
			deltas, sentinel := decodeBuffers(chunk("a") + "data: [DONE]\n\n" + chunk("b"))
			Expect(deltas).To(Equal([]string{"a"}))
			Expect(sentinel).To(BeTrue())
		})

		It("ignores buffers fed after the sentinel", func() {
			d := NewDecoder()
			d.Feed([]byte("data: [DONE]\n"))
			Expect(d.Next().Kind).To(Equal(KindDone))

			d.Feed([]byte(chunk("late")))
			Expect(d.Next().Kind).To(Equal(KindDone))
		})

		It("accepts a sentinel with surrounding whitespace", func() {
			_, sentinel := decodeBuffers("data:  [DONE] \n")
			Expect(sentinel).To(BeTrue())
		})

		It("completes on a clean end of source without the sentinel", func() {
			deltas, sentinel := decodeBuffers(chunk("a"), chunk("b"))
			Expect(deltas).To(Equal([]string{"a", "b"}))
			Expect(sentinel).To(BeFalse())
		})

		It("processes an unterminated final line at the end of the source", func() {
			deltas, _ := decodeBuffers(strings.TrimSuffix(chunk("tail"), "\n\n"))
			Expect(deltas).To(Equal([]string{"tail"}))
		})

		It("completes with no deltas when only the sentinel is sent", func() {
			deltas, sentinel := decodeBuffers("data: [DONE]\n\n")
			Expect(deltas).To(BeEmpty())
			Expect(sentinel).To(BeTrue())
		})

		It("completes on an empty source", func() {
			deltas, sentinel := decodeBuffers()
			Expect(deltas).To(BeEmpty())
			Expect(sentinel).To(BeFalse())
		})
	})

	Describe("line classification", func() {
		It("never emits deltas for comments and blank lines", func() {
			deltas, _ := decodeBuffers(": keep-alive\n", "\n", ":\n", "\r\n", ": OPENROUTER PROCESSING\n\n")
			Expect(deltas).To(BeEmpty())
		})

		It("discards lines without the data prefix", func() {
			deltas, _ := decodeBuffers(
				"event: message\n",
				"id: 42\n",
				"data:{\"choices\":[{\"delta\":{\"content\":\"no-space\"}}]}\n",
				chunk("kept"),
			)
			Expect(deltas).To(Equal([]string{"kept"}))
		})

		It("strips a trailing carriage return", func() {
			deltas, sentinel := decodeBuffers("data: {\"choices\":[{\"delta\":{\"content\":\"crlf\"}}]}\r\n\r\ndata: [DONE]\r\n")
			Expect(deltas).To(Equal([]string{"crlf"}))
			Expect(sentinel).To(BeTrue())
		})

		It("skips valid JSON of an unexpected shape", func() {
			deltas, _ := decodeBuffers(
				"data: 42\n",
				"data: {\"choices\":[]}\n",
				"data: {\"choices\":[{\"delta\":{\"content\":7}}]}\n",
				chunk("ok"),
			)
			Expect(deltas).To(Equal([]string{"ok"}))
		})

		It("uses only the first choice", func() {
			deltas, _ := decodeBuffers("data: {\"choices\":[{\"delta\":{\"content\":\"first\"}},{\"delta\":{\"content\":\"second\"}}]}\n")
			Expect(deltas).To(Equal([]string{"first"}))
		})

		It("skips chunks with no content", func() {
			deltas, _ := decodeBuffers(
				"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n",
				"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n",
			)
			Expect(deltas).To(BeEmpty())
		})
	})

	Describe("independence", func() {
		It("keeps state per decoder", func() {
			a := NewDecoder()
			b := NewDecoder()

			a.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"A"))
			b.Feed([]byte(chunk("B")))
			Expect(b.Next()).To(Equal(Result{Kind: KindDelta, Delta: "B"}))
			Expect(a.Next().Kind).To(Equal(KindNeedMoreInput))

			a.Feed([]byte("\"}}]}\n"))
			Expect(a.Next()).To(Equal(Result{Kind: KindDelta, Delta: "A"}))
		})
	})
})

var _ = Describe("Kind", func() {
	It("has readable names", func() {
		Expect(KindNeedMoreInput.String()).To(Equal("need-more-input"))
		Expect(KindDelta.String()).To(Equal("delta"))
		Expect(KindDone.String()).To(Equal("done"))
		Expect(Kind(99).String()).To(Equal("unknown"))
	})
})
