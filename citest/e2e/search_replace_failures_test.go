package e2e_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skcd-labs/sidecar-core/citest/testutil"
	"github.com/skcd-labs/sidecar-core/internal/searchreplace"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

func block(path, lang, search, replace string) string {
	return path + "\n```" + lang + "\n<<<<<<< SEARCH\n" + search + "\n=======\n" + replace + "\n>>>>>>> REPLACE\n```\n"
}

var _ = Describe("malformed and ambiguous SEARCH blocks", func() {
	var h *testutil.Harness

	AfterEach(func() {
		if h != nil {
			h.Close()
		}
	})

	It("leaves the file untouched and reports MatchMissing, then still applies a later valid block", func() {
		h = testutil.NewHarness(func(string) string { return "" })
		h.Editor.SetFile("c.rs", "fn kept() {}\n")

		text := block("c.rs", "go", "fn ghost() {}", "fn ghost() { logged() }") +
			block("c.rs", "go", "fn kept() {}", "fn kept() { logged() }")

		result, err := h.Box.ApplySearchReplace(h.Context(), types.NewEditRequestId(), text, func() bool { return false })
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Failures).To(HaveLen(1))
		Expect(result.Failures[0].Kind).To(Equal(searchreplace.MatchMissing))
		Expect(result.Failures[0].Path).To(Equal("c.rs"))

		Expect(result.AppliedBlocks).To(Equal(1))
		Expect(result.FinalContent["c.rs"]).To(Equal("fn kept() { logged() }\n"))
	})

	It("leaves the file untouched and reports Ambiguous when SEARCH matches twice", func() {
		h = testutil.NewHarness(func(string) string { return "" })
		h.Editor.SetFile("d.rs", "fn dup() {}\nfn other() {}\nfn dup() {}\n")

		text := block("d.rs", "go", "fn dup() {}", "fn dup() { logged() }")

		result, err := h.Box.ApplySearchReplace(h.Context(), types.NewEditRequestId(), text, func() bool { return false })
		Expect(err).NotTo(HaveOccurred())

		Expect(result.AppliedBlocks).To(Equal(0))
		Expect(result.Failures).To(HaveLen(1))
		Expect(result.Failures[0].Kind).To(Equal(searchreplace.Ambiguous))
		Expect(result.FinalContent).NotTo(HaveKey("d.rs"))
	})
})
