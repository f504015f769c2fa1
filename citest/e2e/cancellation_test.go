package e2e_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skcd-labs/sidecar-core/citest/testutil"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

var _ = Describe("exchange cancellation", func() {
	var h *testutil.Harness

	AfterEach(func() {
		if h != nil {
			h.Close()
		}
	})

	It("fires true on the first cancel and settles the exchange Cancelled", func() {
		h = testutil.NewHarness(func(text string) string {
			if !strings.Contains(text, "Symbol: bar") {
				return ""
			}
			return "b.rs\n```go\n<<<<<<< SEARCH\nfn bar() {}\n=======\nfn bar() { logged() }\n>>>>>>> REPLACE\n```\n"
		})
		h.Editor.SetFile("b.rs", "fn bar() {}\n")

		ctx := h.Context()
		sessionID := types.NewSessionId()
		symbol := types.SymbolId{Name: "bar", File: "b.rs"}
		uc := types.UserContext{Variables: []types.VariableInformation{{
			Kind: types.VariableSelection,
			File: "b.rs",
			Name: "bar",
			End:  types.Position{Line: 1, Character: 0},
		}}}

		sess, ex, err := h.Service.CodeEditAnchored(ctx, sessionID, symbol, uc)
		Expect(err).NotTo(HaveOccurred())
		Expect(sess.IsRunning(ex.Id)).To(BeTrue())

		Eventually(func() []testutil.AppliedEdit {
			return h.Editor.AppliedEdits()
		}).Should(ContainElement(HaveField("Event", types.ApplyStart)))

		cancelled, err := h.Service.SetExchangeAsCancelled(ctx, sessionID, ex.Id)
		Expect(err).NotTo(HaveOccurred())
		Expect(cancelled).To(BeTrue())

		Eventually(func() types.ExchangeState {
			var loaded types.Session
			if err := h.Store.Load(ctx, sessionID, &loaded); err != nil {
				return ""
			}
			found := loaded.FindExchange(ex.Id)
			if found == nil {
				return ""
			}
			return found.State
		}).Should(Equal(types.ExchangeCancelled))

		second, err := h.Service.SetExchangeAsCancelled(ctx, sessionID, ex.Id)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(BeFalse())
	})
})
