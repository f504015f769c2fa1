package e2e_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skcd-labs/sidecar-core/citest/testutil"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

var _ = Describe("anchored edit", func() {
	var h *testutil.Harness

	AfterEach(func() {
		if h != nil {
			h.Close()
		}
	})

	It("streams a Start/Delta/End envelope for the selected file and settles the exchange Accepted", func() {
		h = testutil.NewHarness(func(text string) string {
			if !strings.Contains(text, "Symbol: foo") {
				return ""
			}
			return "a.rs\n```go\n<<<<<<< SEARCH\nfn foo() {\n    do_thing();\n}\n=======\nfn foo() {\n    log.Info(\"add logging\")\n    do_thing();\n}\n>>>>>>> REPLACE\n```\n"
		})

		fileContent := strings.Join([]string{
			"mod a;", "", "struct Nothing;", "", "", "", "", "",
			"fn unrelated() {}", "",
			"fn foo() {", "    do_thing();", "}",
			"", "", "", "", "", "", "", "",
		}, "\n")
		h.Editor.SetFile("a.rs", fileContent)

		ctx := h.Context()
		sessionID := types.NewSessionId()
		symbol := types.SymbolId{Name: "foo", File: "a.rs"}
		uc := types.UserContext{Variables: []types.VariableInformation{{
			Kind:  types.VariableSelection,
			File:  "a.rs",
			Start: types.Position{Line: 10, Character: 0},
			End:   types.Position{Line: 20, Character: 0},
			Name:  "foo",
		}}}

		sess, ex, err := h.Service.CodeEditAnchored(ctx, sessionID, symbol, uc)
		Expect(err).NotTo(HaveOccurred())
		Expect(ex.State).To(Equal(types.ExchangeOpen))
		Expect(sess.IsRunning(ex.Id)).To(BeTrue())

		Eventually(func() []testutil.AppliedEdit {
			return h.Editor.AppliedEdits()
		}).Should(ContainElement(HaveField("Event", types.ApplyStart)))

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
		}).Should(Equal(types.ExchangeAccepted))

		var sawDelta, sawEnd bool
		for _, a := range h.Editor.AppliedEdits() {
			if a.Path != "a.rs" {
				continue
			}
			switch a.Event {
			case types.ApplyDelta:
				sawDelta = true
			case types.ApplyEnd:
				sawEnd = true
			}
		}
		Expect(sawDelta).To(BeTrue())
		Expect(sawEnd).To(BeTrue())
	})
})
