package e2e_test

import (
	"context"
	"encoding/json"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skcd-labs/sidecar-core/citest/testutil"
	"github.com/skcd-labs/sidecar-core/internal/event"
	"github.com/skcd-labs/sidecar-core/internal/toolbox"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

var _ = Describe("BFS follow-up routing", func() {
	var h *testutil.Harness

	AfterEach(func() {
		if h != nil {
			h.Close()
		}
	})

	It("routes an Edit event to the caller's agent once the judge finds it relevant", func() {
		h = testutil.NewHarness(func(string) string { return "" })

		xPos := types.Position{Line: 5, Character: 0}
		refRange := types.Range{Start: types.Position{Line: 12, Character: 0}, End: types.Position{Line: 12, Character: 10}}
		h.Editor.SetReferences("x.rs", xPos, testutil.Location("y.rs", refRange))
		h.Editor.SetOutline("y.rs", []types.OutlineNode{{
			Name:  "Y",
			Kind:  types.OutlineFunction,
			Range: types.Range{Start: types.Position{Line: 10, Character: 0}, End: types.Position{Line: 20, Character: 0}},
			File:  "y.rs",
		}})

		var mu sync.Mutex
		var routed types.SymbolEventSubStep
		sawEdit := false
		unsub := h.Bus.Subscribe(event.TypeSymbolSubStep, func(e event.Event) {
			raw, err := json.Marshal(e.Data)
			if err != nil {
				return
			}
			var sub types.SymbolEventSubStep
			if err := json.Unmarshal(raw, &sub); err != nil {
				return
			}
			if sub.Kind != types.SubStepEdit {
				return
			}
			mu.Lock()
			routed = sub
			sawEdit = true
			mu.Unlock()
		})
		defer unsub()

		ctx := h.Context()
		hub := h.NewHub(ctx)

		seeds := []toolbox.ChangedSymbol{{
			Name:   "X",
			Range:  types.Range{Start: xPos, End: types.Position{Line: 5, Character: 10}},
			Reason: "X changed behavior",
		}}

		judge := func(_ context.Context, referencing types.SymbolId, _ string) (bool, error) {
			return referencing == types.SymbolId{Name: "Y", File: "y.rs"}, nil
		}

		err := h.Box.CheckForFollowupsBFS(ctx, seeds, "x.rs", hub, judge)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() bool {
			mu.Lock()
			defer mu.Unlock()
			return sawEdit
		}).Should(BeTrue())

		mu.Lock()
		defer mu.Unlock()
		Expect(routed.SymbolId).To(Equal(types.SymbolId{Name: "Y", File: "y.rs"}))
	})
})
