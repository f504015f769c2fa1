package e2e_test

import (
	"strings"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skcd-labs/sidecar-core/citest/testutil"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

var _ = Describe("duplicate symbol routing", func() {
	var h *testutil.Harness

	AfterEach(func() {
		if h != nil {
			h.Close()
		}
	})

	It("serializes two concurrent Edit requests for the same symbol through one agent", func() {
		var inFlight, maxInFlight int32
		release := make(chan struct{})
		var releaseOnce atomic.Bool

		h = testutil.NewHarness(func(text string) string {
			if !strings.Contains(text, "Symbol: Bar") {
				return ""
			}
			n := atomic.AddInt32(&inFlight, 1)
			for {
				cur := atomic.LoadInt32(&maxInFlight)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInFlight, cur, n) {
					break
				}
			}
			if releaseOnce.CompareAndSwap(false, true) {
				<-release
			}
			atomic.AddInt32(&inFlight, -1)
			return ""
		})
		h.Editor.SetFile("b.rs", "fn bar() {}\n")

		ctx := h.Context()
		hub := h.NewHub(ctx)
		target := types.SymbolId{Name: "Bar", File: "b.rs"}

		editEvent := func() types.SymbolEventRequest {
			return types.SymbolEventRequest{
				Target: target,
				Event: types.SymbolEvent{
					Kind: types.EventEdit,
					Edit: &types.SymbolToEditRequest{Symbols: []types.SymbolToEdit{{
						Name: "Bar", File: "b.rs", Reasons: []string{"duplicate routing check"},
					}}},
				},
				RequestId: types.NewRequestId(),
			}
		}

		done := make(chan struct{}, 2)
		go func() {
			_, _ = hub.Route(ctx, editEvent())
			done <- struct{}{}
		}()
		go func() {
			_, _ = hub.Route(ctx, editEvent())
			done <- struct{}{}
		}()

		Eventually(func() bool { return releaseOnce.Load() }).Should(BeTrue())
		close(release)

		<-done
		<-done

		Expect(atomic.LoadInt32(&maxInFlight)).To(Equal(int32(1)))
		Expect(hub.Locker().Len()).To(Equal(1))
	})
})
