package monitoring

import (
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frostlab/tomasim/sim"
)

type sampleComponent struct {
	*sim.ComponentBase

	buffer sim.Buffer
}

func (c *sampleComponent) Handle(_ sim.Event) error {
	return nil
}

func (c *sampleComponent) NotifyRecv(_ sim.Port) {
	// Do nothing
}

func (c *sampleComponent) NotifyPortFree(_ sim.Port) {
	// Do nothing
}

func newSampleComponent() *sampleComponent {
	c := &sampleComponent{
		ComponentBase: sim.NewComponentBase("Comp"),
		buffer:        sim.NewBuffer("Comp.Buf", 10),
	}

	c.AddPort("Port1", sim.NewPort(c, 2, 2, "Comp.Port1"))

	return c
}

var _ = Describe("Monitor", func() {
	var m *Monitor

	BeforeEach(func() {
		m = NewMonitor()
	})

	It("should register components and their buffers", func() {
		m.RegisterComponent(newSampleComponent())

		Expect(m.components).To(HaveLen(1))
		// One component buffer plus the port's incoming and outgoing
		// buffers.
		Expect(m.buffers).To(HaveLen(3))
	})

	It("should list registered components", func() {
		m.RegisterComponent(newSampleComponent())

		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/list_components", nil)
		m.listComponents(w, r)

		Expect(w.Body.String()).To(Equal(`["Comp"]`))
	})

	It("should report buffer levels most congested first", func() {
		full := sim.NewBuffer("Full", 2)
		full.Push(1)
		full.Push(2)
		empty := sim.NewBuffer("Empty", 4)
		m.buffers = []sim.Buffer{empty, full}

		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/buffers", nil)
		m.listBuffers(w, r)

		Expect(w.Body.String()).To(Equal(
			`[{"buffer":"Full","level":2,"cap":2},` +
				`{"buffer":"Empty","level":0,"cap":4}]`))
	})

	It("should honor limit and offset when listing buffers", func() {
		for i := 0; i < 4; i++ {
			m.buffers = append(m.buffers,
				sim.NewBuffer("Buf", 4))
		}

		w := httptest.NewRecorder()
		r := httptest.NewRequest(
			"GET", "/api/buffers?limit=2&offset=3", nil)
		m.listBuffers(w, r)

		Expect(w.Body.String()).To(HavePrefix("["))
		Expect(w.Body.String()).To(ContainSubstring(`"cap":4`))
	})

	It("should reject an unknown buffer sort method", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/buffers?sort=age", nil)
		m.listBuffers(w, r)

		Expect(w.Code).To(Equal(400))
	})

	It("should track progress bars until completed", func() {
		bar := m.CreateProgressBar("run", 100)
		bar.IncrementInProgress(10)
		bar.MoveInProgressToFinished(4)

		Expect(bar.InProgress).To(Equal(uint64(6)))
		Expect(bar.Finished).To(Equal(uint64(4)))
		Expect(m.progressBars).To(HaveLen(1))

		m.CompleteProgressBar(bar)
		Expect(m.progressBars).To(BeEmpty())
	})
})
