// Package monitoring turns a running simulation into a small web server
// so that the engine and the registered components can be inspected and
// controlled from outside the process.
package monitoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/frostlab/tomasim/sim"
)

// Monitor exposes a simulation over HTTP for external inspection and
// control.
type Monitor struct {
	engine     sim.Engine
	components []sim.Component
	buffers    []sim.Buffer
	portNumber int
	openInWeb  bool

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port the server listens on. Ports below 1000
// are rejected and replaced with a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is not allowed for the monitoring server. "+
				"Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the monitor page in the default
// browser.
func (m *Monitor) WithBrowser() *Monitor {
	m.openInWeb = true
	return m
}

// RegisterEngine registers the engine that drives the simulation.
func (m *Monitor) RegisterEngine(e sim.Engine) {
	m.engine = e
}

// RegisterComponent registers a component to be monitored. All the
// sim.Buffer fields of the component and its ports are tracked for hang
// detection.
func (m *Monitor) RegisterComponent(c sim.Component) {
	m.components = append(m.components, c)

	m.collectBuffers(c)
	for _, p := range c.Ports() {
		m.collectBuffers(p)
	}
}

func (m *Monitor) collectBuffers(holder any) {
	bufferType := reflect.TypeOf((*sim.Buffer)(nil)).Elem()

	v := reflect.ValueOf(holder).Elem()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if field.Type() != bufferType {
			continue
		}

		buf := reflect.NewAt(
			field.Type(),
			unsafe.Pointer(field.UnsafeAddr()),
		).Elem().Interface().(sim.Buffer)
		m.buffers = append(m.buffers, buf)
	}
}

// StartServer starts serving monitoring requests in the background.
func (m *Monitor) StartServer() {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/run", m.run)
	r.HandleFunc("/api/tick/{name}", m.tick)
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/buffers", m.listBuffers)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/", m.statusPage)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	if m.openInWeb {
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %s\n", err)
		}
	}

	go func() {
		dieOnErr(http.Serve(listener, r))
	}()
}

func (m *Monitor) statusPage(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Simulation Monitor</title></head>
<body>
<h1>Simulation Monitor</h1>
<ul>
<li><a href="/api/now">now</a></li>
<li><a href="/api/list_components">components</a></li>
<li><a href="/api/buffers">buffers</a></li>
<li><a href="/api/progress">progress</a></li>
<li><a href="/api/resource">resource</a></li>
</ul>
</body>
</html>`)
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Pause()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Continue()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"now\":%.10f}", m.engine.CurrentTime())
}

func (m *Monitor) run(_ http.ResponseWriter, _ *http.Request) {
	go func() {
		dieOnErr(m.engine.Run())
	}()
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}

	writeJSON(w, names)
}

type tickLater interface {
	TickLater()
}

func (m *Monitor) tick(w http.ResponseWriter, r *http.Request) {
	comp := m.findComponentOr404(w, mux.Vars(r)["name"])
	if comp == nil {
		return
	}

	ticking, ok := comp.(tickLater)
	if !ok {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ticking.TickLater()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	comp := m.findComponentOr404(w, mux.Vars(r)["name"])
	if comp == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(comp)
	serializer.SetMaxDepth(1)

	dieOnErr(serializer.Serialize(w))
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}
	dieOnErr(json.Unmarshal([]byte(mux.Vars(r)["json"]), &req))

	comp := m.findComponentOr404(w, req.CompName)
	if comp == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(comp)
	serializer.SetMaxDepth(1)

	dieOnErr(serializer.SetEntryPoint(strings.Split(req.FieldName, ".")))
	dieOnErr(serializer.Serialize(w))
}

// listBuffers reports buffer fill levels, most congested first. A buffer
// that stays full across samples is a hang suspect.
func (m *Monitor) listBuffers(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := bufferParams(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	buffers := m.sortAndSelectBuffers(sortMethod, limit, offset)

	type bufferRsp struct {
		Buffer string `json:"buffer"`
		Level  int    `json:"level"`
		Cap    int    `json:"cap"`
	}

	rsp := make([]bufferRsp, 0, len(buffers))
	for _, b := range buffers {
		rsp = append(rsp, bufferRsp{
			Buffer: b.Name(),
			Level:  b.Size(),
			Cap:    b.Capacity(),
		})
	}

	writeJSON(w, rsp)
}

func bufferParams(r *http.Request) (
	sortMethod string, limit, offset int, err error,
) {
	sortMethod = r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "percent"
	}
	if sortMethod != "level" && sortMethod != "percent" {
		return "", 0, 0, errors.New(
			"invalid sort method, allowed values are `level` and `percent`")
	}

	limit, err = intParam(r, "limit", 0)
	if err != nil {
		return sortMethod, 0, 0, err
	}

	offset, err = intParam(r, "offset", 0)
	if err != nil {
		return sortMethod, limit, 0, err
	}

	return sortMethod, limit, offset, nil
}

func intParam(r *http.Request, name string, dflt int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return dflt, nil
	}

	return strconv.Atoi(s)
}

func bufferPercent(b sim.Buffer) float64 {
	return float64(b.Size()) / float64(b.Capacity())
}

func (m *Monitor) sortAndSelectBuffers(
	sortMethod string,
	limit, offset int,
) []sim.Buffer {
	sorted := make([]sim.Buffer, len(m.buffers))
	copy(sorted, m.buffers)

	sort.Slice(sorted, func(i, j int) bool {
		if sortMethod == "level" {
			if sorted[i].Size() != sorted[j].Size() {
				return sorted[i].Size() > sorted[j].Size()
			}
			return bufferPercent(sorted[i]) > bufferPercent(sorted[j])
		}

		if bufferPercent(sorted[i]) != bufferPercent(sorted[j]) {
			return bufferPercent(sorted[i]) > bufferPercent(sorted[j])
		}
		return sorted[i].Size() > sorted[j].Size()
	})

	if offset > len(sorted) {
		offset = len(sorted)
	}
	sorted = sorted[offset:]

	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}

	return sorted
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) sim.Component {
	for _, c := range m.components {
		if c.Name() == name {
			return c
		}
	}

	w.WriteHeader(http.StatusNotFound)
	fmt.Fprint(w, "Component not found")

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memInfo, err := proc.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memInfo.RSS,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
