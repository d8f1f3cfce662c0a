// Package monitoring turns a live heap and its uncommit controller into an
// HTTP server so that the shrinking behavior can be watched and poked from
// outside the process.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/heaplab/regionheap/heap"
	"github.com/heaplab/regionheap/hooking"
	"github.com/heaplab/regionheap/uncommit"
)

// Monitor can turn a heap and its uncommit controller into a server and
// allows external monitoring and controlling of the shrinking behavior.
type Monitor struct {
	heap       *heap.Heap
	controller *uncommit.Controller
	components []hooking.Named
	portNumber int
	autoOpen   bool
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithAutoOpen lets the monitor open its URL in a browser when the server
// starts.
func (m *Monitor) WithAutoOpen() *Monitor {
	m.autoOpen = true
	return m
}

// RegisterHeap registers the heap to be monitored.
func (m *Monitor) RegisterHeap(h *heap.Heap) {
	m.heap = h
	m.components = append(m.components, h)
}

// RegisterController registers the uncommit controller to be monitored.
func (m *Monitor) RegisterController(c *uncommit.Controller) {
	m.controller = c
	m.components = append(m.components, c)
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() {
	r := mux.NewRouter()

	r.HandleFunc("/api/heap", m.heapStatus)
	r.HandleFunc("/api/regions", m.listRegions)
	r.HandleFunc("/api/controller", m.controllerStatus)
	r.HandleFunc("/api/gc", m.requestGC).Methods(http.MethodPost)
	r.HandleFunc("/api/softmax", m.setSoftMax).Methods(http.MethodPost)
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	http.Handle("/", r)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring heap with %s\n", url)

	if m.autoOpen {
		err := browser.OpenURL(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open browser: %s\n", err)
		}
	}

	go func() {
		err = http.Serve(listener, nil)
		dieOnErr(err)
	}()
}

func (m *Monitor) heapStatus(w http.ResponseWriter, _ *http.Request) {
	bytes, err := json.Marshal(m.heap.Snapshot())
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

type regionRsp struct {
	Index     int     `json:"index"`
	State     string  `json:"state"`
	EmptyTime float64 `json:"empty_time"`
}

func (m *Monitor) listRegions(w http.ResponseWriter, _ *http.Request) {
	regions := make([]regionRsp, 0, m.heap.RegionCount())
	for i := 0; i < m.heap.RegionCount(); i++ {
		r := m.heap.Region(i)
		regions = append(regions, regionRsp{
			Index:     r.Index(),
			State:     r.State().String(),
			EmptyTime: r.EmptyTime(),
		})
	}

	bytes, err := json.Marshal(regions)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

type controllerRsp struct {
	Name              string  `json:"name"`
	Terminated        bool    `json:"terminated"`
	DelaySeconds      float64 `json:"delay_seconds"`
	SoftMaxPending    bool    `json:"soft_max_pending"`
	ExplicitGCPending bool    `json:"explicit_gc_pending"`
}

func (m *Monitor) controllerStatus(w http.ResponseWriter, _ *http.Request) {
	softMaxPending, explicitGCPending := m.controller.PendingTriggers()

	rsp := controllerRsp{
		Name:              m.controller.Name(),
		Terminated:        m.controller.IsTerminated(),
		DelaySeconds:      m.controller.Delay().Seconds(),
		SoftMaxPending:    softMaxPending,
		ExplicitGCPending: explicitGCPending,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) requestGC(w http.ResponseWriter, _ *http.Request) {
	m.controller.NotifyExplicitGCRequested()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) setSoftMax(w http.ResponseWriter, r *http.Request) {
	bytesArg := r.URL.Query().Get("bytes")

	value, err := strconv.ParseUint(bytesArg, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	if m.heap.SetSoftMaxCapacity(value) {
		m.controller.NotifySoftMaxChanged()
	}

	fmt.Fprintf(w, "{\"soft_max_capacity\":%d}", m.heap.SoftMaxCapacity())
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, "[")
	for i, c := range m.components {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w, "\"%s\"", c.Name())
	}
	fmt.Fprint(w, "]")
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		dieOnErr(err)
	}

	component := m.findComponentOr404(w, req.CompName)
	if component == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	dieOnErr(err)

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) hooking.Named {
	var component hooking.Named
	for _, c := range m.components {
		if c.Name() == name {
			component = c
		}
	}

	if component == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Component not found"))
		dieOnErr(err)
	}

	return component
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	bytes, err := json.Marshal(prof)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
