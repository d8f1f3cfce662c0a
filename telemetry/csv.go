package telemetry

import (
	"fmt"
	"os"
	"sync"

	"github.com/tebeka/atexit"

	"github.com/heaplab/regionheap/uncommit"
)

// CSVPassWriter stores reclaiming-pass records in a CSV file.
type CSVPassWriter struct {
	mu   sync.Mutex
	path string
	file *os.File

	records    []uncommit.PassRecord
	bufferSize int
}

// NewCSVPassWriter creates a new CSVPassWriter.
func NewCSVPassWriter(path string) *CSVPassWriter {
	return &CSVPassWriter{
		path:       path,
		bufferSize: 1000,
	}
}

// Init creates the CSV file. If the file already exists, it will be
// overwritten.
func (w *CSVPassWriter) Init() {
	file, err := os.Create(w.path)
	if err != nil {
		panic(err)
	}
	w.file = file

	fmt.Fprintf(file, "ID, Trigger, Start, End, Regions, Bytes, Floor\n")

	atexit.Register(func() {
		w.Flush()

		err := w.file.Close()
		if err != nil {
			panic(err)
		}
	})
}

// Write buffers a pass record for writing.
func (w *CSVPassWriter) Write(record uncommit.PassRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.records = append(w.records, record)
	if len(w.records) >= w.bufferSize {
		w.flushLocked()
	}
}

// Flush writes the buffered records to the CSV file.
func (w *CSVPassWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.flushLocked()
}

func (w *CSVPassWriter) flushLocked() {
	for _, r := range w.records {
		fmt.Fprintf(w.file, "%s, %s, %.10f, %.10f, %d, %d, %d\n",
			r.ID,
			r.Trigger,
			r.StartTime,
			r.EndTime,
			r.Regions,
			r.Bytes,
			r.Floor,
		)
	}

	w.records = nil
}
