package telemetry

import (
	"github.com/heaplab/regionheap/recording"
	"github.com/heaplab/regionheap/uncommit"
)

// passTableName is the table reclaiming passes are recorded into.
const passTableName = "uncommit_passes"

type passTableEntry struct {
	ID        string
	Trigger   string
	StartTime float64
	EndTime   float64
	Regions   int
	Bytes     uint64
	Floor     uint64
}

// DBPassWriter stores reclaiming-pass records through a DataRecorder.
type DBPassWriter struct {
	recorder recording.DataRecorder
}

// NewDBPassWriter creates a DBPassWriter over the given recorder and creates
// the pass table.
func NewDBPassWriter(recorder recording.DataRecorder) *DBPassWriter {
	recorder.CreateTable(passTableName, passTableEntry{})

	return &DBPassWriter{recorder: recorder}
}

// Write stores one pass record.
func (w *DBPassWriter) Write(record uncommit.PassRecord) {
	w.recorder.InsertData(passTableName, passTableEntry{
		ID:        record.ID,
		Trigger:   record.Trigger,
		StartTime: record.StartTime,
		EndTime:   record.EndTime,
		Regions:   record.Regions,
		Bytes:     record.Bytes,
		Floor:     record.Floor,
	})
}

// Flush forces buffered records into the database.
func (w *DBPassWriter) Flush() {
	w.recorder.Flush()
}
