package datarecording

import (
	"os"
	"strings"
	"time"
)

const timeLayout = "2006-01-02 15:04:05.000000000"

// ExecInfo is one property of a run.
type ExecInfo struct {
	Property string
	Value    string
}

// ExecRecorder records when and how the router ran.
type ExecRecorder struct {
	tableName string
	recorder  DataRecorder
	entries   []ExecInfo
}

// NewExecRecorder creates the exec_info table in rec.
func NewExecRecorder(rec DataRecorder) (*ExecRecorder, error) {
	e := &ExecRecorder{
		tableName: "exec_info",
		recorder:  rec,
	}

	if err := rec.CreateTable(e.tableName, ExecInfo{}); err != nil {
		return nil, err
	}

	return e, nil
}

// Start notes the start of a run of the given instance.
func (e *ExecRecorder) Start(instance string) {
	e.entries = append(e.entries,
		ExecInfo{"Instance", instance},
		ExecInfo{"Start Time", time.Now().Format(timeLayout)},
		ExecInfo{"Command", strings.Join(os.Args, " ")},
	)

	if wd, err := os.Getwd(); err == nil {
		e.entries = append(e.entries, ExecInfo{"Working Directory", wd})
	}
}

// End writes the run properties along with the end time.
func (e *ExecRecorder) End() error {
	e.entries = append(e.entries,
		ExecInfo{"End Time", time.Now().Format(timeLayout)})

	for _, entry := range e.entries {
		if err := e.recorder.InsertData(e.tableName, entry); err != nil {
			return err
		}
	}

	e.entries = nil

	return e.recorder.Flush()
}
