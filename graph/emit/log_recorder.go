package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jmercier/graphflow/graph"
)

// LogRecorder implements graph.Hooks by writing one line to an io.Writer,
// in either a human-readable text format or newline-delimited JSON, for
// each graph start/end, step start/end, merge conflict and error. The
// spawn-branch and merge start/end callbacks write nothing. It carries no history of its own; pair it with
// Recorder via graph.WithHooks(logRecorder, recorder) when both a live
// tail and a queryable history are wanted.
type LogRecorder struct {
	graph.NoopHooks

	writer   io.Writer
	jsonMode bool
}

// NewLogRecorder returns a LogRecorder writing to writer (os.Stdout if
// nil). jsonMode selects newline-delimited JSON over the default text
// format.
func NewLogRecorder(writer io.Writer, jsonMode bool) *LogRecorder {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogRecorder{writer: writer, jsonMode: jsonMode}
}

func (l *LogRecorder) write(kind string, names []string, err error) {
	if l.jsonMode {
		l.writeJSON(kind, names, err)
		return
	}
	l.writeText(kind, names, err)
}

func (l *LogRecorder) writeText(kind string, names []string, err error) {
	fmt.Fprintf(l.writer, "[%s]", kind)
	if len(names) > 0 {
		fmt.Fprintf(l.writer, " nodes=%v", names)
	}
	if err != nil {
		fmt.Fprintf(l.writer, " err=%v", err)
	}
	fmt.Fprint(l.writer, "\n")
}

func (l *LogRecorder) writeJSON(kind string, names []string, err error) {
	entry := struct {
		Kind  string   `json:"kind"`
		Nodes []string `json:"nodes,omitempty"`
		Err   string   `json:"err,omitempty"`
	}{Kind: kind, Nodes: names}
	if err != nil {
		entry.Err = err.Error()
	}
	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", marshalErr)
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogRecorder) OnGraphStart(ctx context.Context, state graph.State, shared graph.Shared) {
	l.write("graph_start", nil, nil)
}

func (l *LogRecorder) OnGraphEnd(ctx context.Context, state graph.State, shared graph.Shared) {
	l.write("graph_end", nil, nil)
}

func (l *LogRecorder) OnStepStart(ctx context.Context, state graph.State, shared graph.Shared, nextNodes []graph.NextNode) {
	l.write("step_start", nodeNames(nextNodes), nil)
}

func (l *LogRecorder) OnStepEnd(ctx context.Context, state graph.State, shared graph.Shared, nextNodes []graph.NextNode) {
	l.write("step_end", nodeNames(nextNodes), nil)
}

func (l *LogRecorder) OnMergeConflict(ctx context.Context, state graph.State, changes []graph.ChangeSet, conflicts map[string][]graph.Change) {
	l.write("merge_conflict", nil, nil)
}

func (l *LogRecorder) OnError(ctx context.Context, err error, state graph.State, shared graph.Shared) error {
	l.write("error", nil, err)
	return err
}
