package bench

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/arrowbus/pkg/batch"
	"github.com/ajitpratap0/arrowbus/pkg/codec"
)

// Overhead compares payload sizes of both codecs for one row count
type Overhead struct {
	Rows       int `json:"rows"`
	ValueBytes int `json:"value_bytes"`
	IPCBytes   int `json:"ipc_bytes"`
	RawBytes   int `json:"raw_bytes"`
	// IPCOverhead is IPCBytes minus ValueBytes: schema, batch metadata,
	// padding and the end-of-stream marker
	IPCOverhead int `json:"ipc_overhead"`
}

// PayloadOverhead encodes one batch per size with both codecs
func PayloadOverhead(sizes []int) ([]Overhead, error) {
	out := make([]Overhead, 0, len(sizes))
	for _, rows := range sizes {
		b := batch.Generate(rows)
		ipcPayload, err := codec.NewIPCCodec().Encode(b)
		if err != nil {
			b.Release()
			return nil, err
		}
		raw, err := codecFor(codec.KindRaw, rows)
		if err != nil {
			b.Release()
			return nil, err
		}
		rawPayload, err := raw.Encode(b)
		b.Release()
		if err != nil {
			return nil, err
		}

		values := rows * batch.ElementWidth
		out = append(out, Overhead{
			Rows:        rows,
			ValueBytes:  values,
			IPCBytes:    len(ipcPayload),
			RawBytes:    len(rawPayload),
			IPCOverhead: len(ipcPayload) - values,
		})
	}
	return out, nil
}

// Report is the JSON document written by `arrowbus bench --json`
type Report struct {
	Timestamp time.Time  `json:"timestamp"`
	GoVersion string     `json:"go_version"`
	Platform  string     `json:"platform"`
	Results   []Result   `json:"results"`
	Overhead  []Overhead `json:"overhead"`
}

// NewReport stamps results with the current time and platform
func NewReport(results []Result, overhead []Overhead) *Report {
	return &Report{
		Timestamp: time.Now().UTC(),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Results:   results,
		Overhead:  overhead,
	}
}

// WriteJSON writes the report as indented JSON
func (r *Report) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// Save writes the report to path
func (r *Report) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	if err := r.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteTable prints results and overhead as aligned columns
func (r *Report) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "codec\top\trows\tpayload\tns/op\tMB/s\tallocs/op\tB/op\t")
	for _, res := range r.Results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%.1f\t%d\t%d\t\n",
			res.Codec, res.Op, res.Rows, res.PayloadBytes,
			res.NsPerOp, res.MBPerSec, res.AllocsPerOp, res.BytesPerOp)
	}
	if len(r.Overhead) > 0 {
		fmt.Fprintln(tw, "\t\t\t\t\t\t\t\t")
		fmt.Fprintln(tw, "rows\tvalues\tipc\traw\tipc overhead\t")
		for _, o := range r.Overhead {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t\n",
				o.Rows, o.ValueBytes, o.IPCBytes, o.RawBytes, o.IPCOverhead)
		}
	}
	return tw.Flush()
}
