// Records in sacct's parsable format, `JobID|Elapsed|ConsumedEnergyRaw|NodeList` one per line, as
// printed by sacct for us or saved earlier from `sacct -P --noheader -o ...`.

package source

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	. "jobcost/common"
	"jobcost/jobs"
)

type PipeReader struct {
	source  string
	scanner *bufio.Scanner
	lineno  int
}

func NewPipeReader(source string, input io.Reader) *PipeReader {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &PipeReader{source: source, scanner: scanner}
}

func (pr *PipeReader) Read() (*jobs.Record, error) {
	for pr.scanner.Scan() {
		pr.lineno++
		line := strings.TrimRight(pr.scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) != len(sacctFields) {
			return nil, NewSourceContractError(
				pr.source, "Line %d: Expected %d fields, got %d: %s",
				pr.lineno, len(sacctFields), len(fields), line)
		}
		return &jobs.Record{
			JobID:    strings.TrimSpace(fields[0]),
			Elapsed:  fields[1],
			Energy:   jobs.ParseEnergy(fields[2]),
			NodeList: fields[3],
		}, nil
	}
	if err := pr.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// ReadAll drains a reader.
func ReadAll(r jobs.RecordReader) ([]*jobs.Record, error) {
	records := make([]*jobs.Record, 0)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// File reads recorded sacct output.  The name "-" denotes standard input.  If the query has job ids
// then only those jobs are delivered.
type File struct {
	Path  string
	Query Query
}

func (f *File) Name() string {
	return f.Path
}

func (f *File) Records(ctx context.Context) (jobs.RecordReader, error) {
	var input io.Reader = os.Stdin
	if f.Path != "-" {
		file, err := os.Open(f.Path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		input = file
	}
	records, err := ReadAll(NewPipeReader(f.Path, input))
	if err != nil {
		return nil, err
	}
	if len(f.Query.JobIDs) > 0 {
		kept := records[:0]
		for _, r := range records {
			if f.Query.wants(r.ParentID()) {
				kept = append(kept, r)
			}
		}
		records = kept
	}
	return jobs.NewSliceReader(records), nil
}
