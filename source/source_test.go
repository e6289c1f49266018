package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/common"
	"jobcost/jobs"
	"jobcost/nodeset"
)

// fakeSacct prints a job and one step for every id in the -j list.
type fakeSacct struct {
	sync.Mutex
	calls [][]string
}

func (f *fakeSacct) run(ctx context.Context, program string, args []string) (string, string, error) {
	f.Lock()
	f.calls = append(f.calls, args)
	f.Unlock()
	ix := slices.Index(args, "-j")
	if ix == -1 {
		return "1|00:01:00|10|a1\n1.0|00:01:00|5|a1\n", "", nil
	}
	var out strings.Builder
	for _, id := range strings.Split(args[ix+1], ",") {
		fmt.Fprintf(&out, "%s|00:10:00|100|n%s\n%s.batch|00:10:00|50|n%s\n", id, id, id, id)
	}
	return out.String(), "", nil
}

func TestSacctBatches(t *testing.T) {
	ids := make([]string, 0)
	for i := 1; i <= 23; i++ {
		ids = append(ids, fmt.Sprint(i))
	}
	// Duplicates are looked up once
	ids = append(ids, "3", "7")

	fake := new(fakeSacct)
	s := NewSacct("", Query{JobIDs: ids})
	s.BatchSize = 5
	s.Parallelism = 3
	s.Run = fake.run
	rd, err := s.Records(context.Background())
	require.NoError(t, err)
	records, err := ReadAll(rd)
	require.NoError(t, err)

	require.Len(t, fake.calls, 5)
	require.Len(t, records, 46)
	for i := 0; i < 23; i++ {
		assert.Equal(t, fmt.Sprint(i+1), records[2*i].JobID)
		assert.Equal(t, fmt.Sprintf("%d.batch", i+1), records[2*i+1].JobID)
	}
	for _, call := range fake.calls {
		assert.Equal(t, []string{"-P", "--noheader", "-o", "JobID,Elapsed,ConsumedEnergyRaw,NodeList"}, call[:4])
	}

	// The whole pipeline sees every job with its step folded in
	agg := jobs.NewAggregator("sacct", jobs.NewSliceReader(records))
	js, err := agg.Collect()
	require.NoError(t, err)
	require.Len(t, js, 23)
	assert.Equal(t, jobs.NewEnergy(150), js[0].Energy)
}

func TestSacctRange(t *testing.T) {
	fake := new(fakeSacct)
	s := NewSacct("/usr/bin/sacct", Query{From: "2026-01-01", To: "now"})
	s.Run = fake.run
	rd, err := s.Records(context.Background())
	require.NoError(t, err)
	records, err := ReadAll(rd)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, []string{"-a", "-S", "2026-01-01", "-E", "now"}, fake.calls[0][4:])
}

func TestSacctFailure(t *testing.T) {
	s := NewSacct("", Query{JobIDs: []string{"1", "2", "3"}})
	s.BatchSize = 1
	s.Run = func(ctx context.Context, program string, args []string) (string, string, error) {
		if args[len(args)-1] == "2" {
			return "", "boom", errors.New("exit status 1")
		}
		return "", "", nil
	}
	_, err := s.Records(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Batch 2 of 3")
}

func TestBatch(t *testing.T) {
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, batch([]string{"a", "b", "c"}, 2))
	assert.Equal(t, [][]string{{"a", "b"}}, batch([]string{"a", "b"}, 2))
	assert.Empty(t, batch(nil, 2))
}

func TestPipeReader(t *testing.T) {
	input := "42|1-00:00:00|123|c1-[1-2]\n\n42.0|00:00:01||\r\n43|00:00:05|18446744073709551615|None assigned\n"
	records, err := ReadAll(NewPipeReader("test", strings.NewReader(input)))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "42", records[0].JobID)
	assert.Equal(t, "1-00:00:00", records[0].Elapsed)
	assert.Equal(t, jobs.NewEnergy(123), records[0].Energy)
	assert.Equal(t, "c1-[1-2]", records[0].NodeList)
	assert.False(t, records[1].Energy.Valid)
	assert.False(t, records[2].Energy.Valid)
	assert.Equal(t, jobs.NoneAssigned, records[2].NodeList)

	_, err = ReadAll(NewPipeReader("test", strings.NewReader("42|00:00:01|5\n")))
	var contract *common.SourceContractError
	require.True(t, errors.As(err, &contract), "%v", err)
	assert.Contains(t, contract.Detail, "Line 1")
}

func TestFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "sacct.txt")
	require.NoError(t, os.WriteFile(name, []byte("1|00:00:10|1|a\n1.0|00:00:10|2|\n2|00:00:20||b\n"), 0644))

	f := &File{Path: name}
	rd, err := f.Records(context.Background())
	require.NoError(t, err)
	records, err := ReadAll(rd)
	require.NoError(t, err)
	require.Len(t, records, 3)

	f = &File{Path: name, Query: Query{JobIDs: []string{"1"}}}
	rd, err = f.Records(context.Background())
	require.NoError(t, err)
	records, err = ReadAll(rd)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1.0", records[1].JobID)

	_, err = (&File{Path: filepath.Join(t.TempDir(), "nope")}).Records(context.Background())
	require.Error(t, err)
}

const sonarInput = `
{"meta":{"producer":"sonar","version":"0.16.0"},"data":{"type":"job","attributes":{
  "time":"2026-01-01T00:00:00Z","cluster":"fox","slurm_jobs":[
    {"job_id":7,"job_step":"batch","job_state":"COMPLETED","nodes":["c1"],"sacct":{"ElapsedRaw":60}},
    {"job_id":8,"job_state":"RUNNING","nodes":["c[2-3]","c5"],"sacct":{"ElapsedRaw":90061}},
    {"job_id":7,"job_state":"COMPLETED","nodes":["c1"],"sacct":{"ElapsedRaw":60}},
    {"job_id":7,"job_step":"0","job_state":"COMPLETED","nodes":["c1"],"sacct":{"ElapsedRaw":30}},
    {"job_id":9,"job_step":"0","job_state":"COMPLETED","nodes":["c1"],"sacct":{"ElapsedRaw":30}},
    {"job_id":10,"job_state":"PENDING","nodes":["None assigned"]}
  ]}}}
{"meta":{"producer":"sonar","version":"0.16.0"},"errors":[
  {"time":"2026-01-01T00:00:00Z","detail":"sacct failed","cluster":"fox","node":"login1"}]}
{"meta":{"producer":"sonar","version":"0.16.0"},"data":{"type":"job","attributes":{
  "time":"2026-01-01T00:05:00Z","cluster":"fox","slurm_jobs":[
    {"job_id":8,"job_state":"COMPLETED","nodes":["c[2-3]","c5"],"sacct":{"ElapsedRaw":90062}}
  ]}}}
`

func decodeJobs(t *testing.T, input string, query *Query) []*jobs.Record {
	d := newJobsDecoder("sonar", query)
	require.NoError(t, d.decode(strings.NewReader(input)))
	return d.records()
}

func jobIDs(records []*jobs.Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.JobID
	}
	return ids
}

func TestSonar(t *testing.T) {
	d := newJobsDecoder("sonar", &Query{})
	require.NoError(t, d.decode(strings.NewReader(sonarInput)))
	assert.Equal(t, 1, d.softErrors)
	records := d.records()

	// Parent first, steps sorted, orphan step 9.0 dropped, latest snapshot of 8
	assert.Equal(t, []string{"7", "7.0", "7.batch", "8", "10"}, jobIDs(records))
	assert.Equal(t, "00:01:00", records[0].Elapsed)
	assert.Equal(t, "1-01:01:02", records[3].Elapsed)
	assert.Equal(t, "c[2-3],c5", records[3].NodeList)
	assert.Equal(t, "", records[4].NodeList)
	assert.False(t, records[0].Energy.Valid)

	agg := jobs.NewAggregator("sonar", jobs.NewSliceReader(records))
	js, err := agg.Collect()
	require.NoError(t, err)
	require.Len(t, js, 2)
	assert.Equal(t, 2, js[0].Steps)
	assert.Equal(t, uint64(90062), js[1].RuntimeSeconds)
	assert.Equal(t, 1, agg.Dropped())
}

func TestSonarQuery(t *testing.T) {
	records := decodeJobs(t, sonarInput, &Query{JobIDs: []string{"8"}})
	assert.Equal(t, []string{"8"}, jobIDs(records))

	records = decodeJobs(t, sonarInput, &Query{JobIDs: []string{"7", "12"}})
	assert.Equal(t, []string{"7", "7.0", "7.batch"}, jobIDs(records))
}

func TestSonarMessages(t *testing.T) {
	// Snapshots accumulate over several inputs, as for Kafka messages
	d := newJobsDecoder("kafka", &Query{})
	require.NoError(t, d.decode(strings.NewReader(
		`{"meta":{"producer":"sonar","version":"0.16.0"},"data":{"type":"job","attributes":{"time":"2026-01-01T00:00:00Z","cluster":"fox","slurm_jobs":[{"job_id":3,"job_step":"0","job_state":"RUNNING","nodes":["a1"],"sacct":{"ElapsedRaw":5}}]}}}`)))
	require.NoError(t, d.decode(strings.NewReader(
		`{"meta":{"producer":"sonar","version":"0.16.0"},"data":{"type":"job","attributes":{"time":"2026-01-01T00:01:00Z","cluster":"fox","slurm_jobs":[{"job_id":3,"job_state":"RUNNING","nodes":["a1"],"sacct":{"ElapsedRaw":65}}]}}}`)))
	records := d.records()
	assert.Equal(t, []string{"3", "3.0"}, jobIDs(records))
	assert.Equal(t, "00:01:05", records[0].Elapsed)
}

func TestSonarBadInput(t *testing.T) {
	var contract *common.SourceContractError
	d := newJobsDecoder("sonar", &Query{})
	err := d.decode(strings.NewReader(`{"meta":{"producer":"sonar"},"data":`))
	require.True(t, errors.As(err, &contract), "%v", err)

	// Data and errors together are rejected by the decoder
	d = newJobsDecoder("sonar", &Query{})
	err = d.decode(strings.NewReader(
		`{"meta":{"producer":"sonar","version":"1"},"data":{"type":"job","attributes":{}},"errors":[{"detail":"x"}]}`))
	require.True(t, errors.As(err, &contract), "%v", err)
}

func TestSonarFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte(sonarInput), 0o644))
	s := &Sonar{Path: path, Query: Query{JobIDs: []string{"8"}}}
	assert.Equal(t, "sonar:"+path, s.Name())
	rr, err := s.Records(context.Background())
	require.NoError(t, err)
	records, err := ReadAll(rr)
	require.NoError(t, err)
	assert.Equal(t, []string{"8"}, jobIDs(records))
}

func TestSnapshotRecord(t *testing.T) {
	r := snapshotRecord(42, "", 3600, []string{"c1", jobs.NoneAssigned, "c2"})
	assert.Equal(t, "42", r.JobID)
	assert.Equal(t, "01:00:00", r.Elapsed)
	assert.Equal(t, "c1,c2", r.NodeList)

	// Compressed ranges join into one host list
	r = snapshotRecord(43, "", 60, []string{"c[1-2]", "gpu-[3,5]"})
	assert.Equal(t, "c[1-2],gpu-[3,5]", r.NodeList)
	s, err := nodeset.Expand(r.NodeList)
	require.NoError(t, err)
	assert.Equal(t, nodeset.Set{"c1", "c2", "gpu-3", "gpu-5"}, s)

	r = snapshotRecord(42, "extern", 0, nil)
	assert.Equal(t, "42.extern", r.JobID)
	assert.True(t, r.IsStep())
	assert.Equal(t, "", r.NodeList)
}

func TestDatabaseQuery(t *testing.T) {
	d := NewDatabase("postgres://x", "fox", Query{JobIDs: []string{"5", "6", "5"}, From: "2026-01-02"})
	q, args, err := d.query()
	require.NoError(t, err)
	assert.Contains(t, q, "SELECT DISTINCT ON (t1.job_id, t1.job_step) t1.job_id, t1.job_step")
	assert.Contains(t, q, "WHERE t1.cluster = $1 AND t1.job_id = ANY($2) AND t1.time >= $3")
	assert.True(t, strings.HasSuffix(q, "ORDER BY t1.job_id, t1.job_step, t1.time DESC"))
	require.Len(t, args, 3)
	assert.Equal(t, "fox", args[0])
	assert.Equal(t, []int64{5, 6}, args[1])
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.Local), args[2])

	d = NewDatabase("postgres://x", "fox", Query{JobIDs: []string{"5_1"}})
	_, _, err = d.query()
	require.Error(t, err)

	d = NewDatabase("postgres://x", "fox", Query{To: "yesterday"})
	_, _, err = d.query()
	require.Error(t, err)
}

func TestDatabaseConnectFailure(t *testing.T) {
	d := NewDatabase("postgres://x", "fox", Query{})
	d.connect = func(ctx context.Context, uri string) (querier, func(), error) {
		return nil, nil, errors.New("Unable to connect")
	}
	_, err := d.Records(context.Background())
	require.Error(t, err)
}

func TestKafkaTopic(t *testing.T) {
	k := NewKafka("localhost:9092", "fox.educloud.no", Query{})
	assert.Equal(t, "fox.educloud.no.job", k.Topic())
	assert.Equal(t, DefaultIdleTimeout, k.IdleTimeout)
}

func TestScontrolExpander(t *testing.T) {
	var seen []string
	run := func(ctx context.Context, program string, args []string) (string, string, error) {
		seen = append([]string{program}, args...)
		return "c1\nc3\nc2\nc1\n", "", nil
	}
	expand := ScontrolExpander(context.Background(), "", run)
	s, err := expand("c[1-3]")
	require.NoError(t, err)
	assert.Equal(t, nodeset.Set{"c1", "c2", "c3"}, s)
	assert.Equal(t, []string{"scontrol", "show", "hostnames", "c[1-3]"}, seen)

	seen = nil
	s, err = expand(" ")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, seen)
}

func TestReadAllError(t *testing.T) {
	_, err := ReadAll(failingReader{})
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

type failingReader struct{}

func (failingReader) Read() (*jobs.Record, error) {
	return nil, io.ErrUnexpectedEOF
}
