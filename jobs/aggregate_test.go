package jobs

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/common"
	"jobcost/status"
)

type countingReader struct {
	SliceReader
	reads int
}

func (cr *countingReader) Read() (*Record, error) {
	cr.reads++
	return cr.SliceReader.Read()
}

func TestAggregateSteps(t *testing.T) {
	in := &countingReader{
		SliceReader: SliceReader{records: []*Record{
			{JobID: "42", Elapsed: "00:10:00", NodeList: "A"},
			{JobID: "42.0", Elapsed: "00:09:00", Energy: NewEnergy(100)},
			{JobID: "42.1", Elapsed: "00:01:00", Energy: NewEnergy(50)},
			{JobID: "43", Elapsed: "00:05:00", NodeList: "B"},
		}},
	}
	agg := NewAggregator("test", in)

	j, err := agg.Next()
	require.NoError(t, err)
	assert.Equal(t, "42", j.JobID)
	assert.Equal(t, uint64(600), j.RuntimeSeconds)
	assert.Equal(t, NewEnergy(150), j.Energy)
	assert.Equal(t, "A", j.NodeList)
	assert.Equal(t, 2, j.Steps)
	// Job 42 was complete once 43 was seen, and not before
	assert.Equal(t, 4, in.reads)

	j, err = agg.Next()
	require.NoError(t, err)
	assert.Equal(t, "43", j.JobID)
	assert.Equal(t, uint64(300), j.RuntimeSeconds)
	assert.False(t, j.Energy.Valid)
	// 43 could only be completed by seeing the end of the stream
	assert.Equal(t, 5, in.reads)

	_, err = agg.Next()
	assert.ErrorIs(t, err, io.EOF)
	_, err = agg.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestAggregateDropsUnassigned(t *testing.T) {
	agg := NewAggregator("test", NewSliceReader([]*Record{
		{JobID: "1", Elapsed: "00:00:00", NodeList: NoneAssigned},
		{JobID: "2", Elapsed: "00:00:00", NodeList: ""},
		{JobID: "2.batch", Elapsed: "00:00:00", Energy: NewEnergy(5)},
		{JobID: "3", Elapsed: "00:00:01", NodeList: "c1"},
	}))
	js, err := agg.Collect()
	require.NoError(t, err)
	require.Len(t, js, 1)
	assert.Equal(t, "3", js[0].JobID)
	assert.Equal(t, 2, agg.Dropped())
}

func TestAggregateContractViolations(t *testing.T) {
	cases := map[string][]*Record{
		"step first": {
			{JobID: "42.0", Elapsed: "00:00:01"},
		},
		"bad elapsed": {
			{JobID: "42", Elapsed: "10 minutes", NodeList: "A"},
		},
		"foreign step": {
			{JobID: "42", Elapsed: "00:00:01", NodeList: "A"},
			{JobID: "41.0", Elapsed: "00:00:01"},
		},
		"duplicate job": {
			{JobID: "42", Elapsed: "00:00:01", NodeList: "A"},
			{JobID: "42", Elapsed: "00:00:01", NodeList: "A"},
		},
	}
	for name, records := range cases {
		_, err := NewAggregator("test", NewSliceReader(records)).Collect()
		require.Error(t, err, name)
		var sce *common.SourceContractError
		assert.True(t, errors.As(err, &sce), name)
	}
}

type failingReader struct{}

func (failingReader) Read() (*Record, error) {
	return nil, errors.New("broken pipe")
}

func TestAggregateReaderError(t *testing.T) {
	_, err := NewAggregator("test", failingReader{}).Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestAggregateWrappedEnergy(t *testing.T) {
	var buf bytes.Buffer
	saved := common.Log
	common.Log = status.New(&buf, status.LogLevelWarning)
	defer func() { common.Log = saved }()

	agg := NewAggregator("test", NewSliceReader([]*Record{
		{JobID: "42", Elapsed: "00:10:00", NodeList: "A"},
		{JobID: "42.0", Elapsed: "00:09:00", Energy: NewEnergy(100)},
		{JobID: "42.1", Elapsed: "00:01:00", Energy: NewEnergy(MaxValidEnergy + 5)},
		{JobID: "42.2", Elapsed: "00:01:00", Energy: ParseEnergy("")},
	}))
	j, err := agg.Next()
	require.NoError(t, err)
	assert.Equal(t, NewEnergy(100), j.Energy)
	assert.Equal(t, 3, j.Steps)
	assert.Contains(t, buf.String(), "Job 42.1: Energy reading 1000000000000000005 J is out of range")
	// Missing readings are not reported
	assert.NotContains(t, buf.String(), "42.2")
}
