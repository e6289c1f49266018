// Records from Sonar's job topic in Kafka, `<cluster>.job`.  Every message is one or more job
// envelopes, decoded as for the Sonar source.  The topic is read from the start until no new data
// arrive for a while.

package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordicHPC/sonar/util/formats/newfmt"
	"github.com/twmb/franz-go/pkg/kgo"

	"jobcost/jobs"
)

const DefaultIdleTimeout = 5 * time.Second

type Kafka struct {
	Broker      string
	Cluster     string
	Query       Query
	IdleTimeout time.Duration
}

func NewKafka(broker, cluster string, query Query) *Kafka {
	return &Kafka{Broker: broker, Cluster: cluster, Query: query, IdleTimeout: DefaultIdleTimeout}
}

func (k *Kafka) Name() string {
	return "kafka:" + k.Topic()
}

func (k *Kafka) Topic() string {
	return k.Cluster + "." + string(newfmt.DataTagJobs)
}

func (k *Kafka) Records(ctx context.Context) (jobs.RecordReader, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(k.Broker),
		kgo.ConsumeTopics(k.Topic()),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: Failed to create client: %w", k.Name(), err)
	}
	defer cl.Close()

	d := newJobsDecoder(k.Name(), &k.Query)
	for {
		pctx, cancel := context.WithTimeout(ctx, k.IdleTimeout)
		fetches := cl.PollFetches(pctx)
		cancel()
		if fetches.IsClientClosed() {
			break
		}
		idle := false
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.DeadlineExceeded) && ctx.Err() == nil {
				idle = true
				continue
			}
			return nil, fmt.Errorf("%s: Failed to fetch data: %w", k.Name(), fe.Err)
		}
		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()
			if err := d.decode(bytes.NewReader(record.Value)); err != nil {
				return nil, err
			}
		}
		if idle {
			break
		}
	}
	return jobs.NewSliceReader(d.records()), nil
}
