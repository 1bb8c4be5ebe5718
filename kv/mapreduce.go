package kv

import (
	"context"
	"time"

	"github.com/riakpersist/riakpersist"
	"github.com/riakpersist/riakpersist/kit/tracing"
	"github.com/riakpersist/riakpersist/mapreduce"
	"go.uber.org/zap"
)

// NewMapReduce returns an empty job builder.
func (m *Manager) NewMapReduce() *mapreduce.Builder {
	return mapreduce.New()
}

// RunMapReduce submits job with the configured timeout and post-processes
// its rows. When mapper is given it is applied to every row. When reducer
// is given it receives the (mapped) rows and its result is returned;
// otherwise the rows are returned as a []interface{}.
//
// The submitted job is a copy of job carrying the timeout; job itself is
// left untouched.
func (m *Manager) RunMapReduce(ctx context.Context, job *riakpersist.MapReduceJob, mapper riakpersist.MapperFunc, reducer riakpersist.ReducerFunc) (interface{}, error) {
	span, ctx := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	timeout := m.config.MapReduceTimeout
	ms := int(timeout / time.Millisecond)
	submitted := *job
	submitted.Timeout = &ms

	rows, err := m.submit(ctx, &submitted, timeout)
	if err != nil {
		return nil, tracing.LogError(span, err)
	}

	if mapper != nil {
		mapped := make([]interface{}, len(rows))
		for i, row := range rows {
			v, err := mapper(ctx, m, row)
			if err != nil {
				return nil, tracing.LogError(span, err)
			}
			mapped[i] = v
		}
		rows = mapped
	}

	if reducer != nil {
		v, err := reducer(ctx, m, rows)
		if err != nil {
			return nil, tracing.LogError(span, err)
		}
		return v, nil
	}
	return rows, nil
}

func (m *Manager) submit(ctx context.Context, job *riakpersist.MapReduceJob, timeout time.Duration) ([]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := m.Clock.Now()
	rows, err := m.client.MapReduce(ctx, job)
	took := m.Clock.Now().Sub(start)
	m.metrics.mapReduceDuration.Observe(took.Seconds())
	if err != nil {
		return nil, err
	}

	m.log.Debug("Map-reduce job finished",
		zap.Int("rows", len(rows)),
		zap.Int("phases", len(job.Query)),
		zap.Duration("took", took))
	return rows, nil
}
