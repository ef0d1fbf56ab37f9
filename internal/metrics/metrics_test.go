package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPipelineCounters(t *testing.T) {
	p := New(prometheus.NewRegistry())

	p.Processed("Swap")
	p.Processed("Swap")
	p.Failed("Sync")
	p.Skipped()
	p.Unpriced()
	p.Flushed(3)
	p.Anchor(301.5, 1700000000)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.EventsProcessed.WithLabelValues("Swap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.EventsFailed.WithLabelValues("Sync")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.EventsSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.TokensUnpriced))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.WindowsFlushed))
	assert.Equal(t, 301.5, testutil.ToFloat64(p.BasePriceUSD))
}

func TestNilPipelineIsNoop(t *testing.T) {
	var p *Pipeline
	assert.NotPanics(t, func() {
		p.Processed("Swap")
		p.Failed("Swap")
		p.Skipped()
		p.Unpriced()
		p.Flushed(1)
		p.Anchor(1, 1)
	})
}
