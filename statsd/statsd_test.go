package statsd

import (
	"testing"
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"

	"pkg.world.dev/world-engine/foundry/assert"
)

type recorder struct {
	ddstatsd.NoOpClient
	timings []string
	gauges  map[string]float64
	counts  map[string]int64
}

func (r *recorder) Timing(name string, _ time.Duration, tags []string, _ float64) error {
	r.timings = append(r.timings, name+"|"+tags[0])
	return nil
}

func (r *recorder) Gauge(name string, value float64, _ []string, _ float64) error {
	r.gauges[name] = value
	return nil
}

func (r *recorder) Count(name string, value int64, _ []string, _ float64) error {
	r.counts[name] += value
	return nil
}

func useRecorder(t *testing.T) *recorder {
	rec := &recorder{gauges: map[string]float64{}, counts: map[string]int64{}}
	previous := client
	client = rec
	t.Cleanup(func() { client = previous })
	return rec
}

func TestEmit(t *testing.T) {
	rec := useRecorder(t)

	EmitTickStat(time.Now(), "machines")
	EmitGauge("machines", 3)
	EmitCount("snapshots", 2)
	EmitCount("snapshots", 0)
	EmitCount("snapshots", 1)

	assert.DeepEqual(t, []string{"tick|stage:machines"}, rec.timings)
	assert.Equal(t, 3.0, rec.gauges["machines"])
	assert.Equal(t, int64(3), rec.counts["snapshots"])
}

func TestInitRequiresAddress(t *testing.T) {
	assert.ErrorContains(t, Init("", nil), "address must not be empty")
	_, isNoOp := Client().(*ddstatsd.NoOpClient)
	assert.True(t, isNoOp)
}
