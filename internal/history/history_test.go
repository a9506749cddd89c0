package history

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"home-autopilot/internal/homeconfig"
	"home-autopilot/internal/source"
)

type fakeHistoryReader struct {
	series map[string][]source.Sample
	errors map[string]error
	calls  []string
}

func (f *fakeHistoryReader) ReadHistory(_ context.Context, instance, objectID string, window, step time.Duration) ([]source.Sample, error) {
	f.calls = append(f.calls, instance+"/"+objectID)
	if err, ok := f.errors[objectID]; ok {
		return nil, err
	}
	return f.series[objectID], nil
}

func samples(values ...float64) []source.Sample {
	out := make([]source.Sample, len(values))
	base := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	for i, v := range values {
		out[i] = source.Sample{Timestamp: base.Add(time.Duration(i) * time.Minute), Value: v}
	}
	return out
}

func TestCollectExplicitPoints(t *testing.T) {
	cfg := &homeconfig.Config{
		History: homeconfig.HistoryConfig{
			Adapters: []homeconfig.HistoryAdapter{
				{
					Name: "influx", Enabled: true, Instance: "influxdb.0",
					Window: 24 * time.Hour, Step: 5 * time.Minute,
					Points: []homeconfig.HistoryPoint{{ID: "meter.house"}, {ID: "bat.soc"}},
				},
			},
		},
	}
	reader := &fakeHistoryReader{
		series: map[string][]source.Sample{"meter.house": samples(1, 2, 3)},
		errors: map[string]error{"bat.soc": errors.New("timeout")},
	}

	data := NewCollector(reader, zerolog.Nop()).Collect(context.Background(), cfg)

	if len(data["meter.house"]) != 3 {
		t.Fatalf("series missing: %+v", data)
	}
	if series, ok := data["bat.soc"]; !ok || len(series) != 0 {
		t.Fatalf("failed series must be present and empty: %+v", data)
	}
	if len(reader.calls) != 2 {
		t.Fatalf("one failure must not block other reads: %v", reader.calls)
	}
}

func TestCollectFallsBackToEnabledPoints(t *testing.T) {
	cfg := &homeconfig.Config{
		DataPoints: []homeconfig.DataPoint{
			{ObjectID: "a", Enabled: true},
			{ObjectID: "b", Enabled: false},
		},
		History: homeconfig.HistoryConfig{
			Adapters: []homeconfig.HistoryAdapter{
				{Name: "default", Enabled: true, Instance: "influxdb.0", Window: time.Hour, Step: time.Minute},
			},
		},
	}
	reader := &fakeHistoryReader{series: map[string][]source.Sample{"a": samples(5)}}

	data := NewCollector(reader, zerolog.Nop()).Collect(context.Background(), cfg)

	if len(reader.calls) != 1 || reader.calls[0] != "influxdb.0/a" {
		t.Fatalf("expected only the enabled point to be read: %v", reader.calls)
	}
	if len(data["a"]) != 1 {
		t.Fatalf("series missing: %+v", data)
	}
}

func TestCollectSkipsDisabledAdapters(t *testing.T) {
	cfg := &homeconfig.Config{
		History: homeconfig.HistoryConfig{
			Adapters: []homeconfig.HistoryAdapter{
				{Name: "influx", Enabled: false, Instance: "influxdb.0", Points: []homeconfig.HistoryPoint{{ID: "x"}}},
				{Name: "sql", Enabled: true, Instance: "", Points: []homeconfig.HistoryPoint{{ID: "y"}}},
			},
		},
	}
	reader := &fakeHistoryReader{}

	data := NewCollector(reader, zerolog.Nop()).Collect(context.Background(), cfg)

	if len(reader.calls) != 0 || len(data) != 0 {
		t.Fatalf("disabled or instance-less adapters must not read: %v %+v", reader.calls, data)
	}
}

func TestReducers(t *testing.T) {
	series := samples(10, 20, 30)

	if avg := Average(series); avg == nil || *avg != 20 {
		t.Fatalf("avg = %v, want 20", avg)
	}
	if min := Minimum(series); min == nil || *min != 10 {
		t.Fatalf("min = %v, want 10", min)
	}
	if max := Maximum(series); max == nil || *max != 30 {
		t.Fatalf("max = %v, want 30", max)
	}
	if last := Last(series); last == nil || *last != 30 {
		t.Fatalf("last = %v, want 30", last)
	}
}

func TestReducersDiscardNonFinite(t *testing.T) {
	series := samples(10, math.NaN(), math.Inf(1), 30)

	if avg := Average(series); avg == nil || *avg != 20 {
		t.Fatalf("avg = %v, want 20 after discarding non-finite", avg)
	}
	if last := Last(series); last == nil || *last != 30 {
		t.Fatalf("last = %v, want 30", last)
	}
}

func TestReducersEmptySeries(t *testing.T) {
	summary := Summarize(Data{"x": nil})["x"]
	if summary.Avg != nil || summary.Min != nil || summary.Max != nil || summary.Last != nil {
		t.Fatalf("empty series must reduce to all-nil: %+v", summary)
	}
}
