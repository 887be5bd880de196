package layout

import (
	"testing"
	"time"

	xlog "github.com/trickstertwo/xlog-amqp"
)

func benchRecord() *xlog.Record {
	return &xlog.Record{
		At:      time.Date(2024, 12, 31, 23, 59, 59, 1, time.UTC),
		Level:   xlog.LevelInfo,
		Context: "bench",
		Logger:  "com.example.bench.Worker",
		Thread:  "pool-1",
		Message: "bench",
		Fields: []xlog.Field{
			{K: "a", Kind: xlog.KindString, Str: "b"},
			{K: "i", Kind: xlog.KindInt64, Int64: 42},
			{K: "ok", Kind: xlog.KindBool, Bool: true},
			{K: "dur", Kind: xlog.KindDuration, Dur: time.Millisecond},
			{K: "f", Kind: xlog.KindFloat64, Float64: 3.14},
		},
	}
}

func benchLayout(b *testing.B, l Layout) {
	r := benchRecord()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = l.Format(r)
	}
}

func BenchmarkPattern_Default(b *testing.B) { benchLayout(b, Default()) }

func BenchmarkPattern_Padded(b *testing.B) {
	benchLayout(b, MustPattern("%d{ISO8601} %-5level %logger{12} [%thread] %msg %fields%n"))
}

func BenchmarkText_5Fields(b *testing.B) { benchLayout(b, NewText(Options{})) }

func BenchmarkJSON_5Fields(b *testing.B) { benchLayout(b, NewJSON(Options{})) }

func BenchmarkZap_JSON_5Fields(b *testing.B) { benchLayout(b, NewZapJSON()) }
