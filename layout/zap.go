package layout

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	xlog "github.com/trickstertwo/xlog-amqp"
	zapadapter "github.com/trickstertwo/xlog-amqp/adapter/zap"
)

// Zap renders records through a zapcore.Encoder, so message bodies match
// what the service's own zap output looks like.
type Zap struct {
	enc zapcore.Encoder
}

// NewZap wraps enc. zap encoders clone themselves per entry, so one Zap may
// be shared between goroutines.
func NewZap(enc zapcore.Encoder) *Zap { return &Zap{enc: enc} }

// NewZapJSON uses zap's production JSON encoder config.
func NewZapJSON() *Zap {
	return NewZap(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()))
}

// NewZapConsole uses zap's development console encoder config.
func NewZapConsole() *Zap {
	return NewZap(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()))
}

func (z *Zap) Format(r *xlog.Record) []byte {
	ent := zapcore.Entry{
		Level:      zapadapter.Level(r.Level),
		Time:       r.At,
		LoggerName: r.Logger,
		Message:    r.Message,
	}
	fs := make([]zapcore.Field, 0, len(r.Fields)+2)
	fs = append(fs, zap.String("context", r.Context))
	if r.Thread != "" {
		fs = append(fs, zap.String("thread", r.Thread))
	}
	for i := range r.Fields {
		fs = append(fs, zapadapter.Field(&r.Fields[i]))
	}

	buf, err := z.enc.EncodeEntry(ent, fs)
	if err != nil {
		return append([]byte(r.Message), '\n')
	}
	defer buf.Free()
	return detach(buf.Bytes())
}
