package logsvc

import (
	"io"
	"os"
	"time"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/rs/zerolog"

	"github.com/trezcool/ecolage/core"
)

// RollbarLogger reports entries to Rollbar and writes them to w with zerolog.
type RollbarLogger struct {
	zl zerolog.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(w io.Writer, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !(conf.Debug || conf.TestMode))

	level := zerolog.InfoLevel
	if conf.Debug {
		level = zerolog.DebugLevel
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(w).Level(level).With().Timestamp().Str("app", conf.AppName).Logger()
	return &RollbarLogger{zl: zl}
}

// expected fmt: msg | error, map[string]interface{}
func (l RollbarLogger) log(evt *zerolog.Event, msg string, args []interface{}) []interface{} {
	rbArgs := make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			evt = evt.Err(a)
			rbArgs = append(rbArgs, a)
		case map[string]interface{}:
			evt = evt.Fields(a)
			rbArgs = append(rbArgs, a)
		default:
			evt = evt.Interface("arg", a)
		}
	}
	evt.Msg(msg)
	return rbArgs
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.log(l.zl.Debug(), msg, args)...)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.log(l.zl.Info(), msg, args)...)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.log(l.zl.Warn(), msg, args)...)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.log(l.zl.Error(), msg, args)...)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.log(l.zl.WithLevel(zerolog.FatalLevel), msg, args)...)
	rollbar.Wait()
	os.Exit(1)
}
