// Package mbp provides the small set of CLI/bootstrap helpers
// cmd/eventlogd needs in the style of wordcountctl/main.go's use of
// go.gazette.dev/core/mainboilerplate -- that package itself isn't part
// of this module's dependency surface, so this is a narrow
// reimplementation of just the pieces this binary uses: a logging
// option group and the Must/MustParseArgs fail-fast helpers.
package mbp

import (
	"os"

	flags "github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
)

// LogConfig is the `--log.*` option group every subcommand shares.
type LogConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"info" description:"Logging level: debug, info, warn, error"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"text" choice:"json" description:"Logging output format"`
}

// MustConfigure applies Level and Format to the default logrus logger,
// exiting the process if Level doesn't parse.
func (c LogConfig) MustConfigure() {
	lvl, err := log.ParseLevel(c.Level)
	Must(err, "parsing --log.level")
	log.SetLevel(lvl)

	if c.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{})
	}
}

// Must logs a fatal error and exits if err is non-nil, attaching
// optional key/value context pairs the way the teacher's usages pass
// field context alongside a failure message.
func Must(err error, message string, kv ...any) {
	if err == nil {
		return
	}
	fields := log.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			fields[key] = kv[i+1]
		}
	}
	log.WithFields(fields).WithError(err).Fatal(message)
}

// MustParseArgs parses os.Args through parser, exiting 0 on
// flags.ErrHelp and 1 on any other parse error.
func MustParseArgs(parser *flags.Parser) {
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
