package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds the process logger and installs it as the global zerolog logger.
// When dir is set, output also goes to dir/log_YYYY-MM-DD.txt; the returned
// closer closes that file and is never nil.
func New(level, format, dir string) (zerolog.Logger, io.Closer, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.Nop(), nopCloser{}, errors.Newf("invalid log level %q", level)
	}

	var stderr io.Writer
	switch format {
	case "console", "":
		stderr = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	case "json":
		stderr = os.Stderr
	default:
		return zerolog.Nop(), nopCloser{}, errors.Newf("invalid log format %q", format)
	}

	var (
		writer io.Writer = stderr
		closer io.Closer = nopCloser{}
	)
	if dir != "" {
		f, err := openDated(dir, time.Now())
		if err != nil {
			return zerolog.Nop(), nopCloser{}, err
		}
		writer = zerolog.MultiLevelWriter(stderr, f)
		closer = f
	}

	l := zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
	log.Logger = l
	return l, closer, nil
}

func openDated(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating log directory")
	}
	path := filepath.Join(dir, fmt.Sprintf("log_%s.txt", now.Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, errors.Wrap(err, "error opening log file for writing")
	}
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
