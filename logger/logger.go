// Copyright 2020 The Topomap Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
	Package logger creates the per-module loggers used across topomap.
	Every component receives its own *logrus.Logger tagged with the module name;
	the global logrus logger is never used.
*/

package logger

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	ColorBlack = iota + 30
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
)

const timestampFormat = "2006-01-02 15:04:05.000"

type moduleFormatter struct {
	module string
	colour bool
}

func levelColour(level log.Level) int {
	switch level {
	case log.TraceLevel:
		return ColorCyan
	case log.DebugLevel:
		return ColorBlue
	case log.WarnLevel:
		return ColorYellow
	case log.ErrorLevel:
		return ColorRed
	case log.FatalLevel, log.PanicLevel:
		return ColorMagenta
	default:
		return ColorGreen
	}
}

func (f *moduleFormatter) Format(entry *log.Entry) ([]byte, error) {
	levelText := strings.ToUpper(entry.Level.String())[0:4]

	caller := f.module
	if entry.HasCaller() {
		fn := entry.Caller.Function
		caller += "/" + fn[strings.LastIndex(fn, ".")+1:]
	}

	var fields strings.Builder
	for k, v := range entry.Data {
		fmt.Fprintf(&fields, " %s=%v", k, v)
	}

	ts := entry.Time.Format(timestampFormat)
	if !f.colour {
		return []byte(fmt.Sprintf("[%s] %s %s - %s%s\n", ts, caller, levelText, entry.Message, fields.String())), nil
	}
	// colour codes wrap each part separately, otherwise the level colour bleeds into
	// the message
	return []byte(fmt.Sprintf("\x1b[%dm[%s]\x1b[0m\x1b[%dm %s ▶ %s \x1b[0m- %s%s\n",
		ColorWhite,
		ts,
		levelColour(entry.Level),
		caller,
		levelText,
		entry.Message,
		fields.String(),
	)), nil
}

// Logger holds the shared output and level of the module loggers.
type Logger struct {
	logOut io.Writer
	file   *os.File
	level  log.Level
}

// GetLogger returns a per-module logger that writes to the backend.
func (l *Logger) GetLogger(module string) *log.Logger {
	baseLogger := log.New()
	baseLogger.Formatter = &moduleFormatter{
		module: module,
		colour: l.file == nil,
	}
	baseLogger.Out = l.logOut
	baseLogger.Level = l.level
	baseLogger.ReportCaller = true

	return baseLogger
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// New returns a logger writing to stdout, to the file f (appending) or nowhere
// when disable is set.
func New(f string, level string, disable bool) (*Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	l := &Logger{level: lvl}
	switch {
	case disable:
		l.logOut = ioutil.Discard
	case f == "":
		l.logOut = os.Stdout
	default:
		const fileMode = 0600

		flags := os.O_CREATE | os.O_APPEND | os.O_WRONLY
		file, err := os.OpenFile(f, flags, fileMode)
		if err != nil {
			return nil, fmt.Errorf("logger: failed to create log file: %v", err)
		}
		l.file = file
		l.logOut = file
	}

	return l, nil
}
