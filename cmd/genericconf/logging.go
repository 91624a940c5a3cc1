// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package genericconf

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// fileWriter is the rotating log file installed by the last InitLog, if any.
var fileWriter *asyncFileWriter

// asyncFileWriter hands log records to a rotating file on its own goroutine.
// Records arriving while BufSize records are pending are dropped.
type asyncFileWriter struct {
	file    *lumberjack.Logger
	records chan []byte
	done    chan struct{}
	dropped atomic.Uint64

	mutex  sync.RWMutex
	closed bool
}

func newAsyncFileWriter(config *FileLoggingConfig, filename string) *asyncFileWriter {
	w := &asyncFileWriter{
		file: &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			LocalTime:  config.LocalTime,
			Compress:   config.Compress,
		},
		records: make(chan []byte, config.BufSize),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *asyncFileWriter) run() {
	defer close(w.done)
	for record := range w.records {
		_, _ = w.file.Write(record)
	}
}

func (w *asyncFileWriter) Write(p []byte) (int, error) {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	if w.closed {
		return len(p), nil
	}
	// handlers reuse their buffers
	record := make([]byte, len(p))
	copy(record, p)
	select {
	case w.records <- record:
	default:
		w.dropped.Add(1)
	}
	return len(p), nil
}

// Close writes out pending records and closes the file. Later writes are
// discarded.
func (w *asyncFileWriter) Close() error {
	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		return nil
	}
	w.closed = true
	close(w.records)
	w.mutex.Unlock()
	<-w.done
	if dropped := w.dropped.Load(); dropped > 0 {
		_, _ = fmt.Fprintf(w.file, "dropped %d log records\n", dropped)
	}
	return w.file.Close()
}

// CloseFileLogger flushes and closes the rotating log file, if one is open.
func CloseFileLogger() error {
	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	return err
}

// InitLog installs the default logger writing to console and, if enabled, to
// a rotating file. It is not threadsafe.
func InitLog(console io.Writer, logType string, logLevel string, fileLoggingConfig *FileLoggingConfig, pathResolver func(string) string) error {
	if err := CloseFileLogger(); err != nil {
		return fmt.Errorf("failed to close file writer: %w", err)
	}
	output := console
	if fileLoggingConfig.Enable {
		if err := fileLoggingConfig.Validate(); err != nil {
			return err
		}
		fileWriter = newAsyncFileWriter(fileLoggingConfig, pathResolver(fileLoggingConfig.File))
		output = io.MultiWriter(console, fileWriter)
	}
	handler, err := HandlerFromLogType(logType, output)
	if err != nil {
		return fmt.Errorf("error parsing log type when creating handler: %w", err)
	}
	slogLevel, err := ToSlogLevel(logLevel)
	if err != nil {
		return fmt.Errorf("error parsing log level: %w", err)
	}

	glogger := log.NewGlogHandler(handler)
	glogger.Verbosity(slogLevel)
	log.SetDefault(log.NewLogger(glogger))
	return nil
}
