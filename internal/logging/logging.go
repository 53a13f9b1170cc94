// Package logging centralizes log configuration for the application. All
// packages log through the thin wrappers here so output format and destination
// are decided in one place.
package logging

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupBaseLogger configures the process-wide logrus instance with the
// standard text formatter. Call once, before any other package logs.
func SetupBaseLogger() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
}

// SetDebug toggles debug-level logging.
func SetDebug(debug bool) {
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// ConfigureLogOutput redirects log output to a rotated file under dir when
// toFile is true. Rotation keeps the on-disk footprint bounded.
func ConfigureLogOutput(dir string, toFile bool) error {
	if !toFile {
		return nil
	}
	if dir == "" {
		return fmt.Errorf("logging: log directory is required for file output")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logging: create log directory: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "skyrelay.log"),
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return nil
}

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { log.Debugf(format, args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { log.Infof(format, args...) }

// Warnf logs a formatted message at warning level.
func Warnf(format string, args ...any) { log.Warnf(format, args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { log.Errorf(format, args...) }

// Fatalf logs a formatted message and exits the process.
func Fatalf(format string, args ...any) { log.Fatalf(format, args...) }

// GinLogrusLogger returns gin middleware that logs each request through
// logrus instead of gin's default writer.
func GinLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugf("http: %s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// GinLogrusRecovery returns gin middleware that converts panics into 500
// responses and logs them through logrus.
func GinLogrusRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("http: panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, r)
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}
