package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// LogSink streams audit records as JSON lines, one per record, for
// shipping to an external log pipeline
type LogSink struct {
	logger *logrus.Logger
	closer io.Closer
}

// NewLogSink creates a sink writing to out
func NewLogSink(out io.Writer) *LogSink {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.JSONFormatter{
		DisableHTMLEscape: true,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: "event",
		},
	})
	return &LogSink{logger: logger}
}

// NewFileLogSink creates a sink appending to the file at path. An empty path
// streams to stdout.
func NewFileLogSink(path string) (*LogSink, error) {
	if path == "" {
		return NewLogSink(os.Stdout), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	sink := NewLogSink(f)
	sink.closer = f
	return sink, nil
}

// Write logs rec
func (s *LogSink) Write(_ context.Context, rec *Record) error {
	fields := logrus.Fields{
		"id":               rec.ID.String(),
		"tenant_id":        rec.TenantID.String(),
		"target_type":      string(rec.TargetType),
		"target_id":        rec.TargetID,
		"status":           string(rec.Status),
		"privilege_bypass": rec.PrivilegeBypass,
	}
	if rec.ActorUserID != nil {
		fields["actor_user_id"] = rec.ActorUserID.String()
	}
	if rec.TargetTenantID != nil {
		fields["target_tenant_id"] = rec.TargetTenantID.String()
	}
	if rec.RequestID != "" {
		fields["request_id"] = rec.RequestID
	}
	if rec.IPAddress != "" {
		fields["ip_address"] = rec.IPAddress
	}
	if len(rec.Metadata) > 0 {
		fields["metadata"] = rec.Metadata
	}

	s.logger.WithFields(fields).WithTime(rec.CreatedAt).Info(string(rec.Action))
	return nil
}

// Close closes the underlying file, if any
func (s *LogSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
