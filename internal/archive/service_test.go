package archive

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewService_Validation(t *testing.T) {
	base := ServiceConfig{
		BucketName:      "audit-exports",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Endpoint:        "https://storage.example.com",
	}

	tests := []struct {
		name   string
		mutate func(*ServiceConfig)
	}{
		{"missing bucket", func(c *ServiceConfig) { c.BucketName = "" }},
		{"missing access key", func(c *ServiceConfig) { c.AccessKeyID = "" }},
		{"missing secret", func(c *ServiceConfig) { c.SecretAccessKey = "" }},
		{"missing endpoint", func(c *ServiceConfig) { c.Endpoint = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if _, err := NewService(cfg); err == nil {
				t.Error("NewService() should have returned an error")
			}
		})
	}

	if _, err := NewService(base); err != nil {
		t.Errorf("NewService() with full config returned error: %v", err)
	}
}

func TestObjectKey(t *testing.T) {
	svc, err := NewService(ServiceConfig{
		BucketName:      "audit-exports",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Endpoint:        "https://storage.example.com",
	})
	if err != nil {
		t.Fatalf("NewService() returned error: %v", err)
	}
	svc.timeNow = func() time.Time {
		return time.Date(2026, time.March, 7, 12, 0, 0, 0, time.UTC)
	}

	key, err := svc.ObjectKey("csv")
	if err != nil {
		t.Fatalf("ObjectKey() returned error: %v", err)
	}
	if !strings.HasPrefix(key, "exports/2026/03/07/") {
		t.Errorf("ObjectKey() = %q, want prefix exports/2026/03/07/", key)
	}
	if !strings.HasSuffix(key, ".csv") {
		t.Errorf("ObjectKey() = %q, want .csv suffix", key)
	}

	key2, err := svc.ObjectKey("csv")
	if err != nil {
		t.Fatalf("ObjectKey() returned error: %v", err)
	}
	if key == key2 {
		t.Error("consecutive keys should be unique")
	}

	if _, err := svc.ObjectKey("xml"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("ObjectKey(xml) error = %v, want ErrUnsupportedFormat", err)
	}
}
