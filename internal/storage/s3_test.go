package storage

import (
	"context"
	"testing"
)

func TestNewS3StorageRequiresBucket(t *testing.T) {
	if _, err := NewS3Storage(context.Background(), DefaultS3Config()); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestS3KeyPrefix(t *testing.T) {
	s := NewS3StorageWithClient(nil, S3Config{Bucket: "b", Prefix: "entitydb/"})
	if got := s.key("snapshots/run/u_1_private.db.V002.sz"); got != "entitydb/snapshots/run/u_1_private.db.V002.sz" {
		t.Errorf("key = %q", got)
	}

	var _ ObjectStorage = s
}
