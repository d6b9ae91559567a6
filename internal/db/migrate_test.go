package db

import (
	"reflect"
	"testing"
	"testing/fstest"
)

func TestPendingFilesOrderAndFilter(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_webhooks.up.sql": {Data: []byte("SELECT 2")},
		"0001_init.up.sql":     {Data: []byte("SELECT 1")},
		"0001_init.down.sql":   {Data: []byte("SELECT 0")},
		"README.md":            {Data: []byte("notes")},
		"nested/0003_x.up.sql": {Data: []byte("SELECT 3")},
		"0010_indexes.up.sql":  {Data: []byte("SELECT 10")},
	}

	got, err := PendingFiles(fsys)
	if err != nil {
		t.Fatalf("PendingFiles: %v", err)
	}
	want := []string{"0001_init.up.sql", "0002_webhooks.up.sql", "0010_indexes.up.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PendingFiles() = %v, want %v", got, want)
	}
}
