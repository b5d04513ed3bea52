package test_test

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// LoadBytes is helper to load file contents from testdata directory
func LoadBytes(t *testing.T, name string) []byte {
	return loadBytes(t, fmt.Sprintf("testdata/%v", name), 2)
}

// LoadJSON is helper to unmarshal JSON file from testdata directory into target
func LoadJSON(t *testing.T, name string, target interface{}) {
	b := loadBytes(t, fmt.Sprintf("testdata/%v", name), 2)
	if err := json.Unmarshal(b, target); err != nil {
		t.Fatalf("failed to unmarshal testdata/%v: %v", name, err)
	}
}

// TestdataPath returns absolute path to file in testdata directory next to calling test file
func TestdataPath(name string) string {
	_, b, _, _ := runtime.Caller(1)
	return filepath.Join(filepath.Dir(b), "testdata", name)
}

func loadBytes(t *testing.T, name string, callDepth int) []byte {
	_, b, _, _ := runtime.Caller(callDepth)
	basepath := filepath.Dir(b)

	path := filepath.Join(basepath, name) // relative path
	bytes, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return bytes
}
