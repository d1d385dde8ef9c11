package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/f-sync/socialpulse/internal/config"
	"github.com/f-sync/socialpulse/internal/export"
	"github.com/f-sync/socialpulse/internal/service"
)

const (
	followersFixture = `[{"string_list_data":[{"value":"alice"}]},{"string_list_data":[{"value":"bob"}]}]`
	followingFixture = `{"relationships_following":[{"string_list_data":[{"value":"alice"}]},{"string_list_data":[{"value":"carol"}]}]}`
)

func fixtureFiles() []export.InputFile {
	return []export.InputFile{
		{FileName: "followers_1.json", RawText: followersFixture},
		{FileName: "following.json", RawText: followingFixture},
	}
}

func memorySettings() config.Config {
	return config.Config{
		Storage: config.StorageConfig{Driver: config.StorageDriverMemory, Capacity: 10},
	}
}

func TestAnalyzeApplicationRun(t *testing.T) {
	readFailure := errors.New("archive is corrupt")

	testCases := []struct {
		name             string
		readExport       func(string) ([]export.InputFile, error)
		outputPath       string
		expectedError    error
		expectStdoutJSON bool
		expectWritten    bool
	}{
		{
			name:             "writes json to stdout",
			readExport:       func(string) ([]export.InputFile, error) { return fixtureFiles(), nil },
			expectStdoutJSON: true,
		},
		{
			name:          "writes json to output file",
			readExport:    func(string) ([]export.InputFile, error) { return fixtureFiles(), nil },
			outputPath:    "report.json",
			expectWritten: true,
		},
		{
			name:          "read failure",
			readExport:    func(string) ([]export.InputFile, error) { return nil, readFailure },
			expectedError: readFailure,
		},
		{
			name: "unrecognized export",
			readExport: func(string) ([]export.InputFile, error) {
				return []export.InputFile{{FileName: "personal_information.json", RawText: `{"profile_user":[]}`}}, nil
			},
			expectedError: service.ErrNoRelationshipData,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			stdout := &bytes.Buffer{}
			written := map[string][]byte{}
			application := NewAnalyzeApplicationWithDependencies(AnalyzeDependencies{
				ReadExport: testCase.readExport,
				WriteOutputFile: func(path string, contents []byte) error {
					written[path] = contents
					return nil
				},
				Stdout: stdout,
				Stderr: &bytes.Buffer{},
			})

			err := application.Run(context.Background(), AnalyzeConfiguration{
				ExportPath: "export.zip",
				OutputPath: testCase.outputPath,
				Label:      "manual",
				Settings:   memorySettings(),
			})
			if testCase.expectedError != nil {
				if !errors.Is(err, testCase.expectedError) {
					t.Fatalf("error = %v, want %v", err, testCase.expectedError)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if testCase.expectStdoutJSON {
				var outcome service.Outcome
				if err := json.Unmarshal(stdout.Bytes(), &outcome); err != nil {
					t.Fatalf("stdout is not JSON: %v", err)
				}
				if outcome.Analysis.Stats.MutualCount != 1 || outcome.SnapshotID == "" {
					t.Fatalf("unexpected outcome %+v", outcome.Analysis.Stats)
				}
			}
			if testCase.expectWritten {
				contents, found := written[testCase.outputPath]
				if !found {
					t.Fatalf("expected %s to be written", testCase.outputPath)
				}
				var outcome service.Outcome
				if err := json.Unmarshal(contents, &outcome); err != nil {
					t.Fatalf("output is not JSON: %v", err)
				}
				if !strings.HasPrefix(stdout.String(), "wrote report.json") {
					t.Fatalf("unexpected stdout %q", stdout.String())
				}
			}
		})
	}
}

func TestAnalyzeCommandPersistsSnapshots(t *testing.T) {
	exportDirectory := t.TempDir()
	if err := os.WriteFile(filepath.Join(exportDirectory, "followers_1.json"), []byte(followersFixture), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(exportDirectory, "following.json"), []byte(followingFixture), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	databasePath := filepath.Join(t.TempDir(), "pulse.db")

	run := func() service.Outcome {
		t.Helper()
		stdout := &bytes.Buffer{}
		command := newAnalyzeCommand()
		command.SetOut(stdout)
		command.SetErr(&bytes.Buffer{})
		command.SetArgs([]string{
			exportDirectory,
			"--storage-driver", config.StorageDriverSQLite,
			"--storage-path", databasePath,
			"--tier", "premium",
			"--log-level", "error",
		})
		if err := command.Execute(); err != nil {
			t.Fatalf("execute: %v", err)
		}
		var outcome service.Outcome
		if err := json.Unmarshal(stdout.Bytes(), &outcome); err != nil {
			t.Fatalf("stdout is not JSON: %v", err)
		}
		return outcome
	}

	first := run()
	if first.Comparison != nil {
		t.Fatalf("first run cannot compare")
	}
	second := run()
	if second.Comparison == nil || second.Comparison.PreviousID != first.SnapshotID {
		t.Fatalf("second run should compare with the stored first snapshot")
	}
}

func TestAnalyzeCommandRequiresExportPath(t *testing.T) {
	command := newAnalyzeCommand()
	command.SetOut(&bytes.Buffer{})
	command.SetErr(&bytes.Buffer{})
	command.SetArgs([]string{})
	if err := command.Execute(); !errors.Is(err, errMissingExportPath) {
		t.Fatalf("error = %v, want errMissingExportPath", err)
	}
}
