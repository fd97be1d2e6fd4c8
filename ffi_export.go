//go:build ffi

// Build with: go build -tags ffi -buildmode=c-shared -o libchecker.so
package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"social-checker/internal/config"
	"social-checker/internal/export"
	"social-checker/internal/manager"
	"social-checker/internal/parser"
	"social-checker/pkg/types"
)

// FFIResult is the JSON envelope returned by every exported call
type FFIResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// FFIRunRequest starts a run. Settings left empty fall back to the
// defaults and CHECKER_* environment.
type FFIRunRequest struct {
	Platform  string   `json:"platform"`
	InputFile string   `json:"input_file"`
	Accounts  []string `json:"accounts"`
	OutputDir string   `json:"output_dir"`
	Workers   int      `json:"workers"`
	Format    string   `json:"format"`
	Dedupe    bool     `json:"dedupe"`
}

// FFIExportRequest selects what ExportRun returns
type FFIExportRequest struct {
	Bucket string `json:"bucket"`
	Format string `json:"format"`
	// WriteFiles also writes every bucket into the output directory
	WriteFiles bool `json:"write_files"`
}

var (
	ffiMu  sync.Mutex
	ffiApp *app
)

func makeResult(data any, err error) *C.char {
	result := FFIResult{Success: err == nil, Data: data}
	if err != nil {
		result.Error = err.Error()
	}
	jsonBytes, _ := json.Marshal(result)
	return C.CString(string(jsonBytes))
}

func currentApp() (*app, error) {
	ffiMu.Lock()
	defer ffiMu.Unlock()
	if ffiApp == nil {
		return nil, manager.ErrNoRun
	}
	return ffiApp, nil
}

//export StartRun
func StartRun(requestJSON *C.char) *C.char {
	var req FFIRunRequest
	if err := json.Unmarshal([]byte(C.GoString(requestJSON)), &req); err != nil {
		return makeResult(nil, errors.New("invalid request JSON: "+err.Error()))
	}

	var args []string
	if req.Platform != "" {
		args = append(args, "--platform", req.Platform)
	}
	if req.OutputDir != "" {
		args = append(args, "--output-dir", req.OutputDir)
	}
	if req.Format != "" {
		args = append(args, "--format", req.Format)
	}
	if req.InputFile != "" {
		args = append(args, "--input", req.InputFile)
	}
	if req.Workers > 0 {
		args = append(args, "--workers", strconv.Itoa(req.Workers))
	}
	cfg, err := config.Load(args)
	if err != nil {
		return makeResult(nil, err)
	}
	cfg.Dedupe = cfg.Dedupe || req.Dedupe

	var entries []types.AccountEntry
	popts := parser.Options{Dedupe: cfg.Dedupe}
	if len(req.Accounts) > 0 {
		entries, err = parser.ParseLines(req.Accounts, popts)
	} else {
		var f *os.File
		if f, err = os.Open(cfg.Input); err == nil {
			entries, err = parser.Parse(f, popts)
			f.Close()
		}
	}
	if err != nil {
		return makeResult(nil, err)
	}

	ffiMu.Lock()
	defer ffiMu.Unlock()
	if ffiApp != nil {
		if run := ffiApp.manager.Current(); run != nil && !run.Ended() {
			return makeResult(nil, manager.ErrRunActive)
		}
		_ = ffiApp.close()
	}

	// the host process owns the terminal; log to file only
	a, err := newApp(cfg, false)
	if err != nil {
		return makeResult(nil, err)
	}
	run, err := a.manager.Start(context.Background(), entries, cfg.Platform)
	if err != nil {
		_ = a.close()
		return makeResult(nil, err)
	}
	ffiApp = a
	return makeResult(run.Status(), nil)
}

func control(cmd func(*manager.Manager) error) *C.char {
	a, err := currentApp()
	if err != nil {
		return makeResult(nil, err)
	}
	if err := cmd(a.manager); err != nil {
		return makeResult(nil, err)
	}
	return makeResult(a.manager.Current().Status(), nil)
}

//export PauseRun
func PauseRun() *C.char {
	return control((*manager.Manager).Pause)
}

//export ResumeRun
func ResumeRun() *C.char {
	return control((*manager.Manager).Resume)
}

//export StopRun
func StopRun() *C.char {
	return control((*manager.Manager).Stop)
}

//export RunStatus
func RunStatus() *C.char {
	return control(func(m *manager.Manager) error {
		if m.Current() == nil {
			return manager.ErrNoRun
		}
		return nil
	})
}

//export ExportRun
func ExportRun(requestJSON *C.char) *C.char {
	var req FFIExportRequest
	if s := C.GoString(requestJSON); s != "" {
		if err := json.Unmarshal([]byte(s), &req); err != nil {
			return makeResult(nil, errors.New("invalid request JSON: "+err.Error()))
		}
	}

	a, err := currentApp()
	if err != nil {
		return makeResult(nil, err)
	}
	run := a.manager.Current()
	if run == nil {
		return makeResult(nil, manager.ErrNoRun)
	}

	if req.WriteFiles {
		files, err := a.exportRun(run)
		return makeResult(files, err)
	}

	bucket := export.BucketAll
	if req.Bucket != "" {
		if bucket, err = export.ParseBucket(req.Bucket); err != nil {
			return makeResult(nil, err)
		}
	}
	results := export.Select(run.Snapshot(), bucket, a.exportOptions())
	if req.Format == "" || req.Format == "json" {
		return makeResult(results, nil)
	}

	f, err := export.ParseFormat(req.Format)
	if err != nil {
		return makeResult(nil, err)
	}
	var sb strings.Builder
	if err := export.Write(&sb, results, f, a.exportOptions()); err != nil {
		return makeResult(nil, err)
	}
	return makeResult(sb.String(), nil)
}

//export FreeString
func FreeString(s *C.char) {
	C.free(unsafe.Pointer(s))
}

func main() {}
