// Package web holds the dashboard page served by the monitor.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// DevDirEnv overrides where the dashboard is read from. A directory path
// serves that directory. A true value serves the dist directory of the
// source tree, so the page can be edited without rebuilding bqs.
const DevDirEnv = "BQS_MONITOR_DEV"

//go:embed dist/*
var dist embed.FS

var builtIn = mustSub(dist, "dist")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}

	return sub
}

// GetAssets returns the files of the dashboard.
func GetAssets() http.FileSystem {
	if dir := devDir(); dir != "" {
		return http.Dir(dir)
	}

	return http.FS(builtIn)
}

func devDir() string {
	v := strings.TrimSpace(os.Getenv(DevDirEnv))
	if v == "" {
		return ""
	}

	on, err := strconv.ParseBool(v)
	switch {
	case err != nil:
		return v
	case on:
		return sourceDist()
	default:
		return ""
	}
}

// sourceDist locates dist next to this file. It is empty when the binary
// carries no caller information.
func sourceDist() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}

	return filepath.Join(filepath.Dir(file), "dist")
}
