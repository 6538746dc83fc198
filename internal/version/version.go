// Package version хранит данные сборки, которые задаются через -ldflags.
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}

// UserAgent собирает заголовок User-Agent для запросов терминала к backend.
func UserAgent(app string) string {
	if app == "" {
		app = "pos-terminal"
	}
	return fmt.Sprintf("%s/%s (%s)", app, version, commit)
}
