package version

import "fmt"

// Заполняются через -ldflags при сборке релиза:
//
//	-X .../internal/version.Version=v1.2.3
//	-X .../internal/version.Commit=abc1234
//	-X .../internal/version.BuildDate=2026-01-15
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// String возвращает строку для стартового лога и health-ответа.
func String() string {
	return fmt.Sprintf("rfs %s (commit %s, built %s)", Version, Commit, BuildDate)
}
