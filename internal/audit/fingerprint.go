package audit

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"runtime/debug"
	"sync"
)

var (
	fingerprintOnce sync.Once
	fingerprint     string
)

// Fingerprint identifies the engine build that wrote a record: the MD5
// of the running executable, or the VCS revision when the binary cannot
// be read (e.g. under go run). The value is computed once per process.
func Fingerprint() string {
	fingerprintOnce.Do(func() {
		fingerprint = computeFingerprint()
	})
	return fingerprint
}

func computeFingerprint() string {
	if path, err := os.Executable(); err == nil {
		if data, err := os.ReadFile(path); err == nil {
			sum := md5.Sum(data)
			return hex.EncodeToString(sum[:])
		}
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				return setting.Value
			}
		}
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "unknown"
}
