package silero

import (
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envOnce sync.Once
	envErr  error
)

// ensureEnv initializes the onnxruntime environment exactly once per process.
// ONNXRUNTIME_LIB overrides the shared library location.
func ensureEnv() error {
	envOnce.Do(func() {
		if libPath := os.Getenv("ONNXRUNTIME_LIB"); libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		} else if runtime.GOOS == "darwin" {
			ort.SetSharedLibraryPath("/opt/homebrew/lib/libonnxruntime.dylib")
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}
