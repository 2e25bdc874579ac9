package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("OXUTILS_TEST_MODE") == "" {
			_ = os.Setenv("OXUTILS_TEST_MODE", "1")
		}
	})
}
