package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("WARDEN_TEST_MODE") == "" {
			_ = os.Setenv("WARDEN_TEST_MODE", "1")
		}
	})
}
