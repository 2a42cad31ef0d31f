package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	"github.com/AnumHasan/django/internal/app"
)

var once sync.Once

// ensureTestMode flips the runtime into test mode and supplies the config
// values every test run needs before any package init reads them.
func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("AUTH_TEST_MODE", "1")
		if os.Getenv("TOKEN_SECRET") == "" {
			_ = os.Setenv("TOKEN_SECRET", "test-secret")
		}
		app.RefreshTestMode()
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
