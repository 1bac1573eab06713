package report

import (
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/voltledger/voltledger/pkg/storage"
)

// Configured registers the reporting flags and returns a Service that is
// usable once flags are parsed.
func Configured(db storage.Database, w WeatherSource) *Service {
	tz := lflag.String("billing-timezone", "Asia/Karachi", "IANA timezone used for day and month boundaries")
	maxAge := lflag.Duration("home-load-max-age", DefaultHomeLoadMaxAge, "Ignore a device's latest reading for the live home load when it is older than this")

	s := New(db, w, time.UTC)
	lflag.Do(func() {
		loc, err := time.LoadLocation(*tz)
		if err != nil {
			panic(fmt.Sprintf("invalid billing-timezone %q: %v", *tz, err))
		}
		s.loc = loc
		s.homeLoadMaxAge = *maxAge
	})
	return s
}
