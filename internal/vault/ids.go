package vault

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// fnameNamespace seeds identifiers derived from logical paths.
var fnameNamespace = uuid.MustParse("6f1d6c1e-3a44-4f3e-9a57-2b8c1f0b7d21")

// IDSource issues random identifiers and millisecond timestamps for stubs and
// new notes. It satisfies tree.StubSource.
type IDSource struct {
	now func() time.Time
}

// NewIDSource returns an IDSource reading the wall clock.
func NewIDSource() *IDSource {
	return &IDSource{now: time.Now}
}

// NewID returns a random UUID.
func (s *IDSource) NewID() string { return uuid.NewString() }

// Now returns the current time in Unix milliseconds.
func (s *IDSource) Now() string {
	return strconv.FormatInt(s.now().UnixMilli(), 10)
}

// FnameID derives a stable identifier for a note file that has none.
func FnameID(fname string) string {
	return uuid.NewSHA1(fnameNamespace, []byte(fname)).String()
}
