package helper

import (
	"github.com/leafdriven/mediadex/common/random"
)

// GenRequestID produces a short sortable request id: timestamp plus entropy.
func GenRequestID() string {
	return GetTimeString() + random.GetRandomNumberString(8)
}

// GenCorrelationID produces the short id embedded in user-visible errors and
// structured log lines so the two can be cross-referenced.
func GenCorrelationID() string {
	return random.GetRandomString(8)
}

// GenSessionID produces the 8-char id that keys a result session.
func GenSessionID() string {
	return random.GetRandomString(8)
}
