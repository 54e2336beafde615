package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatIndexTime(t *testing.T) {
	instant := time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)
	assert.Equal(t, "05.03.2024 14:07:09", FormatIndexTime(instant))
}

func TestFormatIndexTimeConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+4", 4*3600)
	instant := time.Date(2024, time.March, 5, 18, 7, 9, 0, loc)
	assert.Equal(t, "05.03.2024 14:07:09", FormatIndexTime(instant))
}

func TestFormatIndexTimeZeroPads(t *testing.T) {
	instant := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "02.01.2026 03:04:05", FormatIndexTime(instant))
}
