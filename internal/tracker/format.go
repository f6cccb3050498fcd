package tracker

import (
	"fmt"
	"math"
	"time"

	"github.com/balkashynov/wotrack/internal/models"
)

// FormatDuration renders seconds as HH:MM:SS. Fractions are truncated and
// the hours field is not wrapped at 24.
func FormatDuration(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// TotalForWorkOrder sums the elapsed time of the given timers at now
func TotalForWorkOrder(timers []models.ProcessTimer, now time.Time) float64 {
	var total float64
	for i := range timers {
		total += CurrentElapsed(&timers[i], now)
	}
	return total
}

// PerPieceTime divides a total over the produced quantity
func PerPieceTime(totalSeconds float64, quantity int) float64 {
	if quantity <= 0 {
		return 0
	}
	return totalSeconds / float64(quantity)
}
