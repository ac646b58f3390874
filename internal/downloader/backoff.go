package downloader

import (
	"math"
	"math/rand"
	"time"
)

// fullJitterBackOff реализует cenkalti/backoff/v5.BackOff с "full
// jitter": следующая пауза — случайное число от 0 до min(cap, base*2^n),
// как того явно требует протокол загрузки (в отличие от библиотечного
// ExponentialBackOff, у которого jitter — это randomization factor
// вокруг текущего интервала, а не полный диапазон от нуля).
type fullJitterBackOff struct {
	base    time.Duration
	cap     time.Duration
	attempt int
}

func newFullJitterBackOff(base, cap time.Duration) *fullJitterBackOff {
	return &fullJitterBackOff{base: base, cap: cap}
}

// NextBackOff возвращает следующую паузу перед retry. Удовлетворяет
// интерфейсу backoff.BackOff.
func (b *fullJitterBackOff) NextBackOff() time.Duration {
	ceiling := time.Duration(math.Min(
		float64(b.cap),
		float64(b.base)*math.Pow(2, float64(b.attempt)),
	))
	b.attempt++
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceiling)))
}
