package features

import (
	"errors"
	"math"
)

// ErrNotPowerOfTwo is returned when an FFT input length is not a power of two
var ErrNotPowerOfTwo = errors.New("fft length must be a power of two")

// IsPowerOfTwo reports whether n is a positive power of two
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// FFT computes the in-place forward DFT of (re, im) with an iterative
// radix-2 Cooley-Tukey transform
func FFT(re, im []float64) error {
	n := len(re)
	if len(im) != n {
		return errors.New("fft real and imaginary parts differ in length")
	}
	if !IsPowerOfTwo(n) {
		return ErrNotPowerOfTwo
	}

	// Bit-reversal permutation
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		angle := -2 * math.Pi / float64(size)
		wRe, wIm := math.Cos(angle), math.Sin(angle)
		for start := 0; start < n; start += size {
			curRe, curIm := 1.0, 0.0
			for k := 0; k < half; k++ {
				a := start + k
				b := a + half
				tRe := curRe*re[b] - curIm*im[b]
				tIm := curRe*im[b] + curIm*re[b]
				re[b] = re[a] - tRe
				im[b] = im[a] - tIm
				re[a] += tRe
				im[a] += tIm
				curRe, curIm = curRe*wRe-curIm*wIm, curRe*wIm+curIm*wRe
			}
		}
	}
	return nil
}

// IFFT computes the in-place inverse DFT: conjugate, forward transform,
// conjugate and scale by 1/N
func IFFT(re, im []float64) error {
	for i := range im {
		im[i] = -im[i]
	}
	if err := FFT(re, im); err != nil {
		return err
	}
	scale := 1 / float64(len(re))
	for i := range re {
		re[i] *= scale
		im[i] = -im[i] * scale
	}
	return nil
}

// MagnitudeSpectrum writes sqrt(re²+im²) for the first len(dst) bins into dst.
// Non-finite components count as zero.
func MagnitudeSpectrum(re, im, dst []float64) {
	for i := range dst {
		r, m := finiteOrZero(re[i]), finiteOrZero(im[i])
		dst[i] = math.Sqrt(r*r + m*m)
	}
}
