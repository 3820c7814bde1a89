package asyncrt

import (
	"slices"
)

// quantile estimates a single quantile of a stream in constant space using
// the P² algorithm (Jain and Chlamtac, CACM 28(10), 1985). Five markers
// track the minimum, the p/2, p and (1+p)/2 quantiles, and the maximum.
//
// Not safe for concurrent use.
type quantile struct {
	p      float64
	height [5]float64
	pos    [5]int
	want   [5]float64
	step   [5]float64
	n      int
}

func newQuantile(p float64) quantile {
	p = min(max(p, 0), 1)
	return quantile{
		p:    p,
		step: [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}
}

func (q *quantile) observe(x float64) {
	q.n++
	if q.n <= 5 {
		// the first five samples seed the markers
		q.height[q.n-1] = x
		if q.n == 5 {
			slices.Sort(q.height[:])
			for i := range q.pos {
				q.pos[i] = i
			}
			q.want = [5]float64{0, 2 * q.p, 4 * q.p, 2 + 2*q.p, 4}
		}
		return
	}

	var cell int
	switch {
	case x < q.height[0]:
		q.height[0] = x
	case x >= q.height[4]:
		q.height[4] = x
		cell = 3
	default:
		for cell = 0; cell < 3 && x >= q.height[cell+1]; cell++ {
		}
	}
	for i := cell + 1; i < 5; i++ {
		q.pos[i]++
	}
	for i := range q.want {
		q.want[i] += q.step[i]
	}

	for i := 1; i < 4; i++ {
		d := q.want[i] - float64(q.pos[i])
		up := d >= 1 && q.pos[i+1]-q.pos[i] > 1
		down := d <= -1 && q.pos[i-1]-q.pos[i] < -1
		if !up && !down {
			continue
		}
		sign := 1
		if down {
			sign = -1
		}
		if h := q.parabolic(i, sign); q.height[i-1] < h && h < q.height[i+1] {
			q.height[i] = h
		} else {
			q.height[i] = q.linear(i, sign)
		}
		q.pos[i] += sign
	}
}

func (q *quantile) parabolic(i, sign int) float64 {
	s := float64(sign)
	n0, n1, n2 := float64(q.pos[i-1]), float64(q.pos[i]), float64(q.pos[i+1])
	h0, h1, h2 := q.height[i-1], q.height[i], q.height[i+1]
	return h1 + s/(n2-n0)*((n1-n0+s)*(h2-h1)/(n2-n1)+(n2-n1-s)*(h1-h0)/(n1-n0))
}

func (q *quantile) linear(i, sign int) float64 {
	j := i + sign
	return q.height[i] + float64(sign)*(q.height[j]-q.height[i])/float64(q.pos[j]-q.pos[i])
}

func (q *quantile) value() float64 {
	switch {
	case q.n == 0:
		return 0
	case q.n < 5:
		seen := slices.Clone(q.height[:q.n])
		slices.Sort(seen)
		return seen[int(float64(q.n-1)*q.p)]
	default:
		return q.height[2]
	}
}
