// Package kdbush is a static two-dimensional KD index over a fixed set of
// points. The tree is stored implicitly in two flat slices sorted in place.
package kdbush

import (
	"math"
)

type Point[T any] struct {
	X, Y float64
	Data T
}

type Bush[T any] struct {
	nodeSize int
	points   []Point[T]

	ids    []int
	coords []float64
}

// New indexes points. The slice is retained, not copied.
func New[T any](points []Point[T], nodeSize int) *Bush[T] {
	if nodeSize <= 0 {
		nodeSize = 64
	}
	b := &Bush[T]{
		nodeSize: nodeSize,
		points:   points,
		ids:      make([]int, len(points)),
		coords:   make([]float64, 2*len(points)),
	}
	for i, p := range points {
		b.ids[i] = i
		b.coords[2*i] = p.X
		b.coords[2*i+1] = p.Y
	}
	b.sort(0, len(b.ids)-1, 0)
	return b
}

func (b *Bush[T]) Len() int {
	return len(b.points)
}

func (b *Bush[T]) Point(i int) Point[T] {
	return b.points[i]
}

type span struct {
	left, right, axis int
}

// Range returns the indices of the points inside the box.
func (b *Bush[T]) Range(minX, minY, maxX, maxY float64) []int {
	if len(b.ids) == 0 {
		return nil
	}

	var result []int
	inside := func(x, y float64) bool {
		return x >= minX && x <= maxX && y >= minY && y <= maxY
	}

	stack := []span{{0, len(b.ids) - 1, 0}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if s.right-s.left <= b.nodeSize {
			for i := s.left; i <= s.right; i++ {
				if inside(b.coords[2*i], b.coords[2*i+1]) {
					result = append(result, b.ids[i])
				}
			}
			continue
		}

		m := (s.left + s.right) / 2
		x, y := b.coords[2*m], b.coords[2*m+1]
		if inside(x, y) {
			result = append(result, b.ids[m])
		}

		next := 1 - s.axis
		if (s.axis == 0 && minX <= x) || (s.axis == 1 && minY <= y) {
			stack = append(stack, span{s.left, m - 1, next})
		}
		if (s.axis == 0 && maxX >= x) || (s.axis == 1 && maxY >= y) {
			stack = append(stack, span{m + 1, s.right, next})
		}
	}
	return result
}

// Within calls fn for every point at planar distance r or less from (qx, qy)
// until fn returns false. The order of the calls is unspecified.
func (b *Bush[T]) Within(qx, qy, r float64, fn func(i int, p Point[T]) bool) {
	if len(b.ids) == 0 {
		return
	}
	r2 := r * r

	stack := []span{{0, len(b.ids) - 1, 0}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if s.right-s.left <= b.nodeSize {
			for i := s.left; i <= s.right; i++ {
				if sqDist(b.coords[2*i], b.coords[2*i+1], qx, qy) <= r2 {
					if !fn(b.ids[i], b.points[b.ids[i]]) {
						return
					}
				}
			}
			continue
		}

		m := (s.left + s.right) / 2
		x, y := b.coords[2*m], b.coords[2*m+1]
		if sqDist(x, y, qx, qy) <= r2 {
			if !fn(b.ids[m], b.points[b.ids[m]]) {
				return
			}
		}

		next := 1 - s.axis
		if (s.axis == 0 && qx-r <= x) || (s.axis == 1 && qy-r <= y) {
			stack = append(stack, span{s.left, m - 1, next})
		}
		if (s.axis == 0 && qx+r >= x) || (s.axis == 1 && qy+r >= y) {
			stack = append(stack, span{m + 1, s.right, next})
		}
	}
}

func (b *Bush[T]) sort(left, right, depth int) {
	if right-left <= b.nodeSize {
		return
	}
	m := (left + right) / 2
	b.selectK(m, left, right, depth%2)
	b.sort(left, m-1, depth+1)
	b.sort(m+1, right, depth+1)
}

// selectK is Floyd-Rivest selection: after it returns, the k-th element on
// axis inc is in place and everything left of it is not greater.
func (b *Bush[T]) selectK(k, left, right, inc int) {
	for right > left {
		if right-left > 600 {
			n := float64(right - left + 1)
			m := float64(k - left + 1)
			z := math.Log(n)
			s := 0.5 * math.Exp(2*z/3)
			sd := 0.5 * math.Sqrt(z*s*(n-s)/n)
			if m-n/2 < 0 {
				sd = -sd
			}
			newLeft := max(left, int(math.Floor(float64(k)-m*s/n+sd)))
			newRight := min(right, int(math.Floor(float64(k)+(n-m)*s/n+sd)))
			b.selectK(k, newLeft, newRight, inc)
		}

		t := b.coords[2*k+inc]
		i, j := left, right

		b.swap(left, k)
		if b.coords[2*right+inc] > t {
			b.swap(left, right)
		}

		for i < j {
			b.swap(i, j)
			i++
			j--
			for b.coords[2*i+inc] < t {
				i++
			}
			for b.coords[2*j+inc] > t {
				j--
			}
		}

		if b.coords[2*left+inc] == t {
			b.swap(left, j)
		} else {
			j++
			b.swap(j, right)
		}

		if j <= k {
			left = j + 1
		}
		if k <= j {
			right = j - 1
		}
	}
}

func (b *Bush[T]) swap(i, j int) {
	b.ids[i], b.ids[j] = b.ids[j], b.ids[i]
	b.coords[2*i], b.coords[2*j] = b.coords[2*j], b.coords[2*i]
	b.coords[2*i+1], b.coords[2*j+1] = b.coords[2*j+1], b.coords[2*i+1]
}

func sqDist(ax, ay, bx, by float64) float64 {
	dx := ax - bx
	dy := ay - by
	return dx*dx + dy*dy
}
