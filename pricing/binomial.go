package pricing

import "math"

// crr prices on a Cox-Ross-Rubinstein tree; american enables early exercise.
func crr(phi, s, k, t, r, b, vol float64, steps int, american bool) float64 {
	if t <= 0 {
		return intrinsic(phi, s, k)
	}
	if steps < 2 {
		steps = 2
	}
	dt := t / float64(steps)
	u := math.Exp(vol * math.Sqrt(dt))
	d := 1 / u
	p := (math.Exp(b*dt) - d) / (u - d)
	disc := math.Exp(-r * dt)

	values := make([]float64, steps+1)
	for i := 0; i <= steps; i++ {
		values[i] = intrinsic(phi, s*math.Pow(u, float64(i))*math.Pow(d, float64(steps-i)), k)
	}
	for n := steps - 1; n >= 0; n-- {
		for i := 0; i <= n; i++ {
			v := disc * (p*values[i+1] + (1-p)*values[i])
			if american {
				v = math.Max(v, intrinsic(phi, s*math.Pow(u, float64(i))*math.Pow(d, float64(n-i)), k))
			}
			values[i] = v
		}
	}
	return values[0]
}
