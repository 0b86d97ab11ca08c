// ABOUTME: 3D spatialization of a speaker relative to the listener
// ABOUTME: Linear distance falloff and sine panning into stereo gains
package voicechat

import (
	"math"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
)

// SpatialParams are the gains applied to one speaker for one mixing pass
type SpatialParams struct {
	Volume float32
	Left   float32
	Right  float32
}

// Spatialize computes the gains for a speaker heard by a listener at
// listenerPos facing listenerYaw radians. Speakers beyond maxDistance are
// silent.
func Spatialize(speakerPos, listenerPos audio.Vec3, listenerYaw float32, maxDistance float64) SpatialParams {
	delta := speakerPos.Sub(listenerPos)
	distance := delta.Length()
	if distance > maxDistance {
		return SpatialParams{}
	}

	volume := math.Max(0, 1-distance/maxDistance)

	angle := normalizeAngle(math.Atan2(float64(delta[0]), float64(delta[2])) - float64(listenerYaw))
	pan := math.Sin(angle)

	left, right := 1.0, 1.0
	if pan < 0 {
		right = 1 + pan
	} else {
		left = 1 - pan
	}

	return SpatialParams{
		Volume: float32(volume),
		Left:   float32(clamp01(left)),
		Right:  float32(clamp01(right)),
	}
}

// normalizeAngle maps a into (-π, π]
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a > math.Pi {
		a -= 2 * math.Pi
	} else if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
