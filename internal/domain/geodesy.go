package domain

import "math"

const (
	// EarthRadiusKm is the spherical radius used for km/degree conversion.
	EarthRadiusKm = 6371.0

	// MinDepthKm is the shallowest focal depth passed to travel-time models.
	MinDepthKm = 1.5

	// WGS84 ellipsoid.
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
	wgs84B = wgs84A * (1 - wgs84F)
)

// EffectiveDepth clamps a focal depth to MinDepthKm. Near-surface sources
// make the travel-time integrals singular.
func EffectiveDepth(depthKm float64) float64 {
	return math.Max(depthKm, MinDepthKm)
}

// KilometersToDegrees converts a surface distance to degrees of arc on a
// sphere of the given radius. A non-positive radius uses EarthRadiusKm.
func KilometersToDegrees(km, radiusKm float64) float64 {
	if radiusKm <= 0 {
		radiusKm = EarthRadiusKm
	}
	return km / (2 * math.Pi * radiusKm / 360)
}

// DegreesToKilometers is the inverse of KilometersToDegrees.
func DegreesToKilometers(deg, radiusKm float64) float64 {
	if radiusKm <= 0 {
		radiusKm = EarthRadiusKm
	}
	return deg * (2 * math.Pi * radiusKm / 360)
}

// GeodesicDistanceKm returns the WGS84 ellipsoidal distance between two
// points using Vincenty's inverse formula. Nearly antipodal pairs where the
// iteration does not converge fall back to the great-circle distance.
func GeodesicDistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	L := radians(lon2 - lon1)
	U1 := math.Atan((1 - wgs84F) * math.Tan(radians(lat1)))
	U2 := math.Atan((1 - wgs84F) * math.Tan(radians(lat2)))
	sinU1, cosU1 := math.Sincos(U1)
	sinU2, cosU2 := math.Sincos(U2)

	lambda := L
	var sinSigma, cosSigma, sigma, cosSqAlpha, cos2SigmaM float64
	converged := false
	for range 200 {
		sinLambda, cosLambda := math.Sincos(lambda)
		sinSigma = math.Hypot(cosU2*sinLambda, cosU1*sinU2-sinU1*cosU2*cosLambda)
		if sinSigma == 0 {
			return 0
		}
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)
		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cosSqAlpha = 1 - sinAlpha*sinAlpha
		if cosSqAlpha != 0 {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cosSqAlpha
		} else {
			cos2SigmaM = 0 // equatorial line
		}
		C := wgs84F / 16 * cosSqAlpha * (4 + wgs84F*(4-3*cosSqAlpha))
		prev := lambda
		lambda = L + (1-C)*wgs84F*sinAlpha*
			(sigma+C*sinSigma*(cos2SigmaM+C*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))
		if math.Abs(lambda-prev) < 1e-12 {
			converged = true
			break
		}
	}
	if !converged {
		return greatCircleKm(lat1, lon1, lat2, lon2)
	}

	uSq := cosSqAlpha * (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84B * wgs84B)
	A := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	B := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
	deltaSigma := B * sinSigma * (cos2SigmaM + B/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
		B/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))

	return wgs84B * A * (sigma - deltaSigma) / 1000
}

func greatCircleKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1, p2 := radians(lat1), radians(lat2)
	dp := p2 - p1
	dl := radians(lon2 - lon1)
	h := math.Sin(dp/2)*math.Sin(dp/2) + math.Cos(p1)*math.Cos(p2)*math.Sin(dl/2)*math.Sin(dl/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
