// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package geo holds the spherical primitives every course and heading
// computation is built from. All functions are pure.
package geo

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// EarthRadius is the sphere radius used for all projections, in meters.
const EarthRadius = 6378137.0

// MetersPerNauticalMile converts course distances given in nm.
const MetersPerNauticalMile = 1852.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both coordinates are finite and in range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func toRad(deg float64) float64 { return deg * math.Pi / 180.0 }
func toDeg(rad float64) float64 { return rad * 180.0 / math.Pi }

// NormalizeBearing folds any angle into [0, 360).
func NormalizeBearing(deg float64) float64 {
	b := math.Mod(deg, 360)
	if b < 0 {
		b += 360
	}
	// -0 and values that round up to 360
	if b >= 360 {
		b = 0
	}
	return b + 0
}

// normalizeLng folds a longitude into [-180, 180).
func normalizeLng(deg float64) float64 {
	l := math.Mod(deg+540, 360)
	if l < 0 {
		l += 360
	}
	return l - 180
}

// DestinationPoint projects p along a great circle with the given initial
// bearing (degrees clockwise from true north) for distanceM meters.
//
//	φ2 = asin(sinφ1·cosδ + cosφ1·sinδ·cosθ)
//	λ2 = λ1 + atan2(sinθ·sinδ·cosφ1, cosδ − sinφ1·sinφ2)
func DestinationPoint(p Point, bearingDeg, distanceM float64) Point {
	delta := distanceM / EarthRadius
	theta := toRad(bearingDeg)
	phi1 := toRad(p.Lat)
	lambda1 := toRad(p.Lng)

	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta)
	phi2 := math.Asin(sinPhi2)
	y := math.Sin(theta) * math.Sin(delta) * math.Cos(phi1)
	x := math.Cos(delta) - math.Sin(phi1)*sinPhi2
	lambda2 := lambda1 + math.Atan2(y, x)

	return Point{Lat: toDeg(phi2), Lng: normalizeLng(toDeg(lambda2))}
}

// CalcBearing returns the initial great-circle bearing from a to b in [0, 360).
func CalcBearing(a, b Point) float64 {
	phi1 := toRad(a.Lat)
	phi2 := toRad(b.Lat)
	dLambda := toRad(b.Lng - a.Lng)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	return NormalizeBearing(toDeg(math.Atan2(y, x)))
}

// Midpoint returns the great-circle midpoint between a and b.
func Midpoint(a, b Point) Point {
	phi1 := toRad(a.Lat)
	phi2 := toRad(b.Lat)
	lambda1 := toRad(a.Lng)
	dLambda := toRad(b.Lng - a.Lng)

	bx := math.Cos(phi2) * math.Cos(dLambda)
	by := math.Cos(phi2) * math.Sin(dLambda)
	phiM := math.Atan2(math.Sin(phi1)+math.Sin(phi2), math.Sqrt((math.Cos(phi1)+bx)*(math.Cos(phi1)+bx)+by*by))
	lambdaM := lambda1 + math.Atan2(by, math.Cos(phi1)+bx)

	return Point{Lat: toDeg(phiM), Lng: normalizeLng(toDeg(lambdaM))}
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	pa := s2.PointFromLatLng(s2.LatLngFromDegrees(a.Lat, a.Lng))
	pb := s2.PointFromLatLng(s2.LatLngFromDegrees(b.Lat, b.Lng))
	angle := s1.Angle(s2.ChordAngleBetweenPoints(pa, pb).Angle())
	return angle.Radians() * EarthRadius
}

// AngleDiff returns the smallest absolute difference between two bearings,
// in [0, 180].
func AngleDiff(a, b float64) float64 {
	d := math.Abs(NormalizeBearing(a) - NormalizeBearing(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}
