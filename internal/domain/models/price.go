package models

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"time"
)

// PricePoint is a single immutable price observation.
type PricePoint struct {
	ProductID string    `json:"product_id"`
	Retailer  string    `json:"retailer"`
	Date      time.Time `json:"date"`
	Price     float64   `json:"price"`
}

// PriceSeries is a date-ordered sequence of observations for one product,
// scoped to a retailer or aggregated across retailers (Retailer == "").
type PriceSeries struct {
	ProductID string
	Retailer  string
	Points    []PricePoint
}

// Day truncates t to a UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewPriceSeries sorts points by date and rejects duplicate dates.
func NewPriceSeries(productID, retailer string, points []PricePoint) (PriceSeries, error) {
	pts := make([]PricePoint, len(points))
	copy(pts, points)
	for i := range pts {
		pts[i].Date = Day(pts[i].Date)
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Date.Before(pts[j].Date) })
	for i := 1; i < len(pts); i++ {
		if pts[i].Date.Equal(pts[i-1].Date) {
			return PriceSeries{}, fmt.Errorf("duplicate observation for %s/%s on %s",
				productID, retailer, pts[i].Date.Format(time.DateOnly))
		}
	}
	return PriceSeries{ProductID: productID, Retailer: retailer, Points: pts}, nil
}

// DailyMean aggregates observations from all retailers into one mean price per day.
func DailyMean(productID string, points []PricePoint) PriceSeries {
	sums := make(map[time.Time]float64)
	counts := make(map[time.Time]int)
	for _, p := range points {
		d := Day(p.Date)
		sums[d] += p.Price
		counts[d]++
	}
	out := make([]PricePoint, 0, len(sums))
	for d, s := range sums {
		out = append(out, PricePoint{ProductID: productID, Date: d, Price: s / float64(counts[d])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return PriceSeries{ProductID: productID, Points: out}
}

// FilterRetailer returns the observations of one retailer.
func FilterRetailer(points []PricePoint, retailer string) []PricePoint {
	out := make([]PricePoint, 0, len(points))
	for _, p := range points {
		if p.Retailer == retailer {
			out = append(out, p)
		}
	}
	return out
}

// SortPoints orders observations by date, then retailer.
func SortPoints(points []PricePoint) {
	sort.SliceStable(points, func(i, j int) bool {
		if !points[i].Date.Equal(points[j].Date) {
			return points[i].Date.Before(points[j].Date)
		}
		return points[i].Retailer < points[j].Retailer
	})
}

// Len returns the number of observations.
func (s PriceSeries) Len() int { return len(s.Points) }

// Prices returns the price column.
func (s PriceSeries) Prices() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Price
	}
	return out
}

// Last returns the most recent observation. The series must not be empty.
func (s PriceSeries) Last() PricePoint { return s.Points[len(s.Points)-1] }

// Checksum hashes every observation in order, so any upserted price changes it.
func Checksum(points []PricePoint) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, p := range points {
		h.Write([]byte(p.Retailer))
		binary.LittleEndian.PutUint64(buf[:], uint64(p.Date.Unix()))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(p.Price))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// Clone returns a deep copy.
func (s PriceSeries) Clone() PriceSeries {
	pts := make([]PricePoint, len(s.Points))
	copy(pts, s.Points)
	return PriceSeries{ProductID: s.ProductID, Retailer: s.Retailer, Points: pts}
}

// Label is a human-readable retailer scope.
func (s PriceSeries) Label() string {
	if s.Retailer == "" {
		return "All Retailers (Average)"
	}
	return s.Retailer
}
