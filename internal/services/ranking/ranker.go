package ranking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"PricePulse/internal/domain/models"
	"PricePulse/internal/domain/service"
	applogger "PricePulse/pkg/logger"
)

// Config holds ranker windows and thresholds.
type Config struct {
	DefaultLimit      int
	Workers           int
	TrendingDays      int
	TrendDays         int
	MinTrendingPoints int
	MinTrendPoints    int
	TrendThreshold    float64
	HighRating        float64
	HeavyViews        int
	SimilarPerItem    int
	PerCategory       int
	TopTrending       int
	TopRated          int
	TrendingReason    float64
	SavingsReason     float64
}

func DefaultConfig() Config {
	return Config{
		DefaultLimit:      10,
		Workers:           8,
		TrendingDays:      14,
		TrendDays:         30,
		MinTrendingPoints: 5,
		MinTrendPoints:    10,
		TrendThreshold:    0.03,
		HighRating:        4.5,
		HeavyViews:        3,
		SimilarPerItem:    3,
		PerCategory:       2,
		TopTrending:       5,
		TopRated:          3,
		TrendingReason:    0.3,
		SavingsReason:     1000,
	}
}

// Ranker builds personalised recommendation lists.
type Ranker struct {
	cfg Config
	l   *applogger.Logger
}

var _ service.Ranker = (*Ranker)(nil)

// NewRanker fills unset fields from DefaultConfig.
func NewRanker(cfg Config) *Ranker {
	return &Ranker{cfg: cfg.withDefaults()}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	ints := []struct{ v *int; def int }{
		{&c.DefaultLimit, d.DefaultLimit}, {&c.Workers, d.Workers},
		{&c.TrendingDays, d.TrendingDays}, {&c.TrendDays, d.TrendDays},
		{&c.MinTrendingPoints, d.MinTrendingPoints}, {&c.MinTrendPoints, d.MinTrendPoints},
		{&c.HeavyViews, d.HeavyViews}, {&c.SimilarPerItem, d.SimilarPerItem},
		{&c.PerCategory, d.PerCategory}, {&c.TopTrending, d.TopTrending}, {&c.TopRated, d.TopRated},
	}
	for _, f := range ints {
		if *f.v <= 0 {
			*f.v = f.def
		}
	}
	floats := []struct{ v *float64; def float64 }{
		{&c.TrendThreshold, d.TrendThreshold}, {&c.HighRating, d.HighRating},
		{&c.TrendingReason, d.TrendingReason}, {&c.SavingsReason, d.SavingsReason},
	}
	for _, f := range floats {
		if *f.v <= 0 {
			*f.v = f.def
		}
	}
	// the price trend compares two 7-point halves
	if c.MinTrendPoints < 7 {
		c.MinTrendPoints = 7
	}
	return c
}

// SetLogger injects a structured logger.
func (r *Ranker) SetLogger(l *applogger.Logger) { r.l = l }

// activity summarises a snapshot.
type activity struct {
	score      float64
	categories map[string]float64
	totalViews int
	tracked    map[string]bool
	excluded   map[string]bool
}

func (r *Ranker) summarise(snap models.ActivitySnapshot, byID map[string]models.CatalogProduct) activity {
	a := activity{categories: map[string]float64{}, tracked: map[string]bool{}, excluded: map[string]bool{}}
	for id, n := range snap.Views {
		if n <= 0 {
			continue
		}
		a.totalViews += n
		if p, ok := byID[id]; ok {
			a.categories[p.Category] += float64(n)
		}
		if n > r.cfg.HeavyViews {
			a.excluded[id] = true
		}
	}
	for _, id := range snap.Tracked {
		a.tracked[id] = true
		a.excluded[id] = true
	}
	unique := 0
	for _, n := range snap.Views {
		if n > 0 {
			unique++
		}
	}
	raw := float64(a.totalViews) + 2*float64(len(a.tracked)) + 0.5*float64(unique)
	a.score = math.Min(1, raw/30)
	return a
}

// CategoryWeights returns normalised category preferences for a snapshot.
func (r *Ranker) CategoryWeights(snap models.ActivitySnapshot, catalog []models.CatalogProduct) map[string]float64 {
	a := r.summarise(snap, index(catalog))
	total := 0.0
	for _, v := range a.categories {
		total += v
	}
	out := make(map[string]float64, len(a.categories))
	for c, v := range a.categories {
		out[c] = v / total
	}
	return out
}

// Rank scores candidate products and returns the top limit with reasons.
func (r *Ranker) Rank(ctx context.Context, in models.RankingInput, limit int) (models.RecommendationSet, error) {
	if limit <= 0 {
		limit = r.cfg.DefaultLimit
	}
	byID := index(in.Catalog)
	asOf := in.AsOf
	byProduct := make(map[string][]models.PricePoint)
	for _, p := range in.Prices {
		byProduct[p.ProductID] = append(byProduct[p.ProductID], p)
		if in.AsOf.IsZero() && p.Date.After(asOf) {
			asOf = p.Date
		}
	}

	signals, err := r.signals(ctx, in.Catalog, byProduct, asOf)
	if err != nil {
		return models.RecommendationSet{}, &models.StageError{Stage: models.StageRanking, Err: err}
	}

	act := r.summarise(in.Activity, byID)
	candidates := r.candidates(in, act, signals)

	recs := make([]models.ProductRecommendation, 0, len(candidates))
	for _, id := range candidates {
		p := byID[id]
		sig := signals[id]
		if !sig.hasData {
			continue
		}
		score := r.score(p, sig, act)
		if score <= 0 {
			continue
		}
		recs = append(recs, models.ProductRecommendation{
			ProductID:        p.ID,
			ProductName:      p.Name,
			Category:         p.Category,
			Score:            score,
			Reasons:          r.reasons(p, sig, act, in.Catalog),
			Rating:           p.Rating,
			TrendingScore:    sig.trending,
			PriceTrend:       sig.trend,
			PotentialSavings: sig.savings,
			CurrentPrice:     sig.currentPrice,
			BestRetailer:     sig.bestRetailer,
			Description:      p.Description,
		})
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].ProductID < recs[j].ProductID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}

	set := models.RecommendationSet{
		UserID:               in.Activity.Identity.UserID,
		SessionID:            in.Activity.Identity.SessionID,
		Recommendations:      recs,
		PersonalizationScore: personalization(act, len(recs)),
		TotalCount:           len(recs),
		GeneratedAt:          time.Now().UTC(),
	}
	if r.l != nil {
		r.l.Debug("ranking.rank ok",
			applogger.String("identity", in.Activity.Identity.Key()),
			applogger.Int("candidates", len(candidates)),
			applogger.Int("returned", len(recs)),
			applogger.Float64("personalization", set.PersonalizationScore),
		)
	}
	return set, nil
}

// signals computes per-product signals on a bounded pool.
func (r *Ranker) signals(ctx context.Context, catalog []models.CatalogProduct, byProduct map[string][]models.PricePoint, asOf time.Time) (map[string]productSignals, error) {
	results := make([]productSignals, len(catalog))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, p := range catalog {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = computeSignals(byProduct[p.ID], asOf, r.cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]productSignals, len(catalog))
	for i, p := range catalog {
		out[p.ID] = results[i]
	}
	return out, nil
}

func (r *Ranker) candidates(in models.RankingInput, act activity, signals map[string]productSignals) []string {
	var (
		out  []string
		seen = map[string]bool{}
	)
	add := func(id string) {
		if !seen[id] && !act.excluded[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	// similar items of everything viewed or tracked, viewed first by id for a stable order
	interacted := make([]string, 0, len(in.Activity.Views)+len(in.Activity.Tracked))
	for id, n := range in.Activity.Views {
		if n > 0 {
			interacted = append(interacted, id)
		}
	}
	sort.Strings(interacted)
	interacted = append(interacted, in.Activity.Tracked...)
	for _, id := range interacted {
		for _, s := range r.similar(id, in.Catalog, act.excluded) {
			add(s)
		}
	}

	cats := make([]string, 0, len(act.categories))
	for c := range act.categories {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if act.categories[cats[i]] != act.categories[cats[j]] {
			return act.categories[cats[i]] > act.categories[cats[j]]
		}
		return cats[i] < cats[j]
	})
	for _, c := range cats {
		n := 0
		for _, p := range in.Catalog {
			if n == r.cfg.PerCategory {
				break
			}
			if p.Category == c && !act.excluded[p.ID] {
				add(p.ID)
				n++
			}
		}
	}

	trending := make([]models.CatalogProduct, 0, len(in.Catalog))
	for _, p := range in.Catalog {
		if !act.excluded[p.ID] {
			trending = append(trending, p)
		}
	}
	sort.SliceStable(trending, func(i, j int) bool { return signals[trending[i].ID].trending > signals[trending[j].ID].trending })
	for i := 0; i < len(trending) && i < r.cfg.TopTrending; i++ {
		add(trending[i].ID)
	}

	rated := make([]models.CatalogProduct, 0, len(in.Catalog))
	for _, p := range in.Catalog {
		if p.Rating >= r.cfg.HighRating && !act.excluded[p.ID] {
			rated = append(rated, p)
		}
	}
	sort.SliceStable(rated, func(i, j int) bool { return rated[i].Rating > rated[j].Rating })
	for i := 0; i < len(rated) && i < r.cfg.TopRated; i++ {
		add(rated[i].ID)
	}
	return out
}

// similar returns up to SimilarPerItem other products of id's category, in catalog order.
func (r *Ranker) similar(id string, catalog []models.CatalogProduct, excluded map[string]bool) []string {
	var cat string
	for _, p := range catalog {
		if p.ID == id {
			cat = p.Category
			break
		}
	}
	if cat == "" {
		return nil
	}
	out := make([]string, 0, r.cfg.SimilarPerItem)
	for _, p := range catalog {
		if len(out) == r.cfg.SimilarPerItem {
			break
		}
		if p.Category == cat && p.ID != id && !excluded[p.ID] {
			out = append(out, p.ID)
		}
	}
	return out
}

func (r *Ranker) score(p models.CatalogProduct, sig productSignals, act activity) float64 {
	s := 0.1
	if v, ok := act.categories[p.Category]; ok {
		s += math.Min(0.4, v/10)
	}
	rating := p.Rating
	if rating == 0 {
		rating = 3
	}
	s += (rating - 3) / 5
	s += sig.trending * 0.2
	switch sig.trend {
	case models.TrendDecreasing:
		s += 0.15
	case models.TrendStable:
		s += 0.05
	}
	s *= 0.5 + 0.5*act.score
	return math.Min(1, s)
}

func (r *Ranker) reasons(p models.CatalogProduct, sig productSignals, act activity, catalog []models.CatalogProduct) []string {
	var out []string
	if _, ok := act.categories[p.Category]; ok {
		out = append(out, fmt.Sprintf("You've shown interest in %s products", p.Category))
	}
	for id := range act.tracked {
		if contains(r.similar(id, catalog, nil), p.ID) {
			out = append(out, "Similar to products you're tracking")
			break
		}
	}
	if sig.trending > r.cfg.TrendingReason {
		out = append(out, "Currently trending with active price movements")
	}
	if p.Rating >= r.cfg.HighRating {
		out = append(out, fmt.Sprintf("Highly rated product (%.1f/5.0)", p.Rating))
	}
	if sig.trend == models.TrendDecreasing {
		out = append(out, "Price is currently decreasing")
	} else if sig.savings > r.cfg.SavingsReason {
		out = append(out, fmt.Sprintf("Price varies by %s across retailers", groupThousands(sig.savings)))
	}
	if len(out) == 0 {
		out = append(out, "Popular choice in this category")
	}
	return out
}

// personalization composes activity, category breadth, tracking and result size into [0,1].
func personalization(act activity, recs int) float64 {
	s := act.score * 0.4
	if n := len(act.categories); n > 0 {
		total := 0.0
		for _, v := range act.categories {
			total += v
		}
		s += math.Min(1, float64(n)/4)*0.2 + math.Min(1, total/50)*0.1
	}
	if n := len(act.tracked); n > 0 {
		s += math.Min(0.2, float64(n)/10*0.2)
	}
	if recs > 0 {
		s += math.Min(0.1, float64(recs)/10*0.1)
	}
	return math.Max(0, math.Min(1, s))
}

func index(catalog []models.CatalogProduct) map[string]models.CatalogProduct {
	out := make(map[string]models.CatalogProduct, len(catalog))
	for _, p := range catalog {
		out[p.ID] = p
	}
	return out
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// groupThousands renders 12500.4 as "12,500".
func groupThousands(v float64) string {
	s := strconv.FormatInt(int64(math.Round(v)), 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
