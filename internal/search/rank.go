package search

import (
	"sort"

	"tunehub/internal/domain"
)

// Ranker clusters raw hits, keeps the best member of every cluster and orders
// the representatives by score.
type Ranker struct {
	canon  Canonicalizer
	scorer *Scorer
}

func NewRanker(canon Canonicalizer, scorer *Scorer) *Ranker {
	if scorer == nil {
		scorer = NewScorer()
	}
	return &Ranker{canon: canon, scorer: scorer}
}

// Rank returns at most query.Limit hits sorted by non-increasing score. Ties
// keep first-seen order, both inside a cluster and across clusters.
func (r *Ranker) Rank(hits []domain.Hit, query domain.Query) []domain.ScoredHit {
	query = query.Normalized()
	candidates := r.filter(hits, query)
	if len(candidates) == 0 {
		return []domain.ScoredHit{}
	}

	clusters := r.canon.Cluster(candidates)
	representatives := make([]domain.Hit, 0, len(clusters))
	for _, cluster := range clusters {
		representatives = append(representatives, r.representative(cluster, query))
	}

	ranked := make([]domain.ScoredHit, 0, len(representatives))
	for _, hit := range representatives {
		ranked = append(ranked, domain.ScoredHit{Hit: hit, Score: r.scorer.Score(hit, query)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > query.Limit {
		ranked = ranked[:query.Limit]
	}
	return ranked
}

func (r *Ranker) representative(cluster Cluster, query domain.Query) domain.Hit {
	best := cluster.Hits[0]
	bestScore := r.scorer.Score(best, query)
	for _, hit := range cluster.Hits[1:] {
		if score := r.scorer.Score(hit, query); score > bestScore {
			best, bestScore = hit, score
		}
	}
	return best
}

// filter applies the bitrate floor and, for strict queries, drops irrelevant
// hits, known years that differ and known formats outside the preferred set.
// Unknown values never filter a hit out.
func (r *Ranker) filter(hits []domain.Hit, query domain.Query) []domain.Hit {
	preferred := make(map[domain.Format]struct{}, len(query.PreferredFormats))
	for _, format := range query.PreferredFormats {
		preferred[format] = struct{}{}
	}
	hasTerms := len(query.Terms()) > 0

	out := make([]domain.Hit, 0, len(hits))
	for _, hit := range hits {
		if query.MinBitrateKbps > 0 && hit.BitrateKbps > 0 && hit.BitrateKbps < query.MinBitrateKbps {
			continue
		}
		if query.Strict {
			if hasTerms && r.scorer.Relevance(hit, query) == 0 {
				continue
			}
			if query.Year > 0 && hit.Year > 0 && hit.Year != query.Year {
				continue
			}
			if len(preferred) > 0 {
				if family, ok := formatFamily(hit.Format); ok {
					if _, wanted := preferred[family]; !wanted {
						continue
					}
				}
			}
		}
		out = append(out, hit)
	}
	return out
}
