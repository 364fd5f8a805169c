// Package review defines the domain types shared across the crawler:
// raw review records, flattened output rows and quota plans.
package review

// StarLevels enumerates the star filters in ascending order.
var StarLevels = []int{1, 2, 3, 4, 5}

// ReviewRecord is one review as parsed from an upstream page. Rating is
// zero when the upstream payload carried no usable rating.
type ReviewRecord struct {
	Reviewer   string
	ReviewDate string
	Rating     int
	Body       string
	ImageURLs  []string
	VideoURLs  []string
}

// Row is one flattened output row headed for the sink and the workbook.
// Multi-valued fields are comma-joined into single cells.
type Row struct {
	Category    string
	Brand       string
	Model       string
	ProductName string
	Rating      int
	Reviewer    string
	ReviewDate  string
	Body        string
	ImageURLs   string
	VideoURLs   string
	ProductLink string
	DedupKey    string
	Source      string
}

// QuotaPlan caps how many reviews a target may contribute, overall and
// per star bucket.
type QuotaPlan struct {
	Total   int
	PerStar map[int]int
}

// NewQuotaPlan derives per-star caps from a total: each star gets an
// equal share with a floor of one, and the remainder goes to five-star.
func NewQuotaPlan(total int) QuotaPlan {
	perStar := total / len(StarLevels)
	if perStar < 1 {
		perStar = 1
	}
	plan := QuotaPlan{
		Total:   total,
		PerStar: make(map[int]int, len(StarLevels)),
	}
	for _, s := range StarLevels {
		plan.PerStar[s] = perStar
	}
	if remainder := total - perStar*len(StarLevels); remainder > 0 {
		plan.PerStar[5] += remainder
	}
	return plan
}

// Star returns the cap for one star bucket.
func (p QuotaPlan) Star(star int) int { return p.PerStar[star] }

// Equal reports whether two plans carry the same caps.
func (p QuotaPlan) Equal(other QuotaPlan) bool {
	if p.Total != other.Total {
		return false
	}
	for _, s := range StarLevels {
		if p.PerStar[s] != other.PerStar[s] {
			return false
		}
	}
	return true
}
