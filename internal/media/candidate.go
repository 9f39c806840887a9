package media

// Candidate is a title returned by the vector index together with the
// signals the reranker fuses. Payload fields absent from the index record
// take their zero value: empty strings and lists, and 0 for numbers.
type Candidate struct {
	// ID is the catalogue identifier of the title (index point ID when the
	// payload carries no media_id).
	ID string
	// Title is the display title.
	Title string
	// Content is the pre-rendered description block fed to the generator.
	Content string
	// Popularity is the catalogue popularity score, never negative.
	Popularity float64
	// VoteAverage is the mean user rating, clamped into [0, 10].
	VoteAverage float64
	// Genres lists the genre labels attached to the title.
	Genres []string
	// Providers lists the streaming providers carrying the title.
	Providers []string
	// ReleaseYear is the year of first release, 0 when unknown.
	ReleaseYear int
	// SemanticScore is the raw similarity reported by the index.
	SemanticScore float64
	// FusedScore is set by the reranker.
	FusedScore float64
}

// MaxVoteAverage is the upper bound of the rating scale.
const MaxVoteAverage = 10

// Normalize clamps the numeric signals into their documented domains.
func (c *Candidate) Normalize() {
	if c.Popularity < 0 {
		c.Popularity = 0
	}
	switch {
	case c.VoteAverage < 0:
		c.VoteAverage = 0
	case c.VoteAverage > MaxVoteAverage:
		c.VoteAverage = MaxVoteAverage
	}
}
