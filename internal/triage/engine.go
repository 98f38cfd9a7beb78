package triage

// Engine applies the triage decisions to a complaint. It performs no I/O;
// the Service supplies the dedup window and persists the results.
type Engine struct {
	detector  *DuplicateDetector
	scorer    *PriorityScorer
	router    *RoutingResolver
	relevance float64
}

// NewEngine creates an Engine. relevance is the minimum image confidence for a relevant photo.
func NewEngine(detector *DuplicateDetector, scorer *PriorityScorer, router *RoutingResolver, relevance float64) *Engine {
	return &Engine{
		detector:  detector,
		scorer:    scorer,
		router:    router,
		relevance: relevance,
	}
}

// Detector returns the duplicate detector in use.
func (e *Engine) Detector() *DuplicateDetector { return e.detector }

// Scorer returns the priority scorer in use.
func (e *Engine) Scorer() *PriorityScorer { return e.scorer }

// Router returns the routing resolver in use.
func (e *Engine) Router() *RoutingResolver { return e.router }

// Relevant applies the relevance threshold to an image classifier label.
func (e *Engine) Relevant(label string, confidence float64) bool {
	return IsRelevant(label, confidence, e.relevance)
}

// Route sets department, theme, explanation and initial status from the classification signals.
func (e *Engine) Route(c *Complaint) {
	r := e.router.Resolve(c.Image.Label, c.Topic.Category, c.Topic.Urgency, c.Image.Relevant)
	c.Department = r.Department
	c.Theme = r.Theme
	c.RoutingExplanation = r.Explanation

	c.Status = StatusNew
	if !c.Image.Relevant {
		c.Status = StatusRejected
	}
}

// Assess runs duplicate detection for a new complaint against recent and scores it.
// When a representative is found, the caller must Reinforce it in the same intake.
func (e *Engine) Assess(c *Complaint, recent []*Complaint) DuplicateResult {
	dup := e.detector.Detect(c.Location, recent)

	c.DuplicateGroupID = dup.GroupID
	c.DuplicatesCount = 0
	c.Confirmations = 1
	if dup.GroupID != "" {
		c.Confirmations = 0
	}

	e.score(c, dup.Count)
	return dup
}

// Reinforce records one more duplicate against the representative rep and rescores it.
func (e *Engine) Reinforce(rep *Complaint) {
	rep.DuplicatesCount++
	e.Rescore(rep)
}

// Rescore recomputes the priority of an existing complaint from its own confirmations
// and the duplicates attached to it.
func (e *Engine) Rescore(c *Complaint) {
	e.score(c, c.DuplicatesCount)
}

func (e *Engine) score(c *Complaint, matches int) {
	p := e.scorer.Score(PriorityInput{
		Urgency:       ParseUrgency(c.Topic.Urgency),
		Confirmations: scoringConfirmations(c.Confirmations, matches),
		CreatedAt:     c.CreatedAt,
		ObjectType:    c.ObjectType,
		Relevant:      c.Image.Relevant,
	})
	c.PriorityScore = p.Score
	c.PriorityLevel = p.Level
}

// scoringConfirmations counts the reporter once even when the complaint is itself a duplicate.
func scoringConfirmations(own, matches int) int {
	return max(1, own) + max(0, matches)
}
