/**
 * Document Classifier - weighted keyword and category rules per document type
 *
 * Scores are the matched share of each type's total signal weight, so every
 * score is in [0,1]. Ties resolve by the declared type order.
 */

package classifier

import (
	"strings"

	"github.com/ArmanBehnam/clark/internal/config"
	"github.com/ArmanBehnam/clark/internal/errors"
	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/patterns"
)

// DefaultMinConfidence is the score below which a document is UNKNOWN.
const DefaultMinConfidence = 0.3

// Signal is one piece of evidence for a type. Exactly one of Keyword or Category
// is set. Keywords match normalized text by substring.
type Signal struct {
	Keyword  string
	Category string
	Weight   float64
}

// Rule scores one document type.
type Rule struct {
	Type    model.DocumentType
	Signals []Signal
}

// Classification is the classifier output.
type Classification struct {
	Type       model.DocumentType             `json:"document_type"`
	Confidence float64                        `json:"confidence"`
	Scores     map[model.DocumentType]float64 `json:"scores"`
	// Uncertain is set when the top score fell below the minimum.
	Uncertain *errors.ClassificationUncertain `json:"-"`
}

func kw(s string, w float64) Signal  { return Signal{Keyword: s, Weight: w} }
func cat(s string, w float64) Signal { return Signal{Category: s, Weight: w} }

// DefaultRules lists the types in tie-break priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Type: model.DocStructuralNotes, Signals: []Signal{
			kw("GENERAL STRUCTURAL NOTES", 3),
			kw("STRUCTURAL STEEL NOTES", 3),
			kw("DESIGN CRITERIA", 2),
			kw("NOTES", 1),
			cat(patterns.CategoryBuildingCodes, 1.5),
			cat(patterns.CategoryMaterialSpecs, 1.5),
			cat(patterns.CategoryLoadRequirements, 1.5),
			cat(patterns.CategoryStructuralElements, 1),
		}},
		{Type: model.DocSpecification, Signals: []Signal{
			kw("SPECIFICATION", 3),
			kw("PART 1", 2),
			kw("SUBMITTALS", 2),
			kw("QUALITY ASSURANCE", 2),
			kw("EXECUTION", 1.5),
			kw("PRODUCTS", 1.5),
			cat(patterns.CategoryMaterialSpecs, 1),
			cat(patterns.CategoryBuildingCodes, 1),
		}},
		{Type: model.DocCalculationPackage, Signals: []Signal{
			kw("CALCULATION", 3),
			kw("LOAD COMBINATION", 2),
			kw("DESIGN CHECK", 2),
			kw("DEMAND/CAPACITY", 2),
			kw("SECTION MODULUS", 1.5),
			cat(patterns.CategoryLoadRequirements, 1.5),
			cat(patterns.CategoryStructuralElements, 1),
		}},
		{Type: model.DocShopDrawing, Signals: []Signal{
			kw("SHOP DRAWING", 3),
			kw("FABRICAT", 2),
			kw("ERECTION", 2),
			kw("PIECE MARK", 2),
			kw("BILL OF MATERIAL", 2),
			cat(patterns.CategoryStructuralElements, 1.5),
			cat(patterns.CategoryDimensions, 1),
		}},
		{Type: model.DocArchitecturalDrawing, Signals: []Signal{
			kw("FLOOR PLAN", 3),
			kw("ELEVATION", 2),
			kw("REFLECTED CEILING", 2),
			kw("DOOR SCHEDULE", 2),
			kw("FINISH", 1.5),
			cat(patterns.CategoryDimensions, 1.5),
			cat(patterns.CategoryFireProtection, 1),
		}},
	}
}

// Classifier is immutable and safe for concurrent use.
type Classifier struct {
	rules         []Rule
	minConfidence float64
}

// New creates a classifier. Rules are in tie-break priority order.
func New(rules []Rule, minConfidence float64) *Classifier {
	return &Classifier{rules: append([]Rule(nil), rules...), minConfidence: minConfidence}
}

// FromConfig creates a classifier with the default rules.
func FromConfig(cfg config.ClassifierConfig) *Classifier {
	return New(DefaultRules(), cfg.MinConfidence)
}

// Classify scores every type and returns the best one.
func (c *Classifier) Classify(text string, structured map[string][]model.PatternMatch) Classification {
	norm := patterns.Normalize(text)
	out := Classification{Type: model.DocUnknown, Scores: make(map[model.DocumentType]float64, len(c.rules))}

	best := -1.0
	for _, rule := range c.rules {
		s := score(rule, norm, structured)
		out.Scores[rule.Type] = s
		// strict comparison keeps the earlier type on ties
		if s > best {
			best = s
			out.Type = rule.Type
		}
	}
	if best < 0 {
		best = 0
	}
	out.Confidence = best
	if best < c.minConfidence || best == 0 {
		out.Type = model.DocUnknown
		out.Uncertain = &errors.ClassificationUncertain{Score: best, Threshold: c.minConfidence}
	}
	return out
}

func score(rule Rule, norm string, structured map[string][]model.PatternMatch) float64 {
	var total, matched float64
	for _, s := range rule.Signals {
		total += s.Weight
		switch {
		case s.Keyword != "":
			if strings.Contains(norm, patterns.Normalize(s.Keyword)) {
				matched += s.Weight
			}
		case s.Category != "":
			if len(structured[s.Category]) > 0 {
				matched += s.Weight
			}
		}
	}
	if total == 0 {
		return 0
	}
	return model.Round(matched/total, 3)
}
